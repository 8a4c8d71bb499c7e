// Package weighted implements the weighted-pool factory variant: the
// Balancer-V1-family BFactory's LOG_NEW_POOL event.
package weighted

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
	poolweighted "github.com/defistate/statespace/pool/weighted"
)

// LogNewPoolEventSignature is LOG_NEW_POOL(address indexed caller, address
// indexed pool).
var LogNewPoolEventSignature = crypto.Keccak256Hash([]byte("LOG_NEW_POOL(address,address)"))

// Factory is the weighted-pool factory variant.
type Factory struct {
	address       common.Address
	creationBlock uint64
}

func New(address common.Address, creationBlock uint64) *Factory {
	return &Factory{address: address, creationBlock: creationBlock}
}

func (f *Factory) Address() common.Address                 { return f.address }
func (f *Factory) CreationBlock() uint64                   { return f.creationBlock }
func (f *Factory) PoolCreationEventSignature() common.Hash { return LogNewPoolEventSignature }
func (f *Factory) PoolVariantDefault() pool.Kind            { return pool.KindWeighted }
func (f *Factory) SyncEvents() []common.Hash {
	return []common.Hash{poolweighted.LogSwapEventSignature, poolweighted.LogCallEventSignature}
}

// CreatePoolShell parses a LOG_NEW_POOL log. The pool's token list, weights,
// and fee are all read later by the state reader — the event itself only
// announces the pool's address — so this returns a placeholder the caller
// must not insert into the registry directly; discovery.Engine keeps only
// the shell's address and inserts the pool that ReadStatic and ReadDynamic
// build for it.
func (f *Factory) CreatePoolShell(log *types.Log) (pool.AMM, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("%w: LOG_NEW_POOL missing indexed fields", errs.ErrPopulateFailed)
	}
	poolAddr := common.BytesToAddress(log.Topics[2].Bytes())
	return shell{address: poolAddr}, nil
}

// shell is a minimal pool.AMM used only as a carrier for the discovered
// address between CreatePoolShell and discovery.Engine's ReadStatic call;
// weighted pools cannot construct a real poolweighted.Pool without first
// knowing the token count (weighted.New panics below 2 tokens), so there is
// no "empty but valid" *poolweighted.Pool to return here.
type shell struct{ address common.Address }

func (s shell) Address() common.Address                                 { return s.address }
func (s shell) Kind() pool.Kind                                          { return pool.KindWeighted }
func (s shell) Tokens() []common.Address                                { return nil }
func (s shell) SyncEvents() []common.Hash                               { return nil }
func (s shell) Sync(*types.Log) error                                   { return errs.ErrLogMismatch }
func (s shell) Price(common.Address, common.Address) (float64, error)   { return 0, errs.ErrInvalidInput }
func (s shell) SimulateSwap(common.Address, common.Address, *big.Int) (*big.Int, error) {
	return nil, errs.ErrInvalidInput
}
func (s shell) SimulateSwapMut(common.Address, common.Address, *big.Int) (*big.Int, error) {
	return nil, errs.ErrInvalidInput
}
func (s shell) Clone() pool.AMM { return s }
