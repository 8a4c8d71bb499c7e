// Package uniswapv2 implements the constant-product factory variant: the
// Uniswap-V2-family PairCreated event, and a per-factory fee in basis
// points since V2 pairs do not store their own fee on-chain.
package uniswapv2

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
	poolv2 "github.com/defistate/statespace/pool/uniswapv2"
)

// PairCreatedEventSignature is PairCreated(address indexed token0, address
// indexed token1, address pair, uint256).
var PairCreatedEventSignature = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))

// Factory is the constant-product factory variant.
type Factory struct {
	address       common.Address
	creationBlock uint64
	feeBps        uint16
}

// New constructs a factory for a deployed V2-family factory contract.
// feeBps is the fixed swap fee every pair this factory creates will
// charge (30 for canonical Uniswap V2, forks vary).
func New(address common.Address, creationBlock uint64, feeBps uint16) *Factory {
	return &Factory{address: address, creationBlock: creationBlock, feeBps: feeBps}
}

func (f *Factory) Address() common.Address                   { return f.address }
func (f *Factory) CreationBlock() uint64                     { return f.creationBlock }
func (f *Factory) PoolCreationEventSignature() common.Hash   { return PairCreatedEventSignature }
func (f *Factory) PoolVariantDefault() pool.Kind              { return pool.KindConstantProduct }
func (f *Factory) SyncEvents() []common.Hash                 { return []common.Hash{poolv2.SyncEventSignature} }

// CreatePoolShell parses a PairCreated log: token0/token1 are indexed
// topics, the pair address is the first data word.
func (f *Factory) CreatePoolShell(log *types.Log) (pool.AMM, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("%w: PairCreated missing indexed tokens", errs.ErrPopulateFailed)
	}
	if len(log.Data) < 32 {
		return nil, fmt.Errorf("%w: PairCreated short data", errs.ErrPopulateFailed)
	}
	tokenA := common.BytesToAddress(log.Topics[1].Bytes())
	tokenB := common.BytesToAddress(log.Topics[2].Bytes())
	// log.Data[32:64] carries the factory's pair-creation counter, which
	// the engine has no use for.
	pairAddr := common.BytesToAddress(log.Data[0:32])
	return poolv2.New(pairAddr, tokenA, tokenB, 0, 0, f.feeBps), nil
}
