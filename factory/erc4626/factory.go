// Package erc4626 implements the vault factory variant.
//
// ERC4626 has no canonical "factory" standard the way Uniswap does — most
// vaults are deployed individually or via a project-specific registry.
// This factory models the common "vault registry" shape (a contract that
// emits one event per vault it lists) via a VaultListed(address indexed
// vault, address indexed asset) event; a deployment using a different
// registry shape supplies its own factory implementing the same
// factory.Factory interface, the registry's own event translated into the
// same CreatePoolShell contract.
package erc4626

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
	poolvault "github.com/defistate/statespace/pool/erc4626"
)

// VaultListedEventSignature is VaultListed(address indexed vault, address
// indexed asset).
var VaultListedEventSignature = crypto.Keccak256Hash([]byte("VaultListed(address,address)"))

// Factory is the ERC4626 vault factory variant.
type Factory struct {
	address       common.Address
	creationBlock uint64
}

func New(address common.Address, creationBlock uint64) *Factory {
	return &Factory{address: address, creationBlock: creationBlock}
}

func (f *Factory) Address() common.Address                 { return f.address }
func (f *Factory) CreationBlock() uint64                   { return f.creationBlock }
func (f *Factory) PoolCreationEventSignature() common.Hash { return VaultListedEventSignature }
func (f *Factory) PoolVariantDefault() pool.Kind            { return pool.KindERC4626Vault }
func (f *Factory) SyncEvents() []common.Hash {
	return []common.Hash{poolvault.DepositEventSignature, poolvault.WithdrawEventSignature}
}

// CreatePoolShell parses a VaultListed log: vault and asset are both
// indexed topics. Decimals and the fee-delta-derived probes are filled in
// by the state reader.
func (f *Factory) CreatePoolShell(log *types.Log) (pool.AMM, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("%w: VaultListed missing indexed fields", errs.ErrPopulateFailed)
	}
	vault := common.BytesToAddress(log.Topics[1].Bytes())
	asset := common.BytesToAddress(log.Topics[2].Bytes())
	return poolvault.New(vault, asset, 0, 0, 0, 0), nil
}
