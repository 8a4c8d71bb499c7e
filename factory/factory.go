// Package factory defines the Factory Variants abstraction (spec §4.2):
// for each supported protocol, a factory knows how to recognize its own
// pool-creation event and turn a decoded creation log into an empty pool
// shell of the matching variant. The Discovery Engine programs against
// this interface alone; it never needs to know which protocol a factory
// belongs to beyond the Kind it reports.
package factory

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/defistate/statespace/pool"
)

// Factory discovers pool-creation events for one on-chain factory contract
// and instantiates empty pool shells of its associated variant.
type Factory interface {
	// Address is the factory contract's own address, used to scope the
	// historic log query Discovery issues for this factory.
	Address() common.Address

	// CreationBlock is the block the factory contract itself was deployed
	// at (or any safe lower bound); Discovery never scans before it.
	CreationBlock() uint64

	// PoolCreationEventSignature is the topic0 this factory emits when it
	// creates a new pool.
	PoolCreationEventSignature() common.Hash

	// PoolVariantDefault identifies which pool.Kind this factory's pools
	// implement.
	PoolVariantDefault() pool.Kind

	// CreatePoolShell parses one creation log into an empty pool of the
	// associated variant, with only the immutable fields the log itself
	// carries populated (addresses, fee tier, tick spacing). The state
	// reader fills in the rest.
	CreatePoolShell(log *types.Log) (pool.AMM, error)

	// SyncEvents is the union of the pool variant's own SyncEvents(), so
	// the synchronizer can subscribe once per factory instead of once per
	// pool (spec §4.2, §6.4).
	SyncEvents() []common.Hash
}
