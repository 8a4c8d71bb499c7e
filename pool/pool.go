// Package pool defines the polymorphic pool abstraction shared by every
// supported AMM variant: constant-product, concentrated-liquidity, ERC4626
// vaults, and weighted pools. Each variant lives in its own subpackage and
// implements the AMM interface; callers that need to be exhaustive over
// variants (snapshotting, pool-creation-log parsing) switch on Kind rather
// than relying on closed sum types, which Go does not have.
package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind tags which pricing model a Pool implements.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConstantProduct
	KindConcentratedLiquidity
	KindERC4626Vault
	KindWeighted
)

func (k Kind) String() string {
	switch k {
	case KindConstantProduct:
		return "constant_product"
	case KindConcentratedLiquidity:
		return "concentrated_liquidity"
	case KindERC4626Vault:
		return "erc4626_vault"
	case KindWeighted:
		return "weighted"
	default:
		return "unknown"
	}
}

// Token is a resolved ERC20 identity. Decimals are fixed once resolved; a
// pool that cannot resolve decimals for one of its tokens is a populate
// failure and is dropped (see discovery.Engine).
type Token struct {
	Address  common.Address
	Decimals uint8
}

// AMM is the capability set every pool variant exposes. It is the single
// abstraction the registry, synchronizer, and value filter program against;
// none of them know about a specific variant's fields.
type AMM interface {
	// Address is the pool contract's own address, used as the registry's
	// primary key.
	Address() common.Address

	// Kind identifies which variant this value implements, for the rare
	// call sites that must be exhaustive over variants.
	Kind() Kind

	// Tokens returns every token this pool holds, in the order the variant
	// defines (pair order for V2/V3, deposit/asset order for 4626, weight
	// order for weighted pools). The registry indexes the pool under every
	// address returned here.
	Tokens() []common.Address

	// SyncEvents returns the set of log topic-0 signatures that can mutate
	// this pool. The synchronizer subscribes to the union of these across
	// every registered pool (spec §6.4).
	SyncEvents() []common.Hash

	// Sync applies one decoded log to the pool's mutable state. A log
	// whose Topics[0] is not in SyncEvents() is a LogMismatch.
	Sync(log *types.Log) error

	// Price returns the spot price of base denominated in quote, i.e. how
	// many quote tokens one base token is worth, adjusted for decimals.
	Price(base, quote common.Address) (float64, error)

	// SimulateSwap computes the output amount for a hypothetical swap of
	// amountIn units of base into quote, without mutating the pool.
	SimulateSwap(base, quote common.Address, amountIn *big.Int) (*big.Int, error)

	// SimulateSwapMut performs the same computation as SimulateSwap but
	// writes the resulting state back into the pool (reserves, sqrt
	// price/tick/liquidity, vault totals, or balances, depending on
	// variant).
	SimulateSwapMut(base, quote common.Address, amountIn *big.Int) (*big.Int, error)

	// Clone returns a deep copy of the pool, used by the state change
	// cache to snapshot "before" state ahead of applying a block's logs.
	Clone() AMM
}

// Snapshot is a type alias documenting intent at call sites that hold a
// deep-copied AMM purely as a point-in-time value, never mutating it.
type Snapshot = AMM
