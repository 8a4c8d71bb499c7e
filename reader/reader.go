// Package reader defines the Batch State Reader collaborator (spec §4.4):
// the abstract interface the Discovery Engine uses to turn empty pool
// shells into fully populated pool.AMM values, many pools per RPC
// round-trip. The engine never talks to a chain directly; it only ever
// calls through this interface, so batch-call encoding, ABI decoding, and
// RPC transport stay out of the state-space core as spec'd.
package reader

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/statespace/pool"
)

// Default per-variant batch sizes (spec §4.4). Callers may choose a
// different chunk size; these are only the engine's own defaults when
// nothing overrides them (see discovery.Config.ChunkSize).
const (
	DefaultV2BatchSize = 127
	DefaultV3BatchSize = 76
)

// StateReader is the Batch State Reader collaborator. Both methods return
// one pool.AMM per requested address, in the same order; an address that
// could not be populated (zero code size, unreadable decimals, a reverted
// balance read) comes back as a nil entry rather than an error for the
// whole batch, so a handful of bad pools never sink the rest of the chunk
// (spec §4.4's "any pool that cannot be populated ... is returned as
// empty").
//
// ReadStatic resolves the immutable fields of a pool shell (token
// identities, decimals, fee tier, tick spacing, weights, ...) for addresses
// already known to be of the given kind, returning fresh pool.AMM values
// that only have those fields populated.
//
// ReadDynamic takes the same addresses (normally the survivors of
// ReadStatic) and returns pool.AMM values with dynamic state (reserves,
// slot0/tick data, vault totals, balances) seeded as of the given block.
type StateReader interface {
	ReadStatic(ctx context.Context, addrs []common.Address, kind pool.Kind) ([]pool.AMM, error)
	ReadDynamic(ctx context.Context, addrs []common.Address, kind pool.Kind, block uint64) ([]pool.AMM, error)
}

// BatchSize returns this module's default chunk size for kind, per spec
// §4.4 ("constant-product ≈ 127, concentrated-liquidity ≈ 76"). Variants
// without a spec'd default share the V2-family size, since their call
// payloads are of similar shape.
func BatchSize(kind pool.Kind) int {
	if kind == pool.KindConcentratedLiquidity {
		return DefaultV3BatchSize
	}
	return DefaultV2BatchSize
}

// Chunk splits addrs into slices of at most size addresses, the shape
// every ReadStatic/ReadDynamic caller chunks its requests into. size <= 0
// is treated as "one chunk".
func Chunk(addrs []common.Address, size int) [][]common.Address {
	if size <= 0 || len(addrs) <= size {
		return [][]common.Address{addrs}
	}
	chunks := make([][]common.Address, 0, (len(addrs)+size-1)/size)
	for len(addrs) > 0 {
		n := size
		if n > len(addrs) {
			n = len(addrs)
		}
		chunks = append(chunks, addrs[:n])
		addrs = addrs[n:]
	}
	return chunks
}
