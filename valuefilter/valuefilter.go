// Package valuefilter implements the Value Filter (spec §4.8/C8): removes
// pools whose liquidity against a reference token (WETH on most EVM
// chains) falls below a configured threshold. Grounded on
// original_source/src/state_space/filters/value.rs's ValueFilter (a
// reference token, a minimum threshold, and a chunked batch pricing call
// that defaults an unpriced pool to "filtered out" — map_or(false, ...)),
// generalized here from that file's V2-only PoolType match arm to all four
// pool variants by probing each pool's own SimulateSwap method
// instead of a separate external WETH-value batch-request contract, since
// the engine's own AMM capability set already prices a pool (spec §4.8's
// "price each pool" requirement is satisfied entirely in-process).
package valuefilter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/statespace/reader"
	"github.com/defistate/statespace/registry"
)

// Config configures a Filter.
type Config struct {
	// ReferenceToken is the token liquidity is measured against (WETH on
	// most EVM chains).
	ReferenceToken common.Address

	// ProbeAmount is the quantity of ReferenceToken simulated into each
	// candidate pool to estimate depth; larger probes are more sensitive
	// to shallow liquidity but also more sensitive to price-impact noise
	// on genuinely healthy pools. A few reference-token units scaled to
	// its decimals is typical.
	ProbeAmount *big.Int

	// MinRoundTripValue is the minimum ReferenceToken amount that must
	// survive a swap-out-then-swap-back round trip through ProbeAmount
	// for the pool to be kept. Expressing the threshold as a fraction of
	// ProbeAmount (rather than an absolute reserve size, which the AMM
	// interface has no variant-generic way to read) captures the same
	// "is this pool liquid enough to trade against" intent the original
	// min_weth_threshold check did.
	MinRoundTripValue *big.Int

	// ChunkSize batches the registry walk, matching the chunked RPC shape
	// the original value filter used for its external batch-request call
	// even though this generalized version makes no RPC calls itself.
	ChunkSize int
}

// Filter evaluates pool liquidity against Config.ReferenceToken.
type Filter struct {
	cfg Config
}

// New returns a Filter. A zero Config.ChunkSize defaults to
// reader.DefaultV2BatchSize.
func New(cfg Config) *Filter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = reader.DefaultV2BatchSize
	}
	return &Filter{cfg: cfg}
}

// Apply walks every pool currently in reg and removes any whose liquidity
// against the reference token does not clear the configured threshold. It
// returns the addresses removed.
func (f *Filter) Apply(reg *registry.Registry) []common.Address {
	addrs := reg.All()
	var removed []common.Address

	for _, chunk := range reader.Chunk(addrs, f.cfg.ChunkSize) {
		for _, addr := range chunk {
			p, ok := reg.Get(addr)
			if !ok {
				continue
			}
			if f.clearsThreshold(p.Tokens(), addr, reg) {
				continue
			}
			if reg.Remove(addr) {
				removed = append(removed, addr)
			}
		}
	}
	return removed
}

// clearsThreshold reports whether the pool at addr holds enough liquidity
// against the reference token. A pool that does not pair against the
// reference token at all cannot be valued and is conservatively treated as
// not clearing the threshold, matching the original filter's
// map_or(false, ...) default.
func (f *Filter) clearsThreshold(tokens []common.Address, addr common.Address, reg *registry.Registry) bool {
	if f.cfg.MinRoundTripValue == nil || f.cfg.MinRoundTripValue.Sign() <= 0 {
		return true // no threshold configured: filter is a no-op
	}

	refHeld := false
	for _, t := range tokens {
		if t == f.cfg.ReferenceToken {
			refHeld = true
			break
		}
	}
	if !refHeld {
		return false
	}

	for _, other := range tokens {
		if other == f.cfg.ReferenceToken {
			continue
		}
		p, ok := reg.Get(addr)
		if !ok {
			return false
		}
		out, err := p.SimulateSwap(f.cfg.ReferenceToken, other, f.cfg.ProbeAmount)
		if err != nil || out == nil || out.Sign() <= 0 {
			continue
		}
		back, err := p.SimulateSwap(other, f.cfg.ReferenceToken, out)
		if err != nil || back == nil {
			continue
		}
		if back.Cmp(f.cfg.MinRoundTripValue) >= 0 {
			return true
		}
	}
	return false
}
