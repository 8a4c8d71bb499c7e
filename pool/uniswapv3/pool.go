// Package uniswapv3 implements the concentrated-liquidity pool variant:
// Uniswap-V3-family pools with tick-indexed liquidity, a sparse tick
// bitmap, and the exact V3 tick-crossing swap math. It is the algorithmic
// heart of the engine; everything else in this package is in service of
// Pool.swap, which is a faithful port of Uniswap's SwapMath/
// SqrtPriceMath/TickMath Solidity libraries (see the calculator
// subpackages) driving a live tick table instead of the Solidity
// contract's storage slots.
package uniswapv3

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
	"github.com/defistate/statespace/pool/uniswapv3/tickbitmap"
)

// TickInfo is the per-tick liquidity bookkeeping the swap loop and the
// Mint/Burn sync logic both read and write. The presence of an entry in
// Pool.ticks implicitly means the tick is initialized; the bitmap bit for
// that tick is kept in lockstep (spec's bitmap/tick-table invariant).
type TickInfo struct {
	LiquidityGross *big.Int
	LiquidityNet   *big.Int
}

// Pool is the concentrated-liquidity (Uniswap-V3-family) pool variant.
type Pool struct {
	address common.Address

	tokenA, tokenB         common.Address
	decimalsA, decimalsB   uint8
	fee                    uint32 // pips, e.g. 3000 == 0.3%
	tickSpacing            int64

	tick         int64
	sqrtPriceX96 *big.Int
	liquidity    *big.Int

	bitmap *tickbitmap.Bitmap
	ticks  map[int64]*TickInfo
}

// New constructs a pool shell with only the immutable fields populated;
// the Discovery Engine fills tick/sqrtPrice/liquidity/ticks via
// read_static/read_dynamic before the pool is inserted into the Registry.
func New(address, tokenA, tokenB common.Address, decimalsA, decimalsB uint8, fee uint32, tickSpacing int64) *Pool {
	return &Pool{
		address:     address,
		tokenA:      tokenA,
		tokenB:      tokenB,
		decimalsA:   decimalsA,
		decimalsB:   decimalsB,
		fee:         fee,
		tickSpacing: tickSpacing,
		sqrtPriceX96: new(big.Int),
		liquidity:    new(big.Int),
		bitmap:       tickbitmap.New(),
		ticks:        make(map[int64]*TickInfo),
	}
}

// Seed installs the dynamic state (current tick, sqrt price, liquidity,
// and the initial set of initialized ticks) produced by the state reader
// during discovery. It is the one place outside Sync that mutates the
// tick table, and it is only ever called before the pool is inserted into
// the registry.
func (p *Pool) Seed(tick int64, sqrtPriceX96, liquidity *big.Int, ticks map[int64]TickInfo) {
	p.tick = tick
	p.sqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	p.liquidity = new(big.Int).Set(liquidity)
	p.ticks = make(map[int64]*TickInfo, len(ticks))
	for t, info := range ticks {
		p.ticks[t] = &TickInfo{
			LiquidityGross: new(big.Int).Set(info.LiquidityGross),
			LiquidityNet:   new(big.Int).Set(info.LiquidityNet),
		}
		if info.LiquidityGross.Sign() > 0 {
			p.bitmap.Flip(p.compress(t))
		}
	}
}

func (p *Pool) Address() common.Address  { return p.address }
func (p *Pool) Kind() pool.Kind          { return pool.KindConcentratedLiquidity }
func (p *Pool) Tokens() []common.Address { return []common.Address{p.tokenA, p.tokenB} }

func (p *Pool) SyncEvents() []common.Hash {
	return []common.Hash{SwapEventSignature, MintEventSignature, BurnEventSignature, InitializeEventSignature}
}

// Clone returns a deep copy, used by the state change cache to snapshot
// "before" state ahead of applying a block's logs.
func (p *Pool) Clone() pool.AMM {
	c := &Pool{
		address:     p.address,
		tokenA:      p.tokenA,
		tokenB:      p.tokenB,
		decimalsA:   p.decimalsA,
		decimalsB:   p.decimalsB,
		fee:         p.fee,
		tickSpacing: p.tickSpacing,
		tick:        p.tick,
		sqrtPriceX96: new(big.Int).Set(p.sqrtPriceX96),
		liquidity:    new(big.Int).Set(p.liquidity),
		bitmap:       p.bitmap.Clone(),
		ticks:        make(map[int64]*TickInfo, len(p.ticks)),
	}
	for t, info := range p.ticks {
		c.ticks[t] = &TickInfo{
			LiquidityGross: new(big.Int).Set(info.LiquidityGross),
			LiquidityNet:   new(big.Int).Set(info.LiquidityNet),
		}
	}
	return c
}

func (p *Pool) compress(tick int64) int32 {
	return int32(floorDiv(tick, p.tickSpacing))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Sync applies one decoded log. Per the spec's sync asymmetry: a Swap log
// carries the pool's full post-swap state and is applied verbatim, with no
// tick-crossing replay. Mint/Burn logs carry only the liquidity delta for
// a tick range and must be applied via the liquidity-net bookkeeping
// rules, including flipping the bitmap bit on an initialized/uninitialized
// transition.
func (p *Pool) Sync(log *types.Log) error {
	if len(log.Topics) == 0 {
		return errs.ErrLogMismatch
	}
	switch log.Topics[0] {
	case SwapEventSignature:
		return p.syncSwap(log)
	case MintEventSignature:
		return p.syncMint(log)
	case BurnEventSignature:
		return p.syncBurn(log)
	case InitializeEventSignature:
		return p.syncInitialize(log)
	default:
		return &errs.LogMismatchError{Pool: p.address, Topic0: log.Topics[0]}
	}
}

func (p *Pool) syncSwap(log *types.Log) error {
	if len(log.Data) < 160 {
		return fmt.Errorf("%w: short Swap data", errs.ErrInvalidInput)
	}
	sqrtPriceX96 := decodeUnsignedWord(log.Data[64:96])
	liquidity := decodeUnsignedWord(log.Data[96:128])
	tick := decodeSignedWord(log.Data[128:160])

	p.sqrtPriceX96 = sqrtPriceX96
	p.liquidity = liquidity
	p.tick = tick.Int64()
	return nil
}

func (p *Pool) syncInitialize(log *types.Log) error {
	if len(log.Data) < 64 {
		return fmt.Errorf("%w: short Initialize data", errs.ErrInvalidInput)
	}
	p.sqrtPriceX96 = decodeUnsignedWord(log.Data[0:32])
	p.tick = decodeSignedWord(log.Data[32:64]).Int64()
	if p.liquidity == nil {
		p.liquidity = new(big.Int)
	}
	return nil
}

func (p *Pool) syncMint(log *types.Log) error {
	tickLower, tickUpper, err := tickRangeFromTopics(log)
	if err != nil {
		return err
	}
	if len(log.Data) < 128 {
		return fmt.Errorf("%w: short Mint data", errs.ErrInvalidInput)
	}
	amount := decodeUnsignedWord(log.Data[32:64])
	p.applyLiquidityDelta(tickLower, tickUpper, amount)
	return nil
}

func (p *Pool) syncBurn(log *types.Log) error {
	tickLower, tickUpper, err := tickRangeFromTopics(log)
	if err != nil {
		return err
	}
	if len(log.Data) < 96 {
		return fmt.Errorf("%w: short Burn data", errs.ErrInvalidInput)
	}
	amount := decodeUnsignedWord(log.Data[0:32])
	negated := new(big.Int).Neg(amount)
	p.applyLiquidityDelta(tickLower, tickUpper, negated)
	return nil
}

func tickRangeFromTopics(log *types.Log) (lower, upper int64, err error) {
	// Mint: topics[1]=owner, topics[2]=tickLower, topics[3]=tickUpper.
	// Burn: topics[1]=owner, topics[2]=tickLower, topics[3]=tickUpper.
	if len(log.Topics) < 4 {
		return 0, 0, fmt.Errorf("%w: missing indexed tick range", errs.ErrInvalidInput)
	}
	lower = decodeSignedWord(log.Topics[2].Bytes()).Int64()
	upper = decodeSignedWord(log.Topics[3].Bytes()).Int64()
	return lower, upper, nil
}

// applyLiquidityDelta adds signedAmount (positive for Mint, negative for
// Burn) to the liquidityGross/liquidityNet of the lower and upper ticks of
// a position, flips the bitmap bit on an initialized-state transition, and
// folds the delta into the pool's active liquidity if the current tick
// sits inside [lower, upper).
func (p *Pool) applyLiquidityDelta(lower, upper int64, signedAmount *big.Int) {
	p.updateTick(lower, signedAmount, true)
	p.updateTick(upper, signedAmount, false)

	if p.tick >= lower && p.tick < upper {
		p.liquidity = new(big.Int).Add(p.liquidity, signedAmount)
		if p.liquidity.Sign() < 0 {
			p.liquidity.SetInt64(0)
		}
	}
}

func (p *Pool) updateTick(tick int64, signedAmount *big.Int, isLower bool) {
	info, ok := p.ticks[tick]
	if !ok {
		info = &TickInfo{LiquidityGross: new(big.Int), LiquidityNet: new(big.Int)}
		p.ticks[tick] = info
	}
	wasInitialized := info.LiquidityGross.Sign() > 0

	// liquidityGross tracks the same signed delta Mint/Burn carries: a
	// Burn's negative amount reduces it back down, mirroring
	// Tick.update's LiquidityMath.addDelta in the Solidity source.
	info.LiquidityGross.Add(info.LiquidityGross, signedAmount)
	if info.LiquidityGross.Sign() < 0 {
		info.LiquidityGross.SetInt64(0)
	}

	// liquidityNet is added for the lower tick of a range and subtracted
	// for the upper tick, so crossing upward through lower adds liquidity
	// and crossing upward through upper removes it.
	if isLower {
		info.LiquidityNet.Add(info.LiquidityNet, signedAmount)
	} else {
		info.LiquidityNet.Sub(info.LiquidityNet, signedAmount)
	}

	nowInitialized := info.LiquidityGross.Sign() > 0
	if wasInitialized != nowInitialized {
		p.bitmap.Flip(p.compress(tick))
	}
	if !nowInitialized {
		delete(p.ticks, tick)
	}
}
