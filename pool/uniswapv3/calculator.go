package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool/uniswapv3/calculator/liquiditymath"
	"github.com/defistate/statespace/pool/uniswapv3/calculator/swapmath"
	"github.com/defistate/statespace/pool/uniswapv3/calculator/tickmath"
)

// Price returns the spot price of quote denominated in base, decimal
// adjusted, derived from the current sqrt price.
func (p *Pool) Price(base, quote common.Address) (float64, error) {
	zeroForOne, err := p.direction(base, quote)
	if err != nil {
		return 0, err
	}

	ratio := new(big.Float).SetInt(p.sqrtPriceX96)
	ratio.Quo(ratio, q96Float())
	ratio.Mul(ratio, ratio) // (sqrtPriceX96/Q96)^2 == price of token1 in token0

	decimalsAdj := new(big.Float).SetFloat64(pow10(int(p.decimalsA)) / pow10(int(p.decimalsB)))
	price1in0 := new(big.Float).Mul(ratio, decimalsAdj)

	f, _ := price1in0.Float64()
	if zeroForOne {
		// base is token0: price of quote(token1) in base(token0) is price1in0.
		return f, nil
	}
	if f == 0 {
		return 0, errs.ErrArithmeticOverflow
	}
	return 1 / f, nil
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func q96Float() *big.Float {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	return new(big.Float).SetInt(q96)
}

func (p *Pool) direction(base, quote common.Address) (zeroForOne bool, err error) {
	switch {
	case base == p.tokenA && quote == p.tokenB:
		return true, nil
	case base == p.tokenB && quote == p.tokenA:
		return false, nil
	default:
		return false, errs.ErrInvalidInput
	}
}

// SimulateSwap runs the full tick-crossing swap loop without mutating the
// pool.
func (p *Pool) SimulateSwap(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, _, _, _, err := p.swap(base, quote, amountIn)
	return out, err
}

// SimulateSwapMut runs the swap loop and writes the resulting sqrt price,
// tick, and liquidity back into the pool.
func (p *Pool) SimulateSwapMut(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, newSqrtPrice, newTick, newLiquidity, err := p.swap(base, quote, amountIn)
	if err != nil {
		return nil, err
	}
	p.sqrtPriceX96 = newSqrtPrice
	p.tick = newTick
	p.liquidity = newLiquidity
	return out, nil
}

// swap is the V3 swap loop: at each step it finds the next initialized
// tick in the trade direction via the bitmap, computes the step's amounts
// against the current liquidity, and crosses the tick (applying its
// liquidityNet) when the step's price reaches the tick boundary exactly.
func (p *Pool) swap(base, quote common.Address, amountIn *big.Int) (amountOut, sqrtPriceOut *big.Int, tickOut int64, liquidityOut *big.Int, err error) {
	zeroForOne, err := p.direction(base, quote)
	if err != nil {
		return nil, nil, 0, nil, err
	}
	if amountIn == nil || amountIn.Sign() == 0 {
		return big.NewInt(0), new(big.Int).Set(p.sqrtPriceX96), p.tick, new(big.Int).Set(p.liquidity), nil
	}
	if amountIn.Sign() < 0 {
		return nil, nil, 0, nil, errs.ErrInvalidInput
	}

	sqrtPriceLimit := new(big.Int)
	if zeroForOne {
		sqrtPriceLimit.Add(tickmath.MIN_SQRT_RATIO, big.NewInt(1))
	} else {
		sqrtPriceLimit.Sub(tickmath.MAX_SQRT_RATIO, big.NewInt(1))
	}

	remaining := new(big.Int).Set(amountIn)
	amountOut = new(big.Int)
	sqrtPrice := new(big.Int).Set(p.sqrtPriceX96)
	tick := p.tick
	liquidity := new(big.Int).Set(p.liquidity)
	feePips := big.NewInt(int64(p.fee))

	for remaining.Sign() > 0 && sqrtPrice.Cmp(sqrtPriceLimit) != 0 {
		nextTick, initialized := p.nextInitializedTick(tick, zeroForOne)

		sqrtPriceNext := new(big.Int)
		if err := tickmath.GetSqrtRatioAtTick(sqrtPriceNext, clampTick(nextTick)); err != nil {
			return nil, nil, 0, nil, err
		}

		target := new(big.Int)
		if zeroForOne {
			target.Set(maxBig(sqrtPriceNext, sqrtPriceLimit))
		} else {
			target.Set(minBig(sqrtPriceNext, sqrtPriceLimit))
		}

		stepSqrtPriceNext := new(big.Int)
		stepAmountIn := new(big.Int)
		stepAmountOut := new(big.Int)
		stepFee := new(big.Int)
		if err := swapmath.ComputeSwapStep(stepSqrtPriceNext, stepAmountIn, stepAmountOut, stepFee,
			sqrtPrice, target, liquidity, remaining, feePips); err != nil {
			return nil, nil, 0, nil, err
		}

		remaining.Sub(remaining, new(big.Int).Add(stepAmountIn, stepFee))
		amountOut.Add(amountOut, stepAmountOut)
		sqrtPrice = stepSqrtPriceNext

		if sqrtPrice.Cmp(sqrtPriceNext) == 0 {
			if initialized {
				info, ok := p.ticks[nextTick]
				if ok {
					delta := new(big.Int).Set(info.LiquidityNet)
					if zeroForOne {
						delta.Neg(delta)
					}
					if err := liquiditymath.AddDelta(liquidity, liquidity, delta); err != nil {
						// Underflow at a liquidity boundary: stop here,
						// matching the boundary-exhaustion behavior spec'd
						// for simulate_swap.
						break
					}
				}
			}
			if zeroForOne {
				tick = nextTick - 1
			} else {
				tick = nextTick
			}
		} else {
			// Price moved but did not reach the next tick boundary:
			// recompute tick from the actual resulting price.
			t, err := tickmath.GetTickAtSqrtRatio(sqrtPrice)
			if err != nil {
				return nil, nil, 0, nil, err
			}
			tick = t
		}
	}

	return amountOut, sqrtPrice, tick, liquidity, nil
}

func clampTick(t int64) int64 {
	if t < tickmath.MIN_TICK {
		return tickmath.MIN_TICK
	}
	if t > tickmath.MAX_TICK {
		return tickmath.MAX_TICK
	}
	return t
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// nextInitializedTick walks the tick bitmap word by word, starting from
// tick's own word, until it finds an initialized tick in the requested
// direction or exhausts the valid tick range.
func (p *Pool) nextInitializedTick(tick int64, lte bool) (next int64, initialized bool) {
	compressed := p.compress(tick)
	minCompressed := int32(floorDiv(tickmath.MIN_TICK, p.tickSpacing))
	maxCompressed := int32(floorDiv(tickmath.MAX_TICK, p.tickSpacing))

	for {
		c, init := p.bitmap.NextInitializedTickWithinOneWord(compressed, lte)
		if init {
			return int64(c) * p.tickSpacing, true
		}
		if lte {
			if c <= minCompressed {
				return int64(minCompressed) * p.tickSpacing, false
			}
			compressed = c - 1
		} else {
			if c >= maxCompressed {
				return int64(maxCompressed) * p.tickSpacing, false
			}
			compressed = c + 1
		}
	}
}
