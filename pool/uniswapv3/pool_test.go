package uniswapv3

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/statespace/errs"
)

var (
	tokenA   = common.HexToAddress("0x1")
	tokenB   = common.HexToAddress("0x2")
	poolAddr = common.HexToAddress("0xa")
)

func q96() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 96)
}

// signedTickHash encodes tick as the two's-complement 32-byte word the EVM
// uses for indexed int24 topics; common.BigToHash would instead emit the
// unsigned magnitude, silently dropping the sign for negative ticks.
func signedTickHash(tick int64) common.Hash {
	v := big.NewInt(tick)
	if v.Sign() < 0 {
		v = new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), v)
	}
	var h common.Hash
	v.FillBytes(h[:])
	return h
}

// newFullRangePool seeds a pool at tick 0 with a single full-range position
// so a small swap never crosses a tick boundary.
func newFullRangePool(tickSpacing int64, feePips uint32) *Pool {
	p := New(poolAddr, tokenA, tokenB, 18, 18, feePips, tickSpacing)
	p.Seed(0, q96(), big.NewInt(1_000_000_000_000), map[int64]TickInfo{
		-tickSpacing * 100: {LiquidityGross: big.NewInt(1_000_000_000_000), LiquidityNet: big.NewInt(1_000_000_000_000)},
		tickSpacing * 100:  {LiquidityGross: big.NewInt(1_000_000_000_000), LiquidityNet: big.NewInt(-1_000_000_000_000)},
	})
	return p
}

func TestSeedFlipsBitmapForInitializedTicks(t *testing.T) {
	p := newFullRangePool(60, 3000)

	assert.True(t, p.bitmap.IsSet(p.compress(-6000)))
	assert.True(t, p.bitmap.IsSet(p.compress(6000)))
	assert.False(t, p.bitmap.IsSet(p.compress(0)))
}

func TestSimulateSwapSmallAmountDoesNotCrossTicks(t *testing.T) {
	p := newFullRangePool(60, 3000)

	out, err := p.SimulateSwap(tokenA, tokenB, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
	assert.True(t, out.Cmp(big.NewInt(1_000_000)) < 0, "fee and slippage should make output less than input at a 1:1 price")
}

func TestSimulateSwapZeroAmountIsNoop(t *testing.T) {
	p := newFullRangePool(60, 3000)

	out, sqrtPrice, tick, liquidity, err := p.swap(tokenA, tokenB, big.NewInt(0))
	require.NoError(t, err)
	assert.Zero(t, out.Sign())
	assert.Zero(t, sqrtPrice.Cmp(p.sqrtPriceX96))
	assert.Equal(t, p.tick, tick)
	assert.Zero(t, liquidity.Cmp(p.liquidity))
}

func TestSimulateSwapTokenMismatchErrors(t *testing.T) {
	p := newFullRangePool(60, 3000)

	_, err := p.SimulateSwap(common.HexToAddress("0x99"), tokenB, big.NewInt(1_000_000))
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSimulateSwapMutUpdatesPoolState(t *testing.T) {
	p := newFullRangePool(60, 3000)

	out, err := p.SimulateSwapMut(tokenA, tokenB, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
	// Selling token0 for token1 moves the price down.
	assert.True(t, p.sqrtPriceX96.Cmp(q96()) <= 0)
}

func TestSyncSwapAppliesPostSwapState(t *testing.T) {
	p := newFullRangePool(60, 3000)

	data := make([]byte, 160)
	newSqrtPrice := new(big.Int).Sub(q96(), big.NewInt(1000))
	newLiquidity := big.NewInt(2_000_000_000_000)
	newTick := big.NewInt(-1)
	newSqrtPrice.FillBytes(data[64:96])
	newLiquidity.FillBytes(data[96:128])
	// int24 tick, two's-complement within the 32-byte word.
	twosComplementTick := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), newTick)
	twosComplementTick.FillBytes(data[128:160])

	log := &types.Log{Topics: []common.Hash{SwapEventSignature}, Data: data}
	require.NoError(t, p.Sync(log))

	assert.Zero(t, newSqrtPrice.Cmp(p.sqrtPriceX96))
	assert.Zero(t, newLiquidity.Cmp(p.liquidity))
	assert.Equal(t, int64(-1), p.tick)
}

func TestSyncInitializeSeedsStartingPrice(t *testing.T) {
	p := New(poolAddr, tokenA, tokenB, 18, 18, 3000, 60)

	data := make([]byte, 64)
	q96().FillBytes(data[0:32])
	big.NewInt(0).FillBytes(data[32:64])

	log := &types.Log{Topics: []common.Hash{InitializeEventSignature}, Data: data}
	require.NoError(t, p.Sync(log))

	assert.Zero(t, q96().Cmp(p.sqrtPriceX96))
	assert.Equal(t, int64(0), p.tick)
}

func TestSyncMintFlipsBitmapAndUpdatesActiveLiquidity(t *testing.T) {
	p := New(poolAddr, tokenA, tokenB, 18, 18, 3000, 60)
	p.Seed(0, q96(), big.NewInt(0), nil)

	data := make([]byte, 128)
	amount := big.NewInt(500)
	amount.FillBytes(data[32:64])

	lowerHash := signedTickHash(-60)
	upperHash := signedTickHash(60)
	log := &types.Log{
		Topics: []common.Hash{MintEventSignature, common.Hash{}, lowerHash, upperHash},
		Data:   data,
	}
	require.NoError(t, p.Sync(log))

	assert.Zero(t, big.NewInt(500).Cmp(p.liquidity), "current tick 0 is inside [-60,60), so active liquidity grows")
	assert.True(t, p.bitmap.IsSet(p.compress(-60)))
	assert.True(t, p.bitmap.IsSet(p.compress(60)))

	lowerInfo, ok := p.ticks[-60]
	require.True(t, ok)
	assert.Zero(t, big.NewInt(500).Cmp(lowerInfo.LiquidityNet))

	upperInfo, ok := p.ticks[60]
	require.True(t, ok)
	assert.Zero(t, big.NewInt(-500).Cmp(upperInfo.LiquidityNet))
}

func TestSyncBurnReversesMint(t *testing.T) {
	p := New(poolAddr, tokenA, tokenB, 18, 18, 3000, 60)
	p.Seed(0, q96(), big.NewInt(0), nil)

	mintData := make([]byte, 128)
	big.NewInt(500).FillBytes(mintData[32:64])
	lowerHash := signedTickHash(-60)
	upperHash := signedTickHash(60)
	require.NoError(t, p.Sync(&types.Log{
		Topics: []common.Hash{MintEventSignature, common.Hash{}, lowerHash, upperHash},
		Data:   mintData,
	}))

	burnData := make([]byte, 96)
	big.NewInt(500).FillBytes(burnData[0:32])
	require.NoError(t, p.Sync(&types.Log{
		Topics: []common.Hash{BurnEventSignature, common.Hash{}, lowerHash, upperHash},
		Data:   burnData,
	}))

	assert.Zero(t, p.liquidity.Sign())
	_, stillTracked := p.ticks[-60]
	assert.False(t, stillTracked, "burning back to zero liquidityGross removes the tick entry")
	assert.False(t, p.bitmap.IsSet(p.compress(-60)))
}

func TestSyncRejectsUnknownTopic(t *testing.T) {
	p := newFullRangePool(60, 3000)
	log := &types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}

	err := p.Sync(log)
	require.Error(t, err)
	var mismatch *errs.LogMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestCloneIsIndependent(t *testing.T) {
	p := newFullRangePool(60, 3000)
	clone := p.Clone().(*Pool)

	clone.liquidity.Add(clone.liquidity, big.NewInt(1))
	clone.ticks[-6000].LiquidityGross.Add(clone.ticks[-6000].LiquidityGross, big.NewInt(1))

	assert.Zero(t, big.NewInt(1_000_000_000_000).Cmp(p.liquidity))
	assert.Zero(t, big.NewInt(1_000_000_000_000).Cmp(p.ticks[-6000].LiquidityGross))
}

func TestPriceAtTickZeroIsOneAdjustedForDecimals(t *testing.T) {
	p := newFullRangePool(60, 3000)

	price, err := p.Price(tokenA, tokenB)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, price, 0.0001)
}
