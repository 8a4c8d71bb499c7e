package weighted

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

func newEqualWeightPool(balA, balB int64, feeWad *big.Int) *Pool {
	p := New(poolAddr, []common.Address{tokenA, tokenB}, []uint8{18, 18},
		[]*big.Int{big.NewInt(50), big.NewInt(50)}, feeWad)
	p.Seed([]*big.Int{big.NewInt(balA), big.NewInt(balB)})
	return p
}

func TestNewPanicsOnMismatchedLengths(t *testing.T) {
	assert.Panics(t, func() {
		New(poolAddr, []common.Address{tokenA, tokenB}, []uint8{18}, []*big.Int{big.NewInt(1), big.NewInt(1)}, big.NewInt(0))
	})
}

func TestSimulateSwapEqualWeightsNoFee(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))

	out, err := p.SimulateSwap(tokenA, tokenB, big.NewInt(100))
	require.NoError(t, err)
	// balOut * amountIn / (balIn + amountIn) = 1000*100/1100 = 90.909...
	assert.InDelta(t, 90, out.Int64(), 1)
}

func TestSimulateSwapZeroAmountIsNoop(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))

	out, err := p.SimulateSwap(tokenA, tokenB, big.NewInt(0))
	require.NoError(t, err)
	assert.Zero(t, out.Sign())
}

func TestSimulateSwapUnknownTokenErrors(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))

	_, err := p.SimulateSwap(common.HexToAddress("0x99"), tokenB, big.NewInt(100))
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSimulateSwapEmptyBalanceErrors(t *testing.T) {
	p := newEqualWeightPool(0, 1000, big.NewInt(0))

	_, err := p.SimulateSwap(tokenA, tokenB, big.NewInt(100))
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSimulateSwapMutUpdatesBalances(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))

	out, err := p.SimulateSwapMut(tokenA, tokenB, big.NewInt(100))
	require.NoError(t, err)

	assert.Equal(t, "1100", p.balances[0].String())
	assert.Equal(t, new(big.Int).Sub(big.NewInt(1000), out).String(), p.balances[1].String())
}

func TestPriceEqualWeights(t *testing.T) {
	p := newEqualWeightPool(1000, 2000, big.NewInt(0))

	price, err := p.Price(tokenA, tokenB)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, price, 0.0001)
}

func TestSyncLogSwapUpdatesBalances(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))

	data := make([]byte, 64)
	amountIn := big.NewInt(100)
	amountOut := big.NewInt(90)
	amountIn.FillBytes(data[0:32])
	amountOut.FillBytes(data[32:64])

	log := &types.Log{
		Topics: []common.Hash{
			LogSwapEventSignature,
			common.BytesToHash(tokenA.Bytes()),
			common.BytesToHash(tokenB.Bytes()),
		},
		Data: data,
	}
	require.NoError(t, p.Sync(log))

	assert.Equal(t, "1100", p.balances[0].String())
	assert.Equal(t, "910", p.balances[1].String())
}

func TestSyncIgnoresLogCall(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))

	log := &types.Log{Topics: []common.Hash{LogCallEventSignature, common.HexToHash("0x1234")}}
	require.NoError(t, p.Sync(log))

	assert.Equal(t, "1000", p.balances[0].String())
	assert.Equal(t, "1000", p.balances[1].String())
}

func TestSyncRejectsUnknownTopic(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))
	log := &types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}

	err := p.Sync(log)
	require.Error(t, err)
	var mismatch *errs.LogMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestCloneIsIndependent(t *testing.T) {
	p := newEqualWeightPool(1000, 1000, big.NewInt(0))
	clone := p.Clone().(*Pool)

	clone.balances[0].Add(clone.balances[0], big.NewInt(1))

	assert.Equal(t, "1000", p.balances[0].String())
	assert.Equal(t, "1001", clone.balances[0].String())
}
