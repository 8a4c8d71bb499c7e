package valuefilter_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/defistate/statespace/pool/uniswapv2"
	"github.com/defistate/statespace/registry"
	"github.com/defistate/statespace/valuefilter"
)

var weth = common.BytesToAddress([]byte{0xEE})

func deepPool(otherByte byte) *uniswapv2.Pool {
	other := common.BytesToAddress([]byte{otherByte})
	addr := common.BytesToAddress([]byte{0xD0, otherByte})
	p := uniswapv2.New(addr, weth, other, 18, 18, 30)
	p.Seed(big.NewInt(1_000_000_000), big.NewInt(2_000_000_000))
	return p
}

func shallowPool(otherByte byte) *uniswapv2.Pool {
	other := common.BytesToAddress([]byte{otherByte})
	addr := common.BytesToAddress([]byte{0xD1, otherByte})
	p := uniswapv2.New(addr, weth, other, 18, 18, 30)
	p.Seed(big.NewInt(10), big.NewInt(20))
	return p
}

func unpairedPool(a, b byte) *uniswapv2.Pool {
	addr := common.BytesToAddress([]byte{0xD2, a, b})
	p := uniswapv2.New(addr, common.BytesToAddress([]byte{a}), common.BytesToAddress([]byte{b}), 18, 18, 30)
	p.Seed(big.NewInt(1_000_000_000), big.NewInt(2_000_000_000))
	return p
}

func TestApplyRemovesShallowAndUnpairedPools(t *testing.T) {
	reg := registry.New()
	deep := deepPool(1)
	shallow := shallowPool(2)
	unpaired := unpairedPool(3, 4)
	require.NoError(t, reg.Insert(deep))
	require.NoError(t, reg.Insert(shallow))
	require.NoError(t, reg.Insert(unpaired))

	f := valuefilter.New(valuefilter.Config{
		ReferenceToken:    weth,
		ProbeAmount:       big.NewInt(1000),
		MinRoundTripValue: big.NewInt(900),
	})
	removed := f.Apply(reg)

	require.ElementsMatch(t, []common.Address{shallow.Address(), unpaired.Address()}, removed)
	require.Equal(t, 1, reg.Len())
	_, ok := reg.Get(deep.Address())
	require.True(t, ok)
}

func TestApplyNoopWhenThresholdUnset(t *testing.T) {
	reg := registry.New()
	shallow := shallowPool(5)
	require.NoError(t, reg.Insert(shallow))

	f := valuefilter.New(valuefilter.Config{ReferenceToken: weth})
	removed := f.Apply(reg)

	require.Empty(t, removed)
	require.Equal(t, 1, reg.Len())
}
