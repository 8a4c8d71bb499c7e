package statechange_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/defistate/statespace/pool"
	"github.com/defistate/statespace/pool/uniswapv2"
	"github.com/defistate/statespace/registry"
	"github.com/defistate/statespace/statechange"
)

func newPool(t *testing.T, reserveA, reserveB int64) *uniswapv2.Pool {
	t.Helper()
	p := uniswapv2.New(
		common.BytesToAddress([]byte{1}),
		common.BytesToAddress([]byte{2}),
		common.BytesToAddress([]byte{3}),
		18, 18, 30,
	)
	p.Seed(big.NewInt(reserveA), big.NewInt(reserveB))
	return p
}

func TestRewindRestoresPriorState(t *testing.T) {
	reg := registry.New()
	p := newPool(t, 1000, 2000)
	require.NoError(t, reg.Insert(p))

	cache := statechange.New(7)
	origPrice, _ := p.Price(common.BytesToAddress([]byte{2}), common.BytesToAddress([]byte{3}))

	// Block 1: snapshot before, then mutate.
	snap1, _ := reg.Snapshot(p.Address())
	cache.Push(statechange.Change{
		BlockNumber: 1,
		Before:      map[common.Address]pool.AMM{p.Address(): snap1},
	})

	require.NoError(t, reg.Mutate(p.Address(), func(a pool.AMM) error {
		_, err := a.SimulateSwapMut(common.BytesToAddress([]byte{2}), common.BytesToAddress([]byte{3}), big.NewInt(100))
		return err
	}))

	after, _ := reg.Get(p.Address())
	afterPrice, _ := after.Price(common.BytesToAddress([]byte{2}), common.BytesToAddress([]byte{3}))

	require.NoError(t, cache.RewindTo(reg, 0))

	restored, _ := reg.Get(p.Address())
	restoredPrice, _ := restored.Price(common.BytesToAddress([]byte{2}), common.BytesToAddress([]byte{3}))

	require.NotEqual(t, afterPrice, restoredPrice)
	require.Equal(t, origPrice, restoredPrice)
	require.Equal(t, 0, cache.Depth())
}

func TestRewindTooDeepFails(t *testing.T) {
	reg := registry.New()
	cache := statechange.New(2)
	cache.Push(statechange.Change{BlockNumber: 10, Before: map[common.Address]pool.AMM{}})
	cache.Push(statechange.Change{BlockNumber: 11, Before: map[common.Address]pool.AMM{}})
	cache.Push(statechange.Change{BlockNumber: 12, Before: map[common.Address]pool.AMM{}}) // evicts block 10

	err := cache.RewindTo(reg, 5)
	require.Error(t, err)
}

func TestEvictionRespectsCapacity(t *testing.T) {
	cache := statechange.New(3)
	for i := uint64(1); i <= 10; i++ {
		cache.Push(statechange.Change{BlockNumber: i, Before: map[common.Address]pool.AMM{}})
	}
	require.Equal(t, 3, cache.Depth())
	oldest, ok := cache.OldestBlock()
	require.True(t, ok)
	require.Equal(t, uint64(8), oldest)
}
