package discovery_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/defistate/statespace/chainfeed"
	"github.com/defistate/statespace/discovery"
	"github.com/defistate/statespace/factory"
	factoryv2 "github.com/defistate/statespace/factory/uniswapv2"
	"github.com/defistate/statespace/pool"
	"github.com/defistate/statespace/pool/uniswapv2"
	"github.com/defistate/statespace/registry"
)

// fakeLogSource replays a fixed set of PairCreated logs regardless of the
// requested filter, enough to exercise Discovery's chunking without a real
// chain.
type fakeLogSource struct {
	logs []types.Log
}

func (f *fakeLogSource) Logs(ctx context.Context, filter chainfeed.LogFilter) (<-chan types.Log, error) {
	ch := make(chan types.Log, len(f.logs))
	for _, l := range f.logs {
		ch <- l
	}
	close(ch)
	return ch, nil
}

func (f *fakeLogSource) SubscribeHeads(ctx context.Context) (<-chan chainfeed.Block, error) {
	ch := make(chan chainfeed.Block)
	close(ch)
	return ch, nil
}

func (f *fakeLogSource) LogsForBlock(ctx context.Context, blockHash common.Hash) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeLogSource) GetBlock(ctx context.Context, numberOrHash any) (chainfeed.Block, error) {
	return chainfeed.Block{}, nil
}

// fakeReader populates every requested constant-product address with a
// seeded pool, unconditionally succeeding (discovery's chunking is the
// property under test here, not reader failure handling — that is covered
// by reader/ethclient's own tests for the populate-failure paths).
type fakeReader struct{}

func (fakeReader) ReadStatic(ctx context.Context, addrs []common.Address, kind pool.Kind) ([]pool.AMM, error) {
	out := make([]pool.AMM, len(addrs))
	for i, addr := range addrs {
		tokenA := common.BytesToAddress(append([]byte{0xAA}, addr.Bytes()[1:]...))
		tokenB := common.BytesToAddress(append([]byte{0xBB}, addr.Bytes()[1:]...))
		out[i] = uniswapv2.New(addr, tokenA, tokenB, 18, 18, 30)
	}
	return out, nil
}

func (fakeReader) ReadDynamic(ctx context.Context, addrs []common.Address, kind pool.Kind, block uint64) ([]pool.AMM, error) {
	out := make([]pool.AMM, len(addrs))
	for i, addr := range addrs {
		tokenA := common.BytesToAddress(append([]byte{0xAA}, addr.Bytes()[1:]...))
		tokenB := common.BytesToAddress(append([]byte{0xBB}, addr.Bytes()[1:]...))
		p := uniswapv2.New(addr, tokenA, tokenB, 18, 18, 30)
		p.Seed(big.NewInt(1_000_000), big.NewInt(2_000_000))
		out[i] = p
	}
	return out, nil
}

func pairCreatedLog(n byte) types.Log {
	tokenA := common.BytesToAddress(append([]byte{0xAA}, n))
	tokenB := common.BytesToAddress(append([]byte{0xBB}, n))
	pairAddr := common.BytesToAddress(append([]byte{0xCC}, n))
	data := make([]byte, 64)
	copy(data[12:32], pairAddr.Bytes())
	return types.Log{
		Topics: []common.Hash{
			factoryv2.PairCreatedEventSignature,
			common.BytesToHash(tokenA.Bytes()),
			common.BytesToHash(tokenB.Bytes()),
		},
		Data: data,
	}
}

func TestDiscoveryPaginationInvariance(t *testing.T) {
	var logs []types.Log
	for i := byte(1); i <= 25; i++ {
		logs = append(logs, pairCreatedLog(i))
	}

	f := factoryv2.New(common.BytesToAddress([]byte{0xFA}), 0, 30)

	run := func(chunkSize int) *registry.Registry {
		reg := registry.New()
		eng := discovery.New(discovery.Config{
			Factories: []factory.Factory{f},
			Reader:    fakeReader{},
			LogSource: &fakeLogSource{logs: logs},
			ChunkSize: func(pool.Kind) int { return chunkSize },
		})
		n, err := eng.Run(context.Background(), reg, 1000)
		require.NoError(t, err)
		require.Equal(t, 25, n)
		return reg
	}

	regSmall := run(3)
	regLarge := run(127)

	addrsSmall := regSmall.All()
	addrsLarge := regLarge.All()
	require.ElementsMatch(t, addrsSmall, addrsLarge)
	require.Len(t, addrsSmall, 25)
}

func TestScanFactorySkipsUnparsableLogs(t *testing.T) {
	logs := []types.Log{
		{Topics: []common.Hash{factoryv2.PairCreatedEventSignature}}, // too few topics
		pairCreatedLog(1),
	}
	f := factoryv2.New(common.BytesToAddress([]byte{0xFA}), 0, 30)
	reg := registry.New()
	eng := discovery.New(discovery.Config{
		Factories: []factory.Factory{f},
		Reader:    fakeReader{},
		LogSource: &fakeLogSource{logs: logs},
	})
	n, err := eng.Run(context.Background(), reg, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
