package statespace_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/defistate/statespace"
	"github.com/defistate/statespace/chainfeed"
	"github.com/defistate/statespace/factory"
	factoryv2 "github.com/defistate/statespace/factory/uniswapv2"
	"github.com/defistate/statespace/pool"
	"github.com/defistate/statespace/pool/uniswapv2"
)

// scriptedFeed is a fixed, fully-scripted chainfeed.LogSource: discovery
// logs are replayed once from Logs, then one new head with its own Sync log
// is delivered through SubscribeHeads — enough to exercise discovery,
// hand-off to the live synchronizer, and the notification channel without a
// real chain, in the style of discovery_test.go's fakeLogSource and
// synchronizer_test.go's fakeFeed.
type scriptedFeed struct {
	discoveryLogs []types.Log
	heads         []chainfeed.Block
	blocksByNum   map[uint64]chainfeed.Block
	blocksByHash  map[common.Hash]chainfeed.Block
	logsByHash    map[common.Hash][]types.Log
}

func (f *scriptedFeed) Logs(ctx context.Context, filter chainfeed.LogFilter) (<-chan types.Log, error) {
	ch := make(chan types.Log, len(f.discoveryLogs))
	for _, l := range f.discoveryLogs {
		ch <- l
	}
	close(ch)
	return ch, nil
}

func (f *scriptedFeed) SubscribeHeads(ctx context.Context) (<-chan chainfeed.Block, error) {
	ch := make(chan chainfeed.Block, len(f.heads))
	for _, h := range f.heads {
		ch <- h
	}
	close(ch)
	return ch, nil
}

func (f *scriptedFeed) LogsForBlock(ctx context.Context, blockHash common.Hash) ([]types.Log, error) {
	return f.logsByHash[blockHash], nil
}

func (f *scriptedFeed) GetBlock(ctx context.Context, numberOrHash any) (chainfeed.Block, error) {
	switch v := numberOrHash.(type) {
	case uint64:
		b, ok := f.blocksByNum[v]
		if !ok {
			return chainfeed.Block{}, errors.New("scriptedFeed: unknown block number")
		}
		return b, nil
	case common.Hash:
		b, ok := f.blocksByHash[v]
		if !ok {
			return chainfeed.Block{}, errors.New("scriptedFeed: unknown block hash")
		}
		return b, nil
	case string:
		if v == "latest" {
			return f.heads[0], nil
		}
		return chainfeed.Block{}, errors.New("scriptedFeed: unsupported literal")
	default:
		return chainfeed.Block{}, errors.New("scriptedFeed: bad numberOrHash")
	}
}

// fakeStateReader seeds every discovered constant-product pair with a fixed
// starting reserve, mirroring discovery_test.go's fakeReader.
type fakeStateReader struct{}

func (fakeStateReader) ReadStatic(ctx context.Context, addrs []common.Address, kind pool.Kind) ([]pool.AMM, error) {
	out := make([]pool.AMM, len(addrs))
	for i, addr := range addrs {
		out[i] = uniswapv2.New(addr, tokenAFor(addr), tokenBFor(addr), 18, 18, 30)
	}
	return out, nil
}

func (fakeStateReader) ReadDynamic(ctx context.Context, addrs []common.Address, kind pool.Kind, block uint64) ([]pool.AMM, error) {
	out := make([]pool.AMM, len(addrs))
	for i, addr := range addrs {
		p := uniswapv2.New(addr, tokenAFor(addr), tokenBFor(addr), 18, 18, 30)
		p.Seed(big.NewInt(1_000_000), big.NewInt(2_000_000))
		out[i] = p
	}
	return out, nil
}

func tokenAFor(addr common.Address) common.Address {
	return common.BytesToAddress(append([]byte{0xAA}, addr.Bytes()[1:]...))
}

func tokenBFor(addr common.Address) common.Address {
	return common.BytesToAddress(append([]byte{0xBB}, addr.Bytes()[1:]...))
}

func pairCreatedLog(n byte) (types.Log, common.Address) {
	pairAddr := common.BytesToAddress(append([]byte{0xCC}, n))
	data := make([]byte, 64)
	copy(data[12:32], pairAddr.Bytes())
	return types.Log{
		Topics: []common.Hash{
			factoryv2.PairCreatedEventSignature,
			common.BytesToHash(tokenAFor(pairAddr).Bytes()),
			common.BytesToHash(tokenBFor(pairAddr).Bytes()),
		},
		Data: data,
	}, pairAddr
}

func syncLog(addr common.Address, reserveA, reserveB int64) types.Log {
	data := make([]byte, 64)
	big.NewInt(reserveA).FillBytes(data[0:32])
	big.NewInt(reserveB).FillBytes(data[32:64])
	return types.Log{Address: addr, Topics: []common.Hash{uniswapv2.SyncEventSignature}, Data: data}
}

// TestBuilderSyncDiscoversAndNotifies exercises the full Builder.Sync ->
// Manager path: discovery populates the registry from a scripted
// PairCreated log, then one new block delivers a Sync log the running
// synchronizer applies, producing exactly one notification.
func TestBuilderSyncDiscoversAndNotifies(t *testing.T) {
	discoveryLog, pairAddr := pairCreatedLog(1)

	genesisHash := common.Hash{}
	block1Hash := common.HexToHash("0x01")
	genesis := chainfeed.Block{Number: 0, Hash: genesisHash}
	block1 := chainfeed.Block{Number: 1, Hash: block1Hash, ParentHash: genesisHash}

	feed := &scriptedFeed{
		discoveryLogs: []types.Log{discoveryLog},
		heads:         []chainfeed.Block{block1},
		blocksByNum:   map[uint64]chainfeed.Block{0: genesis, 1: block1},
		blocksByHash:  map[common.Hash]chainfeed.Block{genesisHash: genesis, block1Hash: block1},
		logsByHash:    map[common.Hash][]types.Log{block1Hash: {syncLog(pairAddr, 1_500_000, 500_000)}},
	}

	startBlock := uint64(0)
	builder := &statespace.Builder{
		Factories:   []factory.Factory{factoryv2.New(common.BytesToAddress([]byte{0xFA}), 0, 30)},
		Block:       &startBlock,
		LogSource:   feed,
		StateReader: fakeStateReader{},
	}

	manager, err := builder.Sync(context.Background())
	require.NoError(t, err)
	defer manager.Shutdown()

	require.Equal(t, 1, manager.Registry().Len())

	notifications := manager.Subscribe()
	select {
	case n := <-notifications:
		require.Equal(t, uint64(1), n.BlockNumber)
		require.Contains(t, n.PoolsChanged, pairAddr)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state-change notification")
	}

	p, ok := manager.Registry().Get(pairAddr)
	require.True(t, ok)
	price, err := p.Price(tokenAFor(pairAddr), tokenBFor(pairAddr))
	require.NoError(t, err)
	require.InDelta(t, 1.0/3.0, price, 0.01)
}

func TestBuilderSyncRejectsMissingCollaborators(t *testing.T) {
	_, err := (&statespace.Builder{}).Sync(context.Background())
	require.Error(t, err)
}
