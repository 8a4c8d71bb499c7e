package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	poolv2 "github.com/defistate/statespace/pool/uniswapv2"
)

var (
	token0    = common.HexToAddress("0x1")
	token1    = common.HexToAddress("0x2")
	pairAddr  = common.HexToAddress("0xabc")
	factoryAt = common.HexToAddress("0xf")
)

func TestCreatePoolShellParsesPairCreated(t *testing.T) {
	f := New(factoryAt, 100, 30)

	data := make([]byte, 64)
	copy(data[0:32], common.LeftPadBytes(pairAddr.Bytes(), 32))
	big.NewInt(1).FillBytes(data[32:64])

	log := &types.Log{
		Topics: []common.Hash{PairCreatedEventSignature, common.BytesToHash(token0.Bytes()), common.BytesToHash(token1.Bytes())},
		Data:   data,
	}

	shell, err := f.CreatePoolShell(log)
	require.NoError(t, err)

	p, ok := shell.(*poolv2.Pool)
	require.True(t, ok)
	assert.Equal(t, pairAddr, p.Address())
	assert.ElementsMatch(t, []common.Address{token0, token1}, p.Tokens())
}

func TestCreatePoolShellRejectsMissingTopics(t *testing.T) {
	f := New(factoryAt, 100, 30)
	log := &types.Log{Topics: []common.Hash{PairCreatedEventSignature}, Data: make([]byte, 64)}

	_, err := f.CreatePoolShell(log)
	assert.Error(t, err)
}

func TestCreatePoolShellRejectsShortData(t *testing.T) {
	f := New(factoryAt, 100, 30)
	log := &types.Log{
		Topics: []common.Hash{PairCreatedEventSignature, common.BytesToHash(token0.Bytes()), common.BytesToHash(token1.Bytes())},
		Data:   make([]byte, 16),
	}

	_, err := f.CreatePoolShell(log)
	assert.Error(t, err)
}

func TestFactoryIdentity(t *testing.T) {
	f := New(factoryAt, 100, 30)
	assert.Equal(t, factoryAt, f.Address())
	assert.Equal(t, uint64(100), f.CreationBlock())
	assert.Equal(t, PairCreatedEventSignature, f.PoolCreationEventSignature())
	assert.Contains(t, f.SyncEvents(), poolv2.SyncEventSignature)
}
