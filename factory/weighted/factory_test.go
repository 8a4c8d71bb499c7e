package weighted

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/statespace/errs"
	poolweighted "github.com/defistate/statespace/pool/weighted"
)

var (
	caller    = common.HexToAddress("0x1")
	poolAddr  = common.HexToAddress("0x2")
	factoryAt = common.HexToAddress("0xf")
)

func TestCreatePoolShellReturnsAddressOnlyShell(t *testing.T) {
	f := New(factoryAt, 100)

	log := &types.Log{
		Topics: []common.Hash{LogNewPoolEventSignature, common.BytesToHash(caller.Bytes()), common.BytesToHash(poolAddr.Bytes())},
	}

	s, err := f.CreatePoolShell(log)
	require.NoError(t, err)
	assert.Equal(t, poolAddr, s.Address())
	assert.Nil(t, s.Tokens())
}

func TestCreatePoolShellRejectsMissingTopics(t *testing.T) {
	f := New(factoryAt, 100)
	log := &types.Log{Topics: []common.Hash{LogNewPoolEventSignature, common.BytesToHash(caller.Bytes())}}

	_, err := f.CreatePoolShell(log)
	assert.Error(t, err)
}

func TestShellIsInertUntilReplaced(t *testing.T) {
	s := shell{address: poolAddr}

	assert.Equal(t, poolAddr, s.Address())
	_, err := s.SimulateSwap(common.Address{}, common.Address{}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.ErrorIs(t, s.Sync(&types.Log{}), errs.ErrLogMismatch)
	assert.Equal(t, s, s.Clone())
}

func TestFactoryIdentity(t *testing.T) {
	f := New(factoryAt, 100)
	assert.Equal(t, factoryAt, f.Address())
	assert.Equal(t, uint64(100), f.CreationBlock())
	assert.Equal(t, LogNewPoolEventSignature, f.PoolCreationEventSignature())
	assert.Contains(t, f.SyncEvents(), poolweighted.LogSwapEventSignature)
}
