// Package uniswapv3 implements the concentrated-liquidity factory variant:
// the Uniswap-V3-family PoolCreated event, which carries the fee tier and
// tick spacing the pool itself will use.
package uniswapv3

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
	poolv3 "github.com/defistate/statespace/pool/uniswapv3"
)

// PoolCreatedEventSignature is PoolCreated(address indexed token0, address
// indexed token1, uint24 indexed fee, int24 tickSpacing, address pool).
var PoolCreatedEventSignature = crypto.Keccak256Hash([]byte("PoolCreated(address,address,uint24,int24,address)"))

// Factory is the concentrated-liquidity factory variant.
type Factory struct {
	address       common.Address
	creationBlock uint64
}

func New(address common.Address, creationBlock uint64) *Factory {
	return &Factory{address: address, creationBlock: creationBlock}
}

func (f *Factory) Address() common.Address                 { return f.address }
func (f *Factory) CreationBlock() uint64                   { return f.creationBlock }
func (f *Factory) PoolCreationEventSignature() common.Hash { return PoolCreatedEventSignature }
func (f *Factory) PoolVariantDefault() pool.Kind            { return pool.KindConcentratedLiquidity }
func (f *Factory) SyncEvents() []common.Hash {
	return []common.Hash{
		poolv3.SwapEventSignature,
		poolv3.MintEventSignature,
		poolv3.BurnEventSignature,
		poolv3.InitializeEventSignature,
	}
}

// CreatePoolShell parses a PoolCreated log: token0/token1/fee are indexed
// topics, tickSpacing and the pool address are data words.
func (f *Factory) CreatePoolShell(log *types.Log) (pool.AMM, error) {
	if len(log.Topics) < 4 {
		return nil, fmt.Errorf("%w: PoolCreated missing indexed fields", errs.ErrPopulateFailed)
	}
	if len(log.Data) < 64 {
		return nil, fmt.Errorf("%w: PoolCreated short data", errs.ErrPopulateFailed)
	}
	tokenA := common.BytesToAddress(log.Topics[1].Bytes())
	tokenB := common.BytesToAddress(log.Topics[2].Bytes())
	fee := uint32(new(big.Int).SetBytes(log.Topics[3].Bytes()).Uint64())
	tickSpacing := decodeInt24(log.Data[0:32])
	poolAddr := common.BytesToAddress(log.Data[32:64])
	return poolv3.New(poolAddr, tokenA, tokenB, 0, 0, fee, tickSpacing), nil
}

func decodeInt24(word []byte) int64 {
	v := new(big.Int).SetBytes(word)
	max := new(big.Int).Lsh(big.NewInt(1), 23)
	if v.Cmp(max) >= 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return v.Int64()
}
