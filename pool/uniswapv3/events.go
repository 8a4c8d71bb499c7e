package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical Uniswap V3 pool event signatures. Swap/Mint/Burn are the
// "sync events" a live pool subscribes to; Initialize seeds a freshly
// created pool's starting price and is also accepted by Sync so a pool
// discovered before its Initialize log still converges to the right state.
var (
	SwapEventSignature       = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))
	MintEventSignature       = crypto.Keccak256Hash([]byte("Mint(address,address,int24,int24,uint128,uint256,uint256)"))
	BurnEventSignature       = crypto.Keccak256Hash([]byte("Burn(address,int24,int24,uint128,uint256,uint256)"))
	InitializeEventSignature = crypto.Keccak256Hash([]byte("Initialize(uint160,int24)"))
)

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// decodeSignedWord reinterprets a 32-byte big-endian ABI word as a signed
// two's-complement integer, the encoding the EVM uses for int24/int256
// topics and data words alike.
func decodeSignedWord(b []byte) *big.Int {
	x := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		x.Sub(x, twoTo256)
	}
	return x
}

func decodeUnsignedWord(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func addressFromTopic(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes())
}
