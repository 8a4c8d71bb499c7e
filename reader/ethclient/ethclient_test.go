package ethclient

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAddressArray(t *testing.T) {
	a := common.HexToAddress("0x1")
	b := common.HexToAddress("0x2")

	data := make([]byte, 128)
	big.NewInt(2).FillBytes(data[32:64]) // length
	copy(data[64+12:64+32], a.Bytes())
	copy(data[96+12:96+32], b.Bytes())

	got, err := decodeAddressArray(data)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{a, b}, got)
}

func TestDecodeAddressArrayRejectsShortData(t *testing.T) {
	_, err := decodeAddressArray(make([]byte, 32))
	assert.Error(t, err)
}

func TestDecodeAddressArrayRejectsTruncatedElements(t *testing.T) {
	data := make([]byte, 64+32)
	big.NewInt(2).FillBytes(data[32:64]) // claims 2 elements but only room for 1
	_, err := decodeAddressArray(data)
	assert.Error(t, err)
}

func TestDecodeInt24RoundTrips(t *testing.T) {
	for _, tick := range []int64{0, 60, -60, 887272, -887272} {
		word := encodeInt24(tick)
		assert.Equal(t, tick, decodeInt24(word), "tick %d", tick)
	}
}

func TestDecodeInt128RoundTrips(t *testing.T) {
	positive := big.NewInt(12345)
	word := make([]byte, 32)
	positive.FillBytes(word)
	assert.Zero(t, positive.Cmp(decodeInt128(word)))

	negative := big.NewInt(-12345)
	twos := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), negative)
	word2 := make([]byte, 32)
	twos.FillBytes(word2)
	assert.Zero(t, negative.Cmp(decodeInt128(word2)))
}

func TestEncodeAddressRightAligns(t *testing.T) {
	a := common.HexToAddress("0xabc")
	word := encodeAddress(a)
	require.Len(t, word, 32)
	assert.Equal(t, a.Bytes(), word[12:])
	assert.Equal(t, make([]byte, 12), word[:12])
}

func TestEncodeInt16HandlesNegativeWordIndex(t *testing.T) {
	word := encodeInt16(-1)
	// Two's complement of -1 across 32 bytes is all 0xff.
	for _, b := range word {
		assert.Equal(t, byte(0xff), b)
	}
}

func TestSelectorIsFourBytes(t *testing.T) {
	sel := selector("decimals()")
	assert.Len(t, sel, 4)
	assert.Equal(t, selDecimals, sel)
}
