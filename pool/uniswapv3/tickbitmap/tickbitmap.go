// Package tickbitmap implements the Uniswap V3 tick bitmap: a sparse
// mapping from word index to a 256-bit word, where bit b of word w marks
// whether tick (w*256+b)*tickSpacing is initialized (has liquidityGross >
// 0). Unlike a simple sorted-slice scan over the tick table, this is the
// literal bitmap structure the pool data model requires, so the
// mutual-consistency invariant between the bitmap and the tick table can be
// checked and maintained incrementally as Mint/Burn logs are applied.
package tickbitmap

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// Bitmap is a sparse word_index -> 256-bit word map. Words that would be
// all-zero are never stored, keeping the map proportional to the number of
// initialized ticks rather than the tick range.
type Bitmap struct {
	words map[int16]*uint256.Int
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{words: make(map[int16]*uint256.Int)}
}

// Position returns the word index and bit position for a compressed tick
// (tick / tickSpacing).
func Position(compressedTick int32) (wordPos int16, bitPos uint8) {
	wordPos = int16(compressedTick >> 8)
	bitPos = uint8(uint32(compressedTick) & 0xff)
	return
}

// Flip toggles the bit for the given compressed tick.
func (b *Bitmap) Flip(compressedTick int32) {
	wordPos, bitPos := Position(compressedTick)
	word, ok := b.words[wordPos]
	if !ok {
		word = new(uint256.Int)
		b.words[wordPos] = word
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	word.Xor(word, mask)
	if word.IsZero() {
		delete(b.words, wordPos)
	}
}

// IsSet reports whether the given compressed tick's bit is set.
func (b *Bitmap) IsSet(compressedTick int32) bool {
	wordPos, bitPos := Position(compressedTick)
	word, ok := b.words[wordPos]
	if !ok {
		return false
	}
	return bitSet(word, bitPos)
}

// bitSet reports whether bit n of x is set.
func bitSet(x *uint256.Int, n uint8) bool {
	word := n / 64
	return (x[word]>>(n%64))&1 == 1
}

// Clone returns a deep copy of the bitmap.
func (b *Bitmap) Clone() *Bitmap {
	out := &Bitmap{words: make(map[int16]*uint256.Int, len(b.words))}
	for w, word := range b.words {
		out.words[w] = new(uint256.Int).Set(word)
	}
	return out
}

// NextInitializedTickWithinOneWord finds the next initialized compressed
// tick in the given direction, starting from (and possibly including)
// compressedTick, without crossing a word boundary. lte selects the
// direction: true searches at-or-below, false searches strictly above. When
// no initialized tick exists within the word, it returns the boundary of
// the word (so the caller can step to the next word) with initialized=false.
func (b *Bitmap) NextInitializedTickWithinOneWord(compressedTick int32, lte bool) (next int32, initialized bool) {
	if lte {
		wordPos, bitPos := Position(compressedTick)
		word, ok := b.words[wordPos]

		// mask selects every bit at position <= bitPos. Shifting 1 left by
		// 256 when bitPos == 255 overflows to 0 mod 2^256, and the
		// subsequent Sub(0, 1) wraps around to all-ones, which is exactly
		// the mask we want in that case.
		one := uint256.NewInt(1)
		shifted := new(uint256.Int).Lsh(one, uint(bitPos)+1)
		mask := new(uint256.Int).Sub(shifted, one)

		var masked uint256.Int
		if ok {
			masked.And(word, mask)
		}

		if !ok || masked.IsZero() {
			return int32(wordPos) * 256, false
		}

		msb := mostSignificantBit(&masked)
		return int32(wordPos)*256 + int32(msb), true
	}

	wordPos, bitPos := Position(compressedTick + 1)
	word, ok := b.words[wordPos]

	// mask selects every bit at position >= bitPos.
	one := uint256.NewInt(1)
	below := new(uint256.Int).Sub(new(uint256.Int).Lsh(one, uint(bitPos)), one)
	mask := new(uint256.Int).Not(below)

	var masked uint256.Int
	if ok {
		masked.And(word, mask)
	}

	if !ok || masked.IsZero() {
		return int32(wordPos)*256 + 255, false
	}

	lsb := leastSignificantBit(&masked)
	return int32(wordPos)*256 + int32(lsb), true
}

func mostSignificantBit(x *uint256.Int) uint8 {
	return uint8(x.BitLen() - 1)
}

func leastSignificantBit(x *uint256.Int) uint8 {
	for i := 0; i < 4; i++ {
		if x[i] != 0 {
			return uint8(i*64 + bits.TrailingZeros64(x[i]))
		}
	}
	return 0
}
