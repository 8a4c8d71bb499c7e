package tickbitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTicks(ticks ...int32) *Bitmap {
	b := New()
	for _, t := range ticks {
		b.Flip(t)
	}
	return b
}

func TestFlipTogglesAndClearsEmptyWords(t *testing.T) {
	b := New()
	assert.False(t, b.IsSet(50))

	b.Flip(50)
	assert.True(t, b.IsSet(50))
	assert.Len(t, b.words, 1)

	b.Flip(50)
	assert.False(t, b.IsSet(50))
	assert.Empty(t, b.words, "flipping a bit back to zero must drop the now-empty word")
}

// All of these ticks compress into word 0 (0 <= tick < 256), so a single
// word's worth of bits covers every case.
func TestNextInitializedTickWithinOneWordSameWord(t *testing.T) {
	b := setTicks(0, 50, 100, 200)

	testCases := []struct {
		name                string
		startTick           int32
		lte                 bool
		expectedNext        int32
		expectedInitialized bool
	}{
		{"LTE: exact match", 50, true, 50, true},
		{"LTE: between ticks", 40, true, 0, true},
		{"LTE: just above a tick", 51, true, 50, true},
		{"LTE: at first tick", 0, true, 0, true},
		{"LTE: at last tick", 200, true, 200, true},
		{"GT: on an existing tick", 50, false, 100, true},
		{"GT: between ticks", 40, false, 50, true},
		{"GT: just below a tick", 49, false, 50, true},
		{"GT: at first tick", 0, false, 50, true},
		{"GT: past the last tick in the word", 200, false, 255, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, initialized := b.NextInitializedTickWithinOneWord(tc.startTick, tc.lte)
			require.Equal(t, tc.expectedInitialized, initialized)
			assert.Equal(t, tc.expectedNext, next)
		})
	}
}

// Negative compressed ticks fall into negative word indices; this exercises
// Position's arithmetic (floor-dividing) shift rather than a naive one.
func TestNextInitializedTickWithinOneWordNegativeWord(t *testing.T) {
	b := setTicks(-200, -100, -50)

	next, initialized := b.NextInitializedTickWithinOneWord(-60, true)
	require.True(t, initialized)
	assert.Equal(t, int32(-100), next)

	next, initialized = b.NextInitializedTickWithinOneWord(-60, false)
	require.True(t, initialized)
	assert.Equal(t, int32(-50), next)

	next, initialized = b.NextInitializedTickWithinOneWord(-200, true)
	require.True(t, initialized)
	assert.Equal(t, int32(-200), next)
}

func TestNextInitializedTickWithinOneWordEmptyBitmap(t *testing.T) {
	b := New()

	next, initialized := b.NextInitializedTickWithinOneWord(100, true)
	assert.False(t, initialized)
	assert.Equal(t, int32(0), next, "LTE on an empty word returns the word's own lower boundary")

	next, initialized = b.NextInitializedTickWithinOneWord(100, false)
	assert.False(t, initialized)
	assert.Equal(t, int32(255), next, "GT on an empty word returns the word's own upper boundary")
}

func TestNextInitializedTickStopsAtWordBoundary(t *testing.T) {
	// Tick 300 lives in word 1 (300>>8 == 1); a search starting in word 0
	// must not see it.
	b := setTicks(300)

	next, initialized := b.NextInitializedTickWithinOneWord(10, false)
	assert.False(t, initialized)
	assert.Equal(t, int32(255), next)
}

func TestCloneIsIndependent(t *testing.T) {
	b := setTicks(10, 20)
	clone := b.Clone()

	clone.Flip(30)

	assert.True(t, clone.IsSet(30))
	assert.False(t, b.IsSet(30), "mutating the clone must not affect the original")
}
