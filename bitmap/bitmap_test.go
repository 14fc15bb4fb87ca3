package bitmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arourke/extentfs/bitmap"
)

func TestFindFreeRespectsLogicalLength(t *testing.T) {
	raw := make([]byte, 1) // 8 physical bits
	bits := bitmap.Wrap(raw, 5)

	for i := 0; i < 5; i++ {
		bits.Set(i, true)
	}

	idx, ok := bits.FindFree()
	assert.False(t, ok, "all 5 logical bits are set; FindFree must not report one of the 3 unused physical bits at index %d", idx)
}

func TestFindFreeReturnsLowestClearBit(t *testing.T) {
	raw := make([]byte, 2)
	bits := bitmap.Wrap(raw, 16)

	bits.Set(0, true)
	bits.Set(1, true)

	idx, ok := bits.FindFree()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestSetGetRoundTrip(t *testing.T) {
	raw := make([]byte, 4)
	bits := bitmap.Wrap(raw, 32)

	bits.Set(7, true)
	bits.Set(16, true)

	assert.True(t, bits.Get(7))
	assert.True(t, bits.Get(16))
	assert.False(t, bits.Get(8))

	bits.Set(7, false)
	assert.False(t, bits.Get(7))
}

func TestPopCountIgnoresBitsBeyondLength(t *testing.T) {
	raw := []byte{0xFF} // all 8 physical bits set
	bits := bitmap.Wrap(raw, 3)

	assert.Equal(t, 3, bits.PopCount())
}

func TestWrapIsInPlace(t *testing.T) {
	raw := make([]byte, 1)
	bits := bitmap.Wrap(raw, 8)

	bits.Set(0, true)

	assert.Equal(t, byte(1), raw[0], "Wrap must alias raw, not copy it")
}
