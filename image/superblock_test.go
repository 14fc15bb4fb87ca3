package image_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arourke/extentfs/image"
)

func TestSuperblockMarshalRoundTrip(t *testing.T) {
	sb := image.Superblock{
		Magic:             image.Magic,
		ImageSize:         1 << 20,
		InodesCount:       256,
		BlocksCount:       256,
		FreeInodesCount:   254,
		FreeBlocksCount:   200,
		BlockBitmapStart:  1,
		InodeBitmapStart:  2,
		InodeTableStart:   3,
		DataRegionStart:   35,
		BlockBitmapBlocks: 1,
		InodeBitmapBlocks: 1,
	}

	block := make([]byte, image.BlockSize)
	sb.Marshal(block)

	got := image.Unmarshal(block)
	assert.Equal(t, sb, got)
}

func TestSuperblockIsValid(t *testing.T) {
	sb := image.Superblock{
		Magic:            image.Magic,
		BlockBitmapStart: 1,
		InodeBitmapStart: 2,
		InodeTableStart:  3,
		DataRegionStart:  4,
	}
	assert.True(t, sb.IsValid())

	bad := sb
	bad.Magic = 0
	assert.False(t, bad.IsValid(), "wrong magic must be rejected")

	outOfOrder := sb
	outOfOrder.InodeTableStart = 1
	assert.False(t, outOfOrder.IsValid(), "region ordering violation must be rejected")
}
