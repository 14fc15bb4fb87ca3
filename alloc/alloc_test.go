package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arourke/extentfs/alloc"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
	"github.com/arourke/extentfs/mkfs"
)

func newImage(t *testing.T) *image.Image {
	t.Helper()
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)
	img, err := image.FromBytes(buf)
	require.NoError(t, err)
	return img
}

func TestAppendBlockExtendsTailInPlace(t *testing.T) {
	img := newImage(t)
	ino := inode.Inode{}

	idx1, err := alloc.AppendBlock(img, &ino)
	require.NoError(t, err)
	idx2, err := alloc.AppendBlock(img, &ino)
	require.NoError(t, err)

	assert.Equal(t, idx1, idx2, "a contiguous second block should extend the same extent slot")
	assert.EqualValues(t, 1, ino.ExtentCount)
	assert.EqualValues(t, 2, ino.Extents[idx1].Count)
}

func TestAppendBlockDecrementsFreeCount(t *testing.T) {
	img := newImage(t)
	sb := img.Layout.Superblock()
	before := sb.FreeBlocksCount

	ino := inode.Inode{}
	_, err := alloc.AppendBlock(img, &ino)
	require.NoError(t, err)

	assert.Equal(t, before-1, sb.FreeBlocksCount)
}

func TestAppendBlockSpillsToIndirectAfterTenExtents(t *testing.T) {
	img := newImage(t)
	ino := inode.Inode{}

	// Force ten discontiguous single-block extents by manually consuming the
	// intervening bit each time so the next free bit never abuts the tail.
	sb := img.Layout.Superblock()

	for i := 0; i < inode.NumInlineExtents; i++ {
		idx, err := alloc.AppendBlock(img, &ino)
		require.NoError(t, err)
		require.Less(t, idx, inode.NumInlineExtents)
		// burn the next free bit so the following AppendBlock can't extend in place
		burnOneBit(img, sb)
	}

	idx, err := alloc.AppendBlock(img, &ino)
	require.NoError(t, err)
	assert.Equal(t, inode.NumInlineExtents, idx, "the 11th extent must land in the indirect block")

	_, has := inode.NewIterator(img, &ino).IndirectRun()
	assert.True(t, has)
}

// burnOneBit marks the next free block bit used without linking it into any
// inode, purely to break tail-adjacency for the next AppendBlock call.
func burnOneBit(img *image.Image, sb *image.Superblock) {
	raw := img.BlockBitmap()
	for i := 0; i < int(sb.BlocksCount); i++ {
		byteIdx, bit := i/8, uint(i%8)
		if raw[byteIdx]&(1<<bit) == 0 {
			raw[byteIdx] |= 1 << bit
			sb.FreeBlocksCount--
			return
		}
	}
}

func TestFreeExtentsReturnsBlocksToBitmap(t *testing.T) {
	img := newImage(t)
	sb := img.Layout.Superblock()
	before := sb.FreeBlocksCount

	ino := inode.Inode{}
	_, err := alloc.AppendBlock(img, &ino)
	require.NoError(t, err)
	_, err = alloc.AppendBlock(img, &ino)
	require.NoError(t, err)

	alloc.FreeExtents(img, &ino)

	assert.Equal(t, before, sb.FreeBlocksCount)
	assert.Zero(t, ino.ExtentCount)
}

func TestAllocateAndFreeInode(t *testing.T) {
	img := newImage(t)
	sb := img.Layout.Superblock()
	before := sb.FreeInodesCount

	ino, err := alloc.AllocateInode(img)
	require.NoError(t, err)
	assert.Equal(t, before-1, sb.FreeInodesCount)

	alloc.FreeInode(img, ino)
	assert.Equal(t, before, sb.FreeInodesCount)
}

func TestAppendBlockNoSpace(t *testing.T) {
	buf, err := mkfs.Format(image.BlockSize*40, 16)
	require.NoError(t, err)
	img, err := image.FromBytes(buf)
	require.NoError(t, err)

	ino := inode.Inode{}
	sb := img.Layout.Superblock()
	for sb.FreeBlocksCount > 0 {
		_, err := alloc.AppendBlock(img, &ino)
		require.NoError(t, err)
	}
	_, err = alloc.AppendBlock(img, &ino)
	assert.Error(t, err)
}
