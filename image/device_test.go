package image_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/mkfs"
)

func TestFromBytesRejectsTruncatedImage(t *testing.T) {
	_, err := image.FromBytes(make([]byte, 100))
	require.Error(t, err)
}

func TestFromBytesRejectsSizeMismatch(t *testing.T) {
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)

	_, err = image.FromBytes(buf[:len(buf)-image.BlockSize])
	require.Error(t, err, "superblock declares the original size; a truncated buffer must be rejected")
}

func TestZeroDataBlockClears(t *testing.T) {
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)

	img, err := image.FromBytes(buf)
	require.NoError(t, err)

	b := img.DataBlock(1)
	for i := range b {
		b[i] = 0xAA
	}
	img.ZeroDataBlock(1)
	for i, v := range img.DataBlock(1) {
		require.Zero(t, v, "byte %d not cleared", i)
	}
}

func TestWriteSuperblockPersistsMutations(t *testing.T) {
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)

	img, err := image.FromBytes(buf)
	require.NoError(t, err)

	img.Layout.Superblock().FreeBlocksCount = 1
	img.WriteSuperblock()

	reread, err := image.FromBytes(buf)
	require.NoError(t, err)
	require.EqualValues(t, 1, reread.Layout.Superblock().FreeBlocksCount)
}
