package fileio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arourke/extentfs/fileio"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
	"github.com/arourke/extentfs/mkfs"
)

func newFile(t *testing.T) (*image.Image, *inode.Inode) {
	t.Helper()
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)
	img, err := image.FromBytes(buf)
	require.NoError(t, err)
	return img, &inode.Inode{Mode: inode.ModeRegular | 0o644, Nlinks: 1}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	img, ino := newFile(t)
	data := []byte("hello, extentfs")

	n, err := fileio.Pwrite(img, ino, data, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.EqualValues(t, len(data), ino.Size)

	buf := make([]byte, len(data))
	n, err = fileio.Pread(img, ino, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestWriteSizeIsMaxNotSum(t *testing.T) {
	img, ino := newFile(t)

	_, err := fileio.Pwrite(img, ino, []byte("0123456789"), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, ino.Size)

	_, err = fileio.Pwrite(img, ino, []byte("ab"), 2)
	require.NoError(t, err)
	assert.EqualValues(t, 10, ino.Size, "overwriting within the file must not grow size")

	buf := make([]byte, 10)
	_, err = fileio.Pread(img, ino, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "01ab456789", string(buf))
}

func TestWriteBeyondEOFGrowsAndLeavesGapZeroed(t *testing.T) {
	img, ino := newFile(t)

	_, err := fileio.Pwrite(img, ino, []byte("end"), image.BlockSize+5)
	require.NoError(t, err)
	assert.EqualValues(t, image.BlockSize+8, ino.Size)

	buf := make([]byte, image.BlockSize+8)
	n, err := fileio.Pread(img, ino, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	for i := 0; i < image.BlockSize+5; i++ {
		require.Zerof(t, buf[i], "gap byte %d not zero", i)
	}
	assert.Equal(t, "end", string(buf[image.BlockSize+5:]))
}

func TestReadAtEOFReturnsZero(t *testing.T) {
	img, ino := newFile(t)
	_, err := fileio.Pwrite(img, ino, []byte("abc"), 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := fileio.Pread(img, ino, buf, 3)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTruncateGrow(t *testing.T) {
	img, ino := newFile(t)
	require.NoError(t, fileio.Truncate(img, ino, 10))
	assert.EqualValues(t, 10, ino.Size)

	buf := make([]byte, 10)
	n, err := fileio.Pread(img, ino, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	for _, b := range buf {
		assert.Zero(t, b)
	}
}

func TestTruncateShrinkThenGrowBackIsZeroed(t *testing.T) {
	img, ino := newFile(t)
	_, err := fileio.Pwrite(img, ino, []byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, fileio.Truncate(img, ino, 4))
	assert.EqualValues(t, 4, ino.Size)

	require.NoError(t, fileio.Truncate(img, ino, 10))
	buf := make([]byte, 10)
	_, err = fileio.Pread(img, ino, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(buf[:4]))
	for i := 4; i < 10; i++ {
		assert.Zerof(t, buf[i], "byte %d should be zeroed by the shrink", i)
	}
}

func TestTruncateIdempotent(t *testing.T) {
	img, ino := newFile(t)
	_, err := fileio.Pwrite(img, ino, []byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, fileio.Truncate(img, ino, 10))
	assert.EqualValues(t, 10, ino.Size)
}
