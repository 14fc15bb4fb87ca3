package fs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arourke/extentfs/errfs"
	"github.com/arourke/extentfs/fs"
	"github.com/arourke/extentfs/fsck"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/mkfs"
)

func newFS(t *testing.T) *fs.Filesystem {
	t.Helper()
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)
	img, err := image.FromBytes(buf)
	require.NoError(t, err)
	return fs.New(img)
}

func TestMkdirThenRmdirRestoresState(t *testing.T) {
	f := newFS(t)

	before, err := f.GetAttr("/")
	require.NoError(t, err)

	require.NoError(t, f.Mkdir("/sub", fs.DefaultDirMode))
	attr, err := f.GetAttr("/sub")
	require.NoError(t, err)
	assert.True(t, attr.Mode&^uint32(0o777) != 0)

	require.NoError(t, f.Rmdir("/sub"))

	_, err = f.GetAttr("/sub")
	assert.ErrorIs(t, err, errfs.ErrNotFound)

	after, err := f.GetAttr("/")
	require.NoError(t, err)
	assert.Equal(t, before.Nlink, after.Nlink)
}

func TestRmdirNonEmptyFails(t *testing.T) {
	f := newFS(t)
	require.NoError(t, f.Mkdir("/sub", fs.DefaultDirMode))
	_, err := f.Create("/sub/file.txt", fs.DefaultFileMode)
	require.NoError(t, err)

	err = f.Rmdir("/sub")
	assert.ErrorIs(t, err, errfs.ErrDirectoryNotEmpty)
}

func TestCreateThenUnlinkRestoresFreeCounts(t *testing.T) {
	f := newFS(t)

	before := f.Statfs()

	attr, err := f.Create("/file.txt", fs.DefaultFileMode)
	require.NoError(t, err)
	_, err = f.Write("/file.txt", []byte("some data"), 0)
	require.NoError(t, err)

	require.NoError(t, f.Unlink("/file.txt"))

	after := f.Statfs()
	assert.Equal(t, before, after)
	_ = attr
}

func TestWriteThenReadBack(t *testing.T) {
	f := newFS(t)
	_, err := f.Create("/file.txt", fs.DefaultFileMode)
	require.NoError(t, err)

	n, err := f.Write("/file.txt", []byte("payload"), 0)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	buf := make([]byte, 7)
	n, err = f.Read("/file.txt", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "payload", string(buf))
}

func TestReadDirListsChildren(t *testing.T) {
	f := newFS(t)
	require.NoError(t, f.Mkdir("/sub", fs.DefaultDirMode))
	_, err := f.Create("/file.txt", fs.DefaultFileMode)
	require.NoError(t, err)

	entries, err := f.ReadDir("/")
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["sub"])
	assert.True(t, names["file.txt"])
}

func TestEmptyDirectoryReadDirHasOnlyDotEntries(t *testing.T) {
	f := newFS(t)
	require.NoError(t, f.Mkdir("/sub", fs.DefaultDirMode))

	entries, err := f.ReadDir("/sub")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRenameToSelfIsNoOp(t *testing.T) {
	f := newFS(t)
	_, err := f.Create("/file.txt", fs.DefaultFileMode)
	require.NoError(t, err)

	require.NoError(t, f.Rename("/file.txt", "/file.txt"))

	_, err = f.GetAttr("/file.txt")
	assert.NoError(t, err)
}

func TestRenameMovesAndOverwritesDestination(t *testing.T) {
	f := newFS(t)
	_, err := f.Create("/a.txt", fs.DefaultFileMode)
	require.NoError(t, err)
	_, err = f.Write("/a.txt", []byte("AAA"), 0)
	require.NoError(t, err)

	_, err = f.Create("/b.txt", fs.DefaultFileMode)
	require.NoError(t, err)
	_, err = f.Write("/b.txt", []byte("BBB"), 0)
	require.NoError(t, err)

	require.NoError(t, f.Rename("/a.txt", "/b.txt"))

	_, err = f.GetAttr("/a.txt")
	assert.ErrorIs(t, err, errfs.ErrNotFound)

	buf := make([]byte, 3)
	_, err = f.Read("/b.txt", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "AAA", string(buf), "rename must rebind the destination name to the source inode's contents")
}

func TestUtimensRoundTrip(t *testing.T) {
	f := newFS(t)
	_, err := f.Create("/file.txt", fs.DefaultFileMode)
	require.NoError(t, err)

	want := time.Unix(1700000000, 0)
	require.NoError(t, f.Utimens("/file.txt", want))

	attr, err := f.GetAttr("/file.txt")
	require.NoError(t, err)
	assert.Equal(t, want.Unix(), attr.Mtime.Unix())
}

func TestNameTooLongRejected(t *testing.T) {
	f := newFS(t)
	longName := make([]byte, image.MaxNameLength)
	for i := range longName {
		longName[i] = 'x'
	}
	_, err := f.Create("/"+string(longName), fs.DefaultFileMode)
	assert.ErrorIs(t, err, errfs.ErrNameTooLong)
}

func TestInodeExhaustion(t *testing.T) {
	buf, err := mkfs.Format(image.BlockSize*64, 3)
	require.NoError(t, err)
	img, err := image.FromBytes(buf)
	require.NoError(t, err)
	f := fs.New(img)

	_, err = f.Create("/a", fs.DefaultFileMode)
	require.NoError(t, err)
	_, err = f.Create("/b", fs.DefaultFileMode)
	require.NoError(t, err)
	_, err = f.Create("/c", fs.DefaultFileMode)
	assert.ErrorIs(t, err, errfs.ErrNoSpace)
}

func TestFilesystemStaysConsistentAcrossOperations(t *testing.T) {
	buf, err := mkfs.Format(1<<20, 128)
	require.NoError(t, err)
	img, err := image.FromBytes(buf)
	require.NoError(t, err)
	f := fs.New(img)

	require.NoError(t, f.Mkdir("/a", fs.DefaultDirMode))
	require.NoError(t, f.Mkdir("/a/b", fs.DefaultDirMode))
	_, err = f.Create("/a/b/c.txt", fs.DefaultFileMode)
	require.NoError(t, err)
	_, err = f.Write("/a/b/c.txt", []byte("some contents here"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Rename("/a/b/c.txt", "/a/d.txt"))
	require.NoError(t, f.Unlink("/a/d.txt"))
	require.NoError(t, f.Rmdir("/a/b"))

	assert.NoError(t, fsck.Check(img))
}
