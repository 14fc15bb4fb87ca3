package mkfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arourke/extentfs/dirent"
	"github.com/arourke/extentfs/fsck"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
	"github.com/arourke/extentfs/mkfs"
)

func TestFormatProducesCleanImage(t *testing.T) {
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)
	assert.Len(t, buf, 1<<20)

	img, err := image.FromBytes(buf)
	require.NoError(t, err)

	assert.NoError(t, fsck.Check(img))
}

func TestFormatCreatesRootDirectory(t *testing.T) {
	buf, err := mkfs.Format(1<<20, 64)
	require.NoError(t, err)
	img, err := image.FromBytes(buf)
	require.NoError(t, err)

	root := inode.NewTable(img).Read(0)
	assert.True(t, root.IsDir())
	assert.EqualValues(t, 2, root.Nlinks)

	entries := dirent.NewManager(img).List(&root)
	require.Len(t, entries, 2)
	names := []string{entries[0].Name, entries[1].Name}
	assert.ElementsMatch(t, []string{".", ".."}, names)
}

func TestFormatRejectsUnalignedSize(t *testing.T) {
	_, err := mkfs.Format(100, 64)
	assert.Error(t, err)
}

func TestFormatRejectsTooFewInodes(t *testing.T) {
	_, err := mkfs.Format(1<<20, 0)
	assert.Error(t, err)
}

func TestFormatRejectsImageTooSmallForInodeCount(t *testing.T) {
	_, err := mkfs.Format(image.BlockSize, 1<<20)
	assert.Error(t, err)
}

func TestPresetsLoadAndLookup(t *testing.T) {
	presets, err := mkfs.Presets()
	require.NoError(t, err)
	require.NotEmpty(t, presets)

	p, ok := mkfs.LookupPreset(presets[0].Name)
	require.True(t, ok)
	assert.Equal(t, presets[0], p)

	_, ok = mkfs.LookupPreset("does-not-exist")
	assert.False(t, ok)
}
