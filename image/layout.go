package image

// InodeWireSize is the on-disk size of one inode record. It must divide
// BlockSize evenly (spec.md §6); the inode codec in package inode defines
// the exact field layout and pads to this size.
const InodeWireSize = 128

// DirentWireSize is the fixed size of one directory entry record: a
// 4-byte inode number followed by a 252-byte null-terminated name
// (spec.md §3, §6).
const DirentWireSize = 256

// MaxNameLength is the longest path component name, including the NUL
// terminator (spec.md §4.3, §6).
const MaxNameLength = 252

// MaxPathLength is the platform path-length ceiling spec.md §4.3 checks a
// full path against before resolution begins, matching the original's
// A1FS_PATH_MAX (PATH_MAX, 4096 on Linux).
const MaxPathLength = 4096

// Layout is the region map derived from a Superblock: the byte ranges of
// the superblock, both bitmaps, the inode table, and the data region.
// Every other package consumes these offsets instead of recomputing them
// from the superblock fields directly (spec.md §2.1).
type Layout struct {
	sb Superblock
}

// NewLayout derives a Layout from a superblock already read from disk.
func NewLayout(sb Superblock) Layout {
	return Layout{sb: sb}
}

// Superblock returns the underlying superblock.
func (l *Layout) Superblock() *Superblock {
	return &l.sb
}

// BlockOffset returns the byte offset of the start of image block number n.
func (l *Layout) BlockOffset(n uint32) int64 {
	return int64(n) * BlockSize
}

// BlockBitmapRange returns the byte range of the block bitmap.
func (l *Layout) BlockBitmapRange() (start, end int64) {
	start = l.BlockOffset(l.sb.BlockBitmapStart)
	end = start + int64(l.sb.BlockBitmapBlocks)*BlockSize
	return
}

// InodeBitmapRange returns the byte range of the inode bitmap.
func (l *Layout) InodeBitmapRange() (start, end int64) {
	start = l.BlockOffset(l.sb.InodeBitmapStart)
	end = start + int64(l.sb.InodeBitmapBlocks)*BlockSize
	return
}

// InodeTableBlocks returns the number of blocks the inode table spans.
func (l *Layout) InodeTableBlocks() uint32 {
	perBlock := uint32(BlockSize / InodeWireSize)
	blocks := l.sb.InodesCount / perBlock
	if l.sb.InodesCount%perBlock != 0 {
		blocks++
	}
	return blocks
}

// InodeOffset returns the byte offset of inode number ino in the image.
func (l *Layout) InodeOffset(ino uint32) int64 {
	tableStart := l.BlockOffset(l.sb.InodeTableStart)
	return tableStart + int64(ino)*InodeWireSize
}

// DataBlockOffset returns the byte offset of data-region-relative block
// index rel (i.e. extent.start + k, per spec.md §4.2's offset formula).
func (l *Layout) DataBlockOffset(rel uint32) int64 {
	return l.BlockOffset(l.sb.DataRegionStart) + int64(rel)*BlockSize
}

// TotalBlocks reports the image size in 4096-byte blocks, per statfs.
func (l *Layout) TotalBlocks() uint64 {
	return l.sb.ImageSize / BlockSize
}
