// Package fileio is the file-data I/O layer spec.md §4.7/§4.8/§4.9
// describes: byte-range reads and writes against a file's extent map, and
// truncation in both directions.
//
// Grounded on the teacher's driver/file.go and blockstream.go (translate a
// byte offset into a block index plus an in-block offset, walk blocks
// until the request is satisfied), adapted from the teacher's seekable
// cluster-chain stream to direct random access over an extent list, since
// this format's extents are already O(1)-addressable ranges rather than a
// singly-linked cluster chain.
package fileio

import (
	"github.com/arourke/extentfs/alloc"
	"github.com/arourke/extentfs/errfs"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
)

// blockAt returns the data-region-relative block number holding logical
// block index logical within ino's extent map, or ok=false if ino doesn't
// extend that far yet.
func blockAt(it inode.Iterator, logical uint64) (uint32, bool) {
	var base uint64
	for _, e := range it.Extents() {
		count := uint64(e.Count)
		if logical < base+count {
			return e.Start + uint32(logical-base), true
		}
		base += count
	}
	return 0, false
}

// Pread copies min(len(buf), size-offset) bytes starting at offset into
// buf, returning the number of bytes read. Reading at or past EOF returns
// (0, nil), matching POSIX pread's short-read-at-EOF behavior rather than
// an error (spec.md §4.7).
func Pread(img *image.Image, ino *inode.Inode, buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errfs.ErrInvalidArgument.WithMessage("negative offset %d", offset)
	}
	if uint64(offset) >= ino.Size {
		return 0, nil
	}
	remaining := ino.Size - uint64(offset)
	if uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	it := inode.NewIterator(img, ino)
	read := 0
	for read < len(buf) {
		pos := uint64(offset) + uint64(read)
		logical := pos / image.BlockSize
		inBlock := int(pos % image.BlockSize)

		rel, ok := blockAt(it, logical)
		if !ok {
			break
		}
		block := img.DataBlock(rel)
		n := copy(buf[read:], block[inBlock:])
		read += n
	}
	return read, nil
}

// Pwrite writes data at offset, growing the file (allocating new blocks via
// package alloc, and zero-filling any gap between the old EOF and offset)
// as needed. ino.Size is updated to max(old size, offset+len(data)) rather
// than incremented by the write length, so overwrites within the existing
// file don't inflate the size (spec.md §9 resolves the ambiguity this
// way). The caller must persist the mutated inode record afterward.
func Pwrite(img *image.Image, ino *inode.Inode, data []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errfs.ErrInvalidArgument.WithMessage("negative offset %d", offset)
	}
	end := uint64(offset) + uint64(len(data))

	if err := ensureBlocks(img, ino, end); err != nil {
		return 0, err
	}

	it := inode.NewIterator(img, ino)
	written := 0
	for written < len(data) {
		pos := uint64(offset) + uint64(written)
		logical := pos / image.BlockSize
		inBlock := int(pos % image.BlockSize)

		rel, ok := blockAt(it, logical)
		if !ok {
			return written, errfs.ErrIOFailed.WithMessage("write ran past allocated extents")
		}
		block := img.DataBlock(rel)
		n := copy(block[inBlock:], data[written:])
		written += n
	}

	if end > ino.Size {
		ino.Size = end
	}
	return written, nil
}

// ensureBlocks grows ino's extent map, if needed, so that every logical
// block up to byte offset end is backed by an allocated data block.
func ensureBlocks(img *image.Image, ino *inode.Inode, end uint64) error {
	if end == 0 {
		return nil
	}
	wantBlocks := (end + image.BlockSize - 1) / image.BlockSize
	it := inode.NewIterator(img, ino)
	have := it.TotalBlocks()
	for have < wantBlocks {
		if _, err := alloc.AppendBlock(img, ino); err != nil {
			return err
		}
		have++
	}
	return nil
}

// Truncate resizes ino to newSize. Growing zero-fills the new region by
// allocating fresh (already-zeroed) blocks as needed and simply raising
// Size; it never needs to touch bytes within blocks that already existed,
// because every linked byte past Size is already zero. Shrinking lowers
// Size and zeroes every byte from newSize up to the old Size: the data
// blocks beyond the new size stay linked in the extent map rather than
// being freed, so a subsequent grow-back is cheap (spec.md §4.9, §9).
func Truncate(img *image.Image, ino *inode.Inode, newSize uint64) error {
	if newSize > ino.Size {
		if err := ensureBlocks(img, ino, newSize); err != nil {
			return err
		}
		ino.Size = newSize
		return nil
	}
	if newSize == ino.Size {
		return nil
	}

	it := inode.NewIterator(img, ino)
	if newSize > 0 {
		lastLogical := (newSize - 1) / image.BlockSize
		tailOffset := int(newSize % image.BlockSize)
		if tailOffset != 0 {
			if rel, ok := blockAt(it, lastLogical); ok {
				block := img.DataBlock(rel)
				for i := tailOffset; i < image.BlockSize; i++ {
					block[i] = 0
				}
			}
		}
	}
	oldBlocks := (ino.Size + image.BlockSize - 1) / image.BlockSize
	for logical := (newSize + image.BlockSize - 1) / image.BlockSize; logical < oldBlocks; logical++ {
		if rel, ok := blockAt(it, logical); ok {
			img.ZeroDataBlock(rel)
		}
	}
	ino.Size = newSize
	return nil
}
