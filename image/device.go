package image

import (
	"fmt"
	"io"
	"os"

	"github.com/xaionaro-go/bytesextra"
	"golang.org/x/sys/unix"
)

// Image owns the mapped byte region of a formatted extentfs image and the
// Layout derived from its superblock. Bytes is the single shared mutable
// resource spec.md §5 describes: every component in this module mutates it
// in place, and the host is expected to serialize callbacks so no two
// operations touch it concurrently.
type Image struct {
	Bytes  []byte
	Layout Layout

	// Stream is an io.ReadWriteSeeker view of the same backing bytes,
	// wired via bytesextra.NewReadWriteSeeker for callers that want
	// seek-based access without their own offset bookkeeping on top of
	// Bytes. No package in this module reads or writes through it.
	Stream io.ReadWriteSeeker

	closer func() error
}

// Open memory-maps path read-write and returns the Image backed by that
// mapping. The caller must call Close exactly once, on every exit path
// (spec.md §5): Close optionally syncs the mapping and always unmaps it.
func Open(path string, sync bool) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("image: opening %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("image: stat %q: %w", path, err)
	}
	size := info.Size()
	if size < BlockSize {
		return nil, fmt.Errorf("image: %q is smaller than one block", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("image: mmap %q: %w", path, err)
	}

	img, err := FromBytes(data)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}

	img.closer = func() error {
		var syncErr error
		if sync {
			syncErr = unix.Msync(data, unix.MS_SYNC)
		}
		if unmapErr := unix.Munmap(data); unmapErr != nil && syncErr == nil {
			syncErr = unmapErr
		}
		return syncErr
	}
	return img, nil
}

// FromBytes wraps an already-formatted in-memory image (typically one built
// by package mkfs, or a fixture loaded in a test) without mapping anything.
// It's the constructor package image_test and fs_test use to drive the core
// against a plain []byte instead of a real file.
func FromBytes(data []byte) (*Image, error) {
	if len(data) < BlockSize {
		return nil, fmt.Errorf("image: data shorter than one block")
	}
	sb := Unmarshal(data[:BlockSize])
	if !sb.IsValid() {
		return nil, fmt.Errorf("image: bad or missing superblock (magic %#x)", sb.Magic)
	}
	if int64(len(data)) != int64(sb.ImageSize) {
		return nil, fmt.Errorf(
			"image: superblock declares %d bytes, got %d", sb.ImageSize, len(data))
	}

	return &Image{
		Bytes:  data,
		Layout: NewLayout(sb),
		Stream: bytesextra.NewReadWriteSeeker(data),
		closer: func() error { return nil },
	}, nil
}

// Close releases the mapping acquired by Open (or is a no-op for images
// built with FromBytes). Safe to call multiple times.
func (img *Image) Close() error {
	if img.closer == nil {
		return nil
	}
	closer := img.closer
	img.closer = nil
	return closer()
}

// WriteSuperblock re-serializes the (mutated) superblock back into block 0,
// e.g. after FreeInodesCount/FreeBlocksCount change.
func (img *Image) WriteSuperblock() {
	sb := img.Layout.Superblock()
	sb.Marshal(img.Bytes[:BlockSize])
}

// BlockBitmap returns the live, in-place byte slice backing the block
// bitmap; mutations through package bitmap's helpers are visible
// immediately in img.Bytes.
func (img *Image) BlockBitmap() []byte {
	start, end := img.Layout.BlockBitmapRange()
	return img.Bytes[start:end]
}

// InodeBitmap returns the live, in-place byte slice backing the inode
// bitmap.
func (img *Image) InodeBitmap() []byte {
	start, end := img.Layout.InodeBitmapRange()
	return img.Bytes[start:end]
}

// DataBlock returns the live byte slice of data-region-relative block rel.
func (img *Image) DataBlock(rel uint32) []byte {
	off := img.Layout.DataBlockOffset(rel)
	return img.Bytes[off : off+BlockSize]
}

// ZeroDataBlock clears a newly-allocated data block to all zero bytes.
// Every path that flips a block-bitmap bit from 0 to 1 must call this
// before linking the block into an extent map (spec.md §9 open question:
// new blocks are assumed zero-initialized, so this module guarantees it
// explicitly rather than relying on whatever garbage was on disk).
func (img *Image) ZeroDataBlock(rel uint32) {
	b := img.DataBlock(rel)
	for i := range b {
		b[i] = 0
	}
}
