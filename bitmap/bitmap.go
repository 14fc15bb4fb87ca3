// Package bitmap is the get/set/find-free primitive spec.md §4.1 describes,
// used identically for the block bitmap and the inode bitmap. It's built on
// github.com/boljen/go-bitmap, whose Bitmap type is just a []byte with
// LSB-within-byte bit ordering: bitmap.NewSlice wraps a byte slice in place,
// so operating on the live block/inode bitmap region of a mapped image
// costs no copies.
package bitmap

import "github.com/boljen/go-bitmap"

// Bits is a packed bit array with a logical length that may be smaller than
// len(bits)*8 (the final byte can have unused high bits). It wraps a slice
// in place; writes through it mutate the underlying image region directly.
type Bits struct {
	bm     bitmap.Bitmap
	length int
}

// Wrap views raw as a bit array of exactly length logical bits. raw must be
// at least ceil(length/8) bytes.
func Wrap(raw []byte, length int) Bits {
	return Bits{bm: bitmap.NewSlice(raw), length: length}
}

// Len returns the logical bit count.
func (b Bits) Len() int {
	return b.length
}

// Get returns bit i. i must be in [0, Len()).
func (b Bits) Get(i int) bool {
	return b.bm.Get(i)
}

// Set writes bit i. i must be in [0, Len()).
func (b Bits) Set(i int, v bool) {
	b.bm.Set(i, v)
}

// FindFree scans from index 0 for the lowest-index clear bit, respecting
// the logical length: bits beyond Len() in the final backing byte are never
// considered, even though they physically exist in the byte array
// (spec.md §4.1). Returns (index, true) on success, or (0, false) if every
// logical bit is set.
func (b Bits) FindFree() (int, bool) {
	for i := 0; i < b.length; i++ {
		if !b.bm.Get(i) {
			return i, true
		}
	}
	return 0, false
}

// PopCount returns the number of set bits within the logical length, used
// to recompute free_inodes_count/free_blocks_count independently of the
// superblock's cached counters (spec.md §8 testable properties).
func (b Bits) PopCount() int {
	count := 0
	for i := 0; i < b.length; i++ {
		if b.bm.Get(i) {
			count++
		}
	}
	return count
}
