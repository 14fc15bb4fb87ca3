// Package alloc is the block allocator spec.md §4.6 describes: given an
// inode whose file needs one more data block, it finds a free bit in the
// block bitmap and links it into the inode's extent map, preferring to
// extend the inode's last extent in place over starting a new one.
//
// Grounded on the teacher's drivers/common/allocatormap.go (bitmap-driven
// "find free, mark used, update free count" sequence), adapted from whole
// clusters to the inline/indirect extent slots package inode exposes.
package alloc

import (
	"github.com/arourke/extentfs/bitmap"
	"github.com/arourke/extentfs/errfs"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
)

func blockBits(img *image.Image) bitmap.Bits {
	sb := img.Layout.Superblock()
	return bitmap.Wrap(img.BlockBitmap(), int(sb.BlocksCount))
}

// AppendBlock allocates one more data block for ino and links it into the
// inode's extent map, returning the logical extent-slot index that now
// describes it (an inline index < inode.NumInlineExtents, or an indirect
// descriptor index offset by inode.NumInlineExtents).
//
// Per spec.md §4.6: if the block-bitmap bit immediately following the
// inode's current tail extent is free, the tail extent's count is
// incremented in place instead of opening a new extent. Otherwise a new
// extent is opened at the lowest free bit, in the first free inline slot,
// or, once all ten are in use, in the indirect block (lazily allocating
// that block, as a separate data block, on its first use). Modifications
// already committed before a failure (e.g. an indirect block allocated but
// its first descriptor still unset) are not rolled back.
func AppendBlock(img *image.Image, ino *inode.Inode) (int, error) {
	bits := blockBits(img)
	sb := img.Layout.Superblock()
	it := inode.NewIterator(img, ino)

	tailIdx, tail, hasTail := it.TailSlot()

	freeBit, ok := bits.FindFree()
	if !ok {
		return 0, errfs.ErrNoSpace
	}

	if hasTail {
		if next := tail.Start + tail.Count; int(next) < bits.Len() && !bits.Get(int(next)) {
			commitBlock(img, bits, sb, next)
			grown := inode.Extent{Start: tail.Start, Count: tail.Count + 1}
			it.SetSlot(tailIdx, grown)
			return tailIdx, nil
		}
	}

	newExtent := inode.Extent{Start: uint32(freeBit), Count: 1}

	if idx, ok := it.FirstFreeInlineSlot(); ok {
		commitBlock(img, bits, sb, uint32(freeBit))
		it.SetInlineSlot(idx, newExtent)
		ino.ExtentCount++
		return idx, nil
	}

	if _, has := it.IndirectRun(); !has {
		if err := allocateIndirectBlock(img, bits, sb, it); err != nil {
			return 0, err
		}
		// The indirect block took freeBit; the new extent needs the next one.
		if freeBit, ok = bits.FindFree(); !ok {
			return 0, errfs.ErrNoSpace
		}
		newExtent.Start = uint32(freeBit)
	}

	idx, ok := it.FirstFreeIndirectSlot()
	if !ok {
		return 0, errfs.ErrNoSpace
	}
	commitBlock(img, bits, sb, uint32(freeBit))
	it.SetIndirectDescriptor(idx, newExtent)
	ino.ExtentCount++
	return inode.NumInlineExtents + idx, nil
}

// allocateIndirectBlock allocates and zeroes the single block that holds
// the inode's indirect extent-descriptor array, linking it via slot 10.
// This consumes one block bit but does not itself count as a live extent,
// so ino.ExtentCount is left untouched.
func allocateIndirectBlock(img *image.Image, bits bitmap.Bits, sb *image.Superblock, it inode.Iterator) error {
	freeBit, ok := bits.FindFree()
	if !ok {
		return errfs.ErrNoSpace
	}
	commitBlock(img, bits, sb, uint32(freeBit))
	it.SetIndirectSlot(inode.Extent{Start: uint32(freeBit), Count: 1})
	return nil
}

// commitBlock marks bit as used, zeroes the block it addresses, and
// decrements the cached free-block counter. The superblock is not
// re-marshaled here; callers persist it once per operation via
// img.WriteSuperblock after all allocation for that operation is done.
func commitBlock(img *image.Image, bits bitmap.Bits, sb *image.Superblock, bit uint32) {
	bits.Set(int(bit), true)
	sb.FreeBlocksCount--
	img.ZeroDataBlock(bit)
}

// FreeExtents releases every data block (and, if allocated, the indirect
// block itself) described by ino back to the block bitmap. Used when an
// inode is destroyed (unlink of the last link, rmdir, or a rename that
// drops the destination's last link) per spec.md §4.5.
func FreeExtents(img *image.Image, ino *inode.Inode) {
	bits := blockBits(img)
	sb := img.Layout.Superblock()
	it := inode.NewIterator(img, ino)

	for _, e := range it.Extents() {
		for b := e.Start; b < e.Start+e.Count; b++ {
			if bits.Get(int(b)) {
				bits.Set(int(b), false)
				sb.FreeBlocksCount++
			}
		}
	}
	if run, has := it.IndirectRun(); has {
		for b := run.Start; b < run.Start+run.Count; b++ {
			if bits.Get(int(b)) {
				bits.Set(int(b), false)
				sb.FreeBlocksCount++
			}
		}
	}

	ino.ExtentCount = 0
	ino.Extents = [inode.NumExtentSlots]inode.Extent{}
}

// AllocateInode finds a free bit in the inode bitmap, marks it used,
// decrements the free-inode counter, and returns the inode number (bit
// index). Inode 0 is never handed out here: mkfs marks it used for the
// root directory up front, so FindFree never returns it.
func AllocateInode(img *image.Image) (uint32, error) {
	sb := img.Layout.Superblock()
	bits := bitmap.Wrap(img.InodeBitmap(), int(sb.InodesCount))
	freeBit, ok := bits.FindFree()
	if !ok {
		return 0, errfs.ErrNoSpace
	}
	bits.Set(freeBit, true)
	sb.FreeInodesCount--
	return uint32(freeBit), nil
}

// FreeInode clears ino's bit in the inode bitmap and increments the
// free-inode counter. The caller is responsible for zeroing the inode
// record itself (inode.Table.Zero).
func FreeInode(img *image.Image, ino uint32) {
	sb := img.Layout.Superblock()
	bits := bitmap.Wrap(img.InodeBitmap(), int(sb.InodesCount))
	if bits.Get(int(ino)) {
		bits.Set(int(ino), false)
		sb.FreeInodesCount++
	}
}
