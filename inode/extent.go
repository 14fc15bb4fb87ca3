package inode

import "github.com/arourke/extentfs/image"

// descriptorsPerBlock is how many 8-byte extent descriptors fit in one
// 4096-byte indirect block.
const descriptorsPerBlock = image.BlockSize / extentWireSize

// Iterator walks the logical extent sequence of an inode: positions 0..9
// come from the inline array, positions 10+ come from the indirect block
// addressed by slot 10 (spec.md §4.2). It hides that inline/indirect
// boundary from every caller (path resolver, dirent manager, allocator,
// file I/O) behind a single materialized, ordered slice of live extents.
type Iterator struct {
	img *image.Image
	ino *Inode
}

// NewIterator builds an Iterator over ino's extents, using img to read the
// indirect block when needed.
func NewIterator(img *image.Image, ino *Inode) Iterator {
	return Iterator{img: img, ino: ino}
}

// indirectDescriptor returns the idx-th extent descriptor stored in the
// indirect run (addressed by ino.Extents[IndirectSlot]).
func (it Iterator) indirectDescriptor(run Extent, idx int) Extent {
	base := it.img.Layout.DataBlockOffset(run.Start)
	off := base + int64(idx)*extentWireSize
	return unmarshalExtent(it.img.Bytes[off : off+extentWireSize])
}

// setIndirectDescriptor overwrites the idx-th descriptor in the indirect
// run.
func (it Iterator) setIndirectDescriptor(run Extent, idx int, e Extent) {
	base := it.img.Layout.DataBlockOffset(run.Start)
	off := base + int64(idx)*extentWireSize
	marshalExtent(it.img.Bytes[off:off+extentWireSize], e)
}

// IndirectCapacity returns how many extent descriptors the currently
// allocated indirect run can hold (0 if no indirect block is allocated
// yet).
func (it Iterator) IndirectCapacity() int {
	run := it.ino.Extents[IndirectSlot]
	if run.Empty() {
		return 0
	}
	return int(run.Count) * descriptorsPerBlock
}

// Extents materializes the inode's live extent sequence in logical order.
// It tolerates holes in the inline array (an inline slot can be empty
// before the tail of the array is exhausted, left behind by allocation
// patterns) by scanning every inline slot but only counting the
// non-empty ones, stopping once ino.ExtentCount live extents have been
// produced, exactly as spec.md §4.2 specifies.
func (it Iterator) Extents() []Extent {
	out := make([]Extent, 0, it.ino.ExtentCount)
	produced := uint32(0)

	for i := 0; i < NumInlineExtents && produced < it.ino.ExtentCount; i++ {
		e := it.ino.Extents[i]
		if e.Empty() {
			continue
		}
		out = append(out, e)
		produced++
	}

	if produced >= it.ino.ExtentCount {
		return out
	}

	run := it.ino.Extents[IndirectSlot]
	if run.Empty() {
		return out
	}
	capacity := int(run.Count) * descriptorsPerBlock
	for i := 0; i < capacity && produced < it.ino.ExtentCount; i++ {
		e := it.indirectDescriptor(run, i)
		if e.Empty() {
			continue
		}
		out = append(out, e)
		produced++
	}
	return out
}

// TailSlot locates the logical slot of the last live extent in the
// sequence Extents() would produce: for index < NumInlineExtents that's an
// inline array index, for index >= NumInlineExtents it's
// NumInlineExtents + (descriptor index within the indirect run). The
// allocator uses this to decide whether the next free bitmap bit continues
// the tail extent in place (spec.md §4.6).
func (it Iterator) TailSlot() (index int, ext Extent, ok bool) {
	produced := uint32(0)
	for i := 0; i < NumInlineExtents; i++ {
		e := it.ino.Extents[i]
		if e.Empty() {
			continue
		}
		produced++
		if produced == it.ino.ExtentCount {
			return i, e, true
		}
	}

	run := it.ino.Extents[IndirectSlot]
	if run.Empty() {
		return 0, Extent{}, false
	}
	capacity := int(run.Count) * descriptorsPerBlock
	for i := 0; i < capacity; i++ {
		e := it.indirectDescriptor(run, i)
		if e.Empty() {
			continue
		}
		produced++
		if produced == it.ino.ExtentCount {
			return NumInlineExtents + i, e, true
		}
	}
	return 0, Extent{}, false
}

// FirstFreeInlineSlot returns the lowest-index unused inline extent slot.
func (it Iterator) FirstFreeInlineSlot() (int, bool) {
	for i := 0; i < NumInlineExtents; i++ {
		if it.ino.Extents[i].Empty() {
			return i, true
		}
	}
	return 0, false
}

// IndirectRun returns the inode's indirect-block pointer (slot 10) and
// whether it has been allocated yet.
func (it Iterator) IndirectRun() (Extent, bool) {
	run := it.ino.Extents[IndirectSlot]
	return run, !run.Empty()
}

// FirstFreeIndirectSlot returns the lowest-index unused descriptor slot
// within the currently allocated indirect run.
func (it Iterator) FirstFreeIndirectSlot() (int, bool) {
	run := it.ino.Extents[IndirectSlot]
	if run.Empty() {
		return 0, false
	}
	capacity := int(run.Count) * descriptorsPerBlock
	for i := 0; i < capacity; i++ {
		if it.indirectDescriptor(run, i).Empty() {
			return i, true
		}
	}
	return 0, false
}

// SetInlineSlot overwrites inline extent slot idx (idx < NumInlineExtents).
func (it Iterator) SetInlineSlot(idx int, e Extent) {
	it.ino.Extents[idx] = e
}

// SetIndirectSlot overwrites the indirect-block pointer itself (slot 10).
func (it Iterator) SetIndirectSlot(e Extent) {
	it.ino.Extents[IndirectSlot] = e
}

// SetIndirectDescriptor overwrites descriptor idx within the indirect run.
func (it Iterator) SetIndirectDescriptor(idx int, e Extent) {
	run := it.ino.Extents[IndirectSlot]
	it.setIndirectDescriptor(run, idx, e)
}

// IndirectDescriptor returns descriptor idx within the indirect run.
func (it Iterator) IndirectDescriptor(idx int) Extent {
	run := it.ino.Extents[IndirectSlot]
	return it.indirectDescriptor(run, idx)
}

// SetSlot writes ext to the logical extent slot index (inline if
// index < NumInlineExtents, an indirect descriptor otherwise).
func (it Iterator) SetSlot(index int, ext Extent) {
	if index < NumInlineExtents {
		it.SetInlineSlot(index, ext)
		return
	}
	it.SetIndirectDescriptor(index-NumInlineExtents, ext)
}

// TotalBlocks returns the number of data blocks described by the inode's
// live extents (its allocated capacity, which may exceed Size since
// truncate-down doesn't free trailing blocks per spec.md §4.9).
func (it Iterator) TotalBlocks() uint64 {
	var total uint64
	for _, e := range it.Extents() {
		total += uint64(e.Count)
	}
	return total
}
