// Package inode is the inode/extent accessor spec.md §4.2 describes: it
// reads and writes fixed-size inode records and iterates a file's logical
// extent sequence, transparently dispatching the first ten slots to the
// inline extent array and the rest through the single indirect block.
//
// The record layout is grounded on the teacher's unixv1.RawInode/Inode
// split (a wire struct decoded into a friendlier in-memory value), adapted
// from unixv1's 8 direct block pointers to this format's 10 inline extents
// plus one indirect slot (spec.md §3).
package inode

import (
	"encoding/binary"
	"time"

	"github.com/arourke/extentfs/image"
)

// Mode bit layout: type in the high bits (matching the traditional
// S_IFDIR/S_IFREG values the original a1fs teaching filesystem used),
// permission bits in the low 12.
const (
	ModeTypeMask = 0xF000
	ModeDir      = 0x4000
	ModeRegular  = 0x8000
	PermMask     = 0x0FFF
)

// NumInlineExtents is the number of direct extent slots stored in the
// inode record itself (spec.md §3: "Slots 0..9 are direct").
const NumInlineExtents = 10

// IndirectSlot is the index of the reserved indirect-block pointer.
const IndirectSlot = NumInlineExtents

// NumExtentSlots is the total width of the inode's extent array, inline
// slots plus the indirect pointer.
const NumExtentSlots = NumInlineExtents + 1

// Extent is a (start, count) run of consecutive data-region-relative
// blocks. Count == 0 marks an unused slot (spec.md §3).
type Extent struct {
	Start uint32
	Count uint32
}

// Empty reports whether the extent slot is unused.
func (e Extent) Empty() bool {
	return e.Count == 0
}

// Inode is the in-memory form of an inode record.
type Inode struct {
	Mode        uint32
	Nlinks      uint32
	Size        uint64
	MtimeSec    int64
	MtimeNsec   int32
	ExtentCount uint32 // number of live extents, inline + indirect
	DentryCount uint32 // meaningful only for directories
	Extents     [NumExtentSlots]Extent
}

// IsDir reports whether the inode is a directory.
func (ino *Inode) IsDir() bool {
	return ino.Mode&ModeTypeMask == ModeDir
}

// IsRegular reports whether the inode is a regular file.
func (ino *Inode) IsRegular() bool {
	return ino.Mode&ModeTypeMask == ModeRegular
}

// Mtime returns the last-modification timestamp as a time.Time.
func (ino *Inode) Mtime() time.Time {
	return time.Unix(ino.MtimeSec, int64(ino.MtimeNsec))
}

// SetMtime stores t as the last-modification timestamp.
func (ino *Inode) SetMtime(t time.Time) {
	ino.MtimeSec = t.Unix()
	ino.MtimeNsec = int32(t.Nanosecond())
}

const extentWireSize = 8 // uint32 start + uint32 count

func marshalExtent(b []byte, e Extent) {
	binary.LittleEndian.PutUint32(b[0:4], e.Start)
	binary.LittleEndian.PutUint32(b[4:8], e.Count)
}

func unmarshalExtent(b []byte) Extent {
	return Extent{
		Start: binary.LittleEndian.Uint32(b[0:4]),
		Count: binary.LittleEndian.Uint32(b[4:8]),
	}
}

// Marshal encodes ino into the first bytes of block, which must be at least
// image.InodeWireSize bytes long.
func (ino *Inode) Marshal(block []byte) {
	le := binary.LittleEndian
	le.PutUint32(block[0:4], ino.Mode)
	le.PutUint32(block[4:8], ino.Nlinks)
	le.PutUint64(block[8:16], ino.Size)
	le.PutUint64(block[16:24], uint64(ino.MtimeSec))
	le.PutUint32(block[24:28], uint32(ino.MtimeNsec))
	le.PutUint32(block[28:32], ino.ExtentCount)
	le.PutUint32(block[32:36], ino.DentryCount)
	off := 36
	for i := 0; i < NumExtentSlots; i++ {
		marshalExtent(block[off:off+extentWireSize], ino.Extents[i])
		off += extentWireSize
	}
	for ; off < image.InodeWireSize; off++ {
		block[off] = 0
	}
}

// Unmarshal decodes an inode from the first bytes of block.
func Unmarshal(block []byte) Inode {
	le := binary.LittleEndian
	ino := Inode{
		Mode:        le.Uint32(block[0:4]),
		Nlinks:      le.Uint32(block[4:8]),
		Size:        le.Uint64(block[8:16]),
		MtimeSec:    int64(le.Uint64(block[16:24])),
		MtimeNsec:   int32(le.Uint32(block[24:28])),
		ExtentCount: le.Uint32(block[28:32]),
		DentryCount: le.Uint32(block[32:36]),
	}
	off := 36
	for i := 0; i < NumExtentSlots; i++ {
		ino.Extents[i] = unmarshalExtent(block[off : off+extentWireSize])
		off += extentWireSize
	}
	return ino
}

// Table is a read/write accessor over the inode table region of a mapped
// image (spec.md §2.3: "reads an inode by number").
type Table struct {
	img *image.Image
}

// NewTable builds a Table bound to img's inode table region.
func NewTable(img *image.Image) Table {
	return Table{img: img}
}

// Read returns the inode record at index ino.
func (t Table) Read(ino uint32) Inode {
	off := t.img.Layout.InodeOffset(ino)
	return Unmarshal(t.img.Bytes[off : off+image.InodeWireSize])
}

// Write stores rec as the inode record at index ino.
func (t Table) Write(ino uint32, rec *Inode) {
	off := t.img.Layout.InodeOffset(ino)
	rec.Marshal(t.img.Bytes[off : off+image.InodeWireSize])
}

// Zero clears the inode record at index ino to all zero bytes, used when an
// inode is freed (spec.md §4.5).
func (t Table) Zero(ino uint32) {
	off := t.img.Layout.InodeOffset(ino)
	block := t.img.Bytes[off : off+image.InodeWireSize]
	for i := range block {
		block[i] = 0
	}
}
