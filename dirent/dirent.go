// Package dirent is the directory-entry manager spec.md §4.4/§4.5 describes:
// fixed-size (inode number, name) records packed into a directory's data
// blocks, sixteen to a block. A free slot is inode number 0 paired with an
// empty name, so a freshly zeroed (and never-written) data block already
// reads back as sixteen free slots. This doesn't collide with the root
// directory living at inode 0: every live entry, including one naming the
// root (e.g. a "..") carries a real, non-empty name, so it's never mistaken
// for a free slot.
//
// Grounded on the teacher's drivers/common/basedriver/dirent.go (linear
// scan for a name, reuse-or-append free-slot allocation) and
// drivers/unixv1/dirents.go's fixed-record layout, adapted from unixv1's
// directory-stream abstraction to scanning extent-mapped blocks directly.
package dirent

import (
	"bytes"

	"github.com/arourke/extentfs/alloc"
	"github.com/arourke/extentfs/errfs"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
)

const entriesPerBlock = image.BlockSize / image.DirentWireSize

// Entry is one directory record: the child's inode number and its name
// within this directory.
type Entry struct {
	Inode uint32
	Name  string
}

// Empty reports whether this is a free slot.
func (e Entry) Empty() bool {
	return e.Inode == 0 && e.Name == ""
}

func marshalEntry(b []byte, e Entry) {
	for i := range b {
		b[i] = 0
	}
	putUint32(b[0:4], e.Inode)
	copy(b[4:4+image.MaxNameLength], e.Name)
}

func unmarshalEntry(b []byte) Entry {
	ino := getUint32(b[0:4])
	raw := b[4 : 4+image.MaxNameLength]
	if n := bytes.IndexByte(raw, 0); n >= 0 {
		raw = raw[:n]
	}
	return Entry{Inode: ino, Name: string(raw)}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Encode renders a directory entry as a DirentWireSize-length record,
// letting callers that build raw regions directly (package mkfs's
// formatter, package fsck's reporter) reuse the same wire format instead
// of duplicating the byte layout.
func Encode(ino uint32, name string) []byte {
	b := make([]byte, image.DirentWireSize)
	marshalEntry(b, Entry{Inode: ino, Name: name})
	return b
}

// Decode parses a DirentWireSize-length record into an Entry.
func Decode(b []byte) Entry {
	return unmarshalEntry(b)
}

// Manager reads and writes directory entries against a mapped image.
type Manager struct {
	img *image.Image
}

// NewManager builds a Manager bound to img.
func NewManager(img *image.Image) Manager {
	return Manager{img: img}
}

// ValidateName checks a path component against spec.md §4.3/§6's naming
// rules: non-empty, no '/', and short enough to fit a 252-byte record
// including its NUL terminator.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return errfs.ErrInvalidArgument.WithMessage("invalid name %q", name)
	}
	if bytes.IndexByte([]byte(name), '/') >= 0 {
		return errfs.ErrInvalidArgument.WithMessage("name %q contains '/'", name)
	}
	if len(name) >= image.MaxNameLength {
		return errfs.ErrNameTooLong.WithMessage("name %q exceeds %d bytes", name, image.MaxNameLength-1)
	}
	return nil
}

// slot is the address of one directory-entry record: a data block (data
// region relative) and the entry index within it.
type slot struct {
	block uint32
	index int
}

func (m Manager) entryBytes(s slot) []byte {
	b := m.img.DataBlock(s.block)
	off := s.index * image.DirentWireSize
	return b[off : off+image.DirentWireSize]
}

// List returns every live entry in dirIno, in on-disk order.
func (m Manager) List(dirIno *inode.Inode) []Entry {
	it := inode.NewIterator(m.img, dirIno)
	out := make([]Entry, 0, dirIno.DentryCount)
	for _, ext := range it.Extents() {
		for rel := ext.Start; rel < ext.Start+ext.Count; rel++ {
			block := m.img.DataBlock(rel)
			for i := 0; i < entriesPerBlock; i++ {
				off := i * image.DirentWireSize
				e := unmarshalEntry(block[off : off+image.DirentWireSize])
				if !e.Empty() {
					out = append(out, e)
				}
			}
		}
	}
	return out
}

// Lookup returns the inode number bound to name within dirIno.
func (m Manager) Lookup(dirIno *inode.Inode, name string) (uint32, bool) {
	it := inode.NewIterator(m.img, dirIno)
	for _, ext := range it.Extents() {
		for rel := ext.Start; rel < ext.Start+ext.Count; rel++ {
			block := m.img.DataBlock(rel)
			for i := 0; i < entriesPerBlock; i++ {
				off := i * image.DirentWireSize
				e := unmarshalEntry(block[off : off+image.DirentWireSize])
				if !e.Empty() && e.Name == name {
					return e.Inode, true
				}
			}
		}
	}
	return 0, false
}

// firstFreeSlot scans dirIno's existing data blocks for a free record,
// returning ok=false if every block is full (or the directory has none
// yet).
func (m Manager) firstFreeSlot(dirIno *inode.Inode) (slot, bool) {
	it := inode.NewIterator(m.img, dirIno)
	for _, ext := range it.Extents() {
		for rel := ext.Start; rel < ext.Start+ext.Count; rel++ {
			block := m.img.DataBlock(rel)
			for i := 0; i < entriesPerBlock; i++ {
				off := i * image.DirentWireSize
				if unmarshalEntry(block[off:off+image.DirentWireSize]).Empty() {
					return slot{block: rel, index: i}, true
				}
			}
		}
	}
	return slot{}, false
}

// Insert binds name to childIno within dirIno, reusing a free record if
// one exists in an already-allocated block, or appending a fresh data
// block (via package alloc) otherwise. Returns errfs.ErrExists if name is
// already bound.
func (m Manager) Insert(dirIno *inode.Inode, name string, childIno uint32) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, exists := m.Lookup(dirIno, name); exists {
		return errfs.ErrExists.WithMessage("%q already exists", name)
	}

	s, ok := m.firstFreeSlot(dirIno)
	if !ok {
		if _, err := alloc.AppendBlock(m.img, dirIno); err != nil {
			return err
		}
		s, ok = m.firstFreeSlot(dirIno)
		if !ok {
			return errfs.ErrIOFailed.WithMessage("newly appended directory block has no free slot")
		}
	}

	marshalEntry(m.entryBytes(s), Entry{Inode: childIno, Name: name})
	dirIno.DentryCount++
	dirIno.Size = uint64(dirIno.DentryCount) * image.DirentWireSize
	return nil
}

// Remove unbinds name from dirIno, zeroing its record. Returns
// errfs.ErrNotFound if name isn't bound in this directory.
func (m Manager) Remove(dirIno *inode.Inode, name string) error {
	it := inode.NewIterator(m.img, dirIno)
	for _, ext := range it.Extents() {
		for rel := ext.Start; rel < ext.Start+ext.Count; rel++ {
			block := m.img.DataBlock(rel)
			for i := 0; i < entriesPerBlock; i++ {
				off := i * image.DirentWireSize
				rec := block[off : off+image.DirentWireSize]
				e := unmarshalEntry(rec)
				if !e.Empty() && e.Name == name {
					marshalEntry(rec, Entry{})
					dirIno.DentryCount--
					dirIno.Size = uint64(dirIno.DentryCount) * image.DirentWireSize
					return nil
				}
			}
		}
	}
	return errfs.ErrNotFound.WithMessage("%q not found", name)
}

// Rebind overwrites the inode number bound to name, used by rename when
// the destination name already exists in the target directory (spec.md
// §9: rename rewrites the destination entry in place rather than copying
// inode contents).
func (m Manager) Rebind(dirIno *inode.Inode, name string, childIno uint32) error {
	it := inode.NewIterator(m.img, dirIno)
	for _, ext := range it.Extents() {
		for rel := ext.Start; rel < ext.Start+ext.Count; rel++ {
			block := m.img.DataBlock(rel)
			for i := 0; i < entriesPerBlock; i++ {
				off := i * image.DirentWireSize
				rec := block[off : off+image.DirentWireSize]
				e := unmarshalEntry(rec)
				if !e.Empty() && e.Name == name {
					marshalEntry(rec, Entry{Inode: childIno, Name: name})
					return nil
				}
			}
		}
	}
	return errfs.ErrNotFound.WithMessage("%q not found", name)
}

// IsEmpty reports whether dirIno has no live entries besides "." and "..".
func (m Manager) IsEmpty(dirIno *inode.Inode) bool {
	for _, e := range m.List(dirIno) {
		if e.Name != "." && e.Name != ".." {
			return false
		}
	}
	return true
}
