// Package image computes the byte ranges of a mounted filesystem image from
// its superblock and owns the memory region the rest of the core operates
// on. It is the "leaves first" component spec.md §2.1 calls the image
// region map: every other package consumes the offsets it produces instead
// of recomputing them.
package image

import "encoding/binary"

// BlockSize is the fixed, non-negotiable unit of allocation (spec.md §1).
const BlockSize = 4096

// Magic identifies a formatted extentfs image. It's the same 64-bit value
// the CSC369 a1fs teaching filesystem this spec descends from used, kept
// here as a literal constant rather than re-derived.
const Magic uint64 = 0xC5C369A1C5C369A1

// superblockWireSize is the number of bytes the superblock occupies on
// disk; the remainder of block 0 is reserved padding.
const superblockWireSize = 8 + 8 + 4*10

// Superblock is the fixed-at-format-time metadata block (spec.md §3). Only
// FreeInodesCount and FreeBlocksCount are mutated after format.
type Superblock struct {
	Magic           uint64
	ImageSize       uint64 // total image size, in bytes
	InodesCount     uint32
	BlocksCount     uint32 // total data blocks
	FreeInodesCount uint32
	FreeBlocksCount uint32

	// Block numbers, counted from block 0 of the image (the superblock).
	BlockBitmapStart uint32
	InodeBitmapStart uint32
	InodeTableStart  uint32
	DataRegionStart  uint32

	// BlockBitmapBlocks and InodeBitmapBlocks record how many image blocks
	// each bitmap spans, so a bitmap larger than one block (more than
	// 32768 blocks/inodes) is representable; spec.md §3 names this field
	// explicitly.
	BlockBitmapBlocks uint32
	InodeBitmapBlocks uint32
}

// Marshal encodes the superblock into the first superblockWireSize bytes of
// block (which must be at least BlockSize long); the rest of the block is
// left untouched (callers zero it first).
func (sb *Superblock) Marshal(block []byte) {
	if len(block) < superblockWireSize {
		panic("image: block too small for superblock")
	}
	le := binary.LittleEndian
	le.PutUint64(block[0:8], sb.Magic)
	le.PutUint64(block[8:16], sb.ImageSize)
	le.PutUint32(block[16:20], sb.InodesCount)
	le.PutUint32(block[20:24], sb.BlocksCount)
	le.PutUint32(block[24:28], sb.FreeInodesCount)
	le.PutUint32(block[28:32], sb.FreeBlocksCount)
	le.PutUint32(block[32:36], sb.BlockBitmapStart)
	le.PutUint32(block[36:40], sb.InodeBitmapStart)
	le.PutUint32(block[40:44], sb.InodeTableStart)
	le.PutUint32(block[44:48], sb.DataRegionStart)
	le.PutUint32(block[48:52], sb.BlockBitmapBlocks)
	le.PutUint32(block[52:56], sb.InodeBitmapBlocks)
}

// Unmarshal decodes a superblock from the first bytes of block.
func Unmarshal(block []byte) Superblock {
	if len(block) < superblockWireSize {
		panic("image: block too small for superblock")
	}
	le := binary.LittleEndian
	return Superblock{
		Magic:             le.Uint64(block[0:8]),
		ImageSize:         le.Uint64(block[8:16]),
		InodesCount:       le.Uint32(block[16:20]),
		BlocksCount:       le.Uint32(block[20:24]),
		FreeInodesCount:   le.Uint32(block[24:28]),
		FreeBlocksCount:   le.Uint32(block[28:32]),
		BlockBitmapStart:  le.Uint32(block[32:36]),
		InodeBitmapStart:  le.Uint32(block[36:40]),
		InodeTableStart:   le.Uint32(block[40:44]),
		DataRegionStart:   le.Uint32(block[44:48]),
		BlockBitmapBlocks: le.Uint32(block[48:52]),
		InodeBitmapBlocks: le.Uint32(block[52:56]),
	}
}

// IsValid reports whether the superblock carries the expected magic and a
// structurally sane layout.
func (sb *Superblock) IsValid() bool {
	if sb.Magic != Magic {
		return false
	}
	if sb.DataRegionStart <= sb.InodeTableStart {
		return false
	}
	if sb.InodeTableStart <= sb.InodeBitmapStart {
		return false
	}
	if sb.InodeBitmapStart <= sb.BlockBitmapStart {
		return false
	}
	return true
}
