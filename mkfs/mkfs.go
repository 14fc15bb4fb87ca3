// Package mkfs is the image formatter spec.md §4.10/§6 describes: lay out
// the superblock, both bitmaps, the inode table, and the data region in a
// freshly allocated byte buffer, with the root directory pre-created as
// inode 0.
//
// Grounded on the teacher's disks.go (a CSV-driven table of named disk
// geometries loaded via github.com/gocarina/gocsv, used here for named
// image-size presets instead of physical disk geometries) and the
// teacher's formatter idiom of writing a fresh image sequentially through
// github.com/noxer/bytewriter rather than indexing a buffer by hand.
package mkfs

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/noxer/bytewriter"

	"github.com/arourke/extentfs/bitmap"
	"github.com/arourke/extentfs/dirent"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
)

//go:embed presets.csv
var presetsCSV []byte

// Preset is one named image-size configuration: a shorthand for mkfs's
// --preset flag so callers don't have to spell out image and inode counts
// by hand for common sizes.
type Preset struct {
	Name       string `csv:"name"`
	SizeBytes  uint64 `csv:"size_bytes"`
	InodeCount uint32 `csv:"inode_count"`
}

// Presets returns the built-in named size presets.
func Presets() ([]Preset, error) {
	var out []Preset
	if err := gocsv.UnmarshalBytes(presetsCSV, &out); err != nil {
		return nil, fmt.Errorf("mkfs: parsing presets: %w", err)
	}
	return out, nil
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Preset, bool) {
	presets, err := Presets()
	if err != nil {
		return Preset{}, false
	}
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// rootInode is the fixed inode number of the root directory: inode 0 is
// the root itself, not a reserved-but-unused slot ahead of it (spec.md §3;
// confirmed against original_source/A1b/a1fs_artur.h's A1FS_ROOT_INO 0).
const rootInode = 0

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// Format builds a fresh, formatted image of imageSize bytes with room for
// inodeCount inodes, with the root directory already created. imageSize
// must be a positive multiple of image.BlockSize large enough to hold the
// superblock, both bitmaps, the inode table, and at least one data block.
func Format(imageSize uint64, inodeCount uint32) ([]byte, error) {
	if imageSize == 0 || imageSize%image.BlockSize != 0 {
		return nil, fmt.Errorf("mkfs: image size %d is not a positive multiple of %d", imageSize, image.BlockSize)
	}
	if inodeCount < 1 {
		return nil, fmt.Errorf("mkfs: need at least 1 inode (the root directory), got %d", inodeCount)
	}

	totalBlocks := imageSize / image.BlockSize
	bitsPerBlock := uint64(image.BlockSize * 8)

	blockBitmapBlocks := ceilDiv(totalBlocks, bitsPerBlock)
	inodeBitmapBlocks := ceilDiv(uint64(inodeCount), bitsPerBlock)
	perInodeBlock := uint64(image.BlockSize / image.InodeWireSize)
	inodeTableBlocks := ceilDiv(uint64(inodeCount), perInodeBlock)

	blockBitmapStart := uint64(1)
	inodeBitmapStart := blockBitmapStart + blockBitmapBlocks
	inodeTableStart := inodeBitmapStart + inodeBitmapBlocks
	dataRegionStart := inodeTableStart + inodeTableBlocks

	if dataRegionStart+1 > totalBlocks {
		return nil, fmt.Errorf("mkfs: image too small for %d inodes: need %d metadata blocks plus at least 1 data block, have %d total",
			inodeCount, dataRegionStart, totalBlocks)
	}

	sb := image.Superblock{
		Magic:             image.Magic,
		ImageSize:         imageSize,
		InodesCount:       inodeCount,
		BlocksCount:       uint32(totalBlocks - dataRegionStart),
		FreeInodesCount:   inodeCount - 1, // inode 0 is the root, permanently live
		FreeBlocksCount:   uint32(totalBlocks-dataRegionStart) - 1, // minus root dir's block
		BlockBitmapStart:  uint32(blockBitmapStart),
		InodeBitmapStart:  uint32(inodeBitmapStart),
		InodeTableStart:   uint32(inodeTableStart),
		DataRegionStart:   uint32(dataRegionStart),
		BlockBitmapBlocks: uint32(blockBitmapBlocks),
		InodeBitmapBlocks: uint32(inodeBitmapBlocks),
	}

	sbBlock := make([]byte, image.BlockSize)
	sb.Marshal(sbBlock)

	blockBitmapRaw := make([]byte, blockBitmapBlocks*image.BlockSize)
	bbits := bitmap.Wrap(blockBitmapRaw, int(totalBlocks-dataRegionStart))
	bbits.Set(0, true) // data-region block 0 holds the root directory's entries

	inodeBitmapRaw := make([]byte, inodeBitmapBlocks*image.BlockSize)
	ibits := bitmap.Wrap(inodeBitmapRaw, int(inodeCount))
	ibits.Set(rootInode, true)

	inodeTableRaw := make([]byte, inodeTableBlocks*image.BlockSize)
	root := inode.Inode{
		Mode:        inode.ModeDir | 0o755,
		Nlinks:      2,
		DentryCount: 2,
		ExtentCount: 1,
		Size:        2 * image.DirentWireSize,
	}
	root.Extents[0] = inode.Extent{Start: 0, Count: 1}
	root.SetMtime(time.Now())
	rootOff := uint64(rootInode) * image.InodeWireSize
	root.Marshal(inodeTableRaw[rootOff : rootOff+image.InodeWireSize])

	dataRegionRaw := make([]byte, (totalBlocks-dataRegionStart)*image.BlockSize)
	copy(dataRegionRaw[0*image.DirentWireSize:], dirent.Encode(rootInode, "."))
	copy(dataRegionRaw[1*image.DirentWireSize:], dirent.Encode(rootInode, ".."))

	buf := make([]byte, imageSize)
	bw := bytewriter.New(buf)
	for _, region := range [][]byte{sbBlock, blockBitmapRaw, inodeBitmapRaw, inodeTableRaw, dataRegionRaw} {
		if _, err := bw.Write(region); err != nil {
			return nil, fmt.Errorf("mkfs: assembling image: %w", err)
		}
	}
	return buf, nil
}
