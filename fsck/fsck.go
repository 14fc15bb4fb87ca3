// Package fsck is the read-only structural invariant checker spec.md §8
// describes: it re-derives free counts and extent bookkeeping from the
// bitmaps and inode table independently of the superblock's cached
// counters, and reports every mismatch it finds rather than stopping at
// the first one.
//
// Grounded on the teacher's use of github.com/hashicorp/go-multierror
// (listed in its dependencies but otherwise unused there) to accumulate
// independent validation failures, and its gocarina/gocsv-based CSV
// reporting idiom (disks.go), adapted here to a violation report instead
// of a disk geometry table.
package fsck

import (
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"

	"github.com/arourke/extentfs/bitmap"
	"github.com/arourke/extentfs/dirent"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
	"github.com/arourke/extentfs/pathwalk"
)

// Violation is one structural inconsistency found by Check, in a shape
// gocsv can round-trip for --csv report output.
type Violation struct {
	Component string `csv:"component"`
	Detail    string `csv:"detail"`
}

// Check walks every live inode and directory entry reachable from the
// root and cross-checks them against the block and inode bitmaps. It
// returns nil if the image is internally consistent, or a
// *multierror.Error accumulating every violation found otherwise (never
// stopping at the first).
func Check(img *image.Image) error {
	var result *multierror.Error

	sb := img.Layout.Superblock()
	if !sb.IsValid() {
		result = multierror.Append(result, fmt.Errorf("superblock: invalid magic or region ordering"))
		return result.ErrorOrNil()
	}

	blockBits := bitmap.Wrap(img.BlockBitmap(), int(sb.BlocksCount))
	inodeBits := bitmap.Wrap(img.InodeBitmap(), int(sb.InodesCount))

	if got, want := uint32(int(sb.BlocksCount)-blockBits.PopCount()), sb.FreeBlocksCount; got != want {
		result = multierror.Append(result, fmt.Errorf(
			"superblock: free_blocks_count=%d but bitmap popcount implies %d", want, got))
	}
	if got, want := uint32(int(sb.InodesCount)-inodeBits.PopCount()), sb.FreeInodesCount; got != want {
		result = multierror.Append(result, fmt.Errorf(
			"superblock: free_inodes_count=%d but bitmap popcount implies %d", want, got))
	}

	root := inode.NewTable(img).Read(pathwalk.RootInode)
	if !root.IsDir() {
		result = multierror.Append(result, fmt.Errorf("inode %d: root is not a directory", pathwalk.RootInode))
		return result.ErrorOrNil()
	}

	usedBlocks := make(map[uint32]uint32) // data-region-relative block -> owning inode
	tbl := inode.NewTable(img)
	dirents := dirent.NewManager(img)
	visited := make(map[uint32]bool)

	var walk func(ino uint32, rec inode.Inode)
	walk = func(ino uint32, rec inode.Inode) {
		if visited[ino] {
			result = multierror.Append(result, fmt.Errorf("inode %d: reachable via more than one path (cycle or hard link to a directory)", ino))
			return
		}
		visited[ino] = true

		if !inodeBits.Get(int(ino)) {
			result = multierror.Append(result, fmt.Errorf("inode %d: reachable but marked free in the inode bitmap", ino))
		}
		if rec.Nlinks == 0 {
			result = multierror.Append(result, fmt.Errorf("inode %d: reachable but nlinks=0", ino))
		}

		it := inode.NewIterator(img, &rec)
		for _, e := range it.Extents() {
			for b := e.Start; b < e.Start+e.Count; b++ {
				if owner, seen := usedBlocks[b]; seen && owner != ino {
					result = multierror.Append(result, fmt.Errorf(
						"block %d: claimed by both inode %d and inode %d", b, owner, ino))
				}
				usedBlocks[b] = ino
				if int(b) >= int(sb.BlocksCount) || !blockBits.Get(int(b)) {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: extent references block %d, which is out of range or marked free", ino, b))
				}
			}
		}
		indirectRun, hasIndirect := it.IndirectRun()
		if hasIndirect {
			for b := indirectRun.Start; b < indirectRun.Start+indirectRun.Count; b++ {
				usedBlocks[b] = ino
			}
		}
		if rec.ExtentCount > inode.NumInlineExtents && !hasIndirect {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: extent_count=%d exceeds inline capacity but no indirect block is allocated", ino, rec.ExtentCount))
		}

		if !rec.IsDir() {
			return
		}
		entries := dirents.List(&rec)
		if uint32(len(entries)) != rec.DentryCount {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: dentry_count=%d but %d live directory entries found", ino, rec.DentryCount, len(entries)))
		}
		wantSize := uint64(rec.DentryCount) * image.DirentWireSize
		if rec.Size != wantSize {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: size=%d, expected dentry_count*%d=%d", ino, rec.Size, image.DirentWireSize, wantSize))
		}
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			child := tbl.Read(e.Inode)
			walk(e.Inode, child)
		}
	}
	walk(pathwalk.RootInode, root)

	return result.ErrorOrNil()
}

// Report runs Check and renders every violation found as CSV text
// (component, detail), for --csv output in cmd/fsck.
func Report(img *image.Image) (string, error) {
	err := Check(img)
	if err == nil {
		return gocsv.MarshalString([]Violation{})
	}
	merr, ok := err.(*multierror.Error)
	if !ok {
		return "", err
	}
	violations := make([]Violation, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		violations = append(violations, Violation{Component: "structure", Detail: e.Error()})
	}
	return gocsv.MarshalString(violations)
}
