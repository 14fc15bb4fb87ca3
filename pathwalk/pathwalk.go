// Package pathwalk is the path resolver spec.md §4.3 describes: it splits
// an absolute path on '/' and walks one directory level at a time,
// resolving each component to an inode number via package dirent's linear
// scan.
//
// Grounded on the teacher's driver/driver.go getObjectAtPathNoFollow walk
// (split path, descend one component at a time, fail closed the moment a
// non-directory is found mid-path), adapted to resolve bare inode numbers
// instead of the teacher's generic object-handle abstraction, since this
// format has no symlinks to chase.
package pathwalk

import (
	"strings"

	"github.com/arourke/extentfs/dirent"
	"github.com/arourke/extentfs/errfs"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
)

// RootInode is the fixed inode number of the filesystem root directory,
// permanently live from the moment mkfs formats the image (spec.md §3).
const RootInode = 0

// Resolver walks paths against a mapped image's inode table and directory
// entries.
type Resolver struct {
	img     *image.Image
	inodes  inode.Table
	dirents dirent.Manager
}

// NewResolver builds a Resolver bound to img.
func NewResolver(img *image.Image) Resolver {
	return Resolver{
		img:     img,
		inodes:  inode.NewTable(img),
		dirents: dirent.NewManager(img),
	}
}

// split breaks path into its non-empty components. Leading, trailing, and
// repeated slashes collapse away, matching the teacher's path splitting.
func split(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Lookup resolves path to an inode number and its record, starting from
// the root. An empty path or "/" resolves to the root directory itself.
// A total path length at or beyond image.MaxPathLength fails with
// ErrNameTooLong before resolution begins (spec.md §4.3); a single
// component longer than image.MaxNameLength can't exist in any directory,
// so it simply fails the linear scan below like any other missing name,
// yielding ErrNotFound rather than ErrNameTooLong.
func (r Resolver) Lookup(path string) (uint32, inode.Inode, error) {
	if len(path) >= image.MaxPathLength {
		return 0, inode.Inode{}, errfs.ErrNameTooLong.WithMessage("path %q exceeds %d bytes", path, image.MaxPathLength-1)
	}

	components := split(path)

	ino := uint32(RootInode)
	rec := r.inodes.Read(ino)

	for i, name := range components {
		if !rec.IsDir() {
			return 0, inode.Inode{}, errfs.ErrNotADirectory.WithMessage(
				"%q is not a directory", strings.Join(components[:i], "/"))
		}
		child, ok := r.dirents.Lookup(&rec, name)
		if !ok {
			return 0, inode.Inode{}, errfs.ErrNotFound.WithMessage("%q", path)
		}
		ino = child
		rec = r.inodes.Read(ino)
	}
	return ino, rec, nil
}

// LookupParent resolves the directory containing the final path component,
// returning that directory's inode number/record alongside the final
// component's name. It does not require the final component to exist,
// which callers that create entries (mkdir, create, rename's destination)
// need.
func (r Resolver) LookupParent(path string) (uint32, inode.Inode, string, error) {
	if len(path) >= image.MaxPathLength {
		return 0, inode.Inode{}, "", errfs.ErrNameTooLong.WithMessage("path %q exceeds %d bytes", path, image.MaxPathLength-1)
	}

	components := split(path)
	if len(components) == 0 {
		return 0, inode.Inode{}, "", errfs.ErrInvalidArgument.WithMessage("%q has no final component", path)
	}
	parentPath := "/" + strings.Join(components[:len(components)-1], "/")
	parentIno, parentRec, err := r.Lookup(parentPath)
	if err != nil {
		return 0, inode.Inode{}, "", err
	}
	if !parentRec.IsDir() {
		return 0, inode.Inode{}, "", errfs.ErrNotADirectory.WithMessage("%q is not a directory", parentPath)
	}
	return parentIno, parentRec, components[len(components)-1], nil
}

// WriteBack persists rec as inode number ino. Resolver.Lookup/LookupParent
// return copies; callers that mutate a record (size, mtime, dentry count,
// extents) must write it back explicitly.
func (r Resolver) WriteBack(ino uint32, rec *inode.Inode) {
	r.inodes.Write(ino, rec)
}
