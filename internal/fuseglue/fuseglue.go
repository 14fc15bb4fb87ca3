// Package fuseglue adapts the filesystem core (package fs) to
// github.com/hanwen/go-fuse/v2's path-based FUSE interfaces: it is the
// only place in this module that knows about FUSE's callback shapes and
// negative-errno convention, translating package errfs's POSIX errno
// taxonomy at the boundary.
//
// This mirrors the old-style fuse_operations vtable the original a1fs
// teaching filesystem this spec is grounded on implements in C (statfs,
// getattr, readdir, mkdir, rmdir, create, unlink, rename, utimens,
// truncate, read, write), now expressed as go-fuse's pathfs.FileSystem and
// nodefs.File interfaces.
package fuseglue

import (
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/nodefs"
	"github.com/hanwen/go-fuse/v2/pathfs"

	"github.com/arourke/extentfs/errfs"
	"github.com/arourke/extentfs/fs"
)

// FileSystem adapts a *fs.Filesystem to pathfs.FileSystem.
type FileSystem struct {
	pathfs.FileSystem
	core *fs.Filesystem
}

// New wraps core for mounting with github.com/hanwen/go-fuse/v2/pathfs.
func New(core *fs.Filesystem) pathfs.FileSystem {
	return &FileSystem{FileSystem: pathfs.NewDefaultFileSystem(), core: core}
}

// OnUnmount releases the underlying image mapping once the host has torn
// the mount down, mirroring the original a1fs's fuse_operations.destroy
// callback (msync + munmap on unmount).
func (f *FileSystem) OnUnmount() {
	f.core.Close()
}

// normalize turns a pathfs-style relative name ("", "a", "a/b") into an
// absolute path the fs package expects.
func normalize(name string) string {
	return "/" + name
}

func toStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(errfs.Errno(err))
}

// GetAttr implements pathfs.FileSystem.
func (f *FileSystem) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	attr, err := f.core.GetAttr(normalize(name))
	if err != nil {
		return nil, toStatus(err)
	}
	return &fuse.Attr{
		Ino:   uint64(attr.Ino),
		Size:  attr.Size,
		Mode:  attr.Mode,
		Nlink: attr.Nlink,
		Mtime: uint64(attr.Mtime.Unix()),
	}, fuse.OK
}

// OpenDir implements pathfs.FileSystem.
func (f *FileSystem) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	entries, err := f.core.ReadDir(normalize(name))
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: dirEntryMode(e.IsDir)})
	}
	return out, fuse.OK
}

func dirEntryMode(isDir bool) uint32 {
	if isDir {
		return fuse.S_IFDIR
	}
	return fuse.S_IFREG
}

// Mkdir implements pathfs.FileSystem.
func (f *FileSystem) Mkdir(name string, mode uint32, _ *fuse.Context) fuse.Status {
	return toStatus(f.core.Mkdir(normalize(name), mode))
}

// Rmdir implements pathfs.FileSystem.
func (f *FileSystem) Rmdir(name string, _ *fuse.Context) fuse.Status {
	return toStatus(f.core.Rmdir(normalize(name)))
}

// Unlink implements pathfs.FileSystem.
func (f *FileSystem) Unlink(name string, _ *fuse.Context) fuse.Status {
	return toStatus(f.core.Unlink(normalize(name)))
}

// Rename implements pathfs.FileSystem.
func (f *FileSystem) Rename(oldName, newName string, _ *fuse.Context) fuse.Status {
	return toStatus(f.core.Rename(normalize(oldName), normalize(newName)))
}

// Truncate implements pathfs.FileSystem.
func (f *FileSystem) Truncate(name string, size uint64, _ *fuse.Context) fuse.Status {
	return toStatus(f.core.Truncate(normalize(name), size))
}

// Utimens implements pathfs.FileSystem.
func (f *FileSystem) Utimens(name string, _, mtime *time.Time, _ *fuse.Context) fuse.Status {
	t := time.Now()
	if mtime != nil {
		t = *mtime
	}
	return toStatus(f.core.Utimens(normalize(name), t))
}

// Create implements pathfs.FileSystem.
func (f *FileSystem) Create(name string, _ uint32, mode uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	if _, err := f.core.Create(normalize(name), mode); err != nil {
		return nil, toStatus(err)
	}
	return &file{core: f.core, path: normalize(name)}, fuse.OK
}

// Open implements pathfs.FileSystem.
func (f *FileSystem) Open(name string, _ uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	if _, err := f.core.GetAttr(normalize(name)); err != nil {
		return nil, toStatus(err)
	}
	return &file{core: f.core, path: normalize(name)}, fuse.OK
}

// StatFs implements pathfs.FileSystem.
func (f *FileSystem) StatFs(name string) *fuse.StatfsOut {
	s := f.core.Statfs()
	return &fuse.StatfsOut{
		Blocks:  s.TotalBlocks,
		Bfree:   s.FreeBlocks,
		Bavail:  s.FreeBlocks,
		Files:   s.TotalInodes,
		Ffree:   s.FreeInodes,
		Bsize:   s.BlockSize,
		NameLen: 251,
	}
}

// file is the nodefs.File handle Open/Create return. The core filesystem
// addresses data by path rather than an open file descriptor, so the
// handle just remembers which path to operate on.
type file struct {
	nodefs.File
	core *fs.Filesystem
	path string
}

func (fh *file) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	n, err := fh.core.Read(fh.path, dest, off)
	if err != nil {
		return nil, toStatus(err)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (fh *file) Write(data []byte, off int64) (uint32, fuse.Status) {
	n, err := fh.core.Write(fh.path, data, off)
	if err != nil {
		return uint32(n), toStatus(err)
	}
	return uint32(n), fuse.OK
}

func (fh *file) Truncate(size uint64) fuse.Status {
	return toStatus(fh.core.Truncate(fh.path, size))
}

func (fh *file) GetAttr(out *fuse.Attr) fuse.Status {
	attr, err := fh.core.GetAttr(fh.path)
	if err != nil {
		return toStatus(err)
	}
	out.Size = attr.Size
	out.Mode = attr.Mode
	out.Nlink = attr.Nlink
	out.Mtime = uint64(attr.Mtime.Unix())
	return fuse.OK
}
