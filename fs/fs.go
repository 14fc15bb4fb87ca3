// Package fs assembles the lower layers (image, bitmap, inode, dirent,
// pathwalk, alloc, fileio) into the lifecycle operations spec.md §4.10
// names: the full read/write/metadata surface a host adapter (package
// internal/fuseglue) exposes over FUSE.
//
// Grounded on the teacher's driver/driver.go and basedriver/driver.go,
// which assemble the same kind of layered primitives (block cache,
// allocator, directory walker) behind one high-level driver type; adapted
// from the teacher's generic multi-format BaseDriver to this format's
// single fixed on-disk layout.
package fs

import (
	"sync"
	"time"

	"github.com/arourke/extentfs/alloc"
	"github.com/arourke/extentfs/dirent"
	"github.com/arourke/extentfs/errfs"
	"github.com/arourke/extentfs/fileio"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/inode"
	"github.com/arourke/extentfs/pathwalk"
)

// DefaultDirMode and DefaultFileMode are conventional permission bits for
// callers of Mkdir and Create to pass. Neither method substitutes them:
// both store exactly the permission bits they are given.
const (
	DefaultDirMode  = 0o755
	DefaultFileMode = 0o644
)

// Attr is the metadata GetAttr/Create report, independent of any host
// framework's stat representation.
type Attr struct {
	Ino   uint32
	Mode  uint32
	Nlink uint32
	Size  uint64
	Mtime time.Time
}

func attrOf(ino uint32, rec *inode.Inode) Attr {
	return Attr{Ino: ino, Mode: rec.Mode, Nlink: rec.Nlinks, Size: rec.Size, Mtime: rec.Mtime()}
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Name  string
	Ino   uint32
	IsDir bool
}

// StatfsResult reports filesystem-wide capacity, the data statfs(2)
// surfaces.
type StatfsResult struct {
	BlockSize   uint32
	TotalBlocks uint64
	FreeBlocks  uint64
	TotalInodes uint64
	FreeInodes  uint64
}

// Filesystem is the extentfs core: every exported method corresponds to
// one FUSE callback. Callers (internal/fuseglue, cmd/mountfs, tests) hold a
// single Filesystem per mounted image.
type Filesystem struct {
	mu       sync.Mutex
	img      *image.Image
	inodes   inode.Table
	dirents  dirent.Manager
	resolver pathwalk.Resolver
}

// New wraps an already-formatted image.
func New(img *image.Image) *Filesystem {
	return &Filesystem{
		img:      img,
		inodes:   inode.NewTable(img),
		dirents:  dirent.NewManager(img),
		resolver: pathwalk.NewResolver(img),
	}
}

// Close releases the underlying image mapping (the destroy hook FUSE
// calls on unmount).
func (f *Filesystem) Close() error {
	return f.img.Close()
}

// Statfs reports current capacity and usage.
func (f *Filesystem) Statfs() StatfsResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb := f.img.Layout.Superblock()
	return StatfsResult{
		BlockSize:   image.BlockSize,
		TotalBlocks: f.img.Layout.TotalBlocks(),
		FreeBlocks:  uint64(sb.FreeBlocksCount),
		TotalInodes: uint64(sb.InodesCount),
		FreeInodes:  uint64(sb.FreeInodesCount),
	}
}

// GetAttr resolves path and returns its metadata.
func (f *Filesystem) GetAttr(path string) (Attr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ino, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return Attr{}, err
	}
	return attrOf(ino, &rec), nil
}

// ReadDir lists path's directory entries.
func (f *Filesystem) ReadDir(path string) ([]DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return nil, err
	}
	if !rec.IsDir() {
		return nil, errfs.ErrNotADirectory.WithMessage("%q is not a directory", path)
	}
	entries := f.dirents.List(&rec)
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		child := f.inodes.Read(e.Inode)
		out = append(out, DirEntry{Name: e.Name, Ino: e.Inode, IsDir: child.IsDir()})
	}
	return out, nil
}

func (f *Filesystem) newInode(mode uint32) (uint32, inode.Inode, error) {
	ino, err := alloc.AllocateInode(f.img)
	if err != nil {
		return 0, inode.Inode{}, err
	}
	rec := inode.Inode{Mode: mode, Nlinks: 1}
	rec.SetMtime(time.Now())
	return ino, rec, nil
}

// Mkdir creates an empty directory at path.
func (f *Filesystem) Mkdir(path string, perm uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	parentIno, parentRec, name, err := f.resolver.LookupParent(path)
	if err != nil {
		return err
	}
	if err := dirent.ValidateName(name); err != nil {
		return err
	}
	if _, exists := f.dirents.Lookup(&parentRec, name); exists {
		return errfs.ErrExists.WithMessage("%q already exists", path)
	}

	childIno, childRec, err := f.newInode(inode.ModeDir | (perm & inode.PermMask))
	if err != nil {
		return err
	}
	childRec.Nlinks = 2 // self, plus its own "."

	if err := f.dirents.Insert(&childRec, ".", childIno); err != nil {
		return err
	}
	if err := f.dirents.Insert(&childRec, "..", parentIno); err != nil {
		return err
	}
	if err := f.dirents.Insert(&parentRec, name, childIno); err != nil {
		return err
	}
	parentRec.Nlinks++ // the new child's ".." now references it

	f.resolver.WriteBack(childIno, &childRec)
	f.resolver.WriteBack(parentIno, &parentRec)
	f.img.WriteSuperblock()
	return nil
}

// Rmdir removes the empty directory at path.
func (f *Filesystem) Rmdir(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ino, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return err
	}
	if !rec.IsDir() {
		return errfs.ErrNotADirectory.WithMessage("%q is not a directory", path)
	}
	if !f.dirents.IsEmpty(&rec) {
		return errfs.ErrDirectoryNotEmpty.WithMessage("%q is not empty", path)
	}

	parentIno, parentRec, name, err := f.resolver.LookupParent(path)
	if err != nil {
		return err
	}
	if err := f.dirents.Remove(&parentRec, name); err != nil {
		return err
	}
	parentRec.Nlinks--

	alloc.FreeExtents(f.img, &rec)
	alloc.FreeInode(f.img, ino)
	f.inodes.Zero(ino)

	f.resolver.WriteBack(parentIno, &parentRec)
	f.img.WriteSuperblock()
	return nil
}

// Create makes a new, empty regular file at path.
func (f *Filesystem) Create(path string, perm uint32) (Attr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parentIno, parentRec, name, err := f.resolver.LookupParent(path)
	if err != nil {
		return Attr{}, err
	}
	if err := dirent.ValidateName(name); err != nil {
		return Attr{}, err
	}
	if _, exists := f.dirents.Lookup(&parentRec, name); exists {
		return Attr{}, errfs.ErrExists.WithMessage("%q already exists", path)
	}

	childIno, childRec, err := f.newInode(inode.ModeRegular | (perm & inode.PermMask))
	if err != nil {
		return Attr{}, err
	}
	if err := f.dirents.Insert(&parentRec, name, childIno); err != nil {
		return Attr{}, err
	}

	f.resolver.WriteBack(childIno, &childRec)
	f.resolver.WriteBack(parentIno, &parentRec)
	f.img.WriteSuperblock()
	return attrOf(childIno, &childRec), nil
}

// destroyInode frees an inode's data and its own slot, once its link count
// has dropped to zero.
func (f *Filesystem) destroyInode(ino uint32, rec *inode.Inode) {
	alloc.FreeExtents(f.img, rec)
	alloc.FreeInode(f.img, ino)
	f.inodes.Zero(ino)
}

// Unlink removes the directory entry at path and, if that was the file's
// last link, frees the inode.
func (f *Filesystem) Unlink(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ino, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return err
	}
	if rec.IsDir() {
		return errfs.ErrIsADirectory.WithMessage("%q is a directory", path)
	}

	parentIno, parentRec, name, err := f.resolver.LookupParent(path)
	if err != nil {
		return err
	}
	if err := f.dirents.Remove(&parentRec, name); err != nil {
		return err
	}

	rec.Nlinks--
	if rec.Nlinks == 0 {
		f.destroyInode(ino, &rec)
	} else {
		f.resolver.WriteBack(ino, &rec)
	}

	f.resolver.WriteBack(parentIno, &parentRec)
	f.img.WriteSuperblock()
	return nil
}

// Rename moves the entry at oldPath to newPath, overwriting newPath if it
// already exists and is of the same kind (spec.md §9: the destination
// entry is rewritten to point at the source inode rather than copying
// inode contents). Renaming a path onto itself is a no-op.
func (f *Filesystem) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if oldPath == newPath {
		return nil
	}

	srcIno, srcRec, err := f.resolver.Lookup(oldPath)
	if err != nil {
		return err
	}
	oldParentIno, oldParentRec, oldName, err := f.resolver.LookupParent(oldPath)
	if err != nil {
		return err
	}
	newParentIno, newParentRec, newName, err := f.resolver.LookupParent(newPath)
	if err != nil {
		return err
	}
	if err := dirent.ValidateName(newName); err != nil {
		return err
	}

	// A rename within the same directory mutates one inode record, not two
	// independent copies of it: route every dirent mutation through a
	// single shared *inode.Inode so the dentry-count/size changes from the
	// insert-or-rebind and the subsequent remove land on the same value
	// instead of one clobbering the other when it's written back.
	sameParent := oldParentIno == newParentIno
	newParent := &newParentRec
	if sameParent {
		newParent = &oldParentRec
	}

	if destIno, exists := f.dirents.Lookup(newParent, newName); exists {
		if destIno == srcIno {
			return nil
		}
		destRec := f.inodes.Read(destIno)
		if destRec.IsDir() != srcRec.IsDir() {
			if destRec.IsDir() {
				return errfs.ErrIsADirectory.WithMessage("%q is a directory", newPath)
			}
			return errfs.ErrNotADirectory.WithMessage("%q is not a directory", newPath)
		}
		if destRec.IsDir() && !f.dirents.IsEmpty(&destRec) {
			return errfs.ErrDirectoryNotEmpty.WithMessage("%q is not empty", newPath)
		}
		if err := f.dirents.Rebind(newParent, newName, srcIno); err != nil {
			return err
		}
		destRec.Nlinks--
		if destRec.Nlinks == 0 {
			f.destroyInode(destIno, &destRec)
		} else {
			f.resolver.WriteBack(destIno, &destRec)
		}
	} else {
		if err := f.dirents.Insert(newParent, newName, srcIno); err != nil {
			return err
		}
	}

	if err := f.dirents.Remove(&oldParentRec, oldName); err != nil {
		return err
	}

	if srcRec.IsDir() && !sameParent {
		if err := f.dirents.Rebind(&srcRec, "..", newParentIno); err != nil {
			return err
		}
		oldParentRec.Nlinks--
		newParentRec.Nlinks++
		f.resolver.WriteBack(srcIno, &srcRec)
	}

	f.resolver.WriteBack(oldParentIno, &oldParentRec)
	if !sameParent {
		f.resolver.WriteBack(newParentIno, &newParentRec)
	}
	f.img.WriteSuperblock()
	return nil
}

// Utimens sets the last-modification timestamp on path.
func (f *Filesystem) Utimens(path string, mtime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ino, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return err
	}
	rec.SetMtime(mtime)
	f.resolver.WriteBack(ino, &rec)
	return nil
}

// Truncate resizes the regular file at path.
func (f *Filesystem) Truncate(path string, size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ino, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return err
	}
	if rec.IsDir() {
		return errfs.ErrIsADirectory.WithMessage("%q is a directory", path)
	}
	if err := fileio.Truncate(f.img, &rec, size); err != nil {
		return err
	}
	f.resolver.WriteBack(ino, &rec)
	f.img.WriteSuperblock()
	return nil
}

// Read copies up to len(buf) bytes starting at offset from the regular
// file at path.
func (f *Filesystem) Read(path string, buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return 0, err
	}
	if rec.IsDir() {
		return 0, errfs.ErrIsADirectory.WithMessage("%q is a directory", path)
	}
	return fileio.Pread(f.img, &rec, buf, offset)
}

// Write writes data at offset into the regular file at path, growing it as
// needed.
func (f *Filesystem) Write(path string, data []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ino, rec, err := f.resolver.Lookup(path)
	if err != nil {
		return 0, err
	}
	if rec.IsDir() {
		return 0, errfs.ErrIsADirectory.WithMessage("%q is a directory", path)
	}
	n, err := fileio.Pwrite(f.img, &rec, data, offset)
	if err != nil {
		return n, err
	}
	rec.SetMtime(time.Now())
	f.resolver.WriteBack(ino, &rec)
	f.img.WriteSuperblock()
	return n, nil
}
