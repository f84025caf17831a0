// Package fsops is the dispatcher contract a FUSE or 9P shim calls
// into: path-addressed lookup/getattr/readdir/read/write/truncate/
// create/mkdir/unlink/rmdir/link/rename operations, each run under the
// session's single process-wide lock for its entire duration, matching
// nicolagi/muscle's dispatcher-over-core-lock shape for the same kind
// of content-addressed filesystem.
package fsops

import (
	"sort"
	"strings"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/inode"
	"github.com/grepro/spaghettifs/namespace"
	"github.com/grepro/spaghettifs/session"
)

// Attr is the subset of inode metadata the dispatcher contract
// surfaces: {mode, nlink, size}; ctime/mtime/atime are always "now" at
// the call site, since nothing here tracks timestamps per inode.
type Attr struct {
	Mode  uint32
	Nlink uint64
	Size  int64
	IsDir bool
}

// rootAttr is what every directory reports: this build does not track
// per-directory mode or link count, since directories have no inode of
// their own in the data model.
var rootAttr = Attr{Mode: 0o040755, Nlink: 2, IsDir: true}

// FS is the dispatcher-facing facade over an open Session.
type FS struct {
	sess *session.Session
}

// New wraps sess as a dispatcher contract implementation.
func New(sess *session.Session) *FS { return &FS{sess: sess} }

func clean(path string) string { return strings.Trim(path, "/") }

// split separates path into its parent directory path and final
// component, both relative to the root.
func split(path string) (dirPath, name string) {
	p := clean(path)
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func (fs *FS) resolveParent(path string) (*namespace.Dir, string, error) {
	dirPath, name := split(path)
	if name == "" {
		return nil, "", core.New(core.InvalidName, "fsops.resolveParent", "path has no final component")
	}
	dir, err := fs.sess.Namespace().Resolve(dirPath)
	if err != nil {
		return nil, "", err
	}
	return dir, name, nil
}

func (fs *FS) attrForInode(number uint64) (Attr, error) {
	in, err := fs.sess.Table().Get(number)
	if err != nil {
		return Attr{}, err
	}
	mode, err := in.Mode()
	if err != nil {
		return Attr{}, err
	}
	nlink, err := in.Nlink()
	if err != nil {
		return Attr{}, err
	}
	size, err := in.Size()
	if err != nil {
		return Attr{}, err
	}
	return Attr{Mode: mode, Nlink: nlink, Size: size}, nil
}

// Getattr resolves path and returns its metadata.
func (fs *FS) Getattr(path string) (Attr, error) {
	fs.sess.Lock()
	defer fs.sess.Unlock()
	return fs.getattrLocked(path)
}

func (fs *FS) getattrLocked(path string) (Attr, error) {
	if clean(path) == "" {
		return rootAttr, nil
	}
	dirPath, name := split(path)
	dir, err := fs.sess.Namespace().Resolve(dirPath)
	if err != nil {
		return Attr{}, err
	}
	entry, found, err := namespace.Lookup(dir, name)
	if err != nil {
		return Attr{}, err
	}
	if !found {
		return Attr{}, core.New(core.NotFound, "fsops.Getattr", path)
	}
	if entry.IsDir {
		return rootAttr, nil
	}
	return fs.attrForInode(entry.InodeNumber)
}

// Lookup resolves path, returning the same attributes as Getattr.
func (fs *FS) Lookup(path string) (Attr, error) {
	return fs.Getattr(path)
}

// Readdir lists the names of every entry directly inside path.
func (fs *FS) Readdir(path string) ([]string, error) {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	dir, err := fs.sess.Namespace().Resolve(clean(path))
	if err != nil {
		return nil, err
	}
	entries, err := namespace.List(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (fs *FS) openFile(path string) (*inode.Inode, error) {
	dirPath, name := split(path)
	dir, err := fs.sess.Namespace().Resolve(dirPath)
	if err != nil {
		return nil, err
	}
	entry, found, err := namespace.Lookup(dir, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, core.New(core.NotFound, "fsops.openFile", path)
	}
	if entry.IsDir {
		return nil, core.New(core.IsDirectory, "fsops.openFile", path)
	}
	return fs.sess.Table().Get(entry.InodeNumber)
}

// Read returns up to size bytes of path starting at offset.
func (fs *FS) Read(path string, size int, offset int64) ([]byte, error) {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	in, err := fs.openFile(path)
	if err != nil {
		return nil, err
	}
	return in.Read(offset, int64(size))
}

// Write overwrites path's contents with data starting at offset.
func (fs *FS) Write(path string, data []byte, offset int64) (int, error) {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	in, err := fs.openFile(path)
	if err != nil {
		return 0, err
	}
	if err := in.Write(data, offset); err != nil {
		return 0, err
	}
	if err := fs.sess.RecordWrite(len(data)); err != nil {
		return 0, err
	}
	if err := fs.sess.AutocommitIfEnabled(); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Truncate resizes path to length.
func (fs *FS) Truncate(path string, length int64) error {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	in, err := fs.openFile(path)
	if err != nil {
		return err
	}
	if err := in.Truncate(length); err != nil {
		return err
	}
	return fs.sess.AutocommitIfEnabled()
}

// regularFileType is the S_IFREG bits every file created through
// Create carries, regardless of what type bits mode may have set.
const regularFileType = 0o100000

// Create allocates a new file named by path's final component, with
// the permission bits of mode.
func (fs *FS) Create(path string, mode uint32) error {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	dir, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	in, err := fs.sess.Namespace().Create(dir, name)
	if err != nil {
		return err
	}
	if err := in.SetMode(regularFileType | (mode & 0o7777)); err != nil {
		return err
	}
	return fs.sess.AutocommitIfEnabled()
}

// Mkdir creates a new, empty subdirectory named by path's final
// component.
func (fs *FS) Mkdir(path string, mode uint32) error {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	dir, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if _, err := fs.sess.Namespace().Mkdir(dir, name); err != nil {
		return err
	}
	return fs.sess.AutocommitIfEnabled()
}

// Unlink removes the file entry named by path.
func (fs *FS) Unlink(path string) error {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	dir, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if err := fs.sess.Namespace().Unlink(dir, name); err != nil {
		return err
	}
	return fs.sess.AutocommitIfEnabled()
}

// Rmdir removes the empty subdirectory entry named by path.
func (fs *FS) Rmdir(path string) error {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	dir, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if err := fs.sess.Namespace().Rmdir(dir, name); err != nil {
		return err
	}
	return fs.sess.AutocommitIfEnabled()
}

// Link adds target as a new hardlinked name for the same inode as
// source.
func (fs *FS) Link(target, source string) error {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	in, err := fs.openFile(source)
	if err != nil {
		return err
	}
	dir, name, err := fs.resolveParent(target)
	if err != nil {
		return err
	}
	if err := fs.sess.Namespace().Link(dir, name, in); err != nil {
		return err
	}
	return fs.sess.AutocommitIfEnabled()
}

// Rename implements rename as (link; unlink) under the session lock,
// per the reference implementation's own behavior: directory renames
// are not supported and report NotSupported (EPERM to a dispatcher).
func (fs *FS) Rename(oldPath, newPath string) error {
	fs.sess.Lock()
	defer fs.sess.Unlock()

	srcDir, srcName, err := fs.resolveParent(oldPath)
	if err != nil {
		return err
	}
	entry, found, err := namespace.Lookup(srcDir, srcName)
	if err != nil {
		return err
	}
	if !found {
		return core.New(core.NotFound, "fsops.Rename", oldPath)
	}
	if entry.IsDir {
		return core.New(core.NotSupported, "fsops.Rename", "directory rename")
	}

	in, err := fs.sess.Table().Get(entry.InodeNumber)
	if err != nil {
		return err
	}
	dstDir, dstName, err := fs.resolveParent(newPath)
	if err != nil {
		return err
	}
	if err := fs.sess.Namespace().Link(dstDir, dstName, in); err != nil {
		return err
	}
	if err := fs.sess.Namespace().Unlink(srcDir, srcName); err != nil {
		return err
	}
	return fs.sess.AutocommitIfEnabled()
}
