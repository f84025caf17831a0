package namespace

import (
	"strconv"
	"strings"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/inode"
)

// Namespace ties directory resolution to the inode table that backs
// every file entry.
type Namespace struct {
	table *inode.Table
	root  *Dir
}

// New wraps root as the filesystem's namespace, backed by table for
// file entries.
func New(root *Dir, table *inode.Table) *Namespace {
	return &Namespace{table: table, root: root}
}

// Root returns the root directory.
func (ns *Namespace) Root() *Dir { return ns.root }

// Resolve splits an absolute, "/"-separated path and walks it from the
// root, opening intermediate subdirectories as needed.
func (ns *Namespace) Resolve(path string) (*Dir, error) {
	path = strings.Trim(path, "/")
	dir := ns.root
	if path == "" {
		return dir, nil
	}
	for _, part := range strings.Split(path, "/") {
		child, err := OpenChild(dir, part)
		if err != nil {
			return nil, err
		}
		dir = child
	}
	return dir, nil
}

// Create allocates a fresh inode and adds a file entry named name to d.
func (ns *Namespace) Create(d *Dir, name string) (*inode.Inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, found, err := Lookup(d, name); err != nil {
		return nil, err
	} else if found {
		return nil, core.New(core.AlreadyExists, "namespace.Create", name)
	}

	in, err := ns.table.Allocate()
	if err != nil {
		return nil, err
	}
	if err := appendLsLine(d.ls, quote(name), inodeTarget(in.Number())); err != nil {
		return nil, err
	}
	return in, nil
}

// Link adds a hardlink named name in d pointing at src's inode,
// incrementing its link count.
func (ns *Namespace) Link(d *Dir, name string, src *inode.Inode) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, found, err := Lookup(d, name); err != nil {
		return err
	} else if found {
		return core.New(core.AlreadyExists, "namespace.Link", name)
	}
	if err := appendLsLine(d.ls, quote(name), inodeTarget(src.Number())); err != nil {
		return err
	}
	return ns.table.Link(src.Number())
}

// Mkdir creates an empty subdirectory named name in d. The
// subdirectory's own .sub tree is not created here; it is created
// lazily, the first time the subdirectory is opened through OpenChild
// (for example while resolving a path) or gets a nested Mkdir.
func (ns *Namespace) Mkdir(d *Dir, name string) (*Dir, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, found, err := Lookup(d, name); err != nil {
		return nil, err
	} else if found {
		return nil, core.New(core.AlreadyExists, "namespace.Mkdir", name)
	}

	children, err := d.ensureChildren()
	if err != nil {
		return nil, err
	}
	q := quote(name)
	lsBlob, err := children.NewBlob(q + ".ls")
	if err != nil {
		return nil, err
	}
	if err := appendLsLine(d.ls, q, dirTarget); err != nil {
		return nil, err
	}
	return &Dir{ls: lsBlob, parentChildren: children, qname: q}, nil
}

// Unlink removes the file entry named name from d and drops its
// inode's link count.
func (ns *Namespace) Unlink(d *Dir, name string) error {
	entry, found, err := Lookup(d, name)
	if err != nil {
		return err
	}
	if !found {
		return core.New(core.NotFound, "namespace.Unlink", name)
	}
	if entry.IsDir {
		return core.New(core.IsDirectory, "namespace.Unlink", name)
	}
	if err := removeLsLine(d.ls, quote(name)); err != nil {
		return err
	}
	return ns.table.Unlink(entry.InodeNumber)
}

// Rmdir removes the empty subdirectory entry named name from d.
func (ns *Namespace) Rmdir(d *Dir, name string) error {
	entry, found, err := Lookup(d, name)
	if err != nil {
		return err
	}
	if !found {
		return core.New(core.NotFound, "namespace.Rmdir", name)
	}
	if !entry.IsDir {
		return core.New(core.NotDirectory, "namespace.Rmdir", name)
	}

	children, err := d.ensureChildren()
	if err != nil {
		return err
	}
	q := quote(name)
	if err := children.Delete(q + ".ls"); err != nil {
		return err
	}
	if err := children.Delete(q + ".sub"); err != nil && !core.Is(err, core.NotFound) {
		return err
	}
	return removeLsLine(d.ls, q)
}

func inodeTarget(number uint64) string {
	return "i" + strconv.FormatUint(number, 10)
}
