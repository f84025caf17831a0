// Package namespace maps POSIX directory semantics onto the directory
// representation from the data model: a listing blob plus a sibling
// subtree holding each child directory's own listing and subtree,
// quoted-printable encoded so arbitrary byte-valued names round-trip
// through Git tree entry names exactly.
package namespace

import (
	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/staged"
)

// Dir is a handle onto one directory: its listing blob, and (lazily,
// for anything but the root) the subtree holding its children's own
// listings and subtrees.
type Dir struct {
	ls             *staged.Blob
	parentChildren *staged.Tree // nil only for the root
	qname          string       // this dir's quoted name within parentChildren
	children       *staged.Tree // this dir's own .sub tree; lazily created
}

// Root wraps the commit tree's root.ls/root.sub pair as the root
// directory.
func Root(commitRoot *staged.Tree) (*Dir, error) {
	lsObj, err := commitRoot.Get(core.EntryRootLs)
	if err != nil {
		return nil, err
	}
	ls, ok := lsObj.(*staged.Blob)
	if !ok {
		return nil, core.New(core.InvalidFormat, "namespace.Root", "root.ls is not a blob")
	}
	subObj, err := commitRoot.Get(core.EntryRootSub)
	if err != nil {
		return nil, err
	}
	sub, ok := subObj.(*staged.Tree)
	if !ok {
		return nil, core.New(core.InvalidFormat, "namespace.Root", "root.sub is not a tree")
	}
	return &Dir{ls: ls, children: sub}, nil
}

// ensureChildren returns this directory's own .sub tree, creating it on
// first use if this directory predates having any subdirectories of
// its own.
func (d *Dir) ensureChildren() (*staged.Tree, error) {
	if d.children != nil {
		return d.children, nil
	}
	name := d.qname + ".sub"
	obj, err := d.parentChildren.Get(name)
	if core.Is(err, core.NotFound) {
		obj, err = d.parentChildren.NewTree(name)
	}
	if err != nil {
		return nil, err
	}
	tree, ok := obj.(*staged.Tree)
	if !ok {
		return nil, core.New(core.InvalidFormat, "namespace.Dir.ensureChildren", name+" is not a tree")
	}
	d.children = tree
	return tree, nil
}

// OpenChild resolves an existing subdirectory entry of d into its own
// Dir handle.
func OpenChild(d *Dir, name string) (*Dir, error) {
	entry, found, err := Lookup(d, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, core.New(core.NotFound, "namespace.OpenChild", name)
	}
	if !entry.IsDir {
		return nil, core.New(core.NotDirectory, "namespace.OpenChild", name)
	}

	children, err := d.ensureChildren()
	if err != nil {
		return nil, err
	}
	q := quote(name)
	lsObj, err := children.Get(q + ".ls")
	if err != nil {
		return nil, err
	}
	ls, ok := lsObj.(*staged.Blob)
	if !ok {
		return nil, core.New(core.InvalidFormat, "namespace.OpenChild", q+".ls is not a blob")
	}

	subObj, err := children.Get(q + ".sub")
	if core.Is(err, core.NotFound) {
		subObj, err = children.NewTree(q + ".sub")
	}
	if err != nil {
		return nil, err
	}
	sub, ok := subObj.(*staged.Tree)
	if !ok {
		return nil, core.New(core.InvalidFormat, "namespace.OpenChild", q+".sub is not a tree")
	}

	return &Dir{ls: ls, parentChildren: children, qname: q, children: sub}, nil
}
