package inode

import (
	"strconv"
	"weak"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/manifest"
	"github.com/grepro/spaghettifs/staged"
	"github.com/grepro/spaghettifs/treetree"
)

// Table is the InodeTable: a TreeTree of inode subtrees keyed by the
// inode number's digit string, decoupled from the directory namespace
// so that a file can be referenced by more than one directory entry.
//
// cache is weakly held so that two lookups of the same number while an
// Inode is still reachable elsewhere in the program return the same
// instance — required for nlink bookkeeping to stay consistent — while
// letting an Inode nobody holds onto be collected rather than pinned
// for the life of the session.
type Table struct {
	tt       *treetree.TreeTree
	features *staged.Blob
	cache    map[uint64]weak.Pointer[Inode]
}

// OpenTable wraps the "inodes" subtree and the root "features" blob
// (needed to allocate fresh inode numbers) as an InodeTable.
func OpenTable(inodes *staged.Tree, features *staged.Blob) *Table {
	return &Table{
		tt:       treetree.New(inodes, core.InodeTablePrefix),
		features: features,
		cache:    make(map[uint64]weak.Pointer[Inode]),
	}
}

func (t *Table) remember(number uint64, in *Inode) {
	t.cache[number] = weak.Make(in)
}

func (t *Table) cached(number uint64) *Inode {
	p, ok := t.cache[number]
	if !ok {
		return nil
	}
	v := p.Value()
	if v == nil {
		delete(t.cache, number)
	}
	return v
}

// Allocate reads and bumps next_inode_number in the feature manifest,
// creates the new inode's subtree, and stamps it with default
// metadata.
func (t *Table) Allocate() (*Inode, error) {
	m, err := manifest.Load(t.features)
	if err != nil {
		return nil, err
	}
	number := m.NextInodeNumber
	m.NextInodeNumber = number + 1
	if err := manifest.Store(t.features, m); err != nil {
		return nil, err
	}

	subtree, err := t.tt.NewTree(strconv.FormatUint(number, 10))
	if err != nil {
		return nil, err
	}
	in, err := Create(subtree, number)
	if err != nil {
		return nil, err
	}
	t.remember(number, in)
	return in, nil
}

// Get resolves an inode by number, returning the live cached instance
// if one still exists.
func (t *Table) Get(number uint64) (*Inode, error) {
	if in := t.cached(number); in != nil {
		return in, nil
	}
	obj, err := t.tt.Get(strconv.FormatUint(number, 10))
	if err != nil {
		return nil, err
	}
	subtree, ok := obj.(*staged.Tree)
	if !ok {
		return nil, core.New(core.InvalidFormat, "inode.Table.Get", "inode entry is not a tree")
	}
	in, err := Open(subtree, number)
	if err != nil {
		return nil, err
	}
	t.remember(number, in)
	return in, nil
}

// Unlink decrements the referenced inode's link count, and if it
// drains to zero, drops the whole inode subtree from the table and
// evicts it from the cache.
func (t *Table) Unlink(number uint64) error {
	in, err := t.Get(number)
	if err != nil {
		return err
	}
	drained, err := in.Unlink()
	if err != nil {
		return err
	}
	if drained {
		if err := t.tt.Delete(strconv.FormatUint(number, 10)); err != nil {
			return err
		}
		delete(t.cache, number)
	}
	return nil
}

// Numbers returns every inode number currently present in the table,
// in no particular order. Used by fsck to find inodes unreferenced by
// any directory entry.
func (t *Table) Numbers() ([]uint64, error) {
	keys, err := t.tt.Keys()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(keys))
	for _, k := range keys {
		n, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Link increments the referenced inode's link count for a new
// hardlink.
func (t *Table) Link(number uint64) error {
	in, err := t.Get(number)
	if err != nil {
		return err
	}
	nlink, err := in.Nlink()
	if err != nil {
		return err
	}
	return in.SetNlink(nlink + 1)
}
