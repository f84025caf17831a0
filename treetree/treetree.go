// Package treetree implements the sparse, digit-indexed trie used to
// store integer-keyed maps (the inode table, and each inode's block
// index) over a staged.Tree without ever letting a single tree's entry
// count grow unboundedly.
//
// A Git tree costs O(n log n) to rewrite as entries are appended to it,
// since every mutation re-encodes and re-hashes the whole entry list. A
// TreeTree instead lays its keys out as a trie, one digit per level, so
// any single tree node holds at most 10 entries and the cost of a
// mutation is a function of key length rather than of how many keys
// exist.
package treetree

import (
	"fmt"
	"strconv"

	"github.com/go-git/go-git/v6/plumbing"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/staged"
)

// TreeTree is a view over container that stores entries keyed by
// non-empty decimal-digit strings, bucketed by key length under
// "<prefix><L>" and then one subtree per digit.
type TreeTree struct {
	container *staged.Tree
	prefix    string
}

// New returns a TreeTree storing its entries under container, with
// per-length buckets named "<prefix><L>".
func New(container *staged.Tree, prefix string) *TreeTree {
	return &TreeTree{container: container, prefix: prefix}
}

func validateKey(key string) error {
	if key == "" {
		return core.New(core.InvalidName, "treetree.validateKey", "key must not be empty")
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return core.New(core.InvalidName, "treetree.validateKey", "key must be all decimal digits")
		}
	}
	return nil
}

func (tt *TreeTree) bucketName(length int) string {
	return fmt.Sprintf("%s%d", tt.prefix, length)
}

// digits returns the ordered list of single-digit path components below
// the length bucket for key, i.e. everything except the final digit,
// which names the leaf itself.
func digits(key string) (intermediate []string, leaf string) {
	for i := 0; i < len(key)-1; i++ {
		intermediate = append(intermediate, string(key[i]))
	}
	return intermediate, string(key[len(key)-1])
}

// descend walks from the length bucket down through one subtree per
// intermediate digit, optionally creating missing subtrees along the
// way, and returns the final parent tree that directly owns the leaf
// entry.
func (tt *TreeTree) descend(key string, create bool) (*staged.Tree, error) {
	bucketName := tt.bucketName(len(key))
	bucket, err := tt.container.Get(bucketName)
	if core.Is(err, core.NotFound) {
		if !create {
			return nil, err
		}
		bucket, err = tt.container.NewTree(bucketName)
	}
	if err != nil {
		return nil, err
	}
	cur, ok := bucket.(*staged.Tree)
	if !ok {
		return nil, core.New(core.InvalidFormat, "treetree.descend", bucketName+" is not a tree")
	}

	intermediate, _ := digits(key)
	for _, d := range intermediate {
		child, err := cur.Get(d)
		if core.Is(err, core.NotFound) {
			if !create {
				return nil, err
			}
			child, err = cur.NewTree(d)
		}
		if err != nil {
			return nil, err
		}
		next, ok := child.(*staged.Tree)
		if !ok {
			return nil, core.New(core.InvalidFormat, "treetree.descend", "digit entry is not a tree")
		}
		cur = next
	}
	return cur, nil
}

// Get returns the staged object at key.
func (tt *TreeTree) Get(key string) (staged.Object, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	parent, err := tt.descend(key, false)
	if err != nil {
		return nil, err
	}
	_, leaf := digits(key)
	return parent.Get(leaf)
}

// Contains reports whether key is present.
func (tt *TreeTree) Contains(key string) (bool, error) {
	_, err := tt.Get(key)
	if err == nil {
		return true, nil
	}
	if core.Is(err, core.NotFound) {
		return false, nil
	}
	return false, err
}

// NewBlob creates a new, empty blob at key, creating any intermediate
// digit subtrees needed to reach it. It fails with AlreadyExists if key
// is already present.
func (tt *TreeTree) NewBlob(key string) (*staged.Blob, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	parent, err := tt.descend(key, true)
	if err != nil {
		return nil, err
	}
	_, leaf := digits(key)
	return parent.NewBlob(leaf)
}

// NewTree creates a new, empty subtree at key.
func (tt *TreeTree) NewTree(key string) (*staged.Tree, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	parent, err := tt.descend(key, true)
	if err != nil {
		return nil, err
	}
	_, leaf := digits(key)
	return parent.NewTree(leaf)
}

// Clone attaches source — an object committed in any container, such
// as another TreeTree or a plain staged.Tree — at key, reusing its
// already-committed hash rather than copying its contents.
func (tt *TreeTree) Clone(source staged.Object, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	var hash plumbing.Hash
	var dir bool
	switch o := source.(type) {
	case *staged.Tree:
		h, err := o.Commit()
		if err != nil {
			return err
		}
		hash, dir = h, true
	case *staged.Blob:
		h, err := o.Commit()
		if err != nil {
			return err
		}
		hash, dir = h, false
	default:
		return core.New(core.InvalidFormat, "treetree.Clone", "unsupported source kind")
	}

	parent, err := tt.descend(key, true)
	if err != nil {
		return err
	}
	_, leaf := digits(key)
	return parent.Attach(leaf, dir, hash)
}

// Keys returns every key currently stored, in no particular order. Used
// by inode.Table.Numbers, through which fsck enumerates the inode table.
func (tt *TreeTree) Keys() ([]string, error) {
	bucketNames, err := tt.container.Keys()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range bucketNames {
		if len(name) <= len(tt.prefix) || name[:len(tt.prefix)] != tt.prefix {
			continue
		}
		length, err := strconv.Atoi(name[len(tt.prefix):])
		if err != nil {
			continue
		}
		obj, err := tt.container.Get(name)
		if err != nil {
			return nil, err
		}
		bucket, ok := obj.(*staged.Tree)
		if !ok {
			continue
		}
		keys, err := collectDigitKeys(bucket, length, "")
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
	}
	return out, nil
}

func isDigitName(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}

// collectDigitKeys walks remaining levels of single-digit subtrees below
// node, reconstructing each full key by prepending prefix.
func collectDigitKeys(node *staged.Tree, remaining int, prefix string) ([]string, error) {
	names, err := node.Keys()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range names {
		if !isDigitName(d) {
			continue
		}
		if remaining == 1 {
			out = append(out, prefix+d)
			continue
		}
		obj, err := node.Get(d)
		if err != nil {
			return nil, err
		}
		child, ok := obj.(*staged.Tree)
		if !ok {
			continue
		}
		sub, err := collectDigitKeys(child, remaining-1, prefix+d)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// Delete removes key, then prunes every ancestor subtree (including the
// length bucket) that becomes empty as a result.
func (tt *TreeTree) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	bucketName := tt.bucketName(len(key))
	bucketObj, err := tt.container.Get(bucketName)
	if err != nil {
		return err
	}
	bucket, ok := bucketObj.(*staged.Tree)
	if !ok {
		return core.New(core.InvalidFormat, "treetree.Delete", bucketName+" is not a tree")
	}

	intermediate, leaf := digits(key)
	chain := []*staged.Tree{bucket}
	cur := bucket
	for _, d := range intermediate {
		childObj, err := cur.Get(d)
		if err != nil {
			return err
		}
		child, ok := childObj.(*staged.Tree)
		if !ok {
			return core.New(core.InvalidFormat, "treetree.Delete", "digit entry is not a tree")
		}
		chain = append(chain, child)
		cur = child
	}

	if err := cur.Delete(leaf); err != nil {
		return err
	}

	// Prune bottom-up: chain[len-1] is the leaf's immediate parent,
	// chain[0] is the length bucket.
	for i := len(chain) - 1; i >= 0; i-- {
		keys, err := chain[i].Keys()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			break
		}
		if err := chain[i].RemoveSelf(); err != nil {
			return err
		}
	}
	return nil
}
