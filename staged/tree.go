package staged

import (
	"sort"

	"github.com/go-git/go-git/v6/plumbing"
	"weak"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/objectstore"
)

// dirtySlot is an entry in a Tree's dirty overlay: either a live child
// object that needs to be (re-)committed, or a tombstone recording that
// a previously-committed entry has been removed.
type dirtySlot struct {
	removed bool
	obj     Object

	// attached marks a slot created by Attach: the hash is already
	// known and committed elsewhere, so Commit must not try to type
	// switch and recurse into obj (which is nil for this slot kind).
	attached bool
	dir      bool
	hash     plumbing.Hash
}

// cacheSlot is the weakly-held representative for one name, so that two
// Gets of the same (not dirty) name return the same staged object
// identity while something else keeps it alive.
type cacheSlot struct {
	isTree bool
	tree   weak.Pointer[Tree]
	blob   weak.Pointer[Blob]
}

// Tree is the mutable overlay over an immutable tree object.
type Tree struct {
	node

	id        plumbing.Hash
	loaded    bool
	committed map[string]objectstore.Entry

	dirty     map[string]*dirtySlot
	cache     map[string]cacheSlot
	selfDirty bool
}

// NewRoot creates the staged root of a session: a tree with no parent,
// wrapping the (possibly zero) commit tree hash id.
func NewRoot(store *objectstore.Store, id plumbing.Hash) *Tree {
	return &Tree{
		node: node{store: store, scope: &scope{}, parent: nil, name: ""},
		id:   id,
	}
}

func (t *Tree) ensureLoaded() error {
	if t.loaded {
		return nil
	}
	entries, err := t.store.Tree(t.id)
	if err != nil {
		return err
	}
	t.committed = make(map[string]objectstore.Entry, len(entries))
	for _, e := range entries {
		t.committed[e.Name] = e
	}
	t.loaded = true
	return nil
}

func (t *Tree) removeFromParent() error {
	if t.parent == nil {
		return core.New(core.NotSupported, "staged.Tree.RemoveSelf", "root has no parent")
	}
	return t.parent.Delete(t.name)
}

// RemoveSelf deletes this tree from its parent, equivalent to
// parent.Delete(self.Name()).
func (t *Tree) RemoveSelf() error { return t.removeFromParent() }

// Get returns the child staged object named name, resolving the dirty
// overlay first, then the weak cache, then the committed tree.
func (t *Tree) Get(name string) (Object, error) {
	if slot, ok := t.dirty[name]; ok {
		if slot.removed {
			return nil, core.New(core.NotFound, "staged.Tree.Get", name)
		}
		if slot.attached {
			// Materialize a live object over the attached hash and make it
			// the slot's owner, so later mutations through it are kept.
			var child Object
			if slot.dir {
				child = &Tree{node: node{store: t.store, scope: t.scope, parent: t, name: name}, id: slot.hash}
			} else {
				child = &Blob{node: node{store: t.store, scope: t.scope, parent: t, name: name}, id: slot.hash}
			}
			t.dirty[name] = &dirtySlot{obj: child}
			return child, nil
		}
		return slot.obj, nil
	}

	if cs, ok := t.cache[name]; ok {
		if cs.isTree {
			if p := cs.tree.Value(); p != nil {
				return p, nil
			}
		} else {
			if p := cs.blob.Value(); p != nil {
				return p, nil
			}
		}
		delete(t.cache, name)
	}

	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	entry, ok := t.committed[name]
	if !ok {
		return nil, core.New(core.NotFound, "staged.Tree.Get", name)
	}

	if entry.Dir {
		child := &Tree{node: node{store: t.store, scope: t.scope, parent: t, name: name}, id: entry.Hash}
		t.rememberCache(name, cacheSlot{isTree: true, tree: weak.Make(child)})
		return child, nil
	}
	child := &Blob{node: node{store: t.store, scope: t.scope, parent: t, name: name}, id: entry.Hash}
	t.rememberCache(name, cacheSlot{isTree: false, blob: weak.Make(child)})
	return child, nil
}

func (t *Tree) rememberCache(name string, cs cacheSlot) {
	if t.cache == nil {
		t.cache = make(map[string]cacheSlot)
	}
	t.cache[name] = cs
}

func (t *Tree) exists(name string) (bool, error) {
	if slot, ok := t.dirty[name]; ok {
		return !slot.removed, nil
	}
	if err := t.ensureLoaded(); err != nil {
		return false, err
	}
	_, ok := t.committed[name]
	return ok, nil
}

// NewTree creates and stages a new, empty subtree named name.
func (t *Tree) NewTree(name string) (*Tree, error) {
	exists, err := t.exists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.New(core.AlreadyExists, "staged.Tree.NewTree", name)
	}
	child := &Tree{
		node:      node{store: t.store, scope: t.scope, parent: t, name: name},
		loaded:    true,
		committed: map[string]objectstore.Entry{},
	}
	t.stageChild(name, child)
	return child, nil
}

// NewBlob creates and stages a new, empty blob named name.
func (t *Tree) NewBlob(name string) (*Blob, error) {
	exists, err := t.exists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.New(core.AlreadyExists, "staged.Tree.NewBlob", name)
	}
	child := &Blob{
		node:   node{store: t.store, scope: t.scope, parent: t, name: name},
		loaded: true,
		data:   []byte{},
	}
	t.stageChild(name, child)
	return child, nil
}

func (t *Tree) stageChild(name string, obj Object) {
	if t.dirty == nil {
		t.dirty = make(map[string]*dirtySlot)
	}
	t.dirty[name] = &dirtySlot{obj: obj}
	delete(t.cache, name)
	t.markSelfDirty()
}

// Attach stages an entry pointing directly at an already-committed
// object hash, without requiring a live staged object for it. This is
// how TreeTree.Clone attaches an object that was committed elsewhere
// under a new key, and how a committed subtree is relinked during a
// format migration.
func (t *Tree) Attach(name string, dir bool, hash plumbing.Hash) error {
	exists, err := t.exists(name)
	if err != nil {
		return err
	}
	if exists {
		return core.New(core.AlreadyExists, "staged.Tree.Attach", name)
	}
	if t.dirty == nil {
		t.dirty = make(map[string]*dirtySlot)
	}
	t.dirty[name] = &dirtySlot{attached: true, dir: dir, hash: hash}
	delete(t.cache, name)
	t.markSelfDirty()
	return nil
}

// Delete removes name from this tree.
func (t *Tree) Delete(name string) error {
	exists, err := t.exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return core.New(core.NotFound, "staged.Tree.Delete", name)
	}
	if t.dirty == nil {
		t.dirty = make(map[string]*dirtySlot)
	}
	t.dirty[name] = &dirtySlot{removed: true}
	delete(t.cache, name)
	t.markSelfDirty()
	return nil
}

// Keys returns the union of committed entries and dirty additions, minus
// dirty removals.
func (t *Tree) Keys() ([]string, error) {
	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(t.committed)+len(t.dirty))
	for name := range t.committed {
		seen[name] = true
	}
	for name, slot := range t.dirty {
		if slot.removed {
			delete(seen, name)
		} else {
			seen[name] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for name := range seen {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

// markSelfDirty propagates a "this node changed" notification up the
// parent chain exactly once per commit cycle.
func (t *Tree) markSelfDirty() {
	if t.selfDirty {
		return
	}
	t.selfDirty = true
	if t.parent != nil {
		t.parent.noteDirtyChild(t.name, t)
	}
}

func (t *Tree) noteDirtyChild(name string, obj Object) {
	if t.dirty == nil {
		t.dirty = make(map[string]*dirtySlot)
	}
	if _, exists := t.dirty[name]; !exists {
		t.dirty[name] = &dirtySlot{obj: obj}
	}
	delete(t.cache, name)
	t.markSelfDirty()
}

// Commit walks the dirty spine depth-first, materializing every dirty
// child into a new immutable object, and returns this tree's new hash.
// A tree with no dirty entries is returned unchanged without touching
// the object store at all.
func (t *Tree) Commit() (plumbing.Hash, error) {
	if len(t.dirty) == 0 {
		return t.id, nil
	}
	if err := t.ensureLoaded(); err != nil {
		return plumbing.ZeroHash, err
	}

	for name, slot := range t.dirty {
		if slot.removed {
			delete(t.committed, name)
			continue
		}
		if slot.attached {
			t.committed[name] = objectstore.Entry{Name: name, Dir: slot.dir, Hash: slot.hash}
			continue
		}
		var hash plumbing.Hash
		var isDir bool
		var err error
		switch child := slot.obj.(type) {
		case *Tree:
			hash, err = child.Commit()
			isDir = true
		case *Blob:
			hash, err = child.Commit()
			isDir = false
		default:
			err = core.New(core.InvalidFormat, "staged.Tree.Commit", "unknown child kind")
		}
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if hash == plumbing.ZeroHash {
			// A child created empty and never written has no object yet;
			// store a real empty one so the entry never holds a null hash.
			if isDir {
				hash, err = t.store.NewTree(nil)
			} else {
				hash, err = t.store.NewBlob(nil)
			}
			if err != nil {
				return plumbing.ZeroHash, err
			}
		}
		t.committed[name] = objectstore.Entry{Name: name, Dir: isDir, Hash: hash}
	}

	entries := make([]objectstore.Entry, 0, len(t.committed))
	for _, e := range t.committed {
		entries = append(entries, e)
	}
	newID, err := t.store.NewTree(entries)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	t.id = newID
	t.dirty = nil
	t.selfDirty = false
	return newID, nil
}

// ID returns this tree's last-committed hash (zero if never committed).
func (t *Tree) ID() plumbing.Hash { return t.id }

// EnterScope increments the session-wide nested mutation scope counter.
func (t *Tree) EnterScope() { t.scope.depth++ }

// ExitScope decrements the scope counter. An unbalanced exit (depth
// already zero) is a programming error and is reported rather than
// allowed to underflow silently.
func (t *Tree) ExitScope() error {
	if t.scope.depth == 0 {
		return core.New(core.InvalidFormat, "staged.Tree.ExitScope", "unbalanced scope exit")
	}
	t.scope.depth--
	return nil
}

// ScopeDepth reports the current nested scope depth; zero means no
// scope is open and a mutation may autocommit immediately.
func (t *Tree) ScopeDepth() int { return t.scope.depth }
