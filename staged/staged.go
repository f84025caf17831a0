// Package staged implements the in-memory, lazily-materialized mutable
// overlay over the object store's immutable blobs and trees.
//
// A Tree wraps a (possibly not-yet-committed) tree object. Reads are
// served from a dirty overlay first, then from the committed object,
// memoized in a weakly-held cache so repeat lookups of a name that is
// still referenced elsewhere in the program return the same object
// identity. Writes only ever touch the overlay; nothing reaches the
// object store until Commit walks the dirty spine.
//
// This generalizes the recursive path-rebuilding functions in the
// teacher's ps/plumbing.go (getTreeEntries/buildTreeFromEntries/
// batchUpdateTree, which rebuild a whole subtree from a string path on
// every call) into a proper node graph: each Tree/Blob is a long-lived
// handle, dirty state propagates once per node per commit cycle instead
// of being recomputed from scratch, and only dirty subtrees are ever
// re-encoded.
package staged

import (
	"github.com/grepro/spaghettifs/objectstore"
)

// Object is the tagged sum every staged child is. Consumers type-switch
// on the concrete type (*Tree or *Blob) rather than on a Kind field.
type Object interface {
	Name() string
	removeFromParent() error
}

// scope is the nested mutation-scope counter shared by every staged
// object descending from the same session root. Only one counter is
// needed per session; see Tree.EnterScope/ExitScope.
type scope struct {
	depth int
}

// node is the common fields every staged object carries: the store it
// reads/writes through, the shared scope counter, its parent (nil only
// for a session root) and its name within that parent.
//
// parent is an ordinary strong pointer, not a weak one: Go's garbage
// collector reclaims reference cycles, so the parent edge needs no
// refcounting or arena indirection. Only the sibling cache (see
// Tree.cache) is meant to be non-owning, and that one does use weak
// pointers.
type node struct {
	store  *objectstore.Store
	scope  *scope
	parent *Tree
	name   string
}

func (n *node) Name() string { return n.name }
