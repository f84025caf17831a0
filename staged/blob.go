package staged

import (
	"github.com/go-git/go-git/v6/plumbing"

	"github.com/grepro/spaghettifs/core"
)

// Blob is the mutable overlay over an immutable blob object: a file
// data block, a directory listing, an inode record, a feature manifest
// — anything stored as a leaf rather than a subtree.
type Blob struct {
	node

	id     plumbing.Hash
	loaded bool
	data   []byte
	dirty  bool
}

func (b *Blob) removeFromParent() error {
	if b.parent == nil {
		return core.New(core.NotSupported, "staged.Blob.RemoveSelf", "blob has no parent")
	}
	return b.parent.Delete(b.name)
}

// RemoveSelf deletes this blob from its parent.
func (b *Blob) RemoveSelf() error { return b.removeFromParent() }

// Data returns the blob's current contents, loading them from the
// object store on first access if this blob already has a committed
// id, or returning an empty slice for one that was just created.
func (b *Blob) Data() ([]byte, error) {
	if b.loaded {
		return b.data, nil
	}
	if b.id == plumbing.ZeroHash {
		b.data = []byte{}
		b.loaded = true
		return b.data, nil
	}
	data, err := b.store.Blob(b.id)
	if err != nil {
		return nil, err
	}
	b.data = data
	b.loaded = true
	return b.data, nil
}

// SetData replaces the blob's contents and marks it dirty, propagating
// that up the parent chain.
func (b *Blob) SetData(data []byte) {
	b.data = data
	b.loaded = true
	b.dirty = true
	if b.parent != nil {
		b.parent.noteDirtyChild(b.name, b)
	}
}

// Commit writes this blob's data to the object store if it has
// changed since the last commit, and returns its (possibly unchanged)
// hash.
func (b *Blob) Commit() (plumbing.Hash, error) {
	if !b.dirty {
		return b.id, nil
	}
	hash, err := b.store.NewBlob(b.data)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	b.id = hash
	b.dirty = false
	return hash, nil
}

// ID returns this blob's last-committed hash (zero if never committed).
func (b *Blob) ID() plumbing.Hash { return b.id }
