// Package objectstore is a SHA-1 content-addressed blob/tree/commit
// store with mutable named branch refs, equivalent to the Git object
// model. Rather than reimplement that model, this package is a thin
// wrapper over github.com/go-git/go-git/v6 and
// github.com/go-git/go-billy/v6 — exactly the pairing nickyhof/CommitDB
// uses (in ps/persistence.go and ps/plumbing.go) to get Git-compatible
// storage without hand-rolling SHA-1 object encoding.
//
// A repository created here is readable by stock `git`: `git log`,
// `git checkout`, and `git cat-file` against refs/heads/master all work.
package objectstore

import (
	"io"
	"os"
	"sort"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"

	"github.com/grepro/spaghettifs/core"
)

// Store wraps a bare *git.Repository (no worktree — a mounted
// filesystem reads and writes trees directly through the plumbing
// layer, it never needs a checked-out working copy).
type Store struct {
	repo *git.Repository
}

// Entry is a single (mode, name, hash) tree entry, mirroring
// go-git's object.TreeEntry but kept here so callers outside this
// package never need to import go-git directly.
type Entry struct {
	Name string
	Dir  bool
	Hash plumbing.Hash
}

// Open opens an existing bare on-disk repository at path.
func Open(path string) (*Store, error) {
	fs := osfs.New(path)
	storer := filesystem.NewStorageWithOptions(fs, cache.NewObjectLRUDefault(), filesystem.Options{ExclusiveAccess: true})
	repo, err := git.Open(storer, nil)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Open", err)
	}
	return &Store{repo: repo}, nil
}

// Init creates a new bare on-disk repository at path.
func Init(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Init", err)
	}
	fs := osfs.New(path)
	storer := filesystem.NewStorageWithOptions(fs, cache.NewObjectLRUDefault(), filesystem.Options{ExclusiveAccess: true})
	repo, err := git.Init(storer)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Init", err)
	}
	return &Store{repo: repo}, nil
}

// InitMemory creates an ephemeral, in-memory bare repository — used by
// tests and by any caller that wants a scratch filesystem without disk
// I/O.
func InitMemory() (*Store, error) {
	storer := memory.NewStorage()
	repo, err := git.Init(storer)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.InitMemory", err)
	}
	return &Store{repo: repo}, nil
}

// NewBlob stores data as a new immutable blob object and returns its
// hash.
func (s *Store) NewBlob(data []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "objectstore.NewBlob", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "objectstore.NewBlob", err)
	}
	w.Close()

	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "objectstore.NewBlob", err)
	}
	return hash, nil
}

// Blob reads back the full contents of a blob object.
func (s *Store) Blob(hash plumbing.Hash) ([]byte, error) {
	blob, err := object.GetBlob(s.repo.Storer, hash)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Blob", err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Blob", err)
	}
	defer r.Close()

	buf := make([]byte, blob.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Blob", err)
	}
	return buf, nil
}

// NewTree builds a new immutable tree object from entries, which need
// not be pre-sorted — NewTree applies Git's directory-then-file name
// ordering itself.
func (s *Store) NewTree(entries []Entry) (plumbing.Hash, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		ni, nj := sorted[i].Name, sorted[j].Name
		if sorted[i].Dir {
			ni += "/"
		}
		if sorted[j].Dir {
			nj += "/"
		}
		return ni < nj
	})

	tree := &object.Tree{}
	for _, e := range sorted {
		mode := filemode.Regular
		if e.Dir {
			mode = filemode.Dir
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: e.Name, Mode: mode, Hash: e.Hash})
	}

	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "objectstore.NewTree", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "objectstore.NewTree", err)
	}
	return hash, nil
}

// Tree reads back a tree object's entries.
func (s *Store) Tree(hash plumbing.Hash) ([]Entry, error) {
	if hash == plumbing.ZeroHash {
		return nil, nil
	}
	tree, err := object.GetTree(s.repo.Storer, hash)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Tree", err)
	}
	entries := make([]Entry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, Entry{Name: e.Name, Dir: e.Mode == filemode.Dir, Hash: e.Hash})
	}
	return entries, nil
}

// NewCommit creates a new commit object pointing at tree, with the
// given parents, author/committer identity and message, and returns its
// hash. It does not touch any ref.
func (s *Store) NewCommit(tree plumbing.Hash, parents []plumbing.Hash, identity core.Identity, message string) (plumbing.Hash, error) {
	sig := object.Signature{Name: identity.Name, Email: identity.Email, When: core.Now()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "objectstore.NewCommit", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "objectstore.NewCommit", err)
	}
	return hash, nil
}

// Commit reads back a commit object.
func (s *Store) Commit(hash plumbing.Hash) (*object.Commit, error) {
	c, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "objectstore.Commit", err)
	}
	return c, nil
}

// Ref reads a reference (branch or tag) by its full name, e.g.
// "refs/heads/master".
func (s *Store) Ref(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	ref, err := s.repo.Storer.Reference(name)
	if err != nil {
		return nil, core.Wrap(core.NotFound, "objectstore.Ref", err)
	}
	return ref, nil
}

// SetRef points name at hash, creating it if it did not exist.
func (s *Store) SetRef(name plumbing.ReferenceName, hash plumbing.Hash) error {
	ref := plumbing.NewHashReference(name, hash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return core.Wrap(core.StoreError, "objectstore.SetRef", err)
	}
	return nil
}

// DeleteRef removes a reference.
func (s *Store) DeleteRef(name plumbing.ReferenceName) error {
	if err := s.repo.Storer.RemoveReference(name); err != nil {
		return core.Wrap(core.StoreError, "objectstore.DeleteRef", err)
	}
	return nil
}

// Log walks the commit history starting at hash, oldest parent last,
// calling fn for each commit. fn returning a non-nil error stops the
// walk and that error is returned (storage.ErrStop-style early exit is
// not needed here since its caller, Session.TransactionLog, always
// wants the full history).
func (s *Store) Log(hash plumbing.Hash, fn func(*object.Commit) error) error {
	iter, err := s.repo.Log(&git.LogOptions{From: hash})
	if err != nil {
		return core.Wrap(core.StoreError, "objectstore.Log", err)
	}
	defer iter.Close()
	return iter.ForEach(fn)
}

// Repository exposes the underlying *git.Repository for callers (tags,
// ancestry checks) that need plumbing this wrapper does not surface
// directly, avoiding duplicating go-git's entire API surface.
func (s *Store) Repository() *git.Repository {
	return s.repo
}
