// Package session ties the object store, the staged root tree, the
// namespace layer and the inode table together into the single
// long-lived handle a mount (or any other caller) opens once and holds
// for as long as the filesystem is in use.
//
// Collapses ps/persistence.go's sync.RWMutex pattern to a plain
// sync.Mutex: the object store and the staged-tree overlay are not
// thread-safe, and a single mount is the expected usage, so
// fine-grained locking would add complexity without benefit.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/sirupsen/logrus"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/inode"
	"github.com/grepro/spaghettifs/logx"
	"github.com/grepro/spaghettifs/manifest"
	"github.com/grepro/spaghettifs/migrate"
	"github.com/grepro/spaghettifs/namespace"
	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/staged"
)

// Session is an open filesystem: a staged root tree over an object
// store, the namespace and inode-table views over it, and the commit
// bookkeeping (current branch, head, autocommit, mount state) that
// governs when staged changes become visible to anyone reading
// refs/heads/master.
type Session struct {
	mu sync.Mutex

	store    *objectstore.Store
	root     *staged.Tree
	ns       *namespace.Namespace
	table    *inode.Table
	features *staged.Blob

	autocommit    bool
	branch        string
	headID        plumbing.Hash
	mounted       bool
	writeBuffered int64
}

// Lock acquires the session-wide mutex held for the duration of every
// dispatcher call.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session-wide mutex.
func (s *Session) Unlock() { s.mu.Unlock() }

// Namespace returns the session's directory-resolution layer.
func (s *Session) Namespace() *namespace.Namespace { return s.ns }

// Table returns the session's inode table.
func (s *Session) Table() *inode.Table { return s.table }

// Head returns the hash of the most recently published commit.
func (s *Session) Head() plumbing.Hash { return s.headID }

// Store returns the underlying object store, for tooling (archive
// export/import, fsck) that needs to read raw objects outside of the
// staged-tree view.
func (s *Session) Store() *objectstore.Store { return s.store }

func wrapRoot(root *staged.Tree) (ns *namespace.Namespace, table *inode.Table, features *staged.Blob, err error) {
	featuresObj, err := root.Get(core.EntryFeatures)
	if err != nil {
		return nil, nil, nil, err
	}
	features, ok := featuresObj.(*staged.Blob)
	if !ok {
		return nil, nil, nil, core.New(core.InvalidFormat, "session.wrapRoot", "features is not a blob")
	}

	inodesObj, err := root.Get(core.EntryInodes)
	if err != nil {
		return nil, nil, nil, err
	}
	inodesTree, ok := inodesObj.(*staged.Tree)
	if !ok {
		return nil, nil, nil, core.New(core.InvalidFormat, "session.wrapRoot", "inodes is not a tree")
	}
	table = inode.OpenTable(inodesTree, features)

	rootDir, err := namespace.Root(root)
	if err != nil {
		return nil, nil, nil, err
	}
	ns = namespace.New(rootDir, table)
	return ns, table, features, nil
}

// Create initializes a brand-new, empty repository at path and commits
// "Created empty filesystem" on master.
func Create(path string) (*Session, error) {
	store, err := objectstore.Init(path)
	if err != nil {
		return nil, err
	}
	root := staged.NewRoot(store, plumbing.ZeroHash)

	if _, err := root.NewBlob(core.EntryRootLs); err != nil {
		return nil, err
	}
	if _, err := root.NewTree(core.EntryRootSub); err != nil {
		return nil, err
	}
	if _, err := root.NewTree(core.EntryInodes); err != nil {
		return nil, err
	}
	featuresBlob, err := root.NewBlob(core.EntryFeatures)
	if err != nil {
		return nil, err
	}
	if err := manifest.Store(featuresBlob, manifest.Current); err != nil {
		return nil, err
	}

	ns, table, features, err := wrapRoot(root)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		store: store, root: root, ns: ns, table: table, features: features,
		branch: core.BranchMaster,
	}
	if _, err := sess.commitLocked("Created empty filesystem", false, core.BranchMaster); err != nil {
		return nil, err
	}
	logx.L().WithField("path", path).Info("session: created empty filesystem")
	return sess, nil
}

// Open opens an existing repository, rejecting it outright if its
// feature manifest names a format this build does not understand —
// callers must run Upgrade first in that case.
func Open(path string, autocommit bool) (*Session, error) {
	store, err := objectstore.Open(path)
	if err != nil {
		return nil, err
	}
	ref, err := store.Ref(plumbing.NewBranchReferenceName(core.BranchMaster))
	if err != nil {
		return nil, err
	}
	commit, err := store.Commit(ref.Hash())
	if err != nil {
		return nil, err
	}
	root := staged.NewRoot(store, commit.TreeHash)

	ns, table, features, err := wrapRoot(root)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(features)
	if err != nil {
		return nil, err
	}
	if err := manifest.VerifySupported(m); err != nil {
		logx.L().WithFields(logrus.Fields{"path": path, "err": err}).Error("session: refusing unsupported manifest")
		return nil, err
	}

	logx.L().WithFields(logrus.Fields{"path": path, "head": ref.Hash().String()}).Info("session: opened")
	return &Session{
		store: store, root: root, ns: ns, table: table, features: features,
		autocommit: autocommit, branch: core.BranchMaster, headID: ref.Hash(),
	}, nil
}

// Upgrade opens path without rejecting an unsupported format and runs
// every applicable migration, committing as it goes.
func Upgrade(path string) error {
	store, err := objectstore.Open(path)
	if err != nil {
		return err
	}
	refName := plumbing.NewBranchReferenceName(core.BranchMaster)
	ref, err := store.Ref(refName)
	if err != nil {
		return err
	}
	commit, err := store.Commit(ref.Hash())
	if err != nil {
		return err
	}
	root := staged.NewRoot(store, commit.TreeHash)

	featuresObj, err := root.Get(core.EntryFeatures)
	var features *staged.Blob
	if core.Is(err, core.NotFound) {
		features, err = root.NewBlob(core.EntryFeatures)
		if err != nil {
			return err
		}
		features.SetData([]byte("{}"))
	} else if err != nil {
		return err
	} else {
		var ok bool
		features, ok = featuresObj.(*staged.Blob)
		if !ok {
			return core.New(core.InvalidFormat, "session.Upgrade", "features is not a blob")
		}
	}

	headID := ref.Hash()
	commitFn := func(message string) error {
		treeID, err := root.Commit()
		if err != nil {
			return err
		}
		var parents []plumbing.Hash
		if headID != plumbing.ZeroHash {
			parents = []plumbing.Hash{headID}
		}
		id, err := store.NewCommit(treeID, parents, core.CommitIdentity, message)
		if err != nil {
			return err
		}
		if err := store.SetRef(refName, id); err != nil {
			return err
		}
		headID = id
		return nil
	}
	logx.L().WithField("path", path).Info("session: running migrations")
	if err := migrate.Apply(root, features, commitFn); err != nil {
		logx.L().WithFields(logrus.Fields{"path": path, "err": err}).Error("session: migration failed")
		return err
	}
	logx.L().WithField("path", path).Info("session: migrations complete")
	return nil
}

// commitLocked computes the staged root's new tree id, publishes a new
// commit pointing at it on branch, and advances the in-memory head.
// amend rebuilds the parent list from the previous commit's own
// parents instead of chaining onto it, so a buffered flush on the
// mounted branch never grows the mounted branch's own history.
func (s *Session) commitLocked(message string, amend bool, branch string) (plumbing.Hash, error) {
	var parents []plumbing.Hash
	if amend {
		if s.headID != plumbing.ZeroHash {
			prev, err := s.store.Commit(s.headID)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			parents = prev.ParentHashes
		}
	} else if s.headID != plumbing.ZeroHash {
		parents = []plumbing.Hash{s.headID}
	}

	treeID, err := s.root.Commit()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	commitHash, err := s.store.NewCommit(treeID, parents, core.CommitIdentity, message)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := s.store.SetRef(plumbing.NewBranchReferenceName(branch), commitHash); err != nil {
		return plumbing.ZeroHash, err
	}
	s.headID = commitHash
	s.writeBuffered = 0
	logx.L().WithFields(logrus.Fields{"branch": branch, "commit": commitHash.String(), "message": message}).Debug("session: committed")
	return commitHash, nil
}

// Commit publishes a commit with message on the session's current
// branch.
func (s *Session) Commit(message string) error {
	_, err := s.commitLocked(message, false, s.branch)
	return err
}

// AutocommitIfEnabled issues an "Auto commit" after a mutating
// operation when the session was opened with autocommit and is not
// under the mounted-session buffered-commit protocol.
func (s *Session) AutocommitIfEnabled() error {
	if !s.autocommit || s.mounted {
		return nil
	}
	_, err := s.commitLocked("Auto commit", false, s.branch)
	return err
}

// RecordWrite accounts n freshly written bytes toward the
// WriteBufferSize threshold that triggers a buffered amended commit on
// the mounted branch. A no-op outside of EnterMount/ExitMount.
func (s *Session) RecordWrite(n int) error {
	if !s.mounted {
		return nil
	}
	s.writeBuffered += int64(n)
	if s.writeBuffered < core.WriteBufferSize {
		return nil
	}
	_, err := s.commitLocked("Auto commit", true, core.BranchMounted)
	return err
}

// EnterMount switches the session into the mounted-session protocol:
// autocommit is disabled, and a temporary commit recording the mount
// time is published on refs/heads/mounted.
func (s *Session) EnterMount() error {
	s.autocommit = false
	s.mounted = true
	s.branch = core.BranchMounted
	msg := fmt.Sprintf("[temporary commit; currently mounted, since %s]", core.Now().Format(time.RFC3339))
	_, err := s.commitLocked(msg, false, core.BranchMounted)
	if err != nil {
		return err
	}
	logx.L().Info("session: mounted")
	return nil
}

// ExitMount publishes a final commit with summaryMessage to master and
// deletes the mounted ref.
func (s *Session) ExitMount(summaryMessage string) error {
	if _, err := s.commitLocked(summaryMessage, false, core.BranchMaster); err != nil {
		return err
	}
	if err := s.store.DeleteRef(plumbing.NewBranchReferenceName(core.BranchMounted)); err != nil {
		return err
	}
	s.mounted = false
	s.branch = core.BranchMaster
	logx.L().Info("session: unmounted")
	return nil
}

// Snapshot tags the current head as name.
func (s *Session) Snapshot(name string) error {
	_, err := s.store.Repository().CreateTag(name, s.headID, nil)
	if err != nil {
		return core.Wrap(core.StoreError, "session.Snapshot", err)
	}
	return nil
}

// RecoverSnapshot re-publishes the tag named name onto the session's
// current branch and reloads every in-memory view from it.
func (s *Session) RecoverSnapshot(name string) error {
	ref, err := s.store.Repository().Tag(name)
	if err != nil {
		return core.Wrap(core.NotFound, "session.RecoverSnapshot", err)
	}
	commit, err := s.store.Commit(ref.Hash())
	if err != nil {
		return err
	}
	root := staged.NewRoot(s.store, commit.TreeHash)
	ns, table, features, err := wrapRoot(root)
	if err != nil {
		return err
	}
	if err := s.store.SetRef(plumbing.NewBranchReferenceName(s.branch), ref.Hash()); err != nil {
		return err
	}
	s.root, s.ns, s.table, s.features = root, ns, table, features
	s.headID = ref.Hash()
	logx.L().WithFields(logrus.Fields{"snapshot": name, "commit": ref.Hash().String()}).Info("session: recovered snapshot")
	return nil
}

// Transaction is one commit on the branch a TransactionLog walked.
type Transaction struct {
	ID      string
	When    time.Time
	Author  string
	Message string
}

// TransactionLog walks every commit reachable from the session's
// current head, most recent first.
func (s *Session) TransactionLog() ([]Transaction, error) {
	var txs []Transaction
	err := s.store.Log(s.headID, func(c *object.Commit) error {
		txs = append(txs, Transaction{
			ID:      c.Hash.String(),
			When:    c.Committer.When,
			Author:  fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email),
			Message: c.Message,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// TransactionsSince filters TransactionLog to commits at or after t.
func (s *Session) TransactionsSince(t time.Time) ([]Transaction, error) {
	all, err := s.TransactionLog()
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(all))
	for _, tx := range all {
		if !tx.When.Before(t) {
			out = append(out, tx)
		}
	}
	return out, nil
}
