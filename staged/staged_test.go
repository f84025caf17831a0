package staged_test

import (
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/staged"
)

func newRoot(t *testing.T) (*objectstore.Store, *staged.Tree) {
	t.Helper()
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	root := staged.NewRoot(store, plumbing.ZeroHash)
	return store, root
}

func TestNewTreeAndBlobAreVisibleBeforeCommit(t *testing.T) {
	_, root := newRoot(t)

	sub, err := root.NewTree("dir")
	require.NoError(t, err)
	require.NotNil(t, sub)

	blob, err := root.NewBlob("file")
	require.NoError(t, err)
	blob.SetData([]byte("hello"))

	got, err := root.Get("dir")
	require.NoError(t, err)
	require.Same(t, sub, got.(*staged.Tree))

	gotBlob, err := root.Get("file")
	require.NoError(t, err)
	data, err := gotBlob.(*staged.Blob).Data()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestDuplicateNameIsRejected(t *testing.T) {
	_, root := newRoot(t)
	_, err := root.NewBlob("dup")
	require.NoError(t, err)
	_, err = root.NewBlob("dup")
	require.Error(t, err)
	_, err = root.NewTree("dup")
	require.Error(t, err)
}

func TestCommitIsIdempotentWhenNothingChanged(t *testing.T) {
	_, root := newRoot(t)
	blob, err := root.NewBlob("f")
	require.NoError(t, err)
	blob.SetData([]byte("x"))

	id1, err := root.Commit()
	require.NoError(t, err)
	require.NotEqual(t, plumbing.ZeroHash, id1)

	id2, err := root.Commit()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestCommitRoundTripsThroughStore(t *testing.T) {
	store, root := newRoot(t)
	sub, err := root.NewTree("dir")
	require.NoError(t, err)
	blob, err := sub.NewBlob("f")
	require.NoError(t, err)
	blob.SetData([]byte("payload"))

	rootHash, err := root.Commit()
	require.NoError(t, err)

	entries, err := store.Tree(rootHash)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "dir", entries[0].Name)
	require.True(t, entries[0].Dir)

	subEntries, err := store.Tree(entries[0].Hash)
	require.NoError(t, err)
	require.Len(t, subEntries, 1)
	require.Equal(t, "f", subEntries[0].Name)

	data, err := store.Blob(subEntries[0].Hash)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestDeleteRemovesCommittedEntry(t *testing.T) {
	store, root := newRoot(t)
	_, err := root.NewBlob("f")
	require.NoError(t, err)
	rootHash, err := root.Commit()
	require.NoError(t, err)

	reopened := staged.NewRoot(store, rootHash)
	require.NoError(t, reopened.Delete("f"))

	_, err = reopened.Get("f")
	require.Error(t, err)

	newHash, err := reopened.Commit()
	require.NoError(t, err)
	entries, err := store.Tree(newHash)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestKeysReflectsDirtyOverlay(t *testing.T) {
	store, root := newRoot(t)
	_, err := root.NewBlob("a")
	require.NoError(t, err)
	_, err = root.NewTree("b")
	require.NoError(t, err)
	rootHash, err := root.Commit()
	require.NoError(t, err)

	reopened := staged.NewRoot(store, rootHash)
	_, err = reopened.NewBlob("c")
	require.NoError(t, err)
	require.NoError(t, reopened.Delete("a"))

	keys, err := reopened.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, keys)
}

func TestAttachLinksExistingHashWithoutLiveObject(t *testing.T) {
	store, root := newRoot(t)
	blobHash, err := store.NewBlob([]byte("shared"))
	require.NoError(t, err)

	require.NoError(t, root.Attach("alias", false, blobHash))

	rootHash, err := root.Commit()
	require.NoError(t, err)
	entries, err := store.Tree(rootHash)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, blobHash, entries[0].Hash)
	require.False(t, entries[0].Dir)
}

func TestScopeDepthTracksEnterExit(t *testing.T) {
	_, root := newRoot(t)
	require.Equal(t, 0, root.ScopeDepth())
	root.EnterScope()
	require.Equal(t, 1, root.ScopeDepth())
	require.NoError(t, root.ExitScope())
	require.Equal(t, 0, root.ScopeDepth())
	require.Error(t, root.ExitScope())
}
