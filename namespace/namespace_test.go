package namespace_test

import (
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/inode"
	"github.com/grepro/spaghettifs/manifest"
	"github.com/grepro/spaghettifs/namespace"
	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/staged"
)

func newNamespace(t *testing.T) *namespace.Namespace {
	t.Helper()
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	root := staged.NewRoot(store, plumbing.ZeroHash)

	_, err = root.NewBlob(core.EntryRootLs)
	require.NoError(t, err)
	_, err = root.NewTree(core.EntryRootSub)
	require.NoError(t, err)
	_, err = root.NewTree(core.EntryInodes)
	require.NoError(t, err)
	featuresObj, err := root.NewBlob(core.EntryFeatures)
	require.NoError(t, err)
	require.NoError(t, manifest.Store(featuresObj, manifest.Current))

	dir, err := namespace.Root(root)
	require.NoError(t, err)

	inodesObj, err := root.Get(core.EntryInodes)
	require.NoError(t, err)
	table := inode.OpenTable(inodesObj.(*staged.Tree), featuresObj)

	return namespace.New(dir, table)
}

func TestCreateThenLookupAndList(t *testing.T) {
	ns := newNamespace(t)
	root := ns.Root()

	in, err := ns.Create(root, "file.txt")
	require.NoError(t, err)
	require.NotNil(t, in)

	entry, found, err := namespace.Lookup(root, "file.txt")
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, entry.IsDir)
	require.Equal(t, in.Number(), entry.InodeNumber)

	entries, err := namespace.List(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "file.txt", entries[0].Name)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	ns := newNamespace(t)
	root := ns.Root()
	_, err := ns.Create(root, "dup")
	require.NoError(t, err)
	_, err = ns.Create(root, "dup")
	require.Error(t, err)
}

func TestMkdirThenOpenChildRoundTrips(t *testing.T) {
	ns := newNamespace(t)
	root := ns.Root()

	sub, err := ns.Mkdir(root, "sub")
	require.NoError(t, err)
	require.NotNil(t, sub)

	entry, found, err := namespace.Lookup(root, "sub")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, entry.IsDir)

	reopened, err := namespace.OpenChild(root, "sub")
	require.NoError(t, err)
	require.NotNil(t, reopened)

	_, err = ns.Create(reopened, "nested.txt")
	require.NoError(t, err)
	entries, err := namespace.List(reopened)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRmdirRemovesEmptySubdirectory(t *testing.T) {
	ns := newNamespace(t)
	root := ns.Root()
	_, err := ns.Mkdir(root, "sub")
	require.NoError(t, err)

	require.NoError(t, ns.Rmdir(root, "sub"))
	_, found, err := namespace.Lookup(root, "sub")
	require.NoError(t, err)
	require.False(t, found)
}

func TestLinkIncrementsNlinkAndUnlinkDecrements(t *testing.T) {
	ns := newNamespace(t)
	root := ns.Root()
	in, err := ns.Create(root, "orig")
	require.NoError(t, err)

	require.NoError(t, ns.Link(root, "alias", in))
	nlink, err := in.Nlink()
	require.NoError(t, err)
	require.EqualValues(t, 2, nlink)

	require.NoError(t, ns.Unlink(root, "orig"))
	nlink, err = in.Nlink()
	require.NoError(t, err)
	require.EqualValues(t, 1, nlink)

	_, found, err := namespace.Lookup(root, "orig")
	require.NoError(t, err)
	require.False(t, found)

	entry, found, err := namespace.Lookup(root, "alias")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, in.Number(), entry.InodeNumber)
}

func TestUnlinkOnDirectoryIsRejected(t *testing.T) {
	ns := newNamespace(t)
	root := ns.Root()
	_, err := ns.Mkdir(root, "sub")
	require.NoError(t, err)

	err = ns.Unlink(root, "sub")
	require.Error(t, err)
	require.True(t, core.Is(err, core.IsDirectory))
}

func TestRmdirOnFileIsRejected(t *testing.T) {
	ns := newNamespace(t)
	root := ns.Root()
	_, err := ns.Create(root, "f")
	require.NoError(t, err)

	err = ns.Rmdir(root, "f")
	require.Error(t, err)
	require.True(t, core.Is(err, core.NotDirectory))
}
