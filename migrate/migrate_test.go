package migrate_test

import (
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/inode"
	"github.com/grepro/spaghettifs/manifest"
	"github.com/grepro/spaghettifs/migrate"
	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/staged"
)

// buildLegacyRepo lays out a pre-treetree repository: a flat "i<n>"
// inode directory, each with "meta" and flat "b<offset>" block blobs,
// and a features blob with both format flags empty.
func buildLegacyRepo(t *testing.T) (*staged.Tree, *staged.Blob) {
	t.Helper()
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	root := staged.NewRoot(store, plumbing.ZeroHash)

	inodes, err := root.NewTree(core.EntryInodes)
	require.NoError(t, err)

	i1, err := inodes.NewTree("i1")
	require.NoError(t, err)
	meta, err := i1.NewBlob("meta")
	require.NoError(t, err)
	meta.SetData([]byte("mode: 0100644\nnlink: 1\nuid: 0\ngid: 0\nsize: 3\n"))
	b0, err := i1.NewBlob("b0")
	require.NoError(t, err)
	b0.SetData([]byte("abc"))

	features, err := root.NewBlob(core.EntryFeatures)
	require.NoError(t, err)
	require.NoError(t, manifest.Store(features, manifest.Manifest{NextInodeNumber: 2}))

	return root, features
}

func TestApplyMigratesLegacyLayoutToTreeTree(t *testing.T) {
	root, features := buildLegacyRepo(t)

	var commits []string
	commit := func(message string) error {
		commits = append(commits, message)
		return nil
	}
	require.NoError(t, migrate.Apply(root, features, commit))
	require.Len(t, commits, 2)

	m, err := manifest.Load(features)
	require.NoError(t, err)
	require.Equal(t, "treetree", m.InodeFormat)
	require.Equal(t, "treetree", m.InodeIndexFormat)
	require.NoError(t, manifest.VerifySupported(m))

	inodesObj, err := root.Get(core.EntryInodes)
	require.NoError(t, err)
	inodesTree := inodesObj.(*staged.Tree)

	table := inode.OpenTable(inodesTree, features)
	in, err := table.Get(1)
	require.NoError(t, err)
	data, err := in.Read(0, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), data)
}

func TestApplyIsANoOpOnAnAlreadyCurrentManifest(t *testing.T) {
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	root := staged.NewRoot(store, plumbing.ZeroHash)
	_, err = root.NewTree(core.EntryInodes)
	require.NoError(t, err)
	features, err := root.NewBlob(core.EntryFeatures)
	require.NoError(t, err)
	require.NoError(t, manifest.Store(features, manifest.Current))

	calls := 0
	err = migrate.Apply(root, features, func(string) error { calls++; return nil })
	require.NoError(t, err)
	require.Zero(t, calls)
}
