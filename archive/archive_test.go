package archive_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/archive"
	"github.com/grepro/spaghettifs/objectstore"
)

func TestExportImportRoundTripsTreeStructure(t *testing.T) {
	store, err := objectstore.InitMemory()
	require.NoError(t, err)

	fileHash, err := store.NewBlob([]byte("contents"))
	require.NoError(t, err)
	subHash, err := store.NewTree([]objectstore.Entry{{Name: "f.txt", Hash: fileHash}})
	require.NoError(t, err)
	rootHash, err := store.NewTree([]objectstore.Entry{{Name: "sub", Dir: true, Hash: subHash}})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, archive.Export(store, rootHash, dest, &archive.Config{}))

	restoreStore, err := objectstore.InitMemory()
	require.NoError(t, err)
	newRoot, err := archive.Import(restoreStore, dest, &archive.Config{})
	require.NoError(t, err)

	entries, err := restoreStore.Tree(newRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "sub", entries[0].Name)
	require.True(t, entries[0].Dir)

	subEntries, err := restoreStore.Tree(entries[0].Hash)
	require.NoError(t, err)
	require.Len(t, subEntries, 1)
	require.Equal(t, "f.txt", subEntries[0].Name)

	data, err := restoreStore.Blob(subEntries[0].Hash)
	require.NoError(t, err)
	require.Equal(t, []byte("contents"), data)
}

func TestImportIsContentAddressedSoReconstructedHashMatchesOriginal(t *testing.T) {
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	blobHash, err := store.NewBlob([]byte("same bytes"))
	require.NoError(t, err)
	rootHash, err := store.NewTree([]objectstore.Entry{{Name: "only.txt", Hash: blobHash}})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, archive.Export(store, rootHash, dest, &archive.Config{}))

	// Importing into the SAME store exercises content-addressing
	// determinism directly: the reconstructed root must hash identically
	// to the original, since NewTree/NewBlob are deterministic functions
	// of their content.
	newRoot, err := archive.Import(store, dest, &archive.Config{})
	require.NoError(t, err)
	require.Equal(t, rootHash, newRoot)
}

func TestImportFromMissingSourceFails(t *testing.T) {
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	blobHash, err := store.NewBlob([]byte("x"))
	require.NoError(t, err)
	rootHash, err := store.NewTree([]objectstore.Entry{{Name: "x.txt", Hash: blobHash}})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, archive.Export(store, rootHash, dest, &archive.Config{}))

	// Importing from a path that does not exist exercises the
	// local-scheme reader's error path: Import must surface the open
	// failure rather than return a root.
	_, err = archive.Import(store, filepath.Join(t.TempDir(), "missing.tar.gz"), &archive.Config{})
	require.Error(t, err)
}
