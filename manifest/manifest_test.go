package manifest_test

import (
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/manifest"
	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/staged"
)

func newBlob(t *testing.T) *staged.Blob {
	t.Helper()
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	root := staged.NewRoot(store, plumbing.ZeroHash)
	blob, err := root.NewBlob("features")
	require.NoError(t, err)
	return blob
}

func TestStoreThenLoadRoundTrips(t *testing.T) {
	blob := newBlob(t)
	require.NoError(t, manifest.Store(blob, manifest.Current))

	got, err := manifest.Load(blob)
	require.NoError(t, err)
	require.Equal(t, manifest.Current, got)
}

func TestLoadToleratesEmptyFormatFlags(t *testing.T) {
	blob := newBlob(t)
	blob.SetData([]byte(`{"next_inode_number": 1}`))

	m, err := manifest.Load(blob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.NextInodeNumber)
	require.Empty(t, m.InodeFormat)
	require.Empty(t, m.InodeIndexFormat)
	require.Error(t, manifest.VerifySupported(m))
}

func TestVerifySupportedRejectsUnknownFormats(t *testing.T) {
	m := manifest.Current
	m.InodeFormat = "flat"
	require.Error(t, manifest.VerifySupported(m))

	m = manifest.Current
	m.InodeIndexFormat = "flat"
	require.Error(t, manifest.VerifySupported(m))

	require.NoError(t, manifest.VerifySupported(manifest.Current))
}
