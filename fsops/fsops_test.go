package fsops_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/fsops"
	"github.com/grepro/spaghettifs/session"
)

func newFS(t *testing.T) *fsops.FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo")
	sess, err := session.Create(path)
	require.NoError(t, err)
	return fsops.New(sess)
}

func TestGetattrOnRoot(t *testing.T) {
	fs := newFS(t)
	attr, err := fs.Getattr("/")
	require.NoError(t, err)
	require.True(t, attr.IsDir)
}

func TestCreateWriteReadTruncate(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Create("/a.txt", 0o644))

	n, err := fs.Write("/a.txt", []byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	data, err := fs.Read("/a.txt", 5, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	attr, err := fs.Getattr("/a.txt")
	require.NoError(t, err)
	require.EqualValues(t, 5, attr.Size)
	require.False(t, attr.IsDir)

	require.NoError(t, fs.Truncate("/a.txt", 2))
	attr, err = fs.Getattr("/a.txt")
	require.NoError(t, err)
	require.EqualValues(t, 2, attr.Size)
}

func TestMkdirNestedCreateAndReaddir(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Mkdir("/sub", 0o755))
	require.NoError(t, fs.Create("/sub/f1.txt", 0o644))
	require.NoError(t, fs.Create("/sub/f2.txt", 0o644))

	names, err := fs.Readdir("/sub")
	require.NoError(t, err)
	require.Equal(t, []string{"f1.txt", "f2.txt"}, names)

	rootNames, err := fs.Readdir("/")
	require.NoError(t, err)
	require.Equal(t, []string{"sub"}, rootNames)
}

func TestHardLinkSharesInodeAndUnlinkDropsOneName(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Create("/orig.txt", 0o644))
	_, err := fs.Write("/orig.txt", []byte("data"), 0)
	require.NoError(t, err)

	require.NoError(t, fs.Link("/alias.txt", "/orig.txt"))

	origAttr, err := fs.Getattr("/orig.txt")
	require.NoError(t, err)
	require.EqualValues(t, 2, origAttr.Nlink)

	require.NoError(t, fs.Unlink("/orig.txt"))

	_, err = fs.Getattr("/orig.txt")
	require.Error(t, err)
	require.True(t, core.Is(err, core.NotFound))

	aliasAttr, err := fs.Getattr("/alias.txt")
	require.NoError(t, err)
	require.EqualValues(t, 1, aliasAttr.Nlink)
}

func TestRenameIsLinkThenUnlink(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Create("/src.txt", 0o644))
	_, err := fs.Write("/src.txt", []byte("payload"), 0)
	require.NoError(t, err)

	require.NoError(t, fs.Rename("/src.txt", "/dst.txt"))

	_, err = fs.Getattr("/src.txt")
	require.Error(t, err)

	data, err := fs.Read("/dst.txt", 7, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestRenameOfDirectoryIsNotSupported(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Mkdir("/d", 0o755))
	err := fs.Rename("/d", "/d2")
	require.Error(t, err)
	require.True(t, core.Is(err, core.NotSupported))
}

func TestRmdirRemovesEmptyDirectory(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Mkdir("/empty", 0o755))
	require.NoError(t, fs.Rmdir("/empty"))

	_, err := fs.Getattr("/empty")
	require.Error(t, err)
	require.True(t, core.Is(err, core.NotFound))
}

func TestWriteOnDirectoryFails(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Mkdir("/d", 0o755))
	_, err := fs.Write("/d", []byte("x"), 0)
	require.Error(t, err)
	require.True(t, core.Is(err, core.IsDirectory))
}
