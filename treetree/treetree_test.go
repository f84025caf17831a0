package treetree_test

import (
	"sort"
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/staged"
	"github.com/grepro/spaghettifs/treetree"
)

func newContainer(t *testing.T) *staged.Tree {
	t.Helper()
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	return staged.NewRoot(store, plumbing.ZeroHash)
}

func TestNewBlobAndGetAcrossDigitLengths(t *testing.T) {
	container := newContainer(t)
	tt := treetree.New(container, "inodes")

	_, err := tt.NewBlob("7")
	require.NoError(t, err)
	_, err = tt.NewBlob("42")
	require.NoError(t, err)
	_, err = tt.NewBlob("123")
	require.NoError(t, err)

	for _, key := range []string{"7", "42", "123"} {
		obj, err := tt.Get(key)
		require.NoError(t, err)
		require.IsType(t, &staged.Blob{}, obj)
	}
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	container := newContainer(t)
	tt := treetree.New(container, "inodes")
	_, err := tt.Get("9")
	require.Error(t, err)

	_, err = tt.NewBlob("99")
	require.NoError(t, err)
	_, err = tt.Get("98")
	require.Error(t, err)
}

func TestRejectsNonDigitKeys(t *testing.T) {
	container := newContainer(t)
	tt := treetree.New(container, "inodes")
	_, err := tt.NewBlob("")
	require.Error(t, err)
	_, err = tt.NewBlob("12a")
	require.Error(t, err)
}

func TestKeysEnumeratesAcrossLengthsAndPrefixes(t *testing.T) {
	container := newContainer(t)
	inodes := treetree.New(container, "inodes")
	blocks := treetree.New(container, "blocks")

	for _, key := range []string{"1", "23", "456"} {
		_, err := inodes.NewBlob(key)
		require.NoError(t, err)
	}
	_, err := blocks.NewBlob("7")
	require.NoError(t, err)

	keys, err := inodes.Keys()
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"1", "23", "456"}, keys)

	blockKeys, err := blocks.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"7"}, blockKeys)
}

func TestDeletePrunesEmptyAncestorSubtrees(t *testing.T) {
	container := newContainer(t)
	tt := treetree.New(container, "inodes")

	_, err := tt.NewBlob("123")
	require.NoError(t, err)
	require.NoError(t, tt.Delete("123"))

	_, err = tt.Get("123")
	require.Error(t, err)

	keys, err := container.Keys()
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestDeleteLeavesSiblingsIntact(t *testing.T) {
	container := newContainer(t)
	tt := treetree.New(container, "inodes")

	_, err := tt.NewBlob("12")
	require.NoError(t, err)
	_, err = tt.NewBlob("13")
	require.NoError(t, err)

	require.NoError(t, tt.Delete("12"))

	_, err = tt.Get("13")
	require.NoError(t, err)
	keys, err := tt.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"13"}, keys)
}

func TestCloneAttachesExistingObjectWithoutCopying(t *testing.T) {
	containerA := newContainer(t)
	ttA := treetree.New(containerA, "blocks")
	blob, err := ttA.NewBlob("5")
	require.NoError(t, err)
	blob.SetData([]byte("payload"))

	ttB := treetree.New(containerA, "inodes")
	require.NoError(t, ttB.Clone(blob, "1"))

	obj, err := ttB.Get("1")
	require.NoError(t, err)
	data, err := obj.(*staged.Blob).Data()
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestNewTreeNestsUnderKey(t *testing.T) {
	container := newContainer(t)
	tt := treetree.New(container, "dirblocks")
	sub, err := tt.NewTree("3")
	require.NoError(t, err)
	_, err = sub.NewBlob("child")
	require.NoError(t, err)

	obj, err := tt.Get("3")
	require.NoError(t, err)
	children, err := obj.(*staged.Tree).Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"child"}, children)
}
