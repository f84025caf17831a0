package inode_test

import (
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/grepro/spaghettifs/inode"
	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/staged"
)

func newInode(t *testing.T, number uint64) *inode.Inode {
	t.Helper()
	store, err := objectstore.InitMemory()
	require.NoError(t, err)
	root := staged.NewRoot(store, plumbing.ZeroHash)
	sub, err := root.NewTree("i")
	require.NoError(t, err)
	in, err := inode.Create(sub, number)
	require.NoError(t, err)
	return in
}

func TestCreateStampsDefaultMetadata(t *testing.T) {
	in := newInode(t, 3)
	require.EqualValues(t, 3, in.Number())

	mode, err := in.Mode()
	require.NoError(t, err)
	require.EqualValues(t, inode.DefaultMode, mode)

	nlink, err := in.Nlink()
	require.NoError(t, err)
	require.EqualValues(t, 1, nlink)

	size, err := in.Size()
	require.NoError(t, err)
	require.EqualValues(t, 0, size)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	in := newInode(t, 1)
	require.NoError(t, in.Write([]byte("hello world"), 0))

	data, err := in.Read(0, 11)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)

	size, err := in.Size()
	require.NoError(t, err)
	require.EqualValues(t, 11, size)
}

func TestWriteSpanningMultipleBlocksRoundTrips(t *testing.T) {
	in := newInode(t, 1)
	data := make([]byte, inode.BlockSize*2+100)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, in.Write(data, 0))

	got, err := in.Read(0, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestSparseWriteReadsZeroFilledGap(t *testing.T) {
	in := newInode(t, 1)
	require.NoError(t, in.Write([]byte("tail"), inode.BlockSize+10))

	size, err := in.Size()
	require.NoError(t, err)
	require.EqualValues(t, inode.BlockSize+14, size)

	gap, err := in.Read(0, 10)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 10), gap)

	tail, err := in.Read(inode.BlockSize+10, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("tail"), tail)
}

func TestTruncateGrowthZeroFillsAcrossBlocks(t *testing.T) {
	in := newInode(t, 1)
	require.NoError(t, in.Write([]byte("x"), 0))

	newSize := int64(inode.BlockSize*2 + 7)
	require.NoError(t, in.Truncate(newSize))

	size, err := in.Size()
	require.NoError(t, err)
	require.Equal(t, newSize, size)

	data, err := in.Read(0, newSize)
	require.NoError(t, err)
	require.Len(t, data, int(newSize))
	require.Equal(t, byte('x'), data[0])
	for _, b := range data[1:] {
		require.Equal(t, byte(0), b)
	}
}

func TestTruncateShrinkDropsTrailingBlocks(t *testing.T) {
	in := newInode(t, 1)
	data := make([]byte, inode.BlockSize*2)
	require.NoError(t, in.Write(data, 0))

	require.NoError(t, in.Truncate(10))
	size, err := in.Size()
	require.NoError(t, err)
	require.EqualValues(t, 10, size)

	got, err := in.Read(0, 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
}

func TestUnlinkDecrementsAndReportsDrain(t *testing.T) {
	in := newInode(t, 1)
	require.NoError(t, in.SetNlink(2))

	drained, err := in.Unlink()
	require.NoError(t, err)
	require.False(t, drained)
	nlink, err := in.Nlink()
	require.NoError(t, err)
	require.EqualValues(t, 1, nlink)

	drained, err = in.Unlink()
	require.NoError(t, err)
	require.True(t, drained)
}
