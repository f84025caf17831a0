// Package inode implements per-file metadata and block storage: an
// Inode owns a "meta" blob (mode/nlink/uid/gid/size, as decimal or
// octal text lines) and a digit-trie of fixed-size data blocks, and
// exposes byte-granularity read/write/truncate over that block index.
package inode

import (
	"strconv"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/staged"
	"github.com/grepro/spaghettifs/treetree"
)

// BlockSize is the fixed size of one data block.
const BlockSize = core.BlockSize

// DefaultMode is the mode a freshly allocated regular-file inode is
// stamped with: S_IFREG | 0644.
const DefaultMode = 0o100644

// Inode is a handle onto one inode subtree ("i<number>").
type Inode struct {
	tree   *staged.Tree
	number uint64
	meta   *staged.Blob
	blocks *treetree.TreeTree
}

// Open wraps an existing inode subtree.
func Open(tree *staged.Tree, number uint64) (*Inode, error) {
	obj, err := tree.Get("meta")
	if err != nil {
		return nil, err
	}
	meta, ok := obj.(*staged.Blob)
	if !ok {
		return nil, core.New(core.InvalidFormat, "inode.Open", "meta is not a blob")
	}
	return &Inode{tree: tree, number: number, meta: meta, blocks: treetree.New(tree, "bt")}, nil
}

// Create initializes a brand-new inode subtree with default metadata:
// mode=0100644, nlink=1, uid=0, gid=0, size=0.
func Create(tree *staged.Tree, number uint64) (*Inode, error) {
	meta, err := tree.NewBlob("meta")
	if err != nil {
		return nil, err
	}
	pairs := []metaLine{
		{key: "mode", value: formatMode(DefaultMode)},
		{key: "nlink", value: "1"},
		{key: "uid", value: "0"},
		{key: "gid", value: "0"},
		{key: "size", value: "0"},
	}
	writeMeta(meta, pairs)
	return &Inode{tree: tree, number: number, meta: meta, blocks: treetree.New(tree, "bt")}, nil
}

// Number returns the inode's number.
func (in *Inode) Number() uint64 { return in.number }

func (in *Inode) get(key string) (string, error) {
	pairs, err := readMeta(in.meta)
	if err != nil {
		return "", err
	}
	v, ok := metaGet(pairs, key)
	if !ok {
		return "", core.New(core.InvalidFormat, "inode.get", "missing meta key "+key)
	}
	return v, nil
}

func (in *Inode) set(key, value string) error {
	pairs, err := readMeta(in.meta)
	if err != nil {
		return err
	}
	writeMeta(in.meta, metaSet(pairs, key, value))
	return nil
}

// Mode returns the inode's file mode, including its S_IF* type bits.
func (in *Inode) Mode() (uint32, error) {
	pairs, err := readMeta(in.meta)
	if err != nil {
		return 0, err
	}
	return parseMode(pairs)
}

// SetMode overwrites the inode's mode.
func (in *Inode) SetMode(mode uint32) error { return in.set("mode", formatMode(mode)) }

// Nlink returns the inode's link count.
func (in *Inode) Nlink() (uint64, error) { return in.decimal("nlink") }

// SetNlink overwrites the inode's link count.
func (in *Inode) SetNlink(n uint64) error { return in.set("nlink", formatDecimal(n)) }

// Uid returns the inode's owning user id.
func (in *Inode) Uid() (uint64, error) { return in.decimal("uid") }

// Gid returns the inode's owning group id.
func (in *Inode) Gid() (uint64, error) { return in.decimal("gid") }

// Size returns the inode's logical byte size.
func (in *Inode) Size() (int64, error) {
	n, err := in.decimal("size")
	return int64(n), err
}

func (in *Inode) setSize(size int64) error { return in.set("size", formatDecimal(uint64(size))) }

// SetSize overwrites the inode's recorded size directly, without
// touching any block data. Exported for format migrations that
// reorganize block storage out from under an inode and must restate
// its size afterward.
func (in *Inode) SetSize(size int64) error { return in.setSize(size) }

func (in *Inode) decimal(key string) (uint64, error) {
	pairs, err := readMeta(in.meta)
	if err != nil {
		return 0, err
	}
	return parseDecimal(pairs, key)
}

func blockKey(n int64) string { return strconv.FormatInt(n, 10) }

func (in *Inode) readBlock(n int64) ([]byte, error) {
	obj, err := in.blocks.Get(blockKey(n))
	if core.Is(err, core.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	blob, ok := obj.(*staged.Blob)
	if !ok {
		return nil, core.New(core.InvalidFormat, "inode.readBlock", "block entry is not a blob")
	}
	return blob.Data()
}

func (in *Inode) writeBlock(n int64, data []byte) error {
	key := blockKey(n)
	present, err := in.blocks.Contains(key)
	if err != nil {
		return err
	}
	if present {
		obj, err := in.blocks.Get(key)
		if err != nil {
			return err
		}
		blob, ok := obj.(*staged.Blob)
		if !ok {
			return core.New(core.InvalidFormat, "inode.writeBlock", "block entry is not a blob")
		}
		blob.SetData(data)
		return nil
	}
	blob, err := in.blocks.NewBlob(key)
	if err != nil {
		return err
	}
	blob.SetData(data)
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Read returns up to length bytes starting at offset, clamped to the
// inode's current size.
func (in *Inode) Read(offset, length int64) ([]byte, error) {
	size, err := in.Size()
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	length = max64(0, min64(length, size-offset))
	if length == 0 {
		return []byte{}, nil
	}
	end := offset + length

	out := make([]byte, 0, length)
	for n := offset / BlockSize; n <= (end-1)/BlockSize; n++ {
		block, err := in.readBlock(n)
		if err != nil {
			return nil, err
		}
		base := n * BlockSize
		localStart := max64(0, offset-base)
		localEnd := min64(BlockSize, end-base)
		if localStart >= int64(len(block)) {
			// Missing tail of a short block reads as zero-length, not
			// an error: only bytes actually written exist.
			continue
		}
		if localEnd > int64(len(block)) {
			localEnd = int64(len(block))
		}
		out = append(out, block[localStart:localEnd]...)
	}
	return out, nil
}

// Write overwrites length(data) bytes starting at offset, zero-padding
// first if offset lies beyond the current size, and grows size if the
// write extends past it.
func (in *Inode) Write(data []byte, offset int64) error {
	size, err := in.Size()
	if err != nil {
		return err
	}
	if offset > size {
		if err := in.Truncate(offset); err != nil {
			return err
		}
		size = offset
	}
	if len(data) == 0 {
		return nil
	}
	end := offset + int64(len(data))

	for n := offset / BlockSize; n <= (end-1)/BlockSize; n++ {
		base := n * BlockSize
		existing, err := in.readBlock(n)
		if err != nil {
			return err
		}
		localStart := max64(0, offset-base)
		localEnd := min64(BlockSize, end-base)

		bufLen := max64(int64(len(existing)), localEnd)
		buf := make([]byte, bufLen)
		copy(buf, existing)

		srcStart := base + localStart - offset
		copy(buf[localStart:localEnd], data[srcStart:srcStart+(localEnd-localStart)])

		if err := in.writeBlock(n, buf); err != nil {
			return err
		}
	}

	if end > size {
		return in.setSize(end)
	}
	return nil
}

// Truncate resizes the inode to newSize, zero-padding on growth and
// trimming/deleting blocks on shrink.
func (in *Inode) Truncate(newSize int64) error {
	size, err := in.Size()
	if err != nil {
		return err
	}
	if newSize == size {
		return nil
	}
	if size < newSize {
		// TODO: growth past the current last block still reads a zeroed
		// tail for free; only the padding up to newSize is written here,
		// one block at a time, to avoid holding (newSize-size) bytes of
		// zeros in memory at once.
		for off := size; off < newSize; off += BlockSize {
			chunk := min64(BlockSize, newSize-off)
			if err := in.Write(make([]byte, chunk), off); err != nil {
				return err
			}
		}
		return nil
	}

	startBlock := newSize / BlockSize
	endBlock := int64(-1)
	if size > 0 {
		endBlock = (size - 1) / BlockSize
	}
	for n := startBlock; n <= endBlock; n++ {
		if n == startBlock && newSize%BlockSize > 0 {
			existing, err := in.readBlock(n)
			if err != nil {
				return err
			}
			localLen := newSize % BlockSize
			if int64(len(existing)) > localLen {
				if err := in.writeBlock(n, existing[:localLen]); err != nil {
					return err
				}
			}
			continue
		}
		if err := in.blocks.Delete(blockKey(n)); err != nil && !core.Is(err, core.NotFound) {
			return err
		}
	}
	return in.setSize(newSize)
}

// Unlink decrements the link count and reports whether it reached
// zero, in which case the caller (the inode table) must drop this
// inode's subtree and evict it from the live inode cache.
func (in *Inode) Unlink() (drained bool, err error) {
	nlink, err := in.Nlink()
	if err != nil {
		return false, err
	}
	nlink--
	if nlink > 0 {
		return false, in.SetNlink(nlink)
	}
	return true, nil
}
