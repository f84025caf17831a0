package core

// BlockSize is the fixed size of a file-data block blob. A file's
// contents are split into BlockSize-sized blocks, indexed by block
// number (offset / BlockSize) in a TreeTree under the inode.
const BlockSize = 65536

// MaxNameLen is the longest a single path component may be.
const MaxNameLen = 255

// WriteBufferSize is the accumulated-write-bytes threshold that
// triggers an amended commit on the "mounted" branch during a live
// session.
const WriteBufferSize = 3 * 1024 * 1024

// Top-level tree entry names, fixed by the on-disk data model.
const (
	EntryInodes   = "inodes"
	EntryRootLs   = "root.ls"
	EntryRootSub  = "root.sub"
	EntryFeatures = "features"
)

// TreeTree prefixes.
const (
	InodeTablePrefix = "it"
	BlockTreePrefix  = "bt"
)

// Branch names.
const (
	BranchMaster  = "master"
	BranchMounted = "mounted"
)
