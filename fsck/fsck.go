// Package fsck implements the two structural invariants a namespace
// and inode table must jointly satisfy: every directory reference
// resolves to a live inode, and every inode's recorded link count
// equals the number of directory entries that actually point at it.
package fsck

import (
	"fmt"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/logx"
	"github.com/grepro/spaghettifs/namespace"
	"github.com/grepro/spaghettifs/session"
)

// Kind classifies a Problem for callers that want to render a
// line-per-issue report without parsing Message.
type Kind int

const (
	// KindMissingInode is a directory entry referencing an inode number
	// absent from the inode table.
	KindMissingInode Kind = iota
	// KindNlinkMismatch is an inode whose recorded nlink disagrees with
	// the number of directory entries actually pointing at it.
	KindNlinkMismatch
	// KindOrphanedInode is an inode with no directory references but a
	// nonzero recorded nlink.
	KindOrphanedInode
)

// Problem is one violated invariant found during a Check.
type Problem struct {
	Kind        Kind
	Path        string
	InodeNumber uint64
	Message     string
}

// Report is the full result of a Check.
type Report struct {
	DirsWalked  int
	FilesWalked int
	InodesTotal int
	Problems    []Problem
}

func (r *Report) OK() bool { return len(r.Problems) == 0 }

type walker struct {
	sess  *session.Session
	refs  map[uint64]int
	dirs  int
	files int
	probs []Problem
}

func (w *walker) problem(kind Kind, path string, number uint64, format string, args ...any) {
	w.probs = append(w.probs, Problem{
		Kind: kind, Path: path, InodeNumber: number,
		Message: fmt.Sprintf(format, args...),
	})
}

func (w *walker) walk(path string, d *namespace.Dir) error {
	entries, err := namespace.List(d)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childPath := path + "/" + e.Name
		if e.IsDir {
			child, err := namespace.OpenChild(d, e.Name)
			if err != nil {
				w.problem(KindMissingInode, childPath, e.InodeNumber, "failed to open subdirectory: %v", err)
				continue
			}
			w.dirs++
			if err := w.walk(childPath, child); err != nil {
				return err
			}
			continue
		}

		w.files++
		w.refs[e.InodeNumber]++
		if _, err := w.sess.Table().Get(e.InodeNumber); err != nil {
			if core.Is(err, core.NotFound) {
				w.problem(KindMissingInode, childPath, e.InodeNumber, "missing inode 'i%d'", e.InodeNumber)
			} else {
				return err
			}
		}
	}
	return nil
}

// Check walks every directory reachable from the session's root,
// counting directory-entry references to each inode, then compares
// those counts against every inode's recorded nlink and against the
// full set of inode numbers present in the table.
func Check(sess *session.Session) (*Report, error) {
	logx.L().Debug("fsck: walking namespace")
	w := &walker{sess: sess, refs: make(map[uint64]int)}
	if err := w.walk("", sess.Namespace().Root()); err != nil {
		return nil, err
	}
	logx.L().WithFields(map[string]any{"dirs": w.dirs, "files": w.files}).Debug("fsck: walk complete, checking nlink invariants")

	for number, count := range w.refs {
		in, err := sess.Table().Get(number)
		if err != nil {
			continue // already reported as a dangling reference above
		}
		nlink, err := in.Nlink()
		if err != nil {
			return nil, err
		}
		if uint64(count) != nlink {
			w.problem(KindNlinkMismatch, "", number, "inode %d: recorded nlink=%d but %d directory entries reference it", number, nlink, count)
		}
	}

	numbers, err := sess.Table().Numbers()
	if err != nil {
		return nil, err
	}
	for _, number := range numbers {
		if w.refs[number] == 0 {
			in, err := sess.Table().Get(number)
			if err != nil {
				return nil, err
			}
			nlink, err := in.Nlink()
			if err != nil {
				return nil, err
			}
			if nlink != 0 {
				w.problem(KindOrphanedInode, "", number, "inode %d has no directory references but nlink=%d", number, nlink)
			}
		}
	}

	report := &Report{
		DirsWalked:  w.dirs,
		FilesWalked: w.files,
		InodesTotal: len(numbers),
		Problems:    w.probs,
	}
	if report.OK() {
		logx.L().WithFields(map[string]any{"dirs": report.DirsWalked, "files": report.FilesWalked, "inodes": report.InodesTotal}).Info("fsck: clean")
	} else {
		logx.L().WithField("problems", len(report.Problems)).Warn("fsck: invariant violations found")
	}
	return report, nil
}
