// Package manifest implements FeatureManifest: the JSON blob that
// records a repository's on-disk format flags and gates which
// migrations apply. A reader that does not recognize a required
// feature's value must refuse to open the repository rather than guess
// at compatibility.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/staged"
)

// Manifest is the decoded form of the "features" blob.
type Manifest struct {
	NextInodeNumber  uint64 `json:"next_inode_number"`
	InodeFormat      string `json:"inode_format"`
	InodeIndexFormat string `json:"inode_index_format"`
}

// Current is the set of feature values a freshly created repository is
// stamped with, and the only values this build's inode and inode-table
// code knows how to read.
var Current = Manifest{
	NextInodeNumber:  1,
	InodeFormat:      "treetree",
	InodeIndexFormat: "treetree",
}

// Load decodes the manifest blob as-is, including a pre-migration
// manifest whose format flags are still empty — callers that must
// refuse an unrecognized format call VerifySupported themselves.
// migrate.Apply relies on Load tolerating exactly this case: it is the
// thing that fills those flags in.
func Load(blob *staged.Blob) (Manifest, error) {
	data, err := blob.Data()
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, core.Wrap(core.InvalidFormat, "manifest.Load", err)
	}
	return m, nil
}

// Store re-encodes m into blob.
func Store(blob *staged.Blob, m Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return core.Wrap(core.InvalidFormat, "manifest.Store", err)
	}
	blob.SetData(data)
	return nil
}

// VerifySupported checks that m's format flags are ones this build
// understands, per the inode and inode-table code actually implemented
// here — "treetree" for both.
func VerifySupported(m Manifest) error {
	if m.InodeFormat != "treetree" {
		return core.New(core.InvalidFormat, "manifest.VerifySupported", fmt.Sprintf("unsupported inode_format %q", m.InodeFormat))
	}
	if m.InodeIndexFormat != "treetree" {
		return core.New(core.InvalidFormat, "manifest.VerifySupported", fmt.Sprintf("unsupported inode_index_format %q", m.InodeIndexFormat))
	}
	return nil
}
