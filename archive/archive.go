// Package archive exports and imports the full set of objects
// reachable from a commit's tree as a single gzip-compressed tar
// stream, for off-mount backup and restore independent of the mount's
// own commit history. Destinations are dispatched by URL scheme —
// local path, s3://, or (read-only) http(s):// — grounded on
// db/remote.go's detectScheme/openRemoteReader/openRemoteWriter
// pattern.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v6/plumbing"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/objectstore"
)

const (
	rootEntryName = "root"
	blobPrefix    = "blob/"
	treePrefix    = "tree/"
)

// Export walks every tree and blob reachable from root and writes them
// as a gzip-tar stream to dest.
func Export(store *objectstore.Store, root plumbing.Hash, dest string, cfg *Config) error {
	w, err := openWriter(dest, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	visited := make(map[plumbing.Hash]bool)
	if err := writeObject(tw, store, root, visited); err != nil {
		return err
	}
	if err := writeEntry(tw, rootEntryName, []byte(root.String())); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return core.Wrap(core.StoreError, "archive.Export", err)
	}
	if err := gz.Close(); err != nil {
		return core.Wrap(core.StoreError, "archive.Export", err)
	}
	return nil
}

func writeObject(tw *tar.Writer, store *objectstore.Store, hash plumbing.Hash, visited map[plumbing.Hash]bool) error {
	if visited[hash] {
		return nil
	}
	visited[hash] = true

	entries, err := store.Tree(hash)
	if err == nil {
		for _, e := range entries {
			if err := writeObject(tw, store, e.Hash, visited); err != nil {
				return err
			}
		}
		return writeEntry(tw, treePrefix+hash.String(), encodeTreeEntries(entries))
	}

	data, berr := store.Blob(hash)
	if berr != nil {
		return core.Wrap(core.StoreError, "archive.writeObject", berr)
	}
	return writeEntry(tw, blobPrefix+hash.String(), data)
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return core.Wrap(core.StoreError, "archive.writeEntry", err)
	}
	if _, err := tw.Write(data); err != nil {
		return core.Wrap(core.StoreError, "archive.writeEntry", err)
	}
	return nil
}

// encodeTreeEntries serializes a tree's child entries as one line per
// entry: "<d|f> <hash> <name>".
func encodeTreeEntries(entries []objectstore.Entry) []byte {
	var b strings.Builder
	for _, e := range entries {
		kind := "f"
		if e.Dir {
			kind = "d"
		}
		fmt.Fprintf(&b, "%s %s %s\n", kind, e.Hash.String(), e.Name)
	}
	return []byte(b.String())
}

func decodeTreeEntries(data []byte) ([]objectstore.Entry, error) {
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	entries := make([]objectstore.Entry, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			return nil, core.New(core.InvalidFormat, "archive.decodeTreeEntries", "malformed line: "+line)
		}
		entries = append(entries, objectstore.Entry{
			Dir:  parts[0] == "d",
			Hash: plumbing.NewHash(parts[1]),
			Name: parts[2],
		})
	}
	return entries, nil
}

// Import reads a gzip-tar stream from src and replays every object
// into store, returning the hash of the restored root tree.
func Import(store *objectstore.Store, src string, cfg *Config) (plumbing.Hash, error) {
	r, err := openReader(src, cfg)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer r.Close()

	gz, err := gzip.NewReader(r)
	if err != nil {
		return plumbing.ZeroHash, core.Wrap(core.StoreError, "archive.Import", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	blobs := make(map[plumbing.Hash][]byte)
	trees := make(map[plumbing.Hash][]objectstore.Entry)
	var root plumbing.Hash

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return plumbing.ZeroHash, core.Wrap(core.StoreError, "archive.Import", err)
		}
		data := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, data); err != nil {
			return plumbing.ZeroHash, core.Wrap(core.StoreError, "archive.Import", err)
		}

		switch {
		case hdr.Name == rootEntryName:
			root = plumbing.NewHash(string(data))
		case strings.HasPrefix(hdr.Name, blobPrefix):
			blobs[plumbing.NewHash(strings.TrimPrefix(hdr.Name, blobPrefix))] = data
		case strings.HasPrefix(hdr.Name, treePrefix):
			entries, err := decodeTreeEntries(data)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			trees[plumbing.NewHash(strings.TrimPrefix(hdr.Name, treePrefix))] = entries
		}
	}
	if root == plumbing.ZeroHash {
		return plumbing.ZeroHash, core.New(core.InvalidFormat, "archive.Import", "archive has no root marker")
	}

	cache := make(map[plumbing.Hash]plumbing.Hash)
	newRoot, err := reconstruct(store, root, blobs, trees, cache)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return newRoot, nil
}

func reconstruct(
	store *objectstore.Store,
	hash plumbing.Hash,
	blobs map[plumbing.Hash][]byte,
	trees map[plumbing.Hash][]objectstore.Entry,
	cache map[plumbing.Hash]plumbing.Hash,
) (plumbing.Hash, error) {
	if h, ok := cache[hash]; ok {
		return h, nil
	}

	if entries, ok := trees[hash]; ok {
		rebuilt := make([]objectstore.Entry, len(entries))
		copy(rebuilt, entries)
		sort.Slice(rebuilt, func(i, j int) bool { return rebuilt[i].Name < rebuilt[j].Name })
		for i, e := range rebuilt {
			childHash, err := reconstruct(store, e.Hash, blobs, trees, cache)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			rebuilt[i].Hash = childHash
		}
		newHash, err := store.NewTree(rebuilt)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		cache[hash] = newHash
		return newHash, nil
	}

	if data, ok := blobs[hash]; ok {
		newHash, err := store.NewBlob(data)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		cache[hash] = newHash
		return newHash, nil
	}

	return plumbing.ZeroHash, core.New(core.NotFound, "archive.reconstruct", "missing object "+hash.String()+" in archive")
}
