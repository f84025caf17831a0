package namespace

import (
	"strconv"
	"strings"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/staged"
)

// Entry is one decoded line of a directory listing blob.
type Entry struct {
	Name        string
	IsDir       bool
	InodeNumber uint64
}

const dirTarget = "/"

func parseLsLine(line string) (qname, target string, err error) {
	i := strings.LastIndexByte(line, ' ')
	if i < 0 {
		return "", "", core.New(core.InvalidFormat, "namespace.parseLsLine", "missing separator")
	}
	return line[:i], line[i+1:], nil
}

// parseEntries decodes every line of an .ls blob's contents.
func parseEntries(data []byte) ([]Entry, error) {
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		qname, target, err := parseLsLine(line)
		if err != nil {
			return nil, err
		}
		name, err := unquote(qname)
		if err != nil {
			return nil, err
		}
		if target == dirTarget {
			entries = append(entries, Entry{Name: name, IsDir: true})
			continue
		}
		if !strings.HasPrefix(target, "i") {
			return nil, core.New(core.InvalidFormat, "namespace.parseEntries", "bad target "+target)
		}
		n, err := strconv.ParseUint(target[1:], 10, 64)
		if err != nil {
			return nil, core.Wrap(core.InvalidFormat, "namespace.parseEntries", err)
		}
		entries = append(entries, Entry{Name: name, InodeNumber: n})
	}
	return entries, nil
}

// List returns every entry in the directory's listing.
func List(d *Dir) ([]Entry, error) {
	data, err := d.ls.Data()
	if err != nil {
		return nil, err
	}
	return parseEntries(data)
}

// lookupLine finds name's raw ls line by comparing against the quoted
// form directly, so the whole listing need not be decoded.
func lookupLine(ls *staged.Blob, name string) (target string, found bool, err error) {
	data, err := ls.Data()
	if err != nil {
		return "", false, err
	}
	q := quote(name)
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return "", false, nil
	}
	for _, line := range strings.Split(text, "\n") {
		qname, tgt, err := parseLsLine(line)
		if err != nil {
			return "", false, err
		}
		if qname == q {
			return tgt, true, nil
		}
	}
	return "", false, nil
}

// Lookup resolves name within d's listing without decoding every other
// entry.
func Lookup(d *Dir, name string) (Entry, bool, error) {
	target, found, err := lookupLine(d.ls, name)
	if err != nil || !found {
		return Entry{}, found, err
	}
	if target == dirTarget {
		return Entry{Name: name, IsDir: true}, true, nil
	}
	if !strings.HasPrefix(target, "i") {
		return Entry{}, false, core.New(core.InvalidFormat, "namespace.Lookup", "bad target "+target)
	}
	n, err := strconv.ParseUint(target[1:], 10, 64)
	if err != nil {
		return Entry{}, false, core.Wrap(core.InvalidFormat, "namespace.Lookup", err)
	}
	return Entry{Name: name, InodeNumber: n}, true, nil
}

func appendLsLine(ls *staged.Blob, qname, target string) error {
	data, err := ls.Data()
	if err != nil {
		return err
	}
	line := qname + " " + target + "\n"
	ls.SetData(append(append([]byte{}, data...), []byte(line)...))
	return nil
}

// removeLsLine rewrites the listing with the single line named qname
// omitted. Exactly one line must match.
func removeLsLine(ls *staged.Blob, qname string) error {
	data, err := ls.Data()
	if err != nil {
		return err
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return core.New(core.NotFound, "namespace.removeLsLine", qname)
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	removed := false
	for _, line := range lines {
		qn, _, err := parseLsLine(line)
		if err != nil {
			return err
		}
		if !removed && qn == qname {
			removed = true
			continue
		}
		out = append(out, line)
	}
	if !removed {
		return core.New(core.NotFound, "namespace.removeLsLine", qname)
	}
	var result string
	if len(out) > 0 {
		result = strings.Join(out, "\n") + "\n"
	}
	ls.SetData([]byte(result))
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return core.New(core.InvalidName, "namespace.validateName", "reserved name")
	}
	if strings.Contains(name, "/") {
		return core.New(core.InvalidName, "namespace.validateName", "name contains '/'")
	}
	if len(name) > core.MaxNameLen {
		return core.New(core.InvalidName, "namespace.validateName", "name too long")
	}
	return nil
}
