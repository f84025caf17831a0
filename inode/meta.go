package inode

import (
	"strconv"
	"strings"

	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/staged"
)

// metaLine is one "key: value" pair. Kept as an ordered slice rather
// than a map so that keys this build does not know about round-trip
// verbatim and in their original position.
type metaLine struct {
	key, value string
}

func decodeMeta(data []byte) []metaLine {
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	pairs := make([]metaLine, 0, len(lines))
	for _, line := range lines {
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		pairs = append(pairs, metaLine{key: k, value: v})
	}
	return pairs
}

func encodeMeta(pairs []metaLine) []byte {
	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p.key)
		b.WriteString(": ")
		b.WriteString(p.value)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func metaGet(pairs []metaLine, key string) (string, bool) {
	for _, p := range pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

func metaSet(pairs []metaLine, key, value string) []metaLine {
	for i := range pairs {
		if pairs[i].key == key {
			pairs[i].value = value
			return pairs
		}
	}
	return append(pairs, metaLine{key: key, value: value})
}

// readMeta loads and decodes an inode's meta blob.
func readMeta(blob *staged.Blob) ([]metaLine, error) {
	data, err := blob.Data()
	if err != nil {
		return nil, err
	}
	return decodeMeta(data), nil
}

func writeMeta(blob *staged.Blob, pairs []metaLine) {
	blob.SetData(encodeMeta(pairs))
}

func parseDecimal(pairs []metaLine, key string) (uint64, error) {
	v, ok := metaGet(pairs, key)
	if !ok {
		return 0, core.New(core.InvalidFormat, "inode.parseDecimal", "missing meta key "+key)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, core.Wrap(core.InvalidFormat, "inode.parseDecimal", err)
	}
	return n, nil
}

func formatDecimal(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func parseMode(pairs []metaLine) (uint32, error) {
	v, ok := metaGet(pairs, "mode")
	if !ok {
		return 0, core.New(core.InvalidFormat, "inode.parseMode", "missing meta key mode")
	}
	n, err := strconv.ParseUint(v, 8, 32)
	if err != nil {
		return 0, core.Wrap(core.InvalidFormat, "inode.parseMode", err)
	}
	return uint32(n), nil
}

// formatMode serializes mode as "0<octal digits>", per the meta blob's
// "mode: 0<octal>" convention.
func formatMode(mode uint32) string {
	return "0" + strconv.FormatUint(uint64(mode), 8)
}
