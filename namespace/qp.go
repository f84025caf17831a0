package namespace

import (
	"strings"

	"github.com/grepro/spaghettifs/core"
)

const hexDigits = "0123456789ABCDEF"

// quote encodes name as quoted-printable with quotetabs=true,
// istext=false and no soft line-wraps: every byte outside the
// printable-ASCII range 33-126 is escaped as "=XX", '=' itself is
// always escaped, and tabs/spaces are always escaped rather than only
// at end-of-line (quotetabs=true). istext=false means newlines are
// data bytes like any other control byte, not line terminators, so
// they are escaped too. The reference encoder (Python's binascii.b2a_qp)
// additionally inserts soft "=\n" line breaks every 76 columns; those
// are immediately stripped again by its caller, so this encoder never
// produces them in the first place.
func quote(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '=':
			b.WriteByte('=')
			b.WriteByte('3')
			b.WriteByte('D')
		case c == '\t' || c == ' ':
			escapeByte(&b, c)
		case c >= 33 && c <= 126:
			b.WriteByte(c)
		default:
			escapeByte(&b, c)
		}
	}
	return b.String()
}

func escapeByte(b *strings.Builder, c byte) {
	b.WriteByte('=')
	b.WriteByte(hexDigits[c>>4])
	b.WriteByte(hexDigits[c&0x0f])
}

// unquote reverses quote, also tolerating a stripped-or-not soft
// line-break ("=\n") for robustness against input encoded by a
// strictly RFC-1521-conformant writer.
func unquote(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '=' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) && s[i+1] == '\n' {
			i++
			continue
		}
		if i+2 >= len(s) {
			return "", core.New(core.InvalidFormat, "namespace.unquote", "truncated escape sequence")
		}
		hi, ok1 := hexVal(s[i+1])
		lo, ok2 := hexVal(s[i+2])
		if !ok1 || !ok2 {
			return "", core.New(core.InvalidFormat, "namespace.unquote", "invalid escape sequence")
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}
