package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteUnquoteRoundTrips(t *testing.T) {
	cases := []string{
		"simple.txt",
		"with space.txt",
		"with\ttab",
		"unicode-\xc3\xa9.txt",
		"equals=sign",
		"newline\nembedded",
	}
	for _, name := range cases {
		q := quote(name)
		got, err := unquote(q)
		require.NoError(t, err)
		require.Equal(t, name, got)
	}
}

func TestQuoteEscapesSpacesTabsAndEquals(t *testing.T) {
	require.Equal(t, "a=20b", quote("a b"))
	require.Equal(t, "a=09b", quote("a\tb"))
	require.Equal(t, "a=3Db", quote("a=b"))
}

func TestQuoteLeavesPrintableAsciiUnescaped(t *testing.T) {
	require.Equal(t, "Hello-World_123", quote("Hello-World_123"))
}

func TestUnquoteRejectsTruncatedEscape(t *testing.T) {
	_, err := unquote("abc=4")
	require.Error(t, err)
}

func TestUnquoteRejectsInvalidHex(t *testing.T) {
	_, err := unquote("abc=ZZ")
	require.Error(t, err)
}

func TestUnquoteToleratesSoftLineBreak(t *testing.T) {
	got, err := unquote("abc=\ndef")
	require.NoError(t, err)
	require.Equal(t, "abcdef", got)
}
