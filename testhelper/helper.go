package testhelper

import (
	"regexp"
	"strings"
	"testing"
)

var leadingIndent = regexp.MustCompile(`^[ \t]*`)

// TrimIndent removes the indentation of a raw string literal. The first
// line (right after the opening backquote) is dropped and the indentation
// of the second line is removed from every line. Whitespace-only lines
// become empty.
func TrimIndent(t *testing.T, src string) string {
	t.Helper()

	lines := strings.Split(src, "\n")
	if len(lines) < 2 {
		return src
	}

	indent := leadingIndent.FindString(lines[1])

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}

		lines[i] = strings.TrimPrefix(line, indent)
	}

	return strings.Join(lines[1:], "\n")
}

// CRLF converts line breaks to CRLF as used on the multipart wire.
func CRLF(src string) string {
	return strings.ReplaceAll(strings.ReplaceAll(src, "\r\n", "\n"), "\n", "\r\n")
}

// Wire is TrimIndent followed by CRLF.
func Wire(t *testing.T, src string) string {
	t.Helper()

	return CRLF(TrimIndent(t, src))
}
