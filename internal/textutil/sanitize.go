package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxFileNameBytes = 200
	maxExtBytes      = 10
)

// fileNameRune maps one rune of an untrusted file name: path separators,
// colons and asterisks become dashes; shell and Windows metacharacters and
// control runes are dropped.
func fileNameRune(r rune) rune {
	switch {
	case r == '/', r == '\\', r == ':', r == '*':
		return '-'
	case strings.ContainsRune(`?"<>|`, r), unicode.IsControl(r):
		return -1
	default:
		return r
	}
}

// SanitizeFileName makes an untrusted name safe to use as a single path
// element. Leading dots are removed so the result is never hidden or a
// parent reference, and the name is capped at 200 bytes with its extension
// preserved.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(strings.Map(fileNameRune, name))
	name = strings.TrimLeft(name, ".")
	if len(name) <= maxFileNameBytes {
		return name
	}
	var ext string
	if idx := strings.LastIndexByte(name, '.'); idx > 0 && len(name)-idx <= maxExtBytes {
		name, ext = name[:idx], name[idx:]
	}
	return strings.TrimSpace(truncateUTF8(name, maxFileNameBytes-len(ext))) + ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// SanitizeToken reduces value to a lowercase ASCII token for directory
// names: accents are stripped, runs of anything other than letters, digits,
// '-' and '_' collapse to a single underscore. Empty results become
// "unknown".
func SanitizeToken(value string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(stripMarks(value)) {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	if out := strings.Trim(b.String(), "_-"); out != "" {
		return out
	}
	return "unknown"
}
