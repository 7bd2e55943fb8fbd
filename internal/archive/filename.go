package archive

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTitleBytes    = 180
	maxFilenameBytes = 255
	fallbackFilename = "untitled"
	illegalRunes     = `<>:"|?*`
)

// SanitizeFilename turns an article title into a single path component that is
// safe on common filesystems. The result is never empty and applying it twice
// yields the same value.
func SanitizeFilename(title string) string {
	return sanitize(title, maxTitleBytes)
}

func sanitize(title string, limit int) string {
	var b strings.Builder
	b.Grow(len(title))
	lastSpace := false
	for _, r := range title {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		case r == '/' || r == '\\' || unicode.IsControl(r) || strings.ContainsRune(illegalRunes, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
		lastSpace = false
	}
	name := trimFilename(b.String())
	name = trimFilename(truncateRunes(name, limit))
	if name == "" {
		return fallbackFilename
	}
	return name
}

func trimFilename(s string) string {
	return strings.Trim(s, " ._")
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
