package format

import (
	"strings"
	"unicode"
)

// Truncate shortens plain text s to at most limit visible units. Text that
// already fits is returned unchanged. Otherwise it cuts at the last section
// separator that fits, then the last line break, then a word boundary or
// rune boundary, and appends the ellipsis.
func Truncate(s string, limit int, sep, ellipsis string) string {
	if utf16Len(s) <= limit {
		return s
	}
	room := limit - utf16Len(ellipsis)
	if room <= 0 {
		return prefixWithin(ellipsis, limit)
	}

	prefix := prefixWithin(s, room)
	cut := -1
	if sep != "" {
		cut = strings.LastIndex(prefix, sep)
	}
	if cut <= 0 {
		cut = strings.LastIndex(prefix, "\n")
	}
	if cut <= 0 {
		if i := strings.LastIndexFunc(prefix, unicode.IsSpace); i > len(prefix)/2 {
			cut = i
		}
	}
	if cut > 0 {
		prefix = prefix[:cut]
	}
	return strings.TrimRightFunc(prefix, unicode.IsSpace) + ellipsis
}

// prefixWithin returns the longest rune-aligned prefix of s whose UTF-16
// length is at most limit.
func prefixWithin(s string, limit int) string {
	n := 0
	for i, r := range s {
		w := 1
		if r >= 0x10000 {
			w = 2
		}
		if n+w > limit {
			return s[:i]
		}
		n += w
	}
	return s
}
