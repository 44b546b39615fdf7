package summarize

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"jobrelay-engine/internal/scrape/util"
)

var ErrMalformedResponse = errors.New("malformed model response")

// MinResponseLength is the shortest cleaned response accepted, in runes.
const MinResponseLength = 40

var (
	mdLinkRe   = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	mdBoldRe   = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	mdItalicRe = regexp.MustCompile(`(^|[^*\w])\*([^*\n]+)\*`)
	mdHeadRe   = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`)
	mdBulletRe = regexp.MustCompile(`(?m)^[ \t]*[*\-][ \t]+`)
	mdRuleRe   = regexp.MustCompile(`(?m)^[ \t]*(-{3,}|\*{3,}|_{3,})[ \t]*$`)
)

// Clean strips markdown syntax and any preamble before the first section
// marker. The result is plain text.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "```", "")
	s = mdRuleRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1 ($2)")
	s = mdBoldRe.ReplaceAllString(s, "$2")
	s = mdItalicRe.ReplaceAllString(s, "$1$2")
	s = mdHeadRe.ReplaceAllString(s, "")
	s = mdBulletRe.ReplaceAllString(s, "• ")
	s = strings.ReplaceAll(s, "`", "")

	if i := firstMarker(s); i > 0 {
		s = s[i:]
	}
	return util.CleanLines(s)
}

func firstMarker(s string) int {
	best := -1
	for _, m := range Markers {
		for _, cand := range []string{m, strings.TrimPrefix(m, "🔹 ")} {
			if i := strings.Index(s, cand); i >= 0 && (best < 0 || i < best) {
				best = i
			}
		}
	}
	if best <= 0 {
		return best
	}
	// cut at the start of the marker's line so a leading emoji survives
	if nl := strings.LastIndex(s[:best], "\n"); nl >= 0 {
		return nl + 1
	}
	return 0
}

// Validate rejects empty, too-short or unstructured responses.
func Validate(cleaned string) error {
	if strings.TrimSpace(cleaned) == "" {
		return errors.Join(ErrMalformedResponse, errors.New("empty response"))
	}
	if utf8.RuneCountInString(cleaned) < MinResponseLength {
		return errors.Join(ErrMalformedResponse, errors.New("response too short"))
	}
	if firstMarker(cleaned) < 0 {
		return errors.Join(ErrMalformedResponse, errors.New("no section markers"))
	}
	return nil
}
