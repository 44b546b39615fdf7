package util

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlRe   = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// ExtractContacts pulls emails, links and phone-like numbers out of free
// text, preserving first-seen order and dropping duplicates.
func ExtractContacts(text string) []string {
	type hit struct {
		pos int
		val string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{urlRe, emailRe, phoneRe} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			v := strings.TrimRight(text[loc[0]:loc[1]], ".,;:")
			if re == phoneRe && countDigits(v) < 9 {
				continue
			}
			hits = append(hits, hit{pos: loc[0], val: v})
		}
	}

	// order by position; emails inside URLs and numbers inside URLs are dropped
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := map[string]bool{}
	var out []string
	end := -1
	for _, h := range hits {
		if h.pos < end {
			continue
		}
		end = h.pos + len(h.val)
		v := strings.TrimSpace(h.val)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// IsEmail reports whether s looks like a bare email address.
func IsEmail(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "mailto:")
	return emailRe.FindString(s) == s && s != ""
}

// IsPhone reports whether s looks like a phone number.
func IsPhone(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "tel:")
	return s != "" && phoneRe.FindString(s) == s && countDigits(s) >= 9
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
