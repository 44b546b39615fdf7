package util

import "strings"

var (
	LocationLabels = []string{"location:", "locations:", "job location:", "الموقع:", "مكان العمل:"}
	DeadlineLabels = []string{"deadline:", "closing date:", "apply before:", "آخر موعد للتقديم:", "الموعد النهائي:"}
)

// ExtractLabeled returns the short value following the first label found in
// s, e.g. "Location: Riyadh" -> "Riyadh".
func ExtractLabeled(s string, labels []string) string {
	low := strings.ToLower(s)

	for _, lab := range labels {
		i := strings.Index(low, strings.ToLower(lab))
		if i < 0 {
			continue
		}
		rest := strings.TrimSpace(s[i+len(lab):])

		// stop at newline-ish boundaries if present
		for _, cut := range []string{"\n", "\r", " | ", " · "} {
			if j := strings.Index(rest, cut); j >= 0 {
				rest = rest[:j]
			}
		}

		rest = CleanText(rest)
		if rest != "" && len([]rune(rest)) <= 80 {
			return rest
		}
	}
	return ""
}

func NormalizeLocation(loc string) string {
	loc = CleanText(loc)
	if loc == "" {
		return ""
	}

	for _, lab := range LocationLabels {
		if len(loc) >= len(lab) && strings.EqualFold(loc[:len(lab)], lab) {
			loc = strings.TrimSpace(loc[len(lab):])
			break
		}
	}

	parts := strings.FieldsFunc(loc, func(r rune) bool { return r == ',' || r == '،' })
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = CleanText(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}
