package summarize

import (
	"strings"
	"unicode"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/scrape/util"
)

// Header renders the deterministic metadata block. It is never produced by
// the model so facts like dates and company names cannot be hallucinated.
// The title is rendered separately by the formatter.
func Header(job domain.ProcessedJob) string {
	var lines []string
	add := func(label, v string) {
		if v = util.CleanText(v); v != "" {
			lines = append(lines, label+v)
		}
	}
	add("🏢 الشركة: ", job.Company)
	add("📍 الموقع: ", job.Location)
	add("🗂 المجال: ", job.Category)
	add("🗓 تاريخ النشر: ", job.PostedDate)
	add("⏳ آخر موعد للتقديم: ", job.Deadline)
	return strings.Join(lines, "\n")
}

const maxFallbackDescription = 1500

// FallbackBody builds a summary body straight from scraped fields. It cannot
// fail, so publication proceeds even when the model is unavailable.
func FallbackBody(job domain.ProcessedJob) string {
	var sections []string

	desc := domain.EnsureDescription(job.Description)
	sections = append(sections, MarkerOverview+"\n"+truncateWords(desc, maxFallbackDescription))

	var apply []string
	if how := util.CleanLines(job.HowToApply); how != "" {
		apply = append(apply, how)
	}
	for _, c := range job.ApplicationLinks {
		apply = append(apply, ContactLine(c))
	}
	if len(apply) > 0 {
		sections = append(sections, MarkerApply+"\n"+strings.Join(apply, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

// ContactLine labels a contact by its kind.
func ContactLine(c string) string {
	c = strings.TrimSpace(c)
	switch {
	case util.IsEmail(c):
		return "📧 " + strings.TrimPrefix(c, "mailto:")
	case util.IsPhone(c):
		return "📞 " + strings.TrimPrefix(c, "tel:")
	default:
		return "🔗 " + c
	}
}

// truncateWords keeps at most max runes of s, cutting on a word boundary,
// and appends an ellipsis when anything was removed.
func truncateWords(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := max
	for i := max; i > max/2; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(r[:cut]), unicode.IsSpace) + "…"
}
