package summarize

import (
	"fmt"
	"strings"

	"jobrelay-engine/internal/domain"
)

type Style string

const (
	// StyleEnglish translates English postings into Arabic.
	StyleEnglish Style = "english"
	// StyleMixed rewrites postings already in Arabic or mixed language.
	StyleMixed Style = "mixed"
)

func ParseStyle(s string) Style {
	if Style(strings.ToLower(strings.TrimSpace(s))) == StyleEnglish {
		return StyleEnglish
	}
	return StyleMixed
}

// Section markers the model is asked to emit. A response is well formed only
// when it contains at least one of them.
const (
	MarkerOverview     = "🔹 نبذة عن الوظيفة:"
	MarkerDuties       = "🔹 المهام:"
	MarkerRequirements = "🔹 المتطلبات:"
	MarkerBenefits     = "🔹 المزايا:"
	MarkerApply        = "🔹 طريقة التقديم:"
)

var Markers = []string{MarkerOverview, MarkerDuties, MarkerRequirements, MarkerBenefits, MarkerApply}

const outputRules = `اكتب الملخص باللغة العربية بالأقسام التالية وبهذا الترتيب، واحذف أي قسم لا تتوفر له معلومات:
%s
%s
%s
%s
%s
القواعد:
- استخدم نقاطاً قصيرة تبدأ بـ "•".
- لا تستخدم تنسيق Markdown ولا تكتب أي مقدمة أو خاتمة.
- لا تكرر عنوان الوظيفة أو اسم الشركة أو الموقع أو التواريخ.
- لا تخترع معلومات غير موجودة في النص.`

func rules() string {
	return fmt.Sprintf(outputRules, MarkerOverview, MarkerDuties, MarkerRequirements, MarkerBenefits, MarkerApply)
}

// BuildPrompt renders the prompt for job in the given style.
func BuildPrompt(style Style, job domain.ProcessedJob) string {
	var b strings.Builder
	switch style {
	case StyleEnglish:
		b.WriteString("You are a recruiter writing job posts for an Arabic-speaking Telegram channel. ")
		b.WriteString("Translate and summarise the following English job posting into Arabic. ")
		b.WriteString("Keep technical terms, tool names and certifications in English.\n\n")
	default:
		b.WriteString("أنت مسؤول توظيف تكتب منشورات وظائف لقناة تيليجرام عربية. ")
		b.WriteString("لخص إعلان الوظيفة التالي المكتوب بالعربية أو بلغة مختلطة، ")
		b.WriteString("وأبقِ المصطلحات التقنية الإنجليزية كما هي.\n\n")
	}
	b.WriteString(rules())
	b.WriteString("\n\n---\n")

	field := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	field("Title", job.Title)
	field("Company", job.Company)
	field("Category", job.Category)
	field("How to apply", job.HowToApply)
	if len(job.ApplicationLinks) > 0 {
		field("Contacts", strings.Join(job.ApplicationLinks, ", "))
	}
	b.WriteString("Description:\n")
	b.WriteString(truncateWords(job.Description, maxPromptDescription))
	b.WriteString("\n---\n")
	return b.String()
}

const maxPromptDescription = 6000
