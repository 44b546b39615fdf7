// Package format renders summaries into Telegram HTML messages that always
// respect the caption and text size caps.
package format

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	CaptionBudget = 1024
	TextBudget    = 4096
)

// Config is loaded once at startup and never mutated afterwards.
type Config struct {
	CaptionBudget  int    `yaml:"caption_budget"`
	TextBudget     int    `yaml:"text_budget"`
	Separator      string `yaml:"separator"`
	Ellipsis       string `yaml:"ellipsis"`
	LinkLabel      string `yaml:"link_label"`
	ChannelHandle  string `yaml:"channel_handle"`
	ChannelLabel   string `yaml:"channel_label"`
	MinCaptionBody int    `yaml:"min_caption_body"`
}

func DefaultConfig() Config {
	return Config{
		CaptionBudget:  CaptionBudget,
		TextBudget:     TextBudget,
		Separator:      "\n\n",
		Ellipsis:       "…",
		LinkLabel:      "🔗 رابط الوظيفة والتقديم",
		ChannelLabel:   "📢 للمزيد من الوظائف تابعونا:",
		MinCaptionBody: 300,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.CaptionBudget <= 0 {
		c.CaptionBudget = d.CaptionBudget
	}
	if c.TextBudget <= 0 {
		c.TextBudget = d.TextBudget
	}
	if c.Separator == "" {
		c.Separator = d.Separator
	}
	if c.Ellipsis == "" {
		c.Ellipsis = d.Ellipsis
	}
	if c.LinkLabel == "" {
		c.LinkLabel = d.LinkLabel
	}
	if c.ChannelLabel == "" {
		c.ChannelLabel = d.ChannelLabel
	}
	if c.MinCaptionBody < 0 {
		c.MinCaptionBody = 0
	}
	return c
}

// Input is the formatter's view of a summarized job.
type Input struct {
	Title    string
	Body     string
	Link     string
	ImageURL string
	Hashtags []string
}

// OutgoingMessage is ready for delivery. VisibleLength(Text) never exceeds
// the budget matching WithImage.
type OutgoingMessage struct {
	Text      string
	ImageURL  string
	WithImage bool
}

var (
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	entities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&#34;", `"`, "&amp;", "&")
	textEsc  = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEsc  = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// VisibleLength is the length Telegram counts: markup removed, entities
// decoded, measured in UTF-16 code units.
func VisibleLength(s string) int {
	return utf16Len(entities.Replace(tagRe.ReplaceAllString(s, "")))
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Escape makes plain text safe for HTML parse mode.
func Escape(s string) string { return textEsc.Replace(s) }

func escapeAttr(s string) string { return attrEsc.Replace(s) }

// Hashtag turns a free-form label into a Telegram hashtag, "" if nothing usable
// remains.
func Hashtag(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(label), "#")) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	tag := strings.TrimRight(b.String(), "_")
	if tag == "" {
		return ""
	}
	return "#" + tag
}
