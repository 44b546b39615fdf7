package format

import (
	"strings"
)

type Formatter struct {
	cfg Config
}

func New(cfg Config) *Formatter {
	return &Formatter{cfg: cfg.WithDefaults()}
}

func (f *Formatter) Config() Config { return f.cfg }

// Build renders in as a photo caption when an image is present and the body
// fits usefully within the caption budget, otherwise as a text message.
func (f *Formatter) Build(in Input) OutgoingMessage {
	if strings.TrimSpace(in.ImageURL) != "" {
		text, body, ok := f.compose(in, f.cfg.CaptionBudget, true)
		truncated := body != in.Body
		if ok && (!truncated || utf16Len(body) >= f.cfg.MinCaptionBody) {
			return OutgoingMessage{Text: text, ImageURL: in.ImageURL, WithImage: true}
		}
	}
	return f.BuildText(in)
}

// BuildText renders in as a text-only message from the untruncated body.
func (f *Formatter) BuildText(in Input) OutgoingMessage {
	text, _, _ := f.compose(in, f.cfg.TextBudget, false)
	return OutgoingMessage{Text: text}
}

// compose lays out title, body and footer within budget. It returns the
// rendered text, the (possibly truncated) plain body and whether the body
// got any room at all.
func (f *Formatter) compose(in Input, budget int, strict bool) (string, string, bool) {
	title := strings.TrimSpace(in.Title)
	sep := f.cfg.Separator

	footers := [][]string{f.footer(in, true), f.footer(in, false), nil}
	for _, footer := range footers {
		fixed := 0
		if title != "" {
			fixed += utf16Len(title) + utf16Len(sep)
		}
		if len(footer) > 0 {
			fixed += utf16Len(sep) + visibleJoined(footer)
		}
		avail := budget - fixed
		if avail < minBodyRoom(in.Body, f.cfg.Ellipsis) {
			continue
		}
		body := Truncate(in.Body, avail, sep, f.cfg.Ellipsis)
		return f.render(title, body, footer), body, true
	}

	if strict {
		return "", "", false
	}

	// Last resort: the title alone overflows. Cut everything as plain text.
	plain := title
	if in.Body != "" {
		plain = joinNonEmpty(sep, title, in.Body)
	}
	return Escape(Truncate(plain, budget, sep, f.cfg.Ellipsis)), "", false
}

func minBodyRoom(body, ellipsis string) int {
	if body == "" {
		return 0
	}
	if n := utf16Len(body); n < utf16Len(ellipsis) {
		return n
	}
	return utf16Len(ellipsis)
}

func (f *Formatter) render(title, body string, footer []string) string {
	var parts []string
	if title != "" {
		parts = append(parts, "<b>"+Escape(title)+"</b>")
	}
	if body != "" {
		parts = append(parts, Escape(body))
	}
	if len(footer) > 0 {
		parts = append(parts, strings.Join(footer, "\n"))
	}
	return strings.Join(parts, f.cfg.Separator)
}

// footer returns rendered footer lines. The full variant adds hashtags and
// the channel promotion.
func (f *Formatter) footer(in Input, full bool) []string {
	var lines []string
	if link := strings.TrimSpace(in.Link); link != "" {
		lines = append(lines, `<a href="`+escapeAttr(link)+`">`+Escape(f.cfg.LinkLabel)+`</a>`)
	}
	if !full {
		return lines
	}
	var tags []string
	seen := map[string]bool{}
	for _, h := range in.Hashtags {
		tag := Hashtag(h)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	if len(tags) > 0 {
		lines = append(lines, strings.Join(tags, " "))
	}
	if f.cfg.ChannelHandle != "" {
		lines = append(lines, Escape(f.cfg.ChannelLabel+" "+f.cfg.ChannelHandle))
	}
	return lines
}

func visibleJoined(lines []string) int {
	return VisibleLength(strings.Join(lines, "\n"))
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
