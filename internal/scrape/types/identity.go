package types

import (
	"regexp"
	"strings"
	"sync"

	"jobrelay-engine/internal/scrape/util"
)

// IdentityRule derives a stable per-source id from a job link. Pattern's
// first capture group (or whole match) becomes the id. UseTitle mixes the
// title into the hash fallback for sites that reuse one link for many jobs.
type IdentityRule struct {
	Pattern  string `yaml:"pattern,omitempty"`
	UseTitle bool   `yaml:"use_title,omitempty"`
}

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// patterns caches compiled rules by source text; Identify runs per candidate.
var patterns sync.Map // string -> compiledPattern

func (r IdentityRule) compile() (*regexp.Regexp, error) {
	if v, ok := patterns.Load(r.Pattern); ok {
		c := v.(compiledPattern)
		return c.re, c.err
	}
	re, err := regexp.Compile(r.Pattern)
	v, _ := patterns.LoadOrStore(r.Pattern, compiledPattern{re: re, err: err})
	c := v.(compiledPattern)
	return c.re, c.err
}

// Identify returns "<source>:<id>". It never fails: when the pattern is
// missing, invalid or does not match, a hash of the canonical link is used.
func (r IdentityRule) Identify(source, link, title string) string {
	if r.Pattern != "" {
		if re, err := r.compile(); err == nil {
			if m := re.FindStringSubmatch(link); m != nil {
				id := m[0]
				if len(m) > 1 && m[1] != "" {
					id = m[1]
				}
				return source + ":" + id
			}
		}
	}

	parts := []string{util.CanonicalizeURL(link)}
	if r.UseTitle || strings.TrimSpace(link) == "" {
		parts = append(parts, strings.ToLower(util.CleanText(title)))
	}
	return source + ":" + util.HashString(parts...)[:16]
}
