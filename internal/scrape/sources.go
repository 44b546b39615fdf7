package scrape

import (
	"fmt"
	"log/slog"
	"strings"

	"jobrelay-engine/internal/scrape/feed"
	"jobrelay-engine/internal/scrape/markup"
	"jobrelay-engine/internal/scrape/types"
	"jobrelay-engine/internal/scrape/util"
)

// Source pairs a plugin with the profile it was built from, so callers can
// read per-site options like the prompt style and hashtag.
type Source struct {
	Plugin  types.Plugin
	Profile types.SiteProfile
}

func (s Source) Name() string { return s.Plugin.Name() }

// BuildSources turns site profiles into plugins. Disabled and invalid
// profiles are skipped; invalid ones are reported in errs.
func BuildSources(sites []types.SiteProfile, f *util.Fetcher, log *slog.Logger) (out []Source, errs []error) {
	if log == nil {
		log = slog.Default()
	}
	for _, p := range sites {
		if !p.IsEnabled() {
			log.Debug("site disabled in config", "source", p.Name)
			continue
		}
		if problems := p.Validate(); len(problems) > 0 {
			errs = append(errs, fmt.Errorf("site %q: %s", p.Name, strings.Join(problems, "; ")))
			continue
		}

		// Plugins add their own "source" attribute.
		plog := log.With("component", "scrape")
		var pl types.Plugin
		switch p.Kind {
		case types.KindFeed:
			pl = feed.New(p, f, plog)
		case types.KindMarkup, types.KindJSONMarkup:
			pl = markup.New(p, f, plog)
		}
		out = append(out, Source{Plugin: pl, Profile: p})
	}
	return out, errs
}
