// Package feed reads job postings from RSS, Atom and JSON feeds.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/scrape/types"
	"jobrelay-engine/internal/scrape/util"
)

type Plugin struct {
	p   types.SiteProfile
	f   *util.Fetcher
	log *slog.Logger
}

func New(p types.SiteProfile, f *util.Fetcher, log *slog.Logger) *Plugin {
	if log == nil {
		log = slog.Default()
	}
	return &Plugin{p: p, f: f, log: log.With("source", p.Name)}
}

func (s *Plugin) Name() string { return s.p.Name }

func (s *Plugin) FetchJobs(ctx context.Context) ([]domain.JobCandidate, error) {
	body, err := s.f.Get(ctx, s.p.ListURL, s.p.Headers)
	if err != nil {
		return nil, fmt.Errorf("%s feed: %w", s.p.Name, err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s feed parse: %w", s.p.Name, err)
	}

	var out []domain.JobCandidate
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		c, ok := s.ItemToCandidate(item, parsed.Title)
		if !ok {
			s.log.Warn("skipping feed item without title or link", "guid", item.GUID)
			continue
		}
		out = append(out, c)
		if s.p.Limit > 0 && len(out) >= s.p.Limit {
			break
		}
	}
	if len(out) == 0 {
		s.log.Warn("feed yielded no jobs")
	}
	return out, nil
}

// ItemToCandidate maps one feed entry onto a candidate. Identity comes from
// the entry GUID; the link is only used when the feed omits GUIDs.
func (s *Plugin) ItemToCandidate(item *gofeed.Item, feedTitle string) (domain.JobCandidate, bool) {
	title := util.CleanText(item.Title)
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if title == "" || link == "" {
		return domain.JobCandidate{}, false
	}

	key := strings.TrimSpace(item.GUID)
	if key == "" {
		key = link
	}

	company := ""
	if item.Author != nil {
		company = util.CleanText(item.Author.Name)
	}
	if company == "" {
		company = s.p.DefaultCompany
	}
	if company == "" {
		company = util.CleanText(feedTitle)
	}

	posted := ""
	if item.PublishedParsed != nil {
		posted = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		posted = item.UpdatedParsed.Format("2006-01-02")
	}

	category := ""
	if len(item.Categories) > 0 {
		category = util.CleanText(item.Categories[0])
	}

	image := s.p.DefaultImage
	if item.Image != nil && item.Image.URL != "" {
		image = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
				image = enc.URL
				break
			}
		}
	}

	desc := item.Content
	if strings.TrimSpace(desc) == "" {
		desc = item.Description
	}

	return domain.JobCandidate{
		Identity:    s.p.Identity.Identify(s.p.Name, key, title),
		Title:       title,
		Company:     company,
		Link:        link,
		ImageURL:    image,
		PostedDate:  posted,
		Category:    category,
		Description: util.HTMLToText(desc),
		Source:      s.p.Name,
	}, true
}

// ProcessJob never fetches: feed entries already carry the full posting.
func (s *Plugin) ProcessJob(ctx context.Context, c domain.JobCandidate) (domain.ProcessedJob, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProcessedJob{}, err
	}
	job := domain.NewProcessedJob(c, c.Description)
	util.FillFromText(&job)
	return job, nil
}
