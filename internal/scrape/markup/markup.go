// Package markup scrapes sites that publish listings as HTML, optionally
// wrapped inside a JSON envelope.
package markup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/scrape/types"
	"jobrelay-engine/internal/scrape/util"
)

// ErrExpired means the detail resource exists but no longer holds the posting.
var ErrExpired = errors.New("posting no longer available")

// ErrMissingField is logged when a card lacks a required field.
var ErrMissingField = errors.New("missing required field")

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

func (s *Plugin) baseURL() string {
	if s.p.BaseURL != "" {
		return s.p.BaseURL
	}
	u, err := url.Parse(s.p.ListURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func (s *Plugin) FetchJobs(ctx context.Context) ([]domain.JobCandidate, error) {
	body, err := s.f.Get(ctx, s.p.ListURL, s.p.Headers)
	if err != nil {
		return nil, fmt.Errorf("%s listing: %w", s.p.Name, err)
	}

	fragment := string(body)
	if s.p.Kind == types.KindJSONMarkup {
		res := gjson.GetBytes(body, s.p.JSONField)
		if !res.Exists() {
			return nil, fmt.Errorf("%s listing: json field %q not found", s.p.Name, s.p.JSONField)
		}
		fragment = res.String()
	}

	doc, err := util.Document(fragment, s.p.Replace)
	if err != nil {
		return nil, fmt.Errorf("%s listing: %w", s.p.Name, err)
	}
	return s.parseListing(doc), nil
}

func (s *Plugin) parseListing(doc *goquery.Document) []domain.JobCandidate {
	util.Remove(doc.Selection, s.p.Cleanup)

	cards := doc.Find(s.p.Container)
	if cards.Length() == 0 {
		s.log.Warn("no listing containers found", "container", s.p.Container)
		return nil
	}

	var out []domain.JobCandidate
	seen := map[string]bool{}
	cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
		c, err := s.parseCard(card)
		if err != nil {
			s.log.Warn("skipping card", "index", i, "err", err)
			return true
		}
		if seen[c.Identity] {
			return true
		}
		seen[c.Identity] = true
		out = append(out, c)
		return s.p.Limit <= 0 || len(out) < s.p.Limit
	})

	if len(out) == 0 {
		s.log.Warn("listing yielded no jobs", "cards", cards.Length())
	}
	return out
}

func (s *Plugin) parseCard(card *goquery.Selection) (domain.JobCandidate, error) {
	f := s.p.Fields
	base := s.baseURL()

	title := util.Text(card, f.Title)
	if title == "" {
		return domain.JobCandidate{}, fmt.Errorf("%w: title", ErrMissingField)
	}
	rawLink, _ := util.Attr(card, f.Link, s.p.LinkAttribute())
	link := util.ResolveURL(base, rawLink)
	if link == "" {
		return domain.JobCandidate{}, fmt.Errorf("%w: link (title=%q)", ErrMissingField, title)
	}

	company := util.Text(card, f.Company)
	if company == "" {
		company = s.p.DefaultCompany
	}

	image := ""
	if f.Image != "" {
		if v, ok := util.Attr(card, f.Image, "src"); ok {
			image = v
		} else if v, ok := util.Attr(card, f.Image, "data-src"); ok {
			image = v
		}
	}
	image = util.ResolveURL(base, image)
	if image == "" {
		image = s.p.DefaultImage
	}

	return domain.JobCandidate{
		Identity:    s.p.Identity.Identify(s.p.Name, link, title),
		Title:       title,
		Company:     company,
		Link:        link,
		ImageURL:    image,
		Location:    util.NormalizeLocation(util.Text(card, f.Location)),
		PostedDate:  util.Text(card, f.Date),
		Deadline:    util.Text(card, f.Deadline),
		Category:    util.Text(card, f.Category),
		Description: util.Block(card, f.Description),
		Source:      s.p.Name,
	}, nil
}

// ProcessJob enriches c from its detail page. Detail failures degrade to the
// candidate's own fields; only context cancellation is returned as an error.
func (s *Plugin) ProcessJob(ctx context.Context, c domain.JobCandidate) (domain.ProcessedJob, error) {
	job := domain.NewProcessedJob(c, c.Description)

	if s.p.Detail != nil {
		err := s.hydrate(ctx, &job)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return domain.ProcessedJob{}, ctx.Err()
		case errors.Is(err, ErrExpired):
			s.log.Info("detail unavailable, using listing fields", "identity", c.Identity, "link", c.Link)
		default:
			s.log.Warn("detail fetch failed, using listing fields", "identity", c.Identity, "err", err)
		}
	}

	util.FillFromText(&job)
	return job, nil
}

func (s *Plugin) hydrate(ctx context.Context, job *domain.ProcessedJob) error {
	d := s.p.Detail

	doc, err := s.f.GetDocument(ctx, job.Link, s.p.Headers, s.p.Replace)
	if err != nil {
		return err
	}
	root := doc.Selection
	if d.ExpiredMarker != "" && root.Find(d.ExpiredMarker).Length() > 0 {
		return ErrExpired
	}
	if d.RequireSelector != "" && root.Find(d.RequireSelector).Length() == 0 {
		return ErrExpired
	}
	util.Remove(root, d.Cleanup)

	base := s.baseURL()
	if v := util.Block(root, d.Description); v != "" {
		job.Description = v
	}
	if job.Company == "" {
		job.Company = util.Text(root, d.Company)
	}
	if v := util.NormalizeLocation(util.Text(root, d.Location)); v != "" {
		job.Location = v
	}
	if v := util.Text(root, d.Deadline); v != "" {
		job.Deadline = v
	}
	if v := util.Text(root, d.Category); v != "" {
		job.Category = v
	}
	job.HowToApply = util.Block(root, d.HowToApply)
	for _, href := range util.AllAttr(root, d.Apply, "href") {
		job.ApplicationLinks = appendUnique(job.ApplicationLinks, util.ResolveURL(base, href))
	}
	if v, ok := util.Attr(root, d.Image, "src"); ok && job.ImageURL == s.p.DefaultImage {
		job.ImageURL = util.ResolveURL(base, v)
	}
	return nil
}

func appendUnique(xs []string, v string) []string {
	if v == "" {
		return xs
	}
	for _, x := range xs {
		if x == v {
			return xs
		}
	}
	return append(xs, v)
}
