package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (compatible; JobRelay/1.0)"
	maxBodyBytes     = 8 << 20
)

// Fetcher performs rate-limited GETs with a bounded timeout.
type Fetcher struct {
	hc      *http.Client
	limiter *HostLimiter
	ua      string
}

func NewFetcher(timeout time.Duration, limiter *HostLimiter) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		hc:      &http.Client{Timeout: timeout},
		limiter: limiter,
		ua:      DefaultUserAgent,
	}
}

// Get returns the response body of rawURL. Status codes >= 400 are errors.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	if err := f.limiter.WaitURL(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := f.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("get %s: status %d", rawURL, res.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return b, nil
}

// Document parses body as HTML after applying ordered string replacements.
// The replacements repair markup some sites serve broken.
func Document(body string, replacements []Replacement) (*goquery.Document, error) {
	for _, r := range replacements {
		if r.Old == "" {
			continue
		}
		body = strings.ReplaceAll(body, r.Old, r.New)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// GetDocument fetches rawURL and parses it with Document.
func (f *Fetcher) GetDocument(ctx context.Context, rawURL string, headers map[string]string, replacements []Replacement) (*goquery.Document, error) {
	b, err := f.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, err
	}
	return Document(string(b), replacements)
}

type Replacement struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
}
