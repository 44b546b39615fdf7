package util

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter paces requests per site. Listing and detail fetches for the
// same host share one token bucket; "www." and port are ignored.
type HostLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
}

func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	if reqPerSec <= 0 {
		reqPerSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		buckets: make(map[string]*rate.Limiter),
		every:   rate.Limit(reqPerSec),
		burst:   burst,
	}
}

// hostKey folds a URL to the bucket it is paced by. Unparseable URLs share
// a single catch-all bucket.
func hostKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "_"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func (hl *HostLimiter) bucket(key string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	lim, ok := hl.buckets[key]
	if !ok {
		lim = rate.NewLimiter(hl.every, hl.burst)
		hl.buckets[key] = lim
	}
	return lim
}

// WaitURL blocks until the host of raw may be hit again. A nil limiter
// never blocks.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	if hl == nil {
		return nil
	}
	return hl.bucket(hostKey(raw)).Wait(ctx)
}
