// Package dedup decides whether a posting was already published. Two keys
// guard each publication: the per-source identity and a cross-source
// fingerprint of title and company.
package dedup

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("dedup key not found")

// KV is the minimal expiring key/value contract the deduper needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
