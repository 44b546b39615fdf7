package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	IdentityPrefix    = "posted:"
	FingerprintPrefix = "fp:"
	DefaultTTL        = 30 * 24 * time.Hour
)

// Normalize case-folds s, collapses internal whitespace and trims it.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Fingerprint is the cross-source key for a posting.
func Fingerprint(title, company string) string {
	return Normalize(title) + "|" + Normalize(company)
}

func IdentityKey(identity string) string { return IdentityPrefix + identity }

func FingerprintKey(title, company string) string {
	return FingerprintPrefix + Fingerprint(title, company)
}

// Record is the value stored under both keys.
type Record struct {
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	Company     string    `json:"company,omitempty"`
	Identity    string    `json:"identity,omitempty"`
}

type Reason string

const (
	ReasonNone        Reason = ""
	ReasonIdentity    Reason = "identity"
	ReasonFingerprint Reason = "fingerprint"
)

type Verdict struct {
	Duplicate bool
	Reason    Reason
	Key       string
}

type Deduper struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

func New(kv KV, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduper{kv: kv, ttl: ttl, now: time.Now}
}

// Check reports whether the posting was already published, first by
// identity then by fingerprint.
func (d *Deduper) Check(ctx context.Context, identity, title, company string) (Verdict, error) {
	for _, tier := range []struct {
		key    string
		reason Reason
	}{
		{IdentityKey(identity), ReasonIdentity},
		{FingerprintKey(title, company), ReasonFingerprint},
	} {
		_, err := d.kv.Get(ctx, tier.key)
		if err == nil {
			return Verdict{Duplicate: true, Reason: tier.reason, Key: tier.key}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Verdict{}, err
		}
	}
	return Verdict{}, nil
}

// MarkPublished writes both keys with the same TTL.
func (d *Deduper) MarkPublished(ctx context.Context, identity, title, company string) error {
	b, err := json.Marshal(Record{
		PublishedAt: d.now().UTC(),
		Title:       title,
		Company:     company,
		Identity:    identity,
	})
	if err != nil {
		return err
	}
	if err := d.kv.Put(ctx, IdentityKey(identity), string(b), d.ttl); err != nil {
		return fmt.Errorf("mark identity: %w", err)
	}
	if err := d.kv.Put(ctx, FingerprintKey(title, company), string(b), d.ttl); err != nil {
		return fmt.Errorf("mark fingerprint: %w", err)
	}
	return nil
}

// ForgetIdentity removes only the identity key.
func (d *Deduper) ForgetIdentity(ctx context.Context, identity string) (bool, error) {
	return d.kv.Delete(ctx, IdentityKey(identity))
}

// ForgetFingerprint removes only the fingerprint key.
func (d *Deduper) ForgetFingerprint(ctx context.Context, title, company string) (bool, error) {
	return d.kv.Delete(ctx, FingerprintKey(title, company))
}

// Lookup returns the stored record for a raw key.
func (d *Deduper) Lookup(ctx context.Context, key string) (Record, error) {
	v, err := d.kv.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

func (d *Deduper) List(ctx context.Context, prefix string) ([]string, error) {
	return d.kv.List(ctx, prefix)
}
