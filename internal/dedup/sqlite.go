package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteKV keeps dedup keys in the job database when no Redis is configured.
// Expiry is checked on read; Purge removes stale rows.
type SQLiteKV struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteKV(ctx context.Context, db *sql.DB) (*SQLiteKV, error) {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS dedup_keys (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  expires_at INTEGER NOT NULL
);`); err != nil {
		return nil, fmt.Errorf("create dedup_keys: %w", err)
	}
	return &SQLiteKV{db: db, now: time.Now}, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM dedup_keys WHERE key = ? AND expires_at > ?;`,
		key, s.now().Unix(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("dedup get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLiteKV) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dedup_keys (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at;`,
		key, value, s.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("dedup put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup_keys WHERE key = ?;`, key)
	if err != nil {
		return false, fmt.Errorf("dedup delete %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteKV) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM dedup_keys WHERE instr(key, ?) = 1 AND expires_at > ? ORDER BY key;`,
		prefix, s.now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("dedup list %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Purge deletes expired keys and returns how many were removed.
func (s *SQLiteKV) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup_keys WHERE expires_at <= ?;`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("dedup purge: %w", err)
	}
	return res.RowsAffected()
}
