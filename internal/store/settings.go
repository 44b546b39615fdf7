package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SourceSettings returns operator overrides keyed by source name. Sources
// without a row are enabled.
func (d *DB) SourceSettings(ctx context.Context) (map[string]bool, error) {
	rows, err := d.Pool.QueryContext(ctx, `SELECT name, enabled FROM sources;`)
	if err != nil {
		return nil, fmt.Errorf("source settings: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		var enabled int
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, err
		}
		out[name] = enabled != 0
	}
	return out, rows.Err()
}

func (d *DB) SetSourceEnabled(ctx context.Context, name string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO sources (name, enabled, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at;`,
		name, v, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("set source %s: %w", name, err)
	}
	return nil
}

func (d *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := d.Pool.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?;`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, true, nil
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		key, value, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

var _ Records = (*DB)(nil)
