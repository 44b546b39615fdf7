// Package pg is the Postgres implementation of store.Records for shared
// deployments where several engines point at one database.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/store"
)

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
}

// Open connects and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := NewPostgresPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
  identity TEXT PRIMARY KEY,
  run_id TEXT NOT NULL DEFAULT '',
  source TEXT NOT NULL,
  title TEXT NOT NULL,
  company TEXT NOT NULL DEFAULT '',
  link TEXT NOT NULL,
  raw_description TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  posted_date TEXT NOT NULL DEFAULT '',
  deadline TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  how_to_apply TEXT NOT NULL DEFAULT '',
  application_links TEXT[] NOT NULL DEFAULT '{}',
  image_url TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'fetched',
  last_error TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE jobs ADD COLUMN IF NOT EXISTS retry_run_id TEXT NOT NULL DEFAULT '';
ALTER TABLE jobs ADD COLUMN IF NOT EXISTS attempts INTEGER NOT NULL DEFAULT 1;
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_source_created ON jobs(source, created_at);

CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  run_trigger TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ,
  fetched INTEGER NOT NULL DEFAULT 0,
  posted INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  per_source JSONB NOT NULL DEFAULT '{}',
  error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS sources (
  name TEXT PRIMARY KEY,
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	return err
}

// ── Jobs ──

func (s *Store) RecordFetched(ctx context.Context, rec store.JobRecord) (domain.JobStatus, error) {
	if rec.Identity == "" {
		return "", errors.New("record fetched: missing identity")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prev string
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE identity = $1 FOR UPDATE`, rec.Identity).Scan(&prev)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err := tx.Exec(ctx, `
INSERT INTO jobs (identity, run_id, source, title, company, link, raw_description,
  location, posted_date, deadline, category, image_url, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (identity) DO NOTHING`,
			rec.Identity, rec.RunID, rec.Source, rec.Title, rec.Company, rec.Link, rec.RawDescription,
			rec.Location, rec.PostedDate, rec.Deadline, rec.Category, rec.ImageURL, string(domain.StatusFetched),
		)
		if err != nil {
			return "", fmt.Errorf("insert job: %w", err)
		}
		return "", tx.Commit(ctx)
	case err != nil:
		return "", fmt.Errorf("lookup job: %w", err)
	}

	st := domain.JobStatus(prev)
	if st == domain.StatusFailed || st == domain.StatusSkipped {
		if _, err := tx.Exec(ctx, `
UPDATE jobs SET status = $1, retry_run_id = $2, attempts = attempts + 1, updated_at = now()
WHERE identity = $3`,
			string(domain.StatusFetched), rec.RunID, rec.Identity,
		); err != nil {
			return "", fmt.Errorf("reopen job: %w", err)
		}
	}
	return st, tx.Commit(ctx)
}

func (s *Store) EnrichJob(ctx context.Context, job domain.ProcessedJob) error {
	links := job.ApplicationLinks
	if links == nil {
		links = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET company = $1, description = $2, location = $3, posted_date = $4, deadline = $5,
  category = $6, how_to_apply = $7, application_links = $8, image_url = $9, updated_at = now()
WHERE identity = $10`,
		job.Company, job.Description, job.Location, job.PostedDate, job.Deadline,
		job.Category, job.HowToApply, links, job.ImageURL, job.Identity,
	)
	if err != nil {
		return fmt.Errorf("enrich job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, identity string, to domain.JobStatus, lastErr string) error {
	var from []string
	for _, st := range []domain.JobStatus{domain.StatusFetched, domain.StatusPosted, domain.StatusSkipped, domain.StatusFailed} {
		if domain.IsTransitionAllowed(st, to) {
			from = append(from, string(st))
		}
	}
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing leads to %s", domain.ErrInvalidTransition, to)
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET status = $1, last_error = $2, updated_at = now()
WHERE identity = $3 AND status = ANY($4)`,
		string(to), lastErr, identity, from,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var cur string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE identity = $1`, identity).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, to)
}

const jobColumns = `identity, run_id, source, title, company, link, raw_description, description,
  location, posted_date, deadline, category, how_to_apply, application_links, image_url,
  status, last_error, retry_run_id, attempts, created_at, updated_at`

func scanJob(row pgx.Row) (store.JobRecord, error) {
	var j store.JobRecord
	var status string
	err := row.Scan(
		&j.Identity, &j.RunID, &j.Source, &j.Title, &j.Company, &j.Link, &j.RawDescription, &j.Description,
		&j.Location, &j.PostedDate, &j.Deadline, &j.Category, &j.HowToApply, &j.ApplicationLinks, &j.ImageURL,
		&status, &j.LastError, &j.RetryRunID, &j.Attempts, &j.CreatedAt, &j.UpdatedAt,
	)
	j.Status = domain.JobStatus(status)
	return j, err
}

func (s *Store) GetJob(ctx context.Context, identity string) (store.JobRecord, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE identity = $1`, identity))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.JobRecord{}, store.ErrNotFound
	}
	return j, err
}

func (s *Store) ListJobs(ctx context.Context, opts store.ListJobsOpts) ([]store.JobRecord, error) {
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 100
	}

	var where []string
	var args []any
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Source != "" {
		args = append(args, opts.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, opts.Limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ── Runs ──

func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO runs (id, run_trigger, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Trigger), string(domain.RunRunning), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, run domain.Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	per, _ := json.Marshal(run.PerSource)

	tag, err := s.pool.Exec(ctx, `
UPDATE runs SET status = $1, finished_at = $2, fetched = $3, posted = $4, skipped = $5, failed = $6,
  per_source = $7, error = $8
WHERE id = $9 AND finished_at IS NULL`,
		string(run.Status), finished,
		run.Totals.Fetched, run.Totals.Posted, run.Totals.Skipped, run.Totals.Failed,
		string(per), run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := s.GetRun(ctx, run.ID); errors.Is(gerr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrRunFinalized
	}
	return nil
}

const runColumns = `id, run_trigger, status, started_at, finished_at, fetched, posted, skipped, failed, per_source::text, error`

func scanRun(row pgx.Row) (domain.Run, error) {
	var r domain.Run
	var trigger, status, per string
	err := row.Scan(&r.ID, &trigger, &status, &r.StartedAt, &r.FinishedAt,
		&r.Totals.Fetched, &r.Totals.Posted, &r.Totals.Skipped, &r.Totals.Failed, &per, &r.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Run{}, err
	}
	r.Trigger = domain.RunTrigger(trigger)
	r.Status = domain.RunStatus(status)
	_ = json.Unmarshal([]byte(per), &r.PerSource)
	return r, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
}

func (s *Store) LastRun(ctx context.Context) (domain.Run, error) {
	return scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`))
}

// ── Settings ──

func (s *Store) SourceSettings(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, enabled FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("source settings: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, err
		}
		out[name] = enabled
	}
	return out, rows.Err()
}

func (s *Store) SetSourceEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sources (name, enabled, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`, name, enabled)
	if err != nil {
		return fmt.Errorf("set source %s: %w", name, err)
	}
	return nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

var _ store.Records = (*Store)(nil)
