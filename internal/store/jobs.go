package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobrelay-engine/internal/domain"
)

// RecordFetched inserts the fetched row once per identity. A previously
// failed or skipped identity is reopened: status goes back to fetched and the
// run is recorded as a retry. run_id and the listing fields keep their first
// values, and last_error stays until the retry settles. A posted row is left
// untouched.
func (d *DB) RecordFetched(ctx context.Context, rec JobRecord) (domain.JobStatus, error) {
	if rec.Identity == "" {
		return "", errors.New("record fetched: missing identity")
	}
	now := time.Now().UTC().Format(timeLayout)

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE identity = ?;`, rec.Identity).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
INSERT INTO jobs (identity, run_id, source, title, company, link, raw_description,
  location, posted_date, deadline, category, image_url, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			rec.Identity, rec.RunID, rec.Source, rec.Title, rec.Company, rec.Link, rec.RawDescription,
			rec.Location, rec.PostedDate, rec.Deadline, rec.Category, rec.ImageURL,
			string(domain.StatusFetched), now, now,
		)
		if err != nil {
			return "", fmt.Errorf("insert job: %w", err)
		}
		return "", tx.Commit()
	case err != nil:
		return "", fmt.Errorf("lookup job: %w", err)
	}

	if reopenable(domain.JobStatus(prev)) {
		if _, err := tx.ExecContext(ctx, `
UPDATE jobs SET status = ?, retry_run_id = ?, attempts = attempts + 1, updated_at = ?
WHERE identity = ?;`,
			string(domain.StatusFetched), rec.RunID, now, rec.Identity,
		); err != nil {
			return "", fmt.Errorf("reopen job: %w", err)
		}
	}
	return domain.JobStatus(prev), tx.Commit()
}

// EnrichJob stores the processed fields for an existing row.
func (d *DB) EnrichJob(ctx context.Context, job domain.ProcessedJob) error {
	links, _ := json.Marshal(nonNil(job.ApplicationLinks))
	res, err := d.Pool.ExecContext(ctx, `
UPDATE jobs SET company = ?, description = ?, location = ?, posted_date = ?, deadline = ?,
  category = ?, how_to_apply = ?, application_links = ?, image_url = ?, updated_at = ?
WHERE identity = ?;`,
		job.Company, job.Description, job.Location, job.PostedDate, job.Deadline,
		job.Category, job.HowToApply, string(links), job.ImageURL,
		time.Now().UTC().Format(timeLayout), job.Identity,
	)
	if err != nil {
		return fmt.Errorf("enrich job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus moves a row forward. Backward or repeated moves return
// domain.ErrInvalidTransition.
func (d *DB) UpdateJobStatus(ctx context.Context, identity string, to domain.JobStatus, lastErr string) error {
	from := predecessors(to)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing leads to %s", domain.ErrInvalidTransition, to)
	}

	args := []any{string(to), lastErr, time.Now().UTC().Format(timeLayout), identity}
	for _, f := range from {
		args = append(args, f)
	}
	res, err := d.Pool.ExecContext(ctx, `
UPDATE jobs SET status = ?, last_error = ?, updated_at = ?
WHERE identity = ? AND status IN (`+placeholders(len(from))+`);`, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var cur string
	err = d.Pool.QueryRowContext(ctx, `SELECT status FROM jobs WHERE identity = ?;`, identity).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, to)
}

const jobColumns = `identity, run_id, source, title, company, link, raw_description, description,
  location, posted_date, deadline, category, how_to_apply, application_links, image_url,
  status, last_error, retry_run_id, attempts, created_at, updated_at`

func (d *DB) GetJob(ctx context.Context, identity string) (JobRecord, error) {
	row := d.Pool.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE identity = ?;`, identity)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, ErrNotFound
	}
	return j, err
}

func (d *DB) ListJobs(ctx context.Context, opts ListJobsOpts) ([]JobRecord, error) {
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 100
	}

	var where []string
	var args []any
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.Source != "" {
		where = append(where, "source = ?")
		args = append(args, opts.Source)
	}
	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT ?;"
	args = append(args, opts.Limit)

	rows, err := d.Pool.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// CleanupOldJobs deletes rows older than the retention window.
func (d *DB) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (JobRecord, error) {
	var j JobRecord
	var links, status, created, updated string
	if err := s.Scan(
		&j.Identity, &j.RunID, &j.Source, &j.Title, &j.Company, &j.Link, &j.RawDescription, &j.Description,
		&j.Location, &j.PostedDate, &j.Deadline, &j.Category, &j.HowToApply, &links, &j.ImageURL,
		&status, &j.LastError, &j.RetryRunID, &j.Attempts, &created, &updated,
	); err != nil {
		return JobRecord{}, err
	}
	_ = json.Unmarshal([]byte(links), &j.ApplicationLinks)
	j.Status = domain.JobStatus(status)
	j.CreatedAt, _ = time.Parse(timeLayout, created)
	j.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return j, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
