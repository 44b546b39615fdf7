package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobrelay-engine/internal/domain"
)

func (d *DB) CreateRun(ctx context.Context, run domain.Run) error {
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO runs (id, run_trigger, status, started_at) VALUES (?, ?, ?, ?);`,
		run.ID, string(run.Trigger), string(domain.RunRunning), run.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun writes the final counters. A run is finalized exactly once;
// later calls return ErrRunFinalized.
func (d *DB) FinishRun(ctx context.Context, run domain.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	per, _ := json.Marshal(run.PerSource)

	res, err := d.Pool.ExecContext(ctx, `
UPDATE runs SET status = ?, finished_at = ?, fetched = ?, posted = ?, skipped = ?, failed = ?,
  per_source = ?, error = ?
WHERE id = ? AND finished_at IS NULL;`,
		string(run.Status), finished.Format(timeLayout),
		run.Totals.Fetched, run.Totals.Posted, run.Totals.Skipped, run.Totals.Failed,
		string(per), run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, gerr := d.GetRun(ctx, run.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrRunFinalized
	}
	return nil
}

const runColumns = `id, run_trigger, status, started_at, finished_at, fetched, posted, skipped, failed, per_source, error`

func (d *DB) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(d.Pool.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?;`, id))
}

func (d *DB) LastRun(ctx context.Context) (domain.Run, error) {
	return scanRun(d.Pool.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1;`))
}

func scanRun(row *sql.Row) (domain.Run, error) {
	var r domain.Run
	var trigger, status, started, per string
	var finished sql.NullString
	err := row.Scan(&r.ID, &trigger, &status, &started, &finished,
		&r.Totals.Fetched, &r.Totals.Posted, &r.Totals.Skipped, &r.Totals.Failed, &per, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, ErrNotFound
	}
	if err != nil {
		return domain.Run{}, err
	}
	r.Trigger = domain.RunTrigger(trigger)
	r.Status = domain.RunStatus(status)
	r.StartedAt, _ = time.Parse(timeLayout, started)
	if finished.Valid {
		t, _ := time.Parse(timeLayout, finished.String)
		r.FinishedAt = &t
	}
	_ = json.Unmarshal([]byte(per), &r.PerSource)
	return r, nil
}
