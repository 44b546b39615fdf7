package store

import "database/sql"

// Migrate brings the schema to the latest user_version.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v < 1 {
		if err := migrateV1(tx); err != nil {
			return err
		}
	}
	if v < 2 {
		if err := migrateV2(tx); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`PRAGMA user_version = 2;`); err != nil {
		return err
	}
	return tx.Commit()
}

func migrateV1(tx *sql.Tx) error {
	// ---- Schema v1: tables ----

	stmts := []string{`
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
  application_links TEXT NOT NULL DEFAULT '[]',
  image_url TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'fetched',
  last_error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  run_trigger TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT,
  fetched INTEGER NOT NULL DEFAULT 0,
  posted INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  per_source TEXT NOT NULL DEFAULT '{}',
  error TEXT NOT NULL DEFAULT ''
);`, `
CREATE TABLE IF NOT EXISTS sources (
  name TEXT PRIMARY KEY,
  enabled INTEGER NOT NULL DEFAULT 1,
  updated_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,

		// ---- Schema v1: indexes ----

		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_source_created ON jobs(source, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}

	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// migrateV2 tracks reopened jobs without touching their first run.
func migrateV2(tx *sql.Tx) error {
	for _, s := range []string{
		`ALTER TABLE jobs ADD COLUMN retry_run_id TEXT NOT NULL DEFAULT '';`,
		`ALTER TABLE jobs ADD COLUMN attempts INTEGER NOT NULL DEFAULT 1;`,
	} {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
