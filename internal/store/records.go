package store

import (
	"context"
	"errors"
	"time"

	"jobrelay-engine/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRunFinalized = errors.New("run already finalized")
)

// JobRecord is the audit row kept per identity.
type JobRecord struct {
	Identity         string           `json:"identity"`
	RunID            string           `json:"run_id"`
	Source           string           `json:"source"`
	Title            string           `json:"title"`
	Company          string           `json:"company"`
	Link             string           `json:"link"`
	RawDescription   string           `json:"raw_description"`
	Description      string           `json:"description"`
	Location         string           `json:"location"`
	PostedDate       string           `json:"posted_date"`
	Deadline         string           `json:"deadline"`
	Category         string           `json:"category"`
	HowToApply       string           `json:"how_to_apply"`
	ApplicationLinks []string         `json:"application_links"`
	ImageURL         string           `json:"image_url"`
	Status           domain.JobStatus `json:"status"`
	LastError        string           `json:"last_error"`
	// RetryRunID is the latest run that reopened the row; RunID keeps the first.
	RetryRunID string `json:"retry_run_id,omitempty"`
	Attempts   int    `json:"attempts"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// RecordFromCandidate seeds the fetched row for c.
func RecordFromCandidate(runID string, c domain.JobCandidate) JobRecord {
	return JobRecord{
		Identity:       c.Identity,
		RunID:          runID,
		Source:         c.Source,
		Title:          c.Title,
		Company:        c.Company,
		Link:           c.Link,
		RawDescription: c.Description,
		Location:       c.Location,
		PostedDate:     c.PostedDate,
		Deadline:       c.Deadline,
		Category:       c.Category,
		ImageURL:       c.ImageURL,
		Status:         domain.StatusFetched,
	}
}

type ListJobsOpts struct {
	Status domain.JobStatus
	Source string
	Limit  int
}

// Records is the relational store the pipeline and operator tools use.
// SQLite and Postgres both implement it.
type Records interface {
	// RecordFetched returns the status the row had before this fetch; empty
	// means the row is new.
	RecordFetched(ctx context.Context, rec JobRecord) (prev domain.JobStatus, err error)
	EnrichJob(ctx context.Context, job domain.ProcessedJob) error
	UpdateJobStatus(ctx context.Context, identity string, to domain.JobStatus, lastErr string) error
	GetJob(ctx context.Context, identity string) (JobRecord, error)
	ListJobs(ctx context.Context, opts ListJobsOpts) ([]JobRecord, error)
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	CreateRun(ctx context.Context, run domain.Run) error
	FinishRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	LastRun(ctx context.Context) (domain.Run, error)

	SourceSettings(ctx context.Context) (map[string]bool, error)
	SetSourceEnabled(ctx context.Context, name string, enabled bool) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}

// reopenable lists the states a re-fetched identity may restart from. A job
// that never reached the channel gets a fresh lifecycle in the next run.
func reopenable(s domain.JobStatus) bool {
	return s == domain.StatusFailed || s == domain.StatusSkipped
}

// predecessors returns the states from which to is reachable.
func predecessors(to domain.JobStatus) []string {
	var out []string
	for _, from := range []domain.JobStatus{domain.StatusFetched, domain.StatusPosted, domain.StatusSkipped, domain.StatusFailed} {
		if domain.IsTransitionAllowed(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

const SettingPaused = "pipeline.paused"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"
