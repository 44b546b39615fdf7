package pipeline

import (
	"context"
	"time"

	"jobrelay-engine/internal/dedup"
	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/store"
	"jobrelay-engine/internal/summarize"
)

// RecordStore is the slice of the relational store a run needs.
type RecordStore interface {
	RecordFetched(ctx context.Context, rec store.JobRecord) (domain.JobStatus, error)
	EnrichJob(ctx context.Context, job domain.ProcessedJob) error
	UpdateJobStatus(ctx context.Context, identity string, to domain.JobStatus, lastErr string) error
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	CreateRun(ctx context.Context, run domain.Run) error
	FinishRun(ctx context.Context, run domain.Run) error

	SourceSettings(ctx context.Context) (map[string]bool, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

type Deduper interface {
	Check(ctx context.Context, identity, title, company string) (dedup.Verdict, error)
	MarkPublished(ctx context.Context, identity, title, company string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, job domain.ProcessedJob, style summarize.Style) summarize.Summary
}

var (
	_ RecordStore = (store.Records)(nil)
	_ Deduper     = (*dedup.Deduper)(nil)
	_ Summarizer  = (*summarize.Summarizer)(nil)
)
