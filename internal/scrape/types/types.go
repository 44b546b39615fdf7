package types

import (
	"context"

	"jobrelay-engine/internal/domain"
)

// Plugin is one job source. FetchJobs lists candidates, ProcessJob enriches
// a single candidate. Implementations must bound every network call and must
// degrade to candidate fields when enrichment fails.
type Plugin interface {
	Name() string
	FetchJobs(ctx context.Context) ([]domain.JobCandidate, error)
	ProcessJob(ctx context.Context, c domain.JobCandidate) (domain.ProcessedJob, error)
}

type ScrapeStatus struct {
	LastRunID string `json:"last_run_id"`
	LastRunAt string `json:"last_run_at"`
	LastOkAt  string `json:"last_ok_at"`
	LastError string `json:"last_error"`
	LastAdded int    `json:"last_added"`
	Running   bool   `json:"running"`
}
