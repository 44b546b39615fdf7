package domain

import "time"

type RunTrigger string

const (
	TriggerManual   RunTrigger = "manual"
	TriggerSchedule RunTrigger = "schedule"
	TriggerStartup  RunTrigger = "startup"
	TriggerAPI      RunTrigger = "api"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Counters aggregates per-run job outcomes.
type Counters struct {
	Fetched int `json:"fetched"`
	Posted  int `json:"posted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (c *Counters) Add(o Counters) {
	c.Fetched += o.Fetched
	c.Posted += o.Posted
	c.Skipped += o.Skipped
	c.Failed += o.Failed
}

// Run records one execution of the pipeline.
type Run struct {
	ID         string              `json:"id"`
	Trigger    RunTrigger          `json:"trigger"`
	Status     RunStatus           `json:"status"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Totals     Counters            `json:"totals"`
	PerSource  map[string]Counters `json:"per_source"`
	Error      string              `json:"error,omitempty"`
}
