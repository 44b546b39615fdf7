package httpapi

import (
	"context"
	"log/slog"
	"sync"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/events"
	"jobrelay-engine/internal/scrape/types"
)

// Runner is the pipeline as seen by the operator surface.
type Runner interface {
	Run(ctx context.Context, trigger domain.RunTrigger) (domain.Run, error)
	Status() types.ScrapeStatus
}

type RunLookup interface {
	LastRun(ctx context.Context) (domain.Run, error)
}

type Deps struct {
	Runner Runner
	Runs   RunLookup
	Hub    *events.Hub
	Log    *slog.Logger

	// BaseCtx outlives requests; API-triggered runs hang off it so they
	// survive the client disconnecting but stop on shutdown.
	BaseCtx context.Context

	// Background counts API-triggered runs still in flight. The owner
	// waits on it after the server shuts down and before closing stores.
	Background *sync.WaitGroup
}
