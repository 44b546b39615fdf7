package pipeline

import (
	"time"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/scrape/types"
)

// Status is a snapshot for the operator surface.
func (r *Runner) Status() types.ScrapeStatus {
	if v, ok := r.status.Load().(types.ScrapeStatus); ok {
		return v
	}
	return types.ScrapeStatus{}
}

func (r *Runner) markRunning(run domain.Run) {
	st := r.Status()
	st.Running = true
	st.LastRunID = run.ID
	st.LastRunAt = run.StartedAt.Format(time.RFC3339)
	r.status.Store(st)
}

func (r *Runner) markDone(run domain.Run) {
	st := r.Status()
	st.Running = false
	st.LastAdded = run.Totals.Posted
	if run.Status == domain.RunFailed {
		st.LastError = run.Error
	} else {
		st.LastError = ""
		st.LastOkAt = time.Now().Format(time.RFC3339)
	}
	r.status.Store(st)
}
