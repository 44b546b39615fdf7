package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/pipeline"
	"jobrelay-engine/internal/store"
)

type RunHandler struct {
	Runner     Runner
	Runs       RunLookup
	BaseCtx    context.Context
	Background *sync.WaitGroup
	Log        *slog.Logger
}

type runStatusResponse struct {
	Running   bool        `json:"running"`
	LastRunAt string      `json:"last_run_at,omitempty"`
	LastOkAt  string      `json:"last_ok_at,omitempty"`
	LastError string      `json:"last_error,omitempty"`
	LastRun   *domain.Run `json:"last_run,omitempty"`
}

func (h RunHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.Runner.Status()
	resp := runStatusResponse{
		Running:   st.Running,
		LastRunAt: st.LastRunAt,
		LastOkAt:  st.LastOkAt,
		LastError: st.LastError,
	}
	if h.Runs != nil {
		last, err := h.Runs.LastRun(r.Context())
		switch {
		case err == nil:
			resp.LastRun = &last
		case errors.Is(err, store.ErrNotFound):
		default:
			WriteError(w, r, http.StatusInternalServerError, CodeStoreError, err.Error())
			return
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Run starts a pipeline run in the background and returns immediately.
func (h RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.Runner.Status().Running {
		WriteError(w, r, http.StatusConflict, CodeAlreadyRunning, "a run is already in progress")
		return
	}

	reqID := RequestIDFrom(r.Context())
	h.Background.Add(1)
	go func() {
		defer h.Background.Done()
		_, err := h.Runner.Run(h.BaseCtx, domain.TriggerAPI)
		switch {
		case err == nil:
		case errors.Is(err, pipeline.ErrRunLocked):
			h.Log.Info("api run skipped; another run holds the lock", "request_id", reqID)
		default:
			h.Log.Error("api run failed", "request_id", reqID, "err", err)
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
