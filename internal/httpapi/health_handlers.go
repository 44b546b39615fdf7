package httpapi

import (
	"net/http"
	"time"

	"jobrelay-engine/internal/events"
)

type HealthHandler struct {
	Runner Runner
	Hub    *events.Hub
}

// Health reports liveness; it also reports whether a run is in flight.
func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	}
	if h.Runner != nil {
		body["running"] = h.Runner.Status().Running
	}
	if h.Hub != nil {
		body["subscribers"] = h.Hub.Subscribers()
		body["events_dropped"] = h.Hub.Dropped()
	}
	WriteJSON(w, http.StatusOK, body)
}
