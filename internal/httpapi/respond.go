package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Error codes returned in APIError bodies.
const (
	CodeMethodNotAllowed = "method_not_allowed"
	CodeAlreadyRunning   = "already_running"
	CodeStoreError       = "store_error"
	CodeNoEvents         = "no_events"
	CodeStreamError      = "stream_unsupported"
	CodeInternal         = "internal_error"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// methodMux dispatches on r.Method and answers 405 with an Allow header
// for anything else.
func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	allowed := make([]string, 0, len(m))
	for method := range m {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		WriteError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, r.Method+" not allowed")
	}
}
