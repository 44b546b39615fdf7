package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// NewMux registers the operator routes.
func NewMux(d Deps) *http.ServeMux {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.BaseCtx == nil {
		d.BaseCtx = context.Background()
	}
	if d.Background == nil {
		d.Background = &sync.WaitGroup{}
	}
	mux := http.NewServeMux()

	hh := HealthHandler{Runner: d.Runner, Hub: d.Hub}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	// Runs
	rh := RunHandler{Runner: d.Runner, Runs: d.Runs, BaseCtx: d.BaseCtx, Background: d.Background, Log: d.Log}
	mux.HandleFunc("/run/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.Status,
	}))
	mux.HandleFunc("/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: rh.Run,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	return mux
}

// NewHandler wraps the mux in the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")
	return Chain(NewMux(d), RequestID, Recover(log), AccessLog(log))
}

func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
