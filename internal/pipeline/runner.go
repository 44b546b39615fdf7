// Package pipeline runs one ingest → dedup → summarize → publish pass over
// every enabled source and keeps the run and job records consistent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/events"
	"jobrelay-engine/internal/format"
	"jobrelay-engine/internal/publish"
	"jobrelay-engine/internal/scrape"
	"jobrelay-engine/internal/store"
)

type Options struct {
	ChatID        string
	Concurrency   int
	SourceTimeout time.Duration
	// Retention prunes job records older than this after each run; 0 keeps all.
	Retention time.Duration
	// LockPath enables the cross-process run lock.
	LockPath string
	// DryRun logs messages instead of sending them and never writes dedup keys.
	DryRun bool
}

type Deps struct {
	Sources    []scrape.Source
	Store      RecordStore
	Dedup      Deduper
	Summarizer Summarizer
	Formatter  *format.Formatter
	Channel    publish.Channel
	Hub        *events.Hub
	Log        *slog.Logger
}

type Runner struct {
	d      Deps
	opts   Options
	log    *slog.Logger
	lock   *runLock
	status atomic.Value
	newID  func() string
}

func New(d Deps, opts Options) *Runner {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Formatter == nil {
		d.Formatter = format.New(format.DefaultConfig())
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 10 * time.Minute
	}
	if opts.DryRun || d.Channel == nil {
		d.Channel = publish.LogChannel{Log: d.Log.With("component", "dry-run")}
		opts.DryRun = true
	}
	return &Runner{
		d:     d,
		opts:  opts,
		log:   d.Log.With("component", "pipeline"),
		lock:  newRunLock(opts.LockPath),
		newID: uuid.NewString,
	}
}

// outcome is the terminal result of one candidate.
type outcome int

const (
	outPosted outcome = iota
	outSkipped
	outFailed
)

// tally guards the per-source counters shared by concurrent sources.
type tally struct {
	mu  sync.Mutex
	per map[string]domain.Counters
}

func (t *tally) add(source string, c domain.Counters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.per[source]
	cur.Add(c)
	t.per[source] = cur
}

func (t *tally) snapshot() (domain.Counters, map[string]domain.Counters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total domain.Counters
	per := make(map[string]domain.Counters, len(t.per))
	for k, v := range t.per {
		per[k] = v
		total.Add(v)
	}
	return total, per
}

// Run executes one pass. It returns ErrRunLocked when another run holds the
// lock. The returned error is non-nil only when the run itself could not be
// recorded or its settings could not be read; per-job failures are counted.
func (r *Runner) Run(ctx context.Context, trigger domain.RunTrigger) (domain.Run, error) {
	if err := r.lock.acquire(); err != nil {
		return domain.Run{}, err
	}
	defer r.lock.release()

	run := domain.Run{
		ID:        r.newID(),
		Trigger:   trigger,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
		PerSource: map[string]domain.Counters{},
	}
	log := r.log.With("run_id", run.ID, "trigger", string(trigger))

	if err := r.d.Store.CreateRun(ctx, run); err != nil {
		return run, fmt.Errorf("create run: %w", err)
	}
	r.markRunning(run)
	r.d.Hub.Emit(events.TypeRunStarted, run)
	log.Info("run started", "dry_run", r.opts.DryRun)

	sources, paused, err := r.enabledSources(ctx)
	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		return r.finish(ctx, log, run, err)
	}
	if paused {
		log.Info("pipeline paused; nothing to do")
		run.Status = domain.RunCompleted
		return r.finish(ctx, log, run, nil)
	}

	t := &tally{per: map[string]domain.Counters{}}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for _, src := range sources {
		g.Go(func() error {
			r.runSource(ctx, run.ID, src, t)
			return nil // best-effort: a source never cancels its siblings
		})
	}
	_ = g.Wait()

	run.Totals, run.PerSource = t.snapshot()
	run.Status = domain.RunCompleted
	if ctx.Err() != nil {
		run.Status = domain.RunFailed
		run.Error = ctx.Err().Error()
	}

	if r.opts.Retention > 0 {
		if n, err := r.d.Store.CleanupOldJobs(context.WithoutCancel(ctx), r.opts.Retention); err != nil {
			log.Warn("cleanup old jobs", "err", err)
		} else if n > 0 {
			log.Info("pruned old job records", "count", n)
		}
	}

	return r.finish(ctx, log, run, nil)
}

func (r *Runner) finish(ctx context.Context, log *slog.Logger, run domain.Run, cause error) (domain.Run, error) {
	now := time.Now().UTC()
	run.FinishedAt = &now

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.d.Store.FinishRun(fctx, run); err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		cause = errors.Join(cause, fmt.Errorf("finish run: %w", err))
	}

	r.markDone(run)
	r.d.Hub.Emit(events.TypeRunFinished, run)
	log.Info("run finished",
		"status", string(run.Status),
		"fetched", run.Totals.Fetched,
		"posted", run.Totals.Posted,
		"skipped", run.Totals.Skipped,
		"failed", run.Totals.Failed,
		"took", now.Sub(run.StartedAt).Round(time.Millisecond).String(),
	)
	return run, cause
}

// enabledSources applies the operator settings. Settings that cannot be read
// fail the run.
func (r *Runner) enabledSources(ctx context.Context) ([]scrape.Source, bool, error) {
	v, ok, err := r.d.Store.GetSetting(ctx, store.SettingPaused)
	if err != nil {
		return nil, false, fmt.Errorf("read settings: %w", err)
	}
	if ok {
		if paused, _ := strconv.ParseBool(v); paused {
			return nil, true, nil
		}
	}

	enabled, err := r.d.Store.SourceSettings(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read source settings: %w", err)
	}
	var out []scrape.Source
	for _, s := range r.d.Sources {
		if on, ok := enabled[s.Name()]; ok && !on {
			r.log.Info("source disabled by operator", "source", s.Name())
			continue
		}
		out = append(out, s)
	}
	return out, false, nil
}

func (r *Runner) runSource(ctx context.Context, runID string, src scrape.Source, t *tally) {
	log := r.log.With("run_id", runID, "source", src.Name())
	sctx, cancel := context.WithTimeout(ctx, r.opts.SourceTimeout)
	defer cancel()

	started := time.Now()
	log.Info("fetching")
	cands, err := src.Plugin.FetchJobs(sctx)
	if err != nil {
		log.Warn("fetch failed", "err", err)
		t.add(src.Name(), domain.Counters{})
		return
	}
	if len(cands) == 0 {
		log.Warn("source returned no jobs")
	}

	var c domain.Counters
	for _, cand := range cands {
		if sctx.Err() != nil {
			log.Warn("source budget exhausted; remaining jobs wait for the next run",
				"remaining", len(cands)-c.Fetched, "err", sctx.Err())
			break
		}
		c.Fetched++
		switch r.handle(sctx, log, runID, src, cand) {
		case outPosted:
			c.Posted++
		case outSkipped:
			c.Skipped++
		case outFailed:
			c.Failed++
		}
	}
	t.add(src.Name(), c)
	log.Info("source done",
		"fetched", c.Fetched, "posted", c.Posted, "skipped", c.Skipped, "failed", c.Failed,
		"took", time.Since(started).Round(time.Millisecond).String())
}
