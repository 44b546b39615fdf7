// Package scheduler fires pipeline runs on a cron spec.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"jobrelay-engine/internal/domain"
)

// Task runs once per tick. Errors are logged; they never stop the schedule.
type Task func(ctx context.Context, trigger domain.RunTrigger) error

// ErrSkip lets a task report that it deliberately did nothing (e.g. a run
// already in progress). It is logged at debug level.
var ErrSkip = errors.New("skipped")

// Scheduler wraps robfig/cron and manages the run loop.
type Scheduler struct {
	cron         *cron.Cron
	spec         string // cron spec, e.g. "@every 1h"
	runOnStartup bool
	task         Task
	log          *slog.Logger

	startup sync.WaitGroup
}

func New(spec string, runOnStartup bool, task Task, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")
	clog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug))
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		spec:         spec,
		runOnStartup: runOnStartup,
		task:         task,
		log:          log,
	}
}

// Start registers the job and starts the scheduler. With runOnStartup it
// also fires once immediately so the channel does not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.fire(ctx, domain.TriggerSchedule)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", "spec", s.spec)

	if s.runOnStartup {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.fire(ctx, domain.TriggerStartup)
		}()
	}
	return nil
}

// Stop halts the schedule and returns a context that is done once any
// in-flight task, the startup run included, has returned.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("cron stopped")
	cronDone := s.cron.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		cancel()
	}()
	return ctx
}

func (s *Scheduler) fire(ctx context.Context, trigger domain.RunTrigger) {
	if ctx.Err() != nil {
		return
	}
	err := s.task(ctx, trigger)
	switch {
	case err == nil:
	case errors.Is(err, ErrSkip):
		s.log.Debug("tick skipped", "trigger", string(trigger), "err", err)
	default:
		s.log.Error("scheduled run failed", "trigger", string(trigger), "err", err)
	}
}
