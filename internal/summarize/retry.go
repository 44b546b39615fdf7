package summarize

import (
	"context"
	"errors"
	"time"
)

// State is the summarizer's position in the retry loop.
type State int

const (
	StateAttempting State = iota
	StateBackingOff
	StateExhausted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateBackingOff:
		return "backing-off"
	case StateExhausted:
		return "exhausted"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Decision is the outcome of one attempt.
type Decision int

const (
	Accept Decision = iota
	Retry
	Fallback
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Decide maps the result of attempt (1-based) to the next step. It is pure.
func (p Policy) Decide(attempt int, err error) Decision {
	p = p.normalized()
	switch {
	case err == nil:
		return Accept
	case errors.Is(err, context.Canceled):
		return Fallback
	case attempt >= p.MaxAttempts:
		return Fallback
	default:
		return Retry
	}
}

// Backoff is the wait after failed attempt n: BaseDelay doubled per attempt,
// capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Next advances the state machine after an attempt.
func (p Policy) Next(attempt int, err error) State {
	switch p.Decide(attempt, err) {
	case Accept:
		return StateDone
	case Retry:
		return StateBackingOff
	default:
		return StateExhausted
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
