// Package summarize turns a processed job into the Arabic post body, using a
// text-generation model with bounded retries and a deterministic fallback.
package summarize

import (
	"context"
	"log/slog"
	"time"

	"jobrelay-engine/internal/domain"
)

// Generator produces a completion for prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Origin string

const (
	OriginModel    Origin = "model"
	OriginFallback Origin = "fallback"
)

// Summary is the structured result handed to the formatter.
type Summary struct {
	Title    string
	Header   string
	Body     string
	Origin   Origin
	Attempts int
}

// Text joins header and body with the section separator.
func (s Summary) Text() string {
	switch {
	case s.Header == "":
		return s.Body
	case s.Body == "":
		return s.Header
	}
	return s.Header + "\n\n" + s.Body
}

type Summarizer struct {
	gen    Generator
	policy Policy
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(gen Generator, policy Policy, log *slog.Logger) *Summarizer {
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{
		gen:    gen,
		policy: policy.normalized(),
		log:    log.With("component", "summarize"),
		sleep:  sleep,
	}
}

// Summarize never fails: when every attempt is exhausted the fallback body is
// used. A nil generator goes straight to the fallback.
func (s *Summarizer) Summarize(ctx context.Context, job domain.ProcessedJob, style Style) Summary {
	out := Summary{Title: job.Title, Header: Header(job)}

	if s.gen == nil {
		out.Body, out.Origin = FallbackBody(job), OriginFallback
		return out
	}

	prompt := BuildPrompt(style, job)
	state := StateAttempting
	attempt := 0

	for state != StateDone && state != StateExhausted {
		switch state {
		case StateAttempting:
			attempt++
			body, err := s.attempt(ctx, prompt)
			if err == nil {
				out.Body = body
			} else {
				s.log.Warn("generation attempt failed", "identity", job.Identity, "attempt", attempt, "err", err)
			}
			state = s.policy.Next(attempt, err)
		case StateBackingOff:
			if err := s.sleep(ctx, s.policy.Backoff(attempt)); err != nil {
				state = StateExhausted
				continue
			}
			state = StateAttempting
		}
	}

	out.Attempts = attempt
	if state == StateExhausted {
		s.log.Warn("using fallback summary", "identity", job.Identity, "attempts", attempt)
		out.Body, out.Origin = FallbackBody(job), OriginFallback
		return out
	}
	out.Origin = OriginModel
	return out
}

func (s *Summarizer) attempt(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	cleaned := Clean(raw)
	if err := Validate(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}
