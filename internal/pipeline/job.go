package pipeline

import (
	"context"
	"log/slog"

	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/events"
	"jobrelay-engine/internal/format"
	"jobrelay-engine/internal/scrape"
	"jobrelay-engine/internal/store"
	"jobrelay-engine/internal/summarize"
)

// handle drives one candidate from fetched to a terminal status.
func (r *Runner) handle(ctx context.Context, log *slog.Logger, runID string, src scrape.Source, c domain.JobCandidate) outcome {
	log = log.With("identity", c.Identity)

	prev, err := r.d.Store.RecordFetched(ctx, store.RecordFromCandidate(runID, c))
	if err != nil {
		log.Warn("record fetched", "err", err)
	}
	// A posted row is never reopened, so it accepts no further status writes.
	settled := prev == domain.StatusPosted

	verdict, err := r.d.Dedup.Check(ctx, c.Identity, c.Title, c.Company)
	if err != nil {
		return r.fail(ctx, log, runID, c, settled, "dedup check: "+err.Error())
	}
	if verdict.Duplicate {
		log.Debug("duplicate", "reason", string(verdict.Reason), "key", verdict.Key)
		if !settled {
			r.setStatus(ctx, log, c.Identity, domain.StatusSkipped, "duplicate: "+string(verdict.Reason))
		}
		return outSkipped
	}

	job, err := src.Plugin.ProcessJob(ctx, c)
	if err != nil {
		return r.fail(ctx, log, runID, c, settled, "process: "+err.Error())
	}
	if err := r.d.Store.EnrichJob(ctx, job); err != nil {
		log.Warn("enrich record", "err", err)
	}

	sum := r.d.Summarizer.Summarize(ctx, job, summarize.ParseStyle(src.Profile.Prompt))
	if sum.Origin == summarize.OriginFallback {
		log.Warn("published with fallback summary", "attempts", sum.Attempts)
	}

	in := format.Input{
		Title:    sum.Title,
		Body:     sum.Text(),
		Link:     job.Link,
		ImageURL: job.ImageURL,
		Hashtags: []string{hashtagFor(src), job.Category},
	}
	if err := r.deliver(ctx, log, in); err != nil {
		return r.fail(ctx, log, runID, c, settled, "publish: "+err.Error())
	}

	if r.opts.DryRun {
		if !settled {
			r.setStatus(ctx, log, c.Identity, domain.StatusSkipped, "dry run")
		}
		return outSkipped
	}

	if err := r.d.Dedup.MarkPublished(ctx, c.Identity, c.Title, c.Company); err != nil {
		log.Error("mark published; the job may be reposted", "err", err)
	}
	if !settled {
		r.setStatus(ctx, log, c.Identity, domain.StatusPosted, "")
	}
	r.d.Hub.Emit(events.TypeJobPosted, events.JobPosted{
		RunID: runID, Identity: c.Identity, Source: c.Source, Title: c.Title, Company: c.Company,
	})
	log.Info("posted", "title", c.Title, "origin", string(sum.Origin))
	return outPosted
}

// deliver sends the photo variant when the formatter kept the image and
// falls back to a text-only rebuild if the photo is rejected.
func (r *Runner) deliver(ctx context.Context, log *slog.Logger, in format.Input) error {
	msg := r.d.Formatter.Build(in)
	if msg.WithImage {
		err := r.d.Channel.SendPhoto(ctx, r.opts.ChatID, msg.ImageURL, msg.Text)
		if err == nil {
			return nil
		}
		log.Warn("photo rejected; sending text only", "err", err)
		msg = r.d.Formatter.BuildText(in)
	}
	return r.d.Channel.SendText(ctx, r.opts.ChatID, msg.Text)
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, runID string, c domain.JobCandidate, settled bool, reason string) outcome {
	log.Error("job failed", "title", c.Title, "err", reason)
	if !settled {
		r.setStatus(ctx, log, c.Identity, domain.StatusFailed, reason)
	}
	r.d.Hub.Emit(events.TypeJobFailed, events.JobPosted{
		RunID: runID, Identity: c.Identity, Source: c.Source, Title: c.Title, Error: reason,
	})
	return outFailed
}

// setStatus is an audit write; failures are logged and swallowed.
func (r *Runner) setStatus(ctx context.Context, log *slog.Logger, identity string, to domain.JobStatus, lastErr string) {
	if err := r.d.Store.UpdateJobStatus(context.WithoutCancel(ctx), identity, to, lastErr); err != nil {
		log.Warn("update job status", "to", string(to), "err", err)
	}
}

func hashtagFor(src scrape.Source) string {
	if src.Profile.Hashtag != "" {
		return src.Profile.Hashtag
	}
	return src.Name()
}
