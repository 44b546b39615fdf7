package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"jobrelay-engine/internal/scrape/types"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy plus the findings.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	out.Sites = append([]types.SiteProfile(nil), cfg.Sites...)

	ApplyDefaults(&out)

	out.Telegram.ChatID = strings.TrimSpace(out.Telegram.ChatID)
	out.Dedup.Backend = strings.ToLower(strings.TrimSpace(out.Dedup.Backend))
	out.Store.Driver = strings.ToLower(strings.TrimSpace(out.Store.Driver))

	// ---- app ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	// ---- telegram ----

	if out.Telegram.ChatID == "" {
		res.addWarn("telegram.chat_id is empty; only dry runs will work.")
	}
	if out.Telegram.PerMinute < 0 {
		res.addErr("telegram.per_minute must be >= 0")
	}

	// ---- ai ----

	if out.AI.MaxAttempts < 1 || out.AI.MaxAttempts > 10 {
		res.addErr("ai.max_attempts must be 1..10")
	}
	if out.AI.Temperature < 0 || out.AI.Temperature > 2 {
		res.addErr("ai.temperature must be 0..2")
	}

	// ---- dedup ----

	switch out.Dedup.Backend {
	case "sqlite":
	case "redis":
		if strings.TrimSpace(out.Dedup.RedisURL) == "" {
			res.addErr("dedup.redis_url is required when dedup.backend=redis")
		}
	default:
		res.addErr("dedup.backend must be sqlite or redis, got %q", out.Dedup.Backend)
	}
	if out.Dedup.TTLHours < 24 {
		res.addWarn("dedup.ttl_hours is very low (%d); reposts may be published twice.", out.Dedup.TTLHours)
	}

	// ---- store ----

	switch out.Store.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(out.Store.DatabaseURL) == "" {
			res.addErr("store.database_url is required when store.driver=postgres")
		}
	default:
		res.addErr("store.driver must be sqlite or postgres, got %q", out.Store.Driver)
	}

	// ---- pipeline ----

	if out.Pipeline.Concurrency < 1 {
		res.addErr("pipeline.concurrency must be > 0")
	}
	if _, err := cron.ParseStandard(out.Pipeline.Schedule); err != nil {
		res.addErr("pipeline.schedule is invalid: %v", err)
	}
	if out.Pipeline.RequestsPerSecond > 5 {
		res.addWarn("pipeline.requests_per_second is high (%.1f) and may get sources to block us.", out.Pipeline.RequestsPerSecond)
	}

	// ---- format ----

	if out.Format.CaptionBudget > 1024 {
		res.addErr("format.caption_budget cannot exceed 1024")
	}
	if out.Format.TextBudget > 4096 {
		res.addErr("format.text_budget cannot exceed 4096")
	}

	// ---- sites ----

	if len(out.Sites) == 0 {
		res.addWarn("no sites configured; runs will fetch nothing.")
	}
	seen := map[string]bool{}
	enabled := 0
	for i, s := range out.Sites {
		name := strings.TrimSpace(s.Name)
		out.Sites[i].Name = name
		if seen[name] {
			res.addErr("sites[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		for _, msg := range s.Validate() {
			res.addErr("sites[%d]: %s", i, msg)
		}
		if s.IsEnabled() {
			enabled++
		}
	}
	if len(out.Sites) > 0 && enabled == 0 {
		res.addWarn("all sites are disabled.")
	}

	return out, res
}
