package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"jobrelay-engine/internal/config"
	"jobrelay-engine/internal/dedup"
	"jobrelay-engine/internal/events"
	"jobrelay-engine/internal/format"
	"jobrelay-engine/internal/logger"
	"jobrelay-engine/internal/pipeline"
	"jobrelay-engine/internal/publish"
	"jobrelay-engine/internal/scrape"
	"jobrelay-engine/internal/scrape/util"
	"jobrelay-engine/internal/secrets"
	"jobrelay-engine/internal/store"
	"jobrelay-engine/internal/store/pg"
	"jobrelay-engine/internal/summarize"
)

// AppContext holds everything a command needs; Close releases it.
type AppContext struct {
	Config  config.Config
	CfgPath string
	Log     *slog.Logger

	Records store.Records
	KV      dedup.KV
	Dedup   *dedup.Deduper
	Hub     *events.Hub

	closers []func() error
}

// loadConfig resolves the config without touching any backend.
// configPath is --config, or the user config under --data-dir, bootstrapped
// on first use.
func configPath(cmd *cli.Command) (string, error) {
	if p := cmd.String("config"); p != "" {
		return p, nil
	}
	p, err := config.EnsureUserConfig(cmd.String("data-dir"), filepath.Join("config", "config.yml"))
	if err != nil {
		return "", fmt.Errorf("config bootstrap failed: %w", err)
	}
	return p, nil
}

func loadConfig(cmd *cli.Command) (config.Config, string, error) {
	cfgPath, err := configPath(cmd)
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Resolve(cfgPath, cmd.String("env"))
	if err != nil {
		return config.Config{}, "", fmt.Errorf("config load failed (%s): %w", cfgPath, err)
	}
	if cmd.IsSet("data-dir") {
		cfg.App.DataDir = cmd.String("data-dir")
	}
	secrets.Fill(&cfg)
	return cfg, cfgPath, nil
}

func NewAppContext(ctx context.Context, cmd *cli.Command) (*AppContext, error) {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg, v := config.NormalizeAndValidate(cfg)
	log := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
	})
	for _, w := range v.Warnings {
		log.Warn("config", "warning", w)
	}
	if !v.OK() {
		return nil, config.Validate(cfg)
	}

	ac := &AppContext{Config: cfg, CfgPath: cfgPath, Log: log, Hub: events.NewHub()}
	if err := ac.openStores(ctx); err != nil {
		ac.Close()
		return nil, err
	}
	return ac, nil
}

func (ac *AppContext) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(ac.Config.App.DataDir, name)
}

func (ac *AppContext) openStores(ctx context.Context) error {
	cfg := ac.Config
	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return err
	}

	var sqliteDB *store.DB
	switch cfg.Store.Driver {
	case "postgres":
		s, err := pg.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		ac.Records = s
		ac.closers = append(ac.closers, s.Close)
	default:
		db, err := store.Open(ac.dataPath(cfg.Store.Path))
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		sqliteDB = db
		ac.Records = db
		ac.closers = append(ac.closers, db.Close)
	}

	switch cfg.Dedup.Backend {
	case "redis":
		rdb, err := dedup.NewRedisClient(ctx, cfg.Dedup.RedisURL)
		if err != nil {
			return err
		}
		ac.closers = append(ac.closers, rdb.Close)
		ac.KV = dedup.NewRedisKV(rdb, cfg.Dedup.Namespace)
	default:
		if sqliteDB == nil {
			db, err := store.Open(ac.dataPath("dedup.db"))
			if err != nil {
				return fmt.Errorf("open dedup sqlite: %w", err)
			}
			sqliteDB = db
			ac.closers = append(ac.closers, db.Close)
		}
		kv, err := dedup.NewSQLiteKV(ctx, sqliteDB.Pool)
		if err != nil {
			return err
		}
		ac.KV = kv
	}
	ac.Dedup = dedup.New(ac.KV, cfg.DedupTTL())
	return nil
}

// NewRunner wires the pipeline. Without a Telegram token or chat id the
// runner falls back to dry-run delivery.
func (ac *AppContext) NewRunner(dryRun bool) (*pipeline.Runner, error) {
	cfg := ac.Config
	log := ac.Log

	limiter := util.NewHostLimiter(cfg.Pipeline.RequestsPerSecond, cfg.Pipeline.Burst)
	fetcher := util.NewFetcher(cfg.RequestTimeout(), limiter)
	sources, errs := scrape.BuildSources(cfg.Sites, fetcher, log)
	for _, err := range errs {
		log.Warn("site skipped", "err", err)
	}

	var gen summarize.Generator
	if g, err := summarize.NewOpenAIGenerator(summarize.OpenAIConfig{
		APIKey:      cfg.Secrets.OpenAIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Timeout:     cfg.AITimeout(),
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	}); err != nil {
		log.Warn("summaries will use the fallback body", "err", err)
	} else {
		gen = g
	}
	sum := summarize.New(gen, summarize.Policy{
		MaxAttempts: cfg.AI.MaxAttempts,
		BaseDelay:   seconds(cfg.AI.BaseDelaySeconds),
		MaxDelay:    seconds(cfg.AI.MaxDelaySeconds),
	}, log)

	var ch publish.Channel
	if !dryRun {
		if cfg.Telegram.ChatID == "" {
			log.Warn("telegram.chat_id not set; running dry")
			dryRun = true
		} else {
			tg, err := publish.NewTelegram(publish.TelegramConfig{
				Token:     cfg.Secrets.TelegramToken,
				APIBase:   cfg.Telegram.APIBase,
				Timeout:   cfg.TelegramTimeout(),
				PerMinute: cfg.Telegram.PerMinute,
			}, log)
			if err != nil {
				return nil, err
			}
			ch = tg
		}
	}

	return pipeline.New(pipeline.Deps{
		Sources:    sources,
		Store:      ac.Records,
		Dedup:      ac.Dedup,
		Summarizer: sum,
		Formatter:  format.New(cfg.Format),
		Channel:    ch,
		Hub:        ac.Hub,
		Log:        log,
	}, pipeline.Options{
		ChatID:        cfg.Telegram.ChatID,
		Concurrency:   cfg.Pipeline.Concurrency,
		SourceTimeout: cfg.SourceTimeout(),
		Retention:     cfg.Retention(),
		LockPath:      ac.dataPath("run.lock"),
		DryRun:        dryRun,
	}), nil
}

func (ac *AppContext) Close() {
	for i := len(ac.closers) - 1; i >= 0; i-- {
		_ = ac.closers[i]()
	}
	ac.closers = nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
