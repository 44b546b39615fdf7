package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"jobrelay-engine/internal/format"
	"jobrelay-engine/internal/scrape/types"
)

type Config struct {
	App struct {
		Port      int    `yaml:"port"`
		DataDir   string `yaml:"data_dir"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"app"`

	Telegram struct {
		ChatID         string `yaml:"chat_id"`
		APIBase        string `yaml:"api_base"`
		PerMinute      int    `yaml:"per_minute"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"telegram"`

	AI struct {
		BaseURL          string  `yaml:"base_url"`
		Model            string  `yaml:"model"`
		TimeoutSeconds   int     `yaml:"timeout_seconds"`
		Temperature      float64 `yaml:"temperature"`
		MaxTokens        int     `yaml:"max_tokens"`
		MaxAttempts      int     `yaml:"max_attempts"`
		BaseDelaySeconds int     `yaml:"base_delay_seconds"`
		MaxDelaySeconds  int     `yaml:"max_delay_seconds"`
	} `yaml:"ai"`

	Dedup struct {
		Backend   string `yaml:"backend"` // sqlite | redis
		RedisURL  string `yaml:"redis_url"`
		Namespace string `yaml:"namespace"`
		TTLHours  int    `yaml:"ttl_hours"`
	} `yaml:"dedup"`

	Store struct {
		Driver        string `yaml:"driver"` // sqlite | postgres
		Path          string `yaml:"path"`
		DatabaseURL   string `yaml:"database_url"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"store"`

	Pipeline struct {
		Concurrency           int     `yaml:"concurrency"`
		Schedule              string  `yaml:"schedule"`
		RunOnStartup          bool    `yaml:"run_on_startup"`
		RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
		SourceTimeoutSeconds  int     `yaml:"source_timeout_seconds"`
		RequestsPerSecond     float64 `yaml:"requests_per_second"`
		Burst                 int     `yaml:"burst"`
	} `yaml:"pipeline"`

	Format format.Config `yaml:"format"`

	Sites []types.SiteProfile `yaml:"sites"`

	// Secrets never round-trip through YAML; they come from env or keychain.
	Secrets struct {
		TelegramToken string `yaml:"-"`
		OpenAIKey     string `yaml:"-"`
	} `yaml:"-"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// ApplyDefaults fills every zero value that has a sensible default.
func ApplyDefaults(cfg *Config) {
	if cfg.App.Port == 0 {
		cfg.App.Port = 38471
	}
	if cfg.App.DataDir == "" {
		cfg.App.DataDir = "data"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "text"
	}

	if cfg.Telegram.APIBase == "" {
		cfg.Telegram.APIBase = "https://api.telegram.org"
	}
	if cfg.Telegram.PerMinute == 0 {
		cfg.Telegram.PerMinute = 20
	}
	if cfg.Telegram.TimeoutSeconds == 0 {
		cfg.Telegram.TimeoutSeconds = 30
	}

	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = 0.3
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 1200
	}
	if cfg.AI.MaxAttempts == 0 {
		cfg.AI.MaxAttempts = 3
	}
	if cfg.AI.BaseDelaySeconds == 0 {
		cfg.AI.BaseDelaySeconds = 2
	}
	if cfg.AI.MaxDelaySeconds == 0 {
		cfg.AI.MaxDelaySeconds = 30
	}

	if cfg.Dedup.Backend == "" {
		cfg.Dedup.Backend = "sqlite"
	}
	if cfg.Dedup.Namespace == "" {
		cfg.Dedup.Namespace = "jobrelay"
	}
	if cfg.Dedup.TTLHours == 0 {
		cfg.Dedup.TTLHours = 720
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "jobrelay.db"
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = 90
	}

	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = 4
	}
	if cfg.Pipeline.Schedule == "" {
		cfg.Pipeline.Schedule = "@every 1h"
	}
	if cfg.Pipeline.RequestTimeoutSeconds == 0 {
		cfg.Pipeline.RequestTimeoutSeconds = 30
	}
	if cfg.Pipeline.SourceTimeoutSeconds == 0 {
		cfg.Pipeline.SourceTimeoutSeconds = 600
	}
	if cfg.Pipeline.RequestsPerSecond == 0 {
		cfg.Pipeline.RequestsPerSecond = 1
	}
	if cfg.Pipeline.Burst == 0 {
		cfg.Pipeline.Burst = 2
	}

	cfg.Format = cfg.Format.WithDefaults()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c Config) RequestTimeout() time.Duration { return seconds(c.Pipeline.RequestTimeoutSeconds) }
func (c Config) SourceTimeout() time.Duration  { return seconds(c.Pipeline.SourceTimeoutSeconds) }
func (c Config) AITimeout() time.Duration      { return seconds(c.AI.TimeoutSeconds) }
func (c Config) TelegramTimeout() time.Duration {
	return seconds(c.Telegram.TimeoutSeconds)
}
func (c Config) DedupTTL() time.Duration  { return time.Duration(c.Dedup.TTLHours) * time.Hour }
func (c Config) Retention() time.Duration { return time.Duration(c.Store.RetentionDays) * 24 * time.Hour }
