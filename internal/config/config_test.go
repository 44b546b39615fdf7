package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobrelay-engine/internal/scrape/types"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const minimalYAML = `
telegram:
  chat_id: "@jobs"
sites:
  - name: examplejobs
    kind: markup
    list_url: https://jobs.example.com
    container: ".card"
    fields:
      title: "h2"
      link: "a"
`

// ── Load & defaults ──

// TestLoad_AppliesDefaults verifies omitted sections get working values.
func TestLoad_AppliesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yml", minimalYAML)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "@jobs", cfg.Telegram.ChatID)
	assert.Equal(t, "sqlite", cfg.Dedup.Backend)
	assert.Equal(t, 720, cfg.Dedup.TTLHours)
	assert.Equal(t, "@every 1h", cfg.Pipeline.Schedule)
	assert.Equal(t, 1024, cfg.Format.CaptionBudget)
	assert.Equal(t, 4096, cfg.Format.TextBudget)
	assert.Equal(t, 3, cfg.AI.MaxAttempts)
	require.Len(t, cfg.Sites, 1)
	assert.True(t, cfg.Sites[0].IsEnabled())
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JOBRELAY_CONCURRENCY", "7")
	t.Setenv("JOBRELAY_PORT", "not-a-number")

	var cfg Config
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	assert.Equal(t, "123:abc", cfg.Secrets.TelegramToken)
	assert.Equal(t, "sk-test", cfg.Secrets.OpenAIKey)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Dedup.RedisURL)
	assert.Equal(t, 7, cfg.Pipeline.Concurrency)
	assert.Equal(t, 38471, cfg.App.Port)
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	assert.NoError(t, LoadDotEnv(""))
}

// ── Bootstrap & overlay ──

func TestEnsureUserConfig_CopiesDefaultOnce(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "default.yml", minimalYAML)
	dataDir := filepath.Join(dir, "data")

	p, err := EnsureUserConfig(dataDir, def)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "config.yml"), p)

	require.NoError(t, os.WriteFile(p, []byte("app:\n  port: 9000\n"), 0o644))
	p2, err := EnsureUserConfig(dataDir, def)
	require.NoError(t, err)
	cfg, err := Load(p2)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.Port)
}

func TestEnsureUserConfig_WritesBuiltinDefaults(t *testing.T) {
	dataDir := t.TempDir()
	p, err := EnsureUserConfig(dataDir, filepath.Join(dataDir, "missing.yml"))
	require.NoError(t, err)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

// TestOverlaySites verifies same-named sites are replaced and new ones appended.
func TestOverlaySites(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeFile(t, dir, "config.yml", minimalYAML))
	require.NoError(t, err)

	sites := writeFile(t, dir, "sites.yml", `
sites:
  - name: examplejobs
    kind: feed
    list_url: https://jobs.example.com/rss
  - name: remotefeed
    kind: feed
    list_url: https://remote.example/rss
`)
	require.NoError(t, OverlaySites(&cfg, sites))
	require.Len(t, cfg.Sites, 2)
	assert.Equal(t, types.KindFeed, cfg.Sites[0].Kind)
	assert.Equal(t, "remotefeed", cfg.Sites[1].Name)

	assert.NoError(t, OverlaySites(&cfg, filepath.Join(dir, "nope.yml")))
}

// ── Validation ──

func TestNormalizeAndValidate(t *testing.T) {
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yml", minimalYAML))
	require.NoError(t, err)

	_, v := NormalizeAndValidate(cfg)
	assert.True(t, v.OK(), v.Errors)

	cfg.Dedup.Backend = "redis"
	cfg.Pipeline.Schedule = "every now and then"
	cfg.Sites = append(cfg.Sites, types.SiteProfile{Name: "examplejobs", Kind: "scraper"})
	_, v = NormalizeAndValidate(cfg)
	assert.False(t, v.OK())
	assert.Contains(t, v.Errors, "dedup.redis_url is required when dedup.backend=redis")
	assert.GreaterOrEqual(t, len(v.Errors), 4)
}

func TestSaveAtomic_RejectsInvalidAndKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yml", minimalYAML)
	cfg, err := Load(p)
	require.NoError(t, err)
	cfg.Secrets.TelegramToken = "must-not-leak"

	bad := cfg
	bad.Store.Driver = "mysql"
	assert.Error(t, SaveAtomic(p, bad))

	cfg.Telegram.ChatID = "@other"
	require.NoError(t, SaveAtomic(p, cfg))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "@other")
	assert.NotContains(t, string(b), "must-not-leak")

	_, err = os.Stat(p + ".bak")
	assert.NoError(t, err)
}
