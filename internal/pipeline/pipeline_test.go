package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobrelay-engine/internal/dedup"
	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/events"
	"jobrelay-engine/internal/format"
	"jobrelay-engine/internal/scrape"
	"jobrelay-engine/internal/scrape/types"
	"jobrelay-engine/internal/store"
	"jobrelay-engine/internal/summarize"
)

// ── Fakes ──

type fakePlugin struct {
	name     string
	cands    []domain.JobCandidate
	fetchErr error
	procErr  error
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) FetchJobs(ctx context.Context) ([]domain.JobCandidate, error) {
	return p.cands, p.fetchErr
}

func (p *fakePlugin) ProcessJob(ctx context.Context, c domain.JobCandidate) (domain.ProcessedJob, error) {
	if p.procErr != nil {
		return domain.ProcessedJob{}, p.procErr
	}
	return domain.NewProcessedJob(c, c.Description), nil
}

var _ types.Plugin = (*fakePlugin)(nil)

type sent struct {
	photo string
	text  string
}

type fakeChannel struct {
	mu       sync.Mutex
	msgs     []sent
	photoErr error
	textErr  error
}

func (c *fakeChannel) SendText(ctx context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.textErr != nil {
		return c.textErr
	}
	c.msgs = append(c.msgs, sent{text: text})
	return nil
}

func (c *fakeChannel) SendPhoto(ctx context.Context, chatID, photoURL, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.photoErr != nil {
		return c.photoErr
	}
	c.msgs = append(c.msgs, sent{photo: photoURL, text: caption})
	return nil
}

type fakeGen struct {
	reply string
	err   error
	calls int
}

func (g *fakeGen) Complete(ctx context.Context, prompt string) (string, error) {
	g.calls++
	return g.reply, g.err
}

// countingStore records every status write the runner attempts.
type countingStore struct {
	*store.DB
	mu     sync.Mutex
	writes []domain.JobStatus
}

func (s *countingStore) UpdateJobStatus(ctx context.Context, identity string, to domain.JobStatus, lastErr string) error {
	s.mu.Lock()
	s.writes = append(s.writes, to)
	s.mu.Unlock()
	return s.DB.UpdateJobStatus(ctx, identity, to, lastErr)
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

func (s *countingStore) statusWrites() []domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.JobStatus(nil), s.writes...)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const goodReply = "🔹 نبذة عن الوظيفة:\n• تحليل البيانات وبناء لوحات المعلومات لفريق المالية\n\n🔹 المتطلبات:\n• خبرة في SQL"

type harness struct {
	db     *store.DB
	store  *countingStore
	logs   *lockedBuffer
	dedup  *dedup.Deduper
	ch     *fakeChannel
	gen    *fakeGen
	hub    *events.Hub
	runner *Runner
}

func newHarness(t *testing.T, opts Options, plugins ...*fakePlugin) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kv, err := dedup.NewSQLiteKV(ctx, db.Pool)
	require.NoError(t, err)

	h := &harness{
		db:    db,
		store: &countingStore{DB: db},
		logs:  &lockedBuffer{},
		dedup: dedup.New(kv, 720*time.Hour),
		ch:    &fakeChannel{},
		gen:   &fakeGen{reply: goodReply},
		hub:   events.NewHub(),
	}

	var sources []scrape.Source
	for _, p := range plugins {
		sources = append(sources, scrape.Source{Plugin: p, Profile: types.SiteProfile{Name: p.name, Prompt: "english"}})
	}

	log := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if opts.ChatID == "" {
		opts.ChatID = "@jobs"
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 1
	}
	h.runner = New(Deps{
		Sources:    sources,
		Store:      h.store,
		Dedup:      h.dedup,
		Summarizer: summarize.New(h.gen, summarize.Policy{MaxAttempts: 3, BaseDelay: 0, MaxDelay: time.Millisecond}, log),
		Formatter:  format.New(format.DefaultConfig()),
		Channel:    h.ch,
		Hub:        h.hub,
		Log:        log,
	}, opts)
	return h
}

func dataAnalyst(source, id string) domain.JobCandidate {
	return domain.JobCandidate{
		Identity:    source + ":" + id,
		Title:       "Data Analyst",
		Company:     "Bank X",
		Link:        "https://" + source + ".example/jobs/" + id,
		Description: "Analyse data and build dashboards.",
		Source:      source,
	}
}

// ── Scenarios ──

// TestRun_PostsNewJob verifies a new posting is published, recorded as posted
// and both dedup keys are written.
func TestRun_PostsNewJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}})
	sub := h.hub.Subscribe()

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.Counters{Fetched: 1, Posted: 1}, run.Totals)
	assert.Equal(t, domain.Counters{Fetched: 1, Posted: 1}, run.PerSource["siteA"])

	require.Len(t, h.ch.msgs, 1)
	assert.Contains(t, h.ch.msgs[0].text, "<b>Data Analyst</b>")
	assert.Contains(t, h.ch.msgs[0].text, "Bank X")
	assert.LessOrEqual(t, format.VisibleLength(h.ch.msgs[0].text), format.TextBudget)

	j, err := h.db.GetJob(ctx, "siteA:1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, j.Status)

	_, err = h.dedup.Lookup(ctx, dedup.IdentityKey("siteA:1"))
	assert.NoError(t, err)
	_, err = h.dedup.Lookup(ctx, dedup.FingerprintKey("Data Analyst", "Bank X"))
	assert.NoError(t, err)

	stored, err := h.db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Totals, stored.Totals)
	assert.NotNil(t, stored.FinishedAt)

	var got []string
	for len(sub) > 0 {
		got = append(got, eventType(t, <-sub))
	}
	assert.Equal(t, []string{events.TypeRunStarted, events.TypeJobPosted, events.TypeRunFinished}, got)

	st := h.runner.Status()
	assert.False(t, st.Running)
	assert.Equal(t, run.ID, st.LastRunID)
	assert.Equal(t, 1, st.LastAdded)
}

// TestRun_SecondPassSkips verifies the identity key blocks a repost.
func TestRun_SecondPassSkips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}})

	_, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	run, err := h.runner.Run(ctx, domain.TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, domain.Counters{Fetched: 1, Skipped: 1}, run.Totals)
	assert.Len(t, h.ch.msgs, 1)

	j, err := h.db.GetJob(ctx, "siteA:1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, j.Status)
}

// TestRun_SecondPassLeavesPostedRowAlone verifies a duplicate of a posted
// row is counted as skipped without attempting a status write.
func TestRun_SecondPassLeavesPostedRowAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}})

	_, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, []domain.JobStatus{domain.StatusPosted}, h.store.statusWrites())

	h.store.reset()
	mark := len(h.logs.String())
	run, err := h.runner.Run(ctx, domain.TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, domain.Counters{Fetched: 1, Skipped: 1}, run.Totals)
	assert.Empty(t, h.store.statusWrites())
	second := h.logs.String()[mark:]
	assert.Contains(t, second, "duplicate")
	assert.NotContains(t, second, "update job status")
	assert.NotContains(t, second, "level=WARN")

	j, err := h.db.GetJob(ctx, "siteA:1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, j.Status)
	assert.Empty(t, j.LastError)
}

// TestRun_CrossSourceFingerprintSkips verifies the same job from another
// source is caught by the fingerprint.
func TestRun_CrossSourceFingerprintSkips(t *testing.T) {
	ctx := context.Background()
	b := dataAnalyst("siteB", "77")
	b.Title = "  DATA   analyst "
	b.Company = "bank x"
	h := newHarness(t, Options{},
		&fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}},
		&fakePlugin{name: "siteB", cands: []domain.JobCandidate{b}},
	)

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, domain.Counters{Fetched: 2, Posted: 1, Skipped: 1}, run.Totals)
	assert.Equal(t, 1, run.PerSource["siteB"].Skipped)

	j, err := h.db.GetJob(ctx, "siteB:77")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, j.Status)
	assert.Contains(t, j.LastError, "fingerprint")
}

// TestRun_AIFailureFallsBack verifies publication proceeds on the fallback body.
func TestRun_AIFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}})
	h.gen.err = errors.New("503 upstream")

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 3, h.gen.calls)
	assert.Equal(t, 1, run.Totals.Posted)
	require.Len(t, h.ch.msgs, 1)
	assert.Contains(t, h.ch.msgs[0].text, "Analyse data and build dashboards.")
}

// TestRun_PhotoFailureFallsBackToText verifies a rejected photo is resent as text.
func TestRun_PhotoFailureFallsBackToText(t *testing.T) {
	ctx := context.Background()
	c := dataAnalyst("siteA", "1")
	c.ImageURL = "https://siteA.example/logo.png"
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{c}})
	h.ch.photoErr = errors.New("Bad Request: wrong file identifier")

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Totals.Posted)
	require.Len(t, h.ch.msgs, 1)
	assert.Empty(t, h.ch.msgs[0].photo)
}

func TestRun_PhotoSentWhenAccepted(t *testing.T) {
	ctx := context.Background()
	c := dataAnalyst("siteA", "1")
	c.ImageURL = "https://siteA.example/logo.png"
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{c}})

	_, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	require.Len(t, h.ch.msgs, 1)
	assert.Equal(t, c.ImageURL, h.ch.msgs[0].photo)
	assert.LessOrEqual(t, format.VisibleLength(h.ch.msgs[0].text), format.CaptionBudget)
}

// TestRun_PublishFailureCountsFailed verifies a failed job does not affect
// siblings and gets retried in the next run.
func TestRun_PublishFailureCountsFailed(t *testing.T) {
	ctx := context.Background()
	other := dataAnalyst("siteA", "2")
	other.Title = "Backend Engineer"
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1"), other}})
	h.ch.textErr = errors.New("telegram down")

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.Counters{Fetched: 2, Failed: 2}, run.Totals)

	j, err := h.db.GetJob(ctx, "siteA:1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, j.Status)
	assert.Contains(t, j.LastError, "telegram down")

	h.ch.textErr = nil
	run, err = h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Fetched: 2, Posted: 2}, run.Totals)
}

func TestRun_ProcessErrorAndFetchErrorAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{Concurrency: 3},
		&fakePlugin{name: "broken", fetchErr: errors.New("site down")},
		&fakePlugin{name: "slow", cands: []domain.JobCandidate{dataAnalyst("slow", "1")}, procErr: context.DeadlineExceeded},
		&fakePlugin{name: "ok", cands: []domain.JobCandidate{{Identity: "ok:1", Title: "QA", Company: "Z", Link: "https://ok/1", Source: "ok"}}},
	)

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, domain.Counters{}, run.PerSource["broken"])
	assert.Equal(t, 1, run.PerSource["slow"].Failed)
	assert.Equal(t, 1, run.PerSource["ok"].Posted)
	assert.Equal(t, domain.Counters{Fetched: 2, Posted: 1, Failed: 1}, run.Totals)
}

// ── Settings ──

func TestRun_Paused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}})
	require.NoError(t, h.db.SetSetting(ctx, store.SettingPaused, "true"))

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, domain.Counters{}, run.Totals)
	assert.Empty(t, h.ch.msgs)
}

func TestRun_SourceDisabledByOperator(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{},
		&fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}},
		&fakePlugin{name: "siteB", cands: []domain.JobCandidate{{Identity: "siteB:1", Title: "QA", Company: "Z", Link: "https://b/1", Source: "siteB"}}},
	)
	require.NoError(t, h.db.SetSourceEnabled(ctx, "siteA", false))

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	_, ran := run.PerSource["siteA"]
	assert.False(t, ran)
	assert.Equal(t, 1, run.Totals.Posted)
}

// TestRun_DryRun verifies nothing is delivered and no dedup keys are written.
func TestRun_DryRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{DryRun: true}, &fakePlugin{name: "siteA", cands: []domain.JobCandidate{dataAnalyst("siteA", "1")}})

	run, err := h.runner.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Fetched: 1, Skipped: 1}, run.Totals)
	assert.Empty(t, h.ch.msgs)

	keys, err := h.dedup.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	j, err := h.db.GetJob(ctx, "siteA:1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, j.Status)
}

// TestRun_StoreUnavailableFailsRun verifies the run table is fatal.
func TestRun_StoreUnavailableFailsRun(t *testing.T) {
	h := newHarness(t, Options{}, &fakePlugin{name: "siteA"})
	require.NoError(t, h.db.Close())

	_, err := h.runner.Run(context.Background(), domain.TriggerManual)
	assert.Error(t, err)
	assert.False(t, h.runner.Status().Running)
}

// ── Locking ──

func TestRunLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	a := newRunLock(path)
	b := newRunLock(path)

	require.NoError(t, a.acquire())
	assert.ErrorIs(t, a.acquire(), ErrRunLocked)
	assert.ErrorIs(t, b.acquire(), ErrRunLocked)

	a.release()
	require.NoError(t, b.acquire())
	b.release()
}

func eventType(t *testing.T, raw string) string {
	t.Helper()
	i := strings.Index(raw, `"type":"`)
	require.GreaterOrEqual(t, i, 0)
	rest := raw[i+len(`"type":"`):]
	return rest[:strings.Index(rest, `"`)]
}
