package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobrelay-engine/internal/domain"
)

type fakeGen struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeGen) Complete(ctx context.Context, prompt string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no reply")
}

func newTestSummarizer(gen Generator) (*Summarizer, *[]time.Duration) {
	var waits []time.Duration
	s := New(gen, DefaultPolicy(), nil)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return s, &waits
}

func sampleJob() domain.ProcessedJob {
	return domain.ProcessedJob{
		Identity:         "siteA:1",
		Title:            "Data Analyst",
		Company:          "Bank X",
		Location:         "Riyadh",
		Deadline:         "2024-02-01",
		Description:      "Analyse data and build dashboards for the finance team.",
		HowToApply:       "Send your CV",
		ApplicationLinks: []string{"hr@bankx.example", "+966 50 123 4567", "https://bankx.example/apply"},
	}
}

const goodReply = "Sure! Here is the summary:\n\n🔹 نبذة عن الوظيفة:\n• تحليل البيانات وبناء لوحات المعلومات لفريق المالية\n\n🔹 المتطلبات:\n• **خبرة** في SQL"

// ── Retry state machine ──

func TestPolicy_Decide(t *testing.T) {
	p := DefaultPolicy()
	boom := errors.New("boom")

	assert.Equal(t, Accept, p.Decide(1, nil))
	assert.Equal(t, Retry, p.Decide(1, boom))
	assert.Equal(t, Retry, p.Decide(2, boom))
	assert.Equal(t, Fallback, p.Decide(3, boom))
	assert.Equal(t, Fallback, p.Decide(1, context.Canceled))
}

func TestPolicy_BackoffDoublesAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(10))
}

func TestPolicy_Next(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, StateDone, p.Next(1, nil))
	assert.Equal(t, StateBackingOff, p.Next(1, ErrMalformedResponse))
	assert.Equal(t, StateExhausted, p.Next(3, ErrMalformedResponse))
	assert.Equal(t, "backing-off", StateBackingOff.String())
}

// ── Summarize ──

// TestSummarize_ModelSuccess verifies the cleaned model output is used
func TestSummarize_ModelSuccess(t *testing.T) {
	gen := &fakeGen{replies: []string{goodReply}}
	s, waits := newTestSummarizer(gen)

	sum := s.Summarize(context.Background(), sampleJob(), StyleEnglish)

	assert.Equal(t, OriginModel, sum.Origin)
	assert.Equal(t, 1, sum.Attempts)
	assert.Empty(t, *waits)
	assert.True(t, strings.HasPrefix(sum.Body, MarkerOverview), "preamble removed: %q", sum.Body)
	assert.Contains(t, sum.Body, "• خبرة في SQL")
	assert.NotContains(t, sum.Body, "**")
	assert.Equal(t, "Data Analyst", sum.Title)
	assert.Contains(t, sum.Header, "Bank X")
}

// TestSummarize_RetriesMalformedThenSucceeds verifies malformed replies count as failures
func TestSummarize_RetriesMalformedThenSucceeds(t *testing.T) {
	gen := &fakeGen{replies: []string{"", "just some text without any structure at all, long enough though", goodReply}}
	s, waits := newTestSummarizer(gen)

	sum := s.Summarize(context.Background(), sampleJob(), StyleMixed)

	assert.Equal(t, OriginModel, sum.Origin)
	assert.Equal(t, 3, sum.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
}

// TestSummarize_FallbackAfterThreeFailures verifies the deterministic fallback
func TestSummarize_FallbackAfterThreeFailures(t *testing.T) {
	boom := errors.New("upstream 500")
	gen := &fakeGen{errs: []error{boom, boom, boom, boom}}
	s, _ := newTestSummarizer(gen)

	sum := s.Summarize(context.Background(), sampleJob(), StyleEnglish)

	assert.Equal(t, OriginFallback, sum.Origin)
	assert.Equal(t, 3, gen.calls, "at most three attempts")
	assert.Equal(t, FallbackBody(sampleJob()), sum.Body)
	assert.Contains(t, sum.Body, "📧 hr@bankx.example")
	assert.Contains(t, sum.Body, "📞 +966 50 123 4567")
	assert.Contains(t, sum.Body, "🔗 https://bankx.example/apply")
}

// TestSummarize_CanceledDuringBackoff verifies cancellation ends in the fallback
func TestSummarize_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGen{errs: []error{errors.New("x")}}
	s, _ := newTestSummarizer(gen)
	s.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	sum := s.Summarize(ctx, sampleJob(), StyleEnglish)
	assert.Equal(t, OriginFallback, sum.Origin)
	assert.Equal(t, 1, gen.calls)
}

func TestSummarize_NilGenerator(t *testing.T) {
	s := New(nil, DefaultPolicy(), nil)
	sum := s.Summarize(context.Background(), sampleJob(), StyleEnglish)
	assert.Equal(t, OriginFallback, sum.Origin)
	assert.Equal(t, 0, sum.Attempts)
}

// ── Cleaning and validation ──

func TestClean_StripsMarkdown(t *testing.T) {
	in := "### 🔹 المهام:\n* **تحليل** البيانات\n- راجع [الموقع](https://x.example/a)\n---\n`code`"
	got := Clean(in)
	assert.Equal(t, "🔹 المهام:\n• تحليل البيانات\n• راجع الموقع (https://x.example/a)\n\ncode", got)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(""), ErrMalformedResponse)
	assert.ErrorIs(t, Validate("🔹 المهام: قصير"), ErrMalformedResponse)
	assert.ErrorIs(t, Validate(strings.Repeat("نص بدون أقسام ", 10)), ErrMalformedResponse)
	assert.NoError(t, Validate(Clean(goodReply)))
}

// ── Header and fallback ──

func TestHeader_OmitsEmptyFields(t *testing.T) {
	h := Header(domain.ProcessedJob{Company: "Bank X", Deadline: "2024-02-01"})
	assert.Equal(t, "🏢 الشركة: Bank X\n⏳ آخر موعد للتقديم: 2024-02-01", h)
	assert.Empty(t, Header(domain.ProcessedJob{}))
}

func TestFallbackBody_TruncatesOnWordBoundary(t *testing.T) {
	job := sampleJob()
	job.Description = strings.Repeat("word ", 1000)
	job.HowToApply = ""
	job.ApplicationLinks = nil

	body := FallbackBody(job)
	require.True(t, strings.HasPrefix(body, MarkerOverview+"\n"))
	desc := strings.TrimPrefix(body, MarkerOverview+"\n")
	assert.True(t, strings.HasSuffix(desc, "word…"))
	assert.LessOrEqual(t, len([]rune(desc)), maxFallbackDescription+1)
	assert.NotContains(t, body, MarkerApply)
}

func TestFallbackBody_NoDescription(t *testing.T) {
	body := FallbackBody(domain.ProcessedJob{})
	assert.Contains(t, body, domain.NoDescription)
}

func TestBuildPrompt_Styles(t *testing.T) {
	en := BuildPrompt(StyleEnglish, sampleJob())
	mx := BuildPrompt(StyleMixed, sampleJob())
	assert.Contains(t, en, "Translate")
	assert.NotContains(t, mx, "Translate")
	for _, p := range []string{en, mx} {
		assert.Contains(t, p, MarkerRequirements)
		assert.Contains(t, p, "Title: Data Analyst")
		assert.Contains(t, p, "hr@bankx.example")
	}
	assert.Equal(t, StyleEnglish, ParseStyle(" English "))
	assert.Equal(t, StyleMixed, ParseStyle(""))
}
