package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/ai"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/store"
	"github.com/teemow/inboxtriage/internal/tasks"
	"github.com/teemow/inboxtriage/internal/triage"
)

type fakeFetcher struct {
	emails []triage.EmailRecord
	failed []error
	err    error
}

func (f *fakeFetcher) FetchRecent(_ context.Context, userEmail string, _ time.Duration, _ int64, skip func(string) bool) ([]triage.EmailRecord, []error, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	var out []triage.EmailRecord
	for _, e := range f.emails {
		if skip != nil && skip(e.ID) {
			continue
		}
		e.UserEmail = userEmail
		out = append(out, e)
	}
	return out, f.failed, nil
}

type fakeAssistant struct {
	priorities map[string]triage.Priority
	analyzeErr error
}

func (a *fakeAssistant) Summarize(_ context.Context, subject, _ string) string {
	return "Summary of " + subject
}

func (a *fakeAssistant) Categorize(_ context.Context, subject, _, _ string) string {
	if subject == "Mega sale" {
		return triage.CategoryPromotions
	}
	return triage.CategoryWork
}

func (a *fakeAssistant) AnalyzePriorities(_ context.Context, digests []ai.Digest) (ai.Analysis, error) {
	if a.analyzeErr != nil {
		return ai.Analysis{OverallSummary: ai.SummaryUnavailable}, a.analyzeErr
	}
	an := ai.Analysis{OverallSummary: "You got mail"}
	for _, d := range digests {
		if p, ok := a.priorities[d.Subject]; ok {
			an.Priorities = append(an.Priorities, ai.SubjectPriority{Subject: d.Subject, Priority: p})
		}
	}
	return an, nil
}

type fakeExporter struct {
	users []string
	mu    sync.Mutex
}

func (e *fakeExporter) Export(_ context.Context, userEmail string) (tasks.ExportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users = append(e.users, userEmail)
	return tasks.ExportResult{Exported: 1}, nil
}

func testProfile(t *testing.T) *config.Profile {
	t.Helper()
	p, err := config.ParseProfile([]byte(`
users:
  - email: jane@example.com
    account: work
    interests: [kubernetes]
    sender_rules:
      - sender_pattern: boss@example.com
        force_priority: High
      - sender_pattern: newsletter
        auto_reply: true
        reply_text: Read later
  - email: bob@example.com
`))
	require.NoError(t, err)
	return p
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var base = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func janeMail() []triage.EmailRecord {
	// Newest first, the way Gmail lists them.
	return []triage.EmailRecord{
		{ID: "m4", Sender: "news@newsletter.example.com", Subject: "Weekly digest", Body: "Nothing to do", ReceivedAt: base.Add(4 * time.Hour)},
		{ID: "m3", Sender: "shop@store.example.com", Subject: "Mega sale", Body: "Submit your order today", ReceivedAt: base.Add(3 * time.Hour)},
		{ID: "m2", Sender: "alice@example.com", Subject: "Re: Invoice 42 due", Body: "Reminder: pay by Friday", ReceivedAt: base.Add(2 * time.Hour)},
		{ID: "m1", Sender: "boss@example.com", Subject: "Invoice 42 due", Body: "Please pay the invoice by Friday", ReceivedAt: base.Add(time.Hour)},
	}
}

func newTestRunner(t *testing.T, st *store.Store, fetchers map[string]*fakeFetcher, asst Assistant, exporter *fakeExporter, extractCalls *atomic.Int32) *Runner {
	t.Helper()
	cfg := RunnerConfig{
		Pipeline:  New(countingExtractor(extractCalls)),
		Assistant: asst,
		Store:     st,
		Profile:   testProfile(t),
		Fetchers: func(_ context.Context, account string) (Fetcher, error) {
			f, ok := fetchers[account]
			if !ok {
				return nil, errors.New("no token for " + account)
			}
			return f, nil
		},
		Concurrency: 2,
	}
	if exporter != nil {
		cfg.Exporters = func(context.Context, string) (Exporter, error) { return exporter, nil }
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func TestRunner_RunUser(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	var calls atomic.Int32
	asst := &fakeAssistant{priorities: map[string]triage.Priority{
		"Re: Invoice 42 due": triage.PriorityLow,
		"Mega sale":          triage.PriorityLow,
		"Weekly digest":      triage.PriorityLow,
	}}
	exporter := &fakeExporter{}
	r := newTestRunner(t, st, map[string]*fakeFetcher{"work": {emails: janeMail()}}, asst, exporter, &calls)

	rep, err := r.RunUser(ctx, "run-1", "jane@example.com")
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Fetched)
	assert.Equal(t, 4, rep.Processed)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, "You got mail", rep.Summary)
	require.Len(t, rep.Decisions, 4)

	byID := map[string]triage.Decision{}
	for _, d := range rep.Decisions {
		byID[d.EmailID] = d
	}

	// Processed oldest first: the reply joins the thread of the invoice.
	assert.Equal(t, "m1", rep.Decisions[0].EmailID)
	assert.Equal(t, byID["m1"].SmartThreadID, byID["m2"].SmartThreadID)
	assert.NotEqual(t, byID["m1"].SmartThreadID, byID["m3"].SmartThreadID)

	// Sender rule wins; missing AI priority defaults to Medium.
	assert.Equal(t, triage.PriorityHigh, byID["m1"].Priority)
	assert.Equal(t, "sender_rule", byID["m1"].PriorityStage)
	assert.Equal(t, triage.PriorityLow, byID["m2"].Priority)

	// Promotions never reach the extractor; the low priority reply has an
	// action keyword and does.
	assert.False(t, byID["m3"].ExtractionAttempted)
	assert.True(t, byID["m2"].ExtractionAttempted)
	assert.False(t, byID["m4"].ExtractionAttempted)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, rep.Tasks)

	require.Len(t, rep.AutoReplies, 1)
	assert.Equal(t, "m4", rep.AutoReplies[0].EmailID)
	assert.Equal(t, "Read later", rep.AutoReplies[0].ReplyText)

	require.NotNil(t, rep.Export)
	assert.Equal(t, []string{"jane@example.com"}, exporter.users)

	stored, err := st.GetEmail(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, byID["m2"].SmartThreadID, stored.SmartThreadID)
	assert.Equal(t, "Summary of Re: Invoice 42 due", stored.Summary)
	assert.Equal(t, triage.CategoryWork, stored.Category)
	require.NotNil(t, stored.Priority)
	assert.Equal(t, triage.PriorityLow, *stored.Priority)

	summary, err := st.LatestUserSummary(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "You got mail", summary)

	// A second run skips stored mail and does not extract again.
	rep, err = r.RunUser(ctx, "run-2", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Fetched)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunner_NewMailJoinsStoredThread(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	var calls atomic.Int32
	fetcher := &fakeFetcher{emails: janeMail()[3:]}
	r := newTestRunner(t, st, map[string]*fakeFetcher{"work": fetcher}, &fakeAssistant{}, nil, &calls)

	first, err := r.RunUser(ctx, "run-1", "jane@example.com")
	require.NoError(t, err)
	require.Len(t, first.Decisions, 1)

	fetcher.emails = janeMail()[2:3]
	second, err := r.RunUser(ctx, "run-2", "jane@example.com")
	require.NoError(t, err)
	require.Len(t, second.Decisions, 1)
	assert.Equal(t, first.Decisions[0].SmartThreadID, second.Decisions[0].SmartThreadID)
}

func TestRunner_AnalysisFailureDefaultsToMedium(t *testing.T) {
	st := openStore(t)
	var calls atomic.Int32
	asst := &fakeAssistant{analyzeErr: ai.ErrQuotaExceeded}
	fetcher := &fakeFetcher{emails: []triage.EmailRecord{
		{ID: "x1", Sender: "carol@example.com", Subject: "Lunch", Body: "See you", ReceivedAt: base},
	}}
	r := newTestRunner(t, st, map[string]*fakeFetcher{"default": fetcher}, asst, nil, &calls)

	rep, err := r.RunUser(context.Background(), "run-1", "bob@example.com")
	require.NoError(t, err)
	require.Len(t, rep.Decisions, 1)
	assert.Equal(t, triage.PriorityMedium, rep.Decisions[0].Priority)
	assert.Equal(t, ai.SummaryUnavailable, rep.Summary)
}

func TestRunner_Run(t *testing.T) {
	st := openStore(t)
	var calls atomic.Int32
	fetchers := map[string]*fakeFetcher{
		"work": {emails: janeMail(), failed: []error{errors.New("message m9: boom")}},
	}
	r := newTestRunner(t, st, fetchers, &fakeAssistant{}, nil, &calls)

	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Users, 2)

	jane, bob := report.Users[0], report.Users[1]
	assert.Equal(t, "jane@example.com", jane.UserEmail)
	assert.Equal(t, 4, jane.Processed)
	assert.Equal(t, 1, jane.Failed)
	assert.Empty(t, jane.Error)

	// bob's account has no token; his failure does not affect jane.
	assert.Equal(t, "bob@example.com", bob.UserEmail)
	assert.Contains(t, bob.Error, "no token for default")
}

func TestRunner_RunCancelled(t *testing.T) {
	st := openStore(t)
	var calls atomic.Int32
	r := newTestRunner(t, st, map[string]*fakeFetcher{"work": {emails: janeMail()}}, &fakeAssistant{}, nil, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, []string{"jane@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := NewRunner(RunnerConfig{})
	assert.Error(t, err)
}
