package triage_tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/ai"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/pipeline"
	"github.com/teemow/inboxtriage/internal/priority"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/store"
	"github.com/teemow/inboxtriage/internal/threading"
	"github.com/teemow/inboxtriage/internal/tools/batch"
	"github.com/teemow/inboxtriage/internal/triage"
)

const taskJSON = `{"has_tasks": true, "tasks": [{"task_text": "Pay invoice 42", "deadline": null}]}`

func newTestContext(t *testing.T, completer ai.Completer) *server.ServerContext {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	profile, err := config.ParseProfile([]byte(`
users:
  - email: jane@example.com
    interests: [kubernetes]
    sender_rules:
      - sender_pattern: boss@example.com
        force_priority: High
      - sender_pattern: newsletter
        auto_reply: true
        reply_text: Read later
`))
	require.NoError(t, err)

	extractor := extract.NewExtractor(completer)
	sc := server.NewServerContext(context.Background(), server.Services{
		Store:     st,
		Profile:   profile,
		Pipeline:  pipeline.New(extractor),
		Extractor: extractor,
		Drafter:   ai.NewAssistant(completer, "", nil),
	})
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func fixedCompleter(response string, err error) ai.Completer {
	return ai.CompleterFunc(func(context.Context, ai.Request) (string, error) {
		return response, err
	})
}

func request(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content type %T", res.Content[0])
	require.False(t, res.IsError, "tool returned error: %s", text.Text)
	require.NoError(t, json.Unmarshal([]byte(text.Text), v))
}

func TestRegisterTriageTools(t *testing.T) {
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))

	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterTriageTools(s, sc, false))
	tools := s.ListTools()
	for _, name := range []string{
		"triage_similarity", "triage_assign_thread", "triage_resolve_priority",
		"triage_should_extract", "triage_extract_tasks", "triage_process_email",
		"triage_get_emails", "triage_list_tasks", "triage_latest_summary",
		"triage_run", "triage_export_tasks", "triage_list_threads", "triage_draft_reply",
	} {
		assert.Contains(t, tools, name)
	}

	ro := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterTriageTools(ro, sc, true))
	roTools := ro.ListTools()
	assert.NotContains(t, roTools, "triage_run")
	assert.NotContains(t, roTools, "triage_export_tasks")
	assert.Contains(t, roTools, "triage_process_email")
	assert.Contains(t, roTools, "triage_list_threads")
	assert.Contains(t, roTools, "triage_draft_reply")

	assert.Error(t, RegisterTriageTools(s, nil, false))
}

func TestHandleSimilarity(t *testing.T) {
	var got map[string]float64
	res, err := handleSimilarity(context.Background(), request(map[string]interface{}{
		"subject_a": "Invoice 42 due",
		"subject_b": "RE: Invoice 42 due",
	}))
	require.NoError(t, err)
	decode(t, res, &got)
	assert.InDelta(t, 100, got["score"], 0.001)

	res, _ = handleSimilarity(context.Background(), request(map[string]interface{}{"subject_a": "x"}))
	assert.True(t, res.IsError)
}

func TestHandleAssignThread(t *testing.T) {
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))
	assigner := threading.NewAssigner()

	var joined ThreadResponse
	res, err := handleAssignThread(context.Background(), request(map[string]interface{}{
		"user_email": "jane@example.com",
		"subject":    "Re: Quarterly planning",
		"history": []interface{}{
			map[string]interface{}{"id": "m1", "subject": "Quarterly planning", "smart_thread_id": "smart-0a1b2c3d"},
		},
	}), sc, assigner)
	require.NoError(t, err)
	decode(t, res, &joined)
	assert.True(t, joined.Joined)
	assert.Equal(t, "smart-0a1b2c3d", joined.SmartThreadID)
	assert.Equal(t, "m1", joined.MatchedEmailID)
	assert.Equal(t, 1, joined.HistorySize)

	// Without history the empty store yields a fresh thread.
	var fresh ThreadResponse
	res, err = handleAssignThread(context.Background(), request(map[string]interface{}{
		"user_email": "jane@example.com",
		"subject":    "Quarterly planning",
	}), sc, assigner)
	require.NoError(t, err)
	decode(t, res, &fresh)
	assert.False(t, fresh.Joined)
	assert.True(t, threading.IsThreadID(fresh.SmartThreadID))
	assert.Zero(t, fresh.HistorySize)

	res, _ = handleAssignThread(context.Background(), request(map[string]interface{}{"subject": "x"}), sc, assigner)
	assert.True(t, res.IsError)
}

func TestHandleResolvePriority(t *testing.T) {
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))

	tests := []struct {
		name      string
		args      map[string]interface{}
		priority  triage.Priority
		stage     priority.Stage
		autoReply bool
	}{
		{
			name:     "sender rule forces priority",
			args:     map[string]interface{}{"sender": "Boss <boss@example.com>", "ai_priority": "low"},
			priority: triage.PriorityHigh,
			stage:    priority.StageSenderRule,
		},
		{
			name:     "interest boosts",
			args:     map[string]interface{}{"sender": "ops@example.com", "subject": "Kubernetes upgrade", "ai_priority": "Low"},
			priority: triage.PriorityMedium,
			stage:    priority.StageInterest,
		},
		{
			name:     "missing ai priority defaults to medium",
			args:     map[string]interface{}{"sender": "carol@example.com"},
			priority: triage.PriorityMedium,
			stage:    priority.StageAI,
		},
		{
			name:      "auto reply rule is reported",
			args:      map[string]interface{}{"sender": "news@newsletter.example.com", "ai_priority": "Low"},
			priority:  triage.PriorityLow,
			stage:     priority.StageAI,
			autoReply: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["user_email"] = "jane@example.com"
			var got PriorityResponse
			res, err := handleResolvePriority(context.Background(), request(tt.args), sc)
			require.NoError(t, err)
			decode(t, res, &got)
			assert.Equal(t, tt.priority, got.Priority)
			assert.Equal(t, tt.stage, got.Stage)
			assert.Equal(t, tt.autoReply, got.AutoReply != nil)
		})
	}

	res, _ := handleResolvePriority(context.Background(), request(map[string]interface{}{
		"user_email": "jane@example.com", "sender": "a@b.c", "ai_priority": "urgent",
	}), sc)
	assert.True(t, res.IsError)
}

func TestHandleShouldExtract(t *testing.T) {
	tests := []struct {
		name   string
		args   map[string]interface{}
		passed bool
		reason extract.Reason
	}{
		{"promotion excluded", map[string]interface{}{"subject": "Sale", "category": "Promotions", "priority": "High"}, false, extract.ReasonExcluded},
		{"high priority passes", map[string]interface{}{"subject": "Hello", "priority": "High"}, true, extract.ReasonPriority},
		{"low with action", map[string]interface{}{"subject": "Please review", "priority": "Low"}, true, extract.ReasonAction},
		{"low without signal", map[string]interface{}{"subject": "Hello", "body": "Nice to meet you", "priority": "Low"}, false, extract.ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got PrefilterResponse
			res, err := handleShouldExtract(context.Background(), request(tt.args))
			require.NoError(t, err)
			decode(t, res, &got)
			assert.Equal(t, tt.passed, got.ShouldExtract)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestHandleExtractTasks(t *testing.T) {
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))

	var got ExtractResponse
	res, err := handleExtractTasks(context.Background(), request(map[string]interface{}{
		"email_id": "m1",
		"subject":  "Invoice 42",
		"body":     "Please pay invoice 42.",
	}), sc)
	require.NoError(t, err)
	decode(t, res, &got)
	assert.True(t, got.HasTasks)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "Pay invoice 42", got.Tasks[0].TaskText)
	assert.Equal(t, "m1", got.Tasks[0].SourceEmailID)
	assert.Nil(t, got.Tasks[0].Deadline)
}

func TestHandleExtractTasks_Degraded(t *testing.T) {
	sc := newTestContext(t, fixedCompleter("", ai.ErrQuotaExceeded))

	var got ExtractResponse
	res, err := handleExtractTasks(context.Background(), request(map[string]interface{}{
		"subject": "Invoice 42",
		"body":    "Please pay invoice 42.",
	}), sc)
	require.NoError(t, err)
	decode(t, res, &got)
	assert.False(t, got.HasTasks)
	assert.Empty(t, got.Tasks)
	assert.Equal(t, string(extract.KindQuotaExceeded), got.Error)
}

func TestHandleProcessEmail(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))

	args := map[string]interface{}{
		"user_email":  "jane@example.com",
		"email_id":    "m1",
		"sender":      "boss@example.com",
		"subject":     "Invoice 42",
		"body":        "Please pay invoice 42 by Friday.",
		"category":    "Work",
		"ai_priority": "Low",
		"received_at": "2025-03-10T09:00:00Z",
		"save":        true,
	}

	var first ProcessResponse
	res, err := handleProcessEmail(ctx, request(args), sc, false)
	require.NoError(t, err)
	decode(t, res, &first)
	assert.True(t, first.Saved)
	assert.Equal(t, triage.PriorityHigh, first.Priority)
	assert.Equal(t, string(priority.StageSenderRule), first.PriorityStage)
	assert.True(t, first.ExtractionAttempted)
	require.Len(t, first.Tasks, 1)

	stored, err := sc.Store().GetEmail(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, first.SmartThreadID, stored.SmartThreadID)

	// The reply joins the stored thread.
	reply := map[string]interface{}{
		"user_email": "jane@example.com",
		"email_id":   "m2",
		"sender":     "alice@example.com",
		"subject":    "Re: Invoice 42",
		"body":       "Done.",
	}
	var second ProcessResponse
	res, err = handleProcessEmail(ctx, request(reply), sc, false)
	require.NoError(t, err)
	decode(t, res, &second)
	assert.False(t, second.Saved)
	assert.Equal(t, first.SmartThreadID, second.SmartThreadID)

	// Stored tasks are not extracted again.
	var again ProcessResponse
	args["save"] = false
	res, err = handleProcessEmail(ctx, request(args), sc, false)
	require.NoError(t, err)
	decode(t, res, &again)
	assert.True(t, again.ExtractionSkipped)
	assert.False(t, again.ExtractionAttempted)

	// The tasks are listed for the user.
	var tasks []store.StoredTask
	res, err = handleListTasks(ctx, request(map[string]interface{}{"user_email": "jane@example.com"}), sc)
	require.NoError(t, err)
	decode(t, res, &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Pay invoice 42", tasks[0].TaskText)
}

func TestHandleProcessEmail_Validation(t *testing.T) {
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))
	base := map[string]interface{}{
		"user_email": "jane@example.com",
		"email_id":   "m1",
		"sender":     "a@example.com",
	}

	res, err := handleProcessEmail(context.Background(), request(map[string]interface{}{"email_id": "m1"}), sc, false)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	withSave := map[string]interface{}{"save": true}
	for k, v := range base {
		withSave[k] = v
	}
	res, err = handleProcessEmail(context.Background(), request(withSave), sc, true)
	require.NoError(t, err)
	assert.True(t, res.IsError, "read-only mode must refuse save")

	badTime := map[string]interface{}{"received_at": "yesterday"}
	for k, v := range base {
		badTime[k] = v
	}
	res, err = handleProcessEmail(context.Background(), request(badTime), sc, false)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleGetEmails(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))
	_, err := handleProcessEmail(ctx, request(map[string]interface{}{
		"user_email": "jane@example.com",
		"email_id":   "m1",
		"sender":     "carol@example.com",
		"subject":    "Lunch",
		"save":       true,
	}), sc, false)
	require.NoError(t, err)

	var got batch.BatchResult
	res, err := handleGetEmails(ctx, request(map[string]interface{}{"email_ids": `["m1", "missing"]`}), sc)
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Successful)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, "m1", got.Results[0].ID)
	assert.Equal(t, batch.StatusError, got.Results[1].Status)
}

func TestHandleLatestSummary(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))

	res, err := handleLatestSummary(ctx, request(map[string]interface{}{"user_email": "jane@example.com"}), sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	require.NoError(t, sc.Store().SaveUserSummary(ctx, "jane@example.com", "run-1", "Two invoices need attention."))
	res, err = handleLatestSummary(ctx, request(map[string]interface{}{"user_email": "jane@example.com"}), sc)
	require.NoError(t, err)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Two invoices need attention.", text.Text)
}

func TestHandleRun_Validation(t *testing.T) {
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))

	res, err := handleRun(context.Background(), request(map[string]interface{}{"window": "-1h"}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	// The test context has no assistant, so the runner cannot start.
	res, err = handleRun(context.Background(), request(map[string]interface{}{}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleListThreads(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, fixedCompleter(taskJSON, nil))
	st := sc.Store()

	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	for _, e := range []triage.EmailRecord{
		{ID: "m1", UserEmail: "jane@example.com", Subject: "Invoice 42", SmartThreadID: "smart-0000aaaa", Priority: triage.PriorityHigh.Ptr(), ReceivedAt: base},
		{ID: "m2", UserEmail: "jane@example.com", Subject: "Lunch", SmartThreadID: "smart-0000bbbb", ReceivedAt: base.Add(time.Hour)},
		{ID: "m3", UserEmail: "jane@example.com", Subject: "RE: Invoice 42", SmartThreadID: "smart-0000aaaa", ReceivedAt: base.Add(2 * time.Hour)},
		{ID: "b1", UserEmail: "bob@example.com", Subject: "Invoice 42", SmartThreadID: "smart-0000aaaa", ReceivedAt: base},
	} {
		require.NoError(t, st.SaveEmail(ctx, e))
	}

	var got struct {
		SmartThreads []ThreadView `json:"smart_threads"`
	}
	res, err := handleListThreads(ctx, request(map[string]interface{}{"user_email": "jane@example.com"}), sc)
	require.NoError(t, err)
	decode(t, res, &got)

	require.Len(t, got.SmartThreads, 2)
	first := got.SmartThreads[0]
	assert.Equal(t, "smart-0000aaaa", first.SmartThreadID)
	require.Len(t, first.Emails, 2)
	assert.Equal(t, "m1", first.Emails[0].EmailID)
	assert.Equal(t, "m3", first.Emails[1].EmailID)
	require.NotNil(t, first.Emails[0].Priority)
	assert.Equal(t, triage.PriorityHigh, *first.Emails[0].Priority)
	assert.Equal(t, "smart-0000bbbb", got.SmartThreads[1].SmartThreadID)

	res, err = handleListThreads(ctx, request(map[string]interface{}{}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleDraftReply(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, fixedCompleter(`{"subject": "Re: Invoice 42", "body": "Paid today.\n\nBest regards,"}`, nil))
	require.NoError(t, sc.Store().SaveEmail(ctx, triage.EmailRecord{
		ID:         "m1",
		UserEmail:  "jane@example.com",
		Sender:     "billing@vendor.com",
		Subject:    "Invoice 42",
		Body:       "Please pay invoice 42.",
		ReceivedAt: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
	}))

	var got DraftReplyResponse
	res, err := handleDraftReply(ctx, request(map[string]interface{}{
		"user_email": "jane@example.com",
		"email_id":   "m1",
		"tone":       "formal",
	}), sc)
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, "m1", got.EmailID)
	assert.Equal(t, "Re: Invoice 42", got.Subject)
	assert.Contains(t, got.Body, "Paid today.")
	assert.Equal(t, "formal", got.Tone)
	assert.Empty(t, got.Error)

	got = DraftReplyResponse{}
	res, err = handleDraftReply(ctx, request(map[string]interface{}{
		"subject": "Offsite",
		"body":    "Are you joining?",
	}), sc)
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, ai.DefaultTone, got.Tone)
}

func TestHandleDraftReply_Fallback(t *testing.T) {
	sc := newTestContext(t, fixedCompleter("", ai.ErrQuotaExceeded))

	var got DraftReplyResponse
	res, err := handleDraftReply(context.Background(), request(map[string]interface{}{
		"subject": "Budget",
		"body":    "Can you review the budget?",
	}), sc)
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, "Re: Budget", got.Subject)
	assert.Equal(t, ai.ReplyQuotaExceeded, got.Body)
	assert.Equal(t, "quota_exceeded", got.Error)
}

func TestHandleDraftReply_Validation(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, fixedCompleter("{}", nil))
	require.NoError(t, sc.Store().SaveEmail(ctx, triage.EmailRecord{
		ID:         "b1",
		UserEmail:  "bob@example.com",
		Subject:    "Private",
		ReceivedAt: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
	}))

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"nothing to answer", map[string]interface{}{"tone": "formal"}},
		{"email_id without user", map[string]interface{}{"email_id": "b1"}},
		{"missing email", map[string]interface{}{"user_email": "jane@example.com", "email_id": "nope"}},
		{"other user's email", map[string]interface{}{"user_email": "jane@example.com", "email_id": "b1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := handleDraftReply(ctx, request(tt.args), sc)
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}

	bare := server.NewServerContext(ctx, server.Services{})
	defer bare.Shutdown()
	res, err := handleDraftReply(ctx, request(map[string]interface{}{"subject": "x", "body": "y"}), bare)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
