package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const (
	testEmail  = "jane@example.com"
	testDomain = "example.com"
	testTool   = "triage_process_email"
)

func attrMap(attrs []slog.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.String()
	}
	return m
}

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation(testTool)
	if ti.Tool != testTool {
		t.Errorf("Tool = %q, want %q", ti.Tool, testTool)
	}
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ti.CompleteSuccess()
	if !ti.Success || ti.Error != "" {
		t.Errorf("unexpected completion state: %+v", ti)
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if ti.Status() != StatusSuccess {
		t.Errorf("Status = %q", ti.Status())
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation(testTool).CompleteWithError(errors.New("quota exceeded"))
	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Error != "quota exceeded" {
		t.Errorf("Error = %q", ti.Error)
	}
	if ti.Status() != StatusError {
		t.Errorf("Status = %q", ti.Status())
	}
}

func TestToolInvocation_LogAttrs(t *testing.T) {
	ti := NewToolInvocation(testTool).WithUser(testEmail).WithEmail("m1").CompleteSuccess()
	ti.TraceID = "abc"
	ti.SpanID = "def"

	attrs := attrMap(ti.LogAttrs())
	if attrs["user_domain"] != testDomain {
		t.Errorf("user_domain = %q", attrs["user_domain"])
	}
	if _, ok := attrs["user"]; ok {
		t.Error("LogAttrs must not contain the full user email")
	}
	if attrs["email_id"] != "m1" || attrs["trace_id"] != "abc" {
		t.Errorf("missing optional attrs: %v", attrs)
	}
	if _, ok := attrs["span_id"]; ok {
		t.Error("LogAttrs should not contain span_id")
	}

	audit := attrMap(ti.LogAuditAttrs())
	if audit["user"] != testEmail || audit["span_id"] != "def" {
		t.Errorf("unexpected audit attrs: %v", audit)
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation("test").WithSpanContext(context.Background())
	if ti.TraceID != "" || ti.SpanID != "" {
		t.Errorf("expected empty IDs, got %q %q", ti.TraceID, ti.SpanID)
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	al.LogToolInvocation(NewToolInvocation(testTool).WithUser(testEmail).CompleteSuccess())
	al.LogToolInvocation(NewToolInvocation(testTool).WithUser(testEmail).CompleteWithError(errors.New("boom")))

	out := buf.String()
	if !strings.Contains(out, "tool_executed") || !strings.Contains(out, "tool_failed") {
		t.Errorf("unexpected output: %s", out)
	}
	if strings.Contains(out, testEmail) {
		t.Error("PII must not be logged by default")
	}
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: true, IncludePII: true})

	al.LogDecision(context.Background(), DecisionRecord{
		RunID:         "run-1",
		UserEmail:     testEmail,
		EmailID:       "m1",
		SmartThreadID: "smart-deadbeef",
		Priority:      "High",
		PriorityStage: "sender_rule",
		Tasks:         2,
	})

	out := buf.String()
	for _, want := range []string{"triage_decision", testEmail, "smart-deadbeef", "sender_rule", "tasks=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})

	al.LogToolInvocation(NewToolInvocation(testTool).CompleteSuccess())
	al.LogDecision(context.Background(), DecisionRecord{EmailID: "m1"})

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %s", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogDecision(context.Background(), DecisionRecord{})
}

func TestNewAuditLogger_NilLogger(t *testing.T) {
	if al := NewAuditLogger(nil); al.logger == nil {
		t.Error("logger should not be nil when created with nil")
	}
}
