package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrAccount   = "account"
	attrModel     = "model"
	attrStage     = "stage"
	attrPriority  = "priority"
	attrReason    = "reason"
	attrPassed    = "passed"
	attrJoined    = "joined"
)

// Metrics provides methods for recording observability metrics.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// AI metrics
	aiCallsTotal   metric.Int64Counter
	aiCallDuration metric.Float64Histogram

	// Pipeline metrics
	emailsProcessedTotal  metric.Int64Counter
	emailDuration         metric.Float64Histogram
	threadAssignments     metric.Int64Counter
	priorityResolutions   metric.Int64Counter
	prefilterDecisions    metric.Int64Counter
	extractionsTotal      metric.Int64Counter
	tasksExtractedTotal   metric.Int64Counter
	runsTotal             metric.Int64Counter
	runDuration           metric.Float64Histogram

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.googleAPIOperationsTotal, "google_api_operations_total", "Total number of Google API operations", "{operation}"},
		{&m.aiCallsTotal, "ai_calls_total", "Total number of AI completion calls", "{call}"},
		{&m.emailsProcessedTotal, "triage_emails_processed_total", "Total number of emails run through the pipeline", "{email}"},
		{&m.threadAssignments, "triage_thread_assignments_total", "Smart thread assignments by outcome", "{assignment}"},
		{&m.priorityResolutions, "triage_priority_resolutions_total", "Priority resolutions by deciding stage", "{resolution}"},
		{&m.prefilterDecisions, "triage_prefilter_decisions_total", "Task pre-filter decisions by reason", "{decision}"},
		{&m.extractionsTotal, "triage_extractions_total", "Task extraction attempts by outcome", "{extraction}"},
		{&m.tasksExtractedTotal, "triage_tasks_extracted_total", "Total number of tasks extracted", "{task}"},
		{&m.runsTotal, "triage_runs_total", "Total number of batch triage runs", "{run}"},
		{&m.toolInvocationsTotal, "mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}"},
	}

	var err error
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&m.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds", []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}},
		{&m.googleAPIOperationDuration, "google_api_operation_duration_seconds", "Google API operation duration in seconds", durationBuckets},
		{&m.aiCallDuration, "ai_call_duration_seconds", "AI completion call duration in seconds", durationBuckets},
		{&m.emailDuration, "triage_email_duration_seconds", "Per-email pipeline duration in seconds", durationBuckets},
		{&m.runDuration, "triage_run_duration_seconds", "Batch triage run duration in seconds", []float64{1, 5, 15, 30, 60, 120, 300, 600}},
		{&m.toolDuration, "mcp_tool_duration_seconds", "MCP tool execution duration in seconds", durationBuckets},
	}

	for _, h := range histograms {
		*h.dst, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records a Google API operation.
//
// Parameters:
//   - service: Google service name (gmail, tasks)
//   - operation: Operation type (list, get, insert)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)

	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAICall records a completion call. outcome is one of the values
// produced by ai.Outcome.
func (m *Metrics) RecordAICall(ctx context.Context, model, outcome string, duration time.Duration) {
	if m == nil || m.aiCallsTotal == nil || m.aiCallDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrModel, model),
		attribute.String(attrResult, outcome),
	)

	m.aiCallsTotal.Add(ctx, 1, attrs)
	m.aiCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEmailProcessed records one email passing through the pipeline.
// status is "success", "skipped" or "error".
func (m *Metrics) RecordEmailProcessed(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.emailsProcessedTotal == nil || m.emailDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.emailsProcessedTotal.Add(ctx, 1, attrs)
	m.emailDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordThreadAssignment records whether an email joined an existing smart
// thread or started a new one.
func (m *Metrics) RecordThreadAssignment(ctx context.Context, joined bool) {
	if m == nil || m.threadAssignments == nil {
		return
	}
	m.threadAssignments.Add(ctx, 1, metric.WithAttributes(attribute.Bool(attrJoined, joined)))
}

// RecordPriorityResolution records which stage decided the final priority.
func (m *Metrics) RecordPriorityResolution(ctx context.Context, stage, priority string) {
	if m == nil || m.priorityResolutions == nil {
		return
	}
	m.priorityResolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStage, stage),
		attribute.String(attrPriority, priority),
	))
}

// RecordPrefilterDecision records a task pre-filter decision.
func (m *Metrics) RecordPrefilterDecision(ctx context.Context, reason string, passed bool) {
	if m == nil || m.prefilterDecisions == nil {
		return
	}
	m.prefilterDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrReason, reason),
		attribute.Bool(attrPassed, passed),
	))
}

// RecordExtraction records a task extraction attempt and the number of
// tasks it produced.
func (m *Metrics) RecordExtraction(ctx context.Context, outcome string, tasks int) {
	if m == nil || m.extractionsTotal == nil || m.tasksExtractedTotal == nil {
		return
	}
	m.extractionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, outcome)))
	if tasks > 0 {
		m.tasksExtractedTotal.Add(ctx, int64(tasks))
	}
}

// RecordRun records a complete batch triage run.
func (m *Metrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.runsTotal == nil || m.runDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithAccount(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithAccount records an MCP tool invocation with account info.
// The account label is only added when detailedLabels is enabled.
func (m *Metrics) RecordToolInvocationWithAccount(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
