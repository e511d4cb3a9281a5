// Package instrumentation provides OpenTelemetry metrics, tracing and
// audit logging for inboxtriage.
//
// # Metrics
//
// Pipeline:
//   - triage_emails_processed_total, triage_email_duration_seconds
//   - triage_thread_assignments_total (joined=true|false)
//   - triage_priority_resolutions_total (stage, priority)
//   - triage_prefilter_decisions_total (reason, passed)
//   - triage_extractions_total (result), triage_tasks_extracted_total
//   - triage_runs_total, triage_run_duration_seconds
//
// Collaborators:
//   - ai_calls_total, ai_call_duration_seconds (model, result)
//   - google_api_operations_total, google_api_operation_duration_seconds
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//   - http_requests_total, http_request_duration_seconds
//
// Every Record method is a no-op on a nil or zero Metrics, so components
// can take an optional *Metrics without checks.
//
// # Tracing
//
// Spans are created per pipeline stage (triage.<stage>), per AI call
// (ai.complete), per Google API call (google.<service>.<operation>) and per
// MCP tool (tool.<name>).
//
// # Configuration
//
// DefaultConfig reads:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: inboxtriage)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// Example:
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordThreadAssignment(ctx, assignment.Joined)
package instrumentation
