// Package server provides the shared runtime of the inboxtriage CLI and
// MCP server.
//
// ServerContext holds the triage services (store, profile, pipeline,
// extractor, assistant) and creates Gmail and Google Tasks clients per
// account lazily, caching them for the life of the process. NewRunner wires
// those clients into a pipeline.Runner.
//
// MetricsServer serves Prometheus metrics on a dedicated port together with
// the HealthChecker probes:
//   - /healthz: liveness
//   - /readyz: readiness, including a ping of the triage database
//   - /healthz/detailed: uptime and configured user count
package server
