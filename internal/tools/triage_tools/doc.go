// Package triage_tools exposes the triage pipeline as MCP tools.
//
// Scoring tools are pure and need no credentials:
//   - triage_similarity: subject similarity score (0-100)
//   - triage_assign_thread: smart thread assignment against a history
//   - triage_resolve_priority: final priority from sender rules and interests
//   - triage_should_extract: task pre-filter decision
//
// Extraction tools call the language model:
//   - triage_extract_tasks: tasks and normalized deadlines of one email
//   - triage_process_email: the full per-email pipeline, optionally stored
//   - triage_draft_reply: a reply draft in a given tone, never sent
//
// Store tools read and write the triage database:
//   - triage_get_emails: stored emails by ID
//   - triage_list_tasks: a user's extracted tasks
//   - triage_list_threads: a user's emails grouped by smart thread
//   - triage_latest_summary: the last run summary of a user
//   - triage_run: fetch and triage recent Gmail messages
//   - triage_export_tasks: push pending tasks to Google Tasks
//
// In read-only mode triage_run and triage_export_tasks are not registered
// and triage_process_email refuses to save.
package triage_tools
