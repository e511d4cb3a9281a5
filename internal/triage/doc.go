// Package triage defines the records shared by the email intelligence
// pipeline: emails, sender rules, user preferences, extracted tasks and the
// per-email decision the pipeline produces.
//
// The types carry JSON, YAML and database tags so the same values flow
// through the MCP tools, the rules file and the SQLite store without
// conversion layers.
package triage
