// Package store persists triage results in SQLite.
//
// The schema is managed with goose migrations embedded in the binary and
// applied by Open. Emails double as the thread history of a user, tasks
// are unique per email and text so re-running extraction is harmless, and
// user_summaries keeps the overall summary of every run.
package store
