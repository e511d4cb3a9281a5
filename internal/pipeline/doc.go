// Package pipeline wires the triage stages together.
//
// Pipeline.ProcessEmail triages one email: it assigns a smart thread,
// resolves the final priority and extracts tasks. Runner drives a full
// batch: for every configured user it fetches recent Gmail messages that
// were not seen before, summarizes and categorizes them, asks the model for
// per-email priorities, triages each email oldest first and persists the
// results. Optionally it exports pending tasks to Google Tasks.
//
// Users are processed in parallel. Emails of one user are processed in
// order so that a reply can join the thread of a message fetched in the
// same batch.
package pipeline
