// Package ai is the boundary to the text generation service.
//
// Everything that needs a model goes through the Completer interface, so
// callers can be tested with CompleterFunc doubles. OpenAIClient talks to
// any OpenAI-compatible endpoint (OpenRouter by default) and Breaker adds a
// circuit breaker on top. Errors are classified into ErrQuotaExceeded,
// ErrRateLimited, ErrAuth and ErrUnavailable so callers can log and alert
// on them without parsing messages.
//
// Assistant holds the auxiliary prompts of a triage run (summaries,
// categories, batch priorities), each with a deterministic fallback.
package ai
