// Package config loads inboxtriage's runtime configuration from the
// environment (optionally seeded from a .env file) and the per-user triage
// profile from YAML.
//
// Environment variables:
//   - OPENROUTER_API_KEY or OPENAI_API_KEY, OPENAI_BASE_URL, TRIAGE_MODEL
//   - TRIAGE_AI_TIMEOUT, TRIAGE_AI_MAX_RETRIES
//   - TRIAGE_PROFILE (default: triage.yaml), TRIAGE_DB (default: inboxtriage.db)
//   - TRIAGE_WINDOW (default: 24h), TRIAGE_MAX_MESSAGES (default: 100)
//   - TRIAGE_CONCURRENCY (default: 4), TRIAGE_TIMEZONE
//   - TRIAGE_EXPORT_TASKS, TRIAGE_TASK_LIST, TRIAGE_DEBUG
package config
