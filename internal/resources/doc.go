// Package resources provides MCP resources exposing triage state:
//   - triage://profile: configured users, interests and sender rules
//   - triage://users/{email}/summary: the latest run summary of a user
//   - triage://users/{email}/tasks: a user's tasks not yet exported
package resources
