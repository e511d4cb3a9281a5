// Package batch helps MCP tools that accept one or many IDs: it parses
// the flexible ID parameter and aggregates per-item results.
package batch
