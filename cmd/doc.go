// Package cmd implements the command-line interface for inboxtriage.
//
// This package provides the following commands:
//   - triage: Fetch recent mail for the profile's users and run it through the pipeline
//   - serve: Start the MCP server to provide triage tools for AI assistants
//   - score: Check subject similarity and the task pre-filter from the shell
//   - auth: Authorize a Google account and store its token
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The triage command is the default command when no subcommand is specified.
package cmd
