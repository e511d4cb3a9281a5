// Package google_tools provides MCP tools for Google OAuth authentication.
//
// The OAuth flow:
//  1. Call google_get_auth_url to get the authorization URL
//  2. The user visits the URL and authorizes Gmail and Google Tasks access
//  3. Call google_save_auth_code with the returned code
//
// The saved token is refreshed automatically and shared by the CLI and the
// MCP server.
package google_tools
