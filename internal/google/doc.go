// Package google manages OAuth2 tokens for the Google accounts inboxtriage
// reads mail from and exports tasks to.
//
// Tokens are stored per account as JSON in
// $XDG_CACHE_HOME/inboxtriage/google-<account>.token (or the directory named
// by INBOXTRIAGE_TOKEN_DIR). The TokenProvider interface lets tests and
// embedding programs supply tokens from elsewhere.
package google
