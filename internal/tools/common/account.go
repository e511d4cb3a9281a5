package common

import (
	"strings"

	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/google"
)

// GetAccountFromArgs returns the Google account a tool call acts for.
//
// Priority order:
//  1. Explicit "account" argument
//  2. The profile account of the "user_email" argument
//  3. "default"
func GetAccountFromArgs(profile *config.Profile, args map[string]interface{}) string {
	if account := StringArg(args, "account"); account != "" {
		return account
	}
	if user := StringArg(args, "user_email"); user != "" && profile != nil {
		return profile.User(user).Account
	}
	return google.DefaultAccount
}

// StringArg returns a trimmed string argument, or "" if it is missing or
// not a string.
func StringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

// BoolArg returns a boolean argument, or def if it is missing.
func BoolArg(args map[string]interface{}, name string, def bool) bool {
	v, ok := args[name].(bool)
	if !ok {
		return def
	}
	return v
}
