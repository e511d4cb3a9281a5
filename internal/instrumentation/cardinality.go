package instrumentation

import "strings"

// ExtractUserDomain returns the domain part of an email address, or
// "unknown". Use it instead of the full address wherever a user shows up
// in a metric label or a non-audit log line.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "unknown"
	}
	return strings.ToLower(email[at+1:])
}
