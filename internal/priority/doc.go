// Package priority resolves the final priority of an email from the AI
// suggestion, the user's sender rules and the user's interest keywords.
package priority
