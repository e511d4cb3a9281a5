package priority

import (
	"encoding/json"
	"strings"

	"github.com/teemow/inboxtriage/internal/triage"
)

// Stage names which step of the precedence chain decided a priority.
type Stage string

const (
	// StageSenderRule means a sender rule forced the priority.
	StageSenderRule Stage = "sender_rule"
	// StageInterest means a user interest boosted the AI priority.
	StageInterest Stage = "interest"
	// StageAI means the AI priority was kept as is.
	StageAI Stage = "ai"
)

// Resolution is the final priority and how it was reached.
type Resolution struct {
	Priority triage.Priority
	Stage    Stage
	// Rule is the sender rule that forced the priority, for StageSenderRule.
	Rule *triage.SenderRule
	// Interest is the keyword that triggered the boost, for StageInterest.
	Interest string
}

// Resolve computes the final priority of an email.
//
// The first sender rule whose pattern occurs in the sender and that forces
// a priority wins outright. Otherwise the first user interest found in the
// subject or body raises aiPriority by one step. Otherwise aiPriority is
// returned unchanged. At most one boost is applied per email.
func Resolve(sender, subject, body string, aiPriority triage.Priority, pref *triage.UserPreference, rules []triage.SenderRule) Resolution {
	for i := range rules {
		rule := rules[i]
		if rule.ForcePriority != nil && rule.Matches(sender) {
			return Resolution{
				Priority: *rule.ForcePriority,
				Stage:    StageSenderRule,
				Rule:     &rule,
			}
		}
	}

	if pref != nil && len(pref.Interests) > 0 {
		text := strings.ToLower(subject + " " + body)
		for _, interest := range pref.Interests {
			kw := strings.ToLower(strings.TrimSpace(interest))
			if kw == "" {
				continue
			}
			if strings.Contains(text, kw) {
				return Resolution{
					Priority: aiPriority.Boost(),
					Stage:    StageInterest,
					Interest: interest,
				}
			}
		}
	}

	return Resolution{Priority: aiPriority, Stage: StageAI}
}

// AutoReplyRule returns the first rule matching sender that has auto-reply
// enabled, or nil.
func AutoReplyRule(sender string, rules []triage.SenderRule) *triage.SenderRule {
	for i := range rules {
		if rules[i].AutoReply && rules[i].Matches(sender) {
			rule := rules[i]
			return &rule
		}
	}
	return nil
}

// ParseInterests decodes a JSON array of interest keywords.
// Anything that is not a JSON array of strings yields an empty list.
func ParseInterests(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var interests []string
	if err := json.Unmarshal([]byte(raw), &interests); err != nil {
		return []string{}
	}
	if interests == nil {
		return []string{}
	}
	return interests
}
