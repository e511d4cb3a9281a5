package triage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency label attached to an email.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority parses a priority label case-insensitively.
// The second return value is false for anything other than High, Medium or Low.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, true
	case "medium":
		return PriorityMedium, true
	case "low":
		return PriorityLow, true
	}
	return "", false
}

// Boost raises the priority by one step. High stays High.
func (p Priority) Boost() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium, PriorityHigh:
		return PriorityHigh
	}
	return p
}

// Valid reports whether p is one of the three known labels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Ptr returns a pointer to a copy of p.
func (p Priority) Ptr() *Priority {
	return &p
}

// UnmarshalJSON accepts any casing of the three labels.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParsePriority(s)
	if !ok {
		return fmt.Errorf("unknown priority %q", s)
	}
	*p = parsed
	return nil
}

// UnmarshalYAML accepts any casing of the three labels.
func (p *Priority) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, ok := ParsePriority(s)
	if !ok {
		return fmt.Errorf("unknown priority %q", s)
	}
	*p = parsed
	return nil
}

// Category names assigned to emails.
const (
	CategoryWork          = "Work"
	CategoryCollege       = "College"
	CategoryPersonal      = "Personal"
	CategoryBankFinance   = "Bank/Finance"
	CategoryOffers        = "Offers"
	CategoryPromotions    = "Promotions"
	CategoryTravel        = "Travel/Tickets"
	CategoryBills         = "Bills/Payments"
	CategorySecurityAlert = "Security Alert"
	CategorySubscriptions = "Subscriptions/Newsletters"
	CategoryEvents        = "Events/Conferences"
	CategoryDeadline      = "Important/Deadline"
	CategoryLinkedIn      = "LinkedIn"
	CategorySpam          = "Spam"
)

// Categories lists every category the categorizer may assign.
var Categories = []string{
	CategoryWork,
	CategoryCollege,
	CategoryPersonal,
	CategoryBankFinance,
	CategoryPromotions,
	CategoryTravel,
	CategoryBills,
	CategorySecurityAlert,
	CategorySubscriptions,
	CategoryEvents,
	CategoryDeadline,
	CategoryLinkedIn,
	CategorySpam,
}

// IsCategory reports whether name is a known category.
func IsCategory(name string) bool {
	if name == CategoryOffers {
		return true
	}
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// EmailRecord is a single email as seen by the pipeline.
// The pipeline reads records but never modifies them; derived values are
// returned in a Decision.
type EmailRecord struct {
	ID            string    `json:"id" db:"id"`
	UserEmail     string    `json:"user_email" db:"user_email"`
	Sender        string    `json:"sender" db:"sender"`
	Subject       string    `json:"subject" db:"subject"`
	Body          string    `json:"body" db:"body"`
	Summary       string    `json:"summary,omitempty" db:"summary"`
	Category      string    `json:"category,omitempty" db:"category"`
	Priority      *Priority `json:"priority,omitempty" db:"priority"`
	ThreadID      string    `json:"thread_id,omitempty" db:"thread_id"`
	SmartThreadID string    `json:"smart_thread_id,omitempty" db:"smart_thread_id"`
	ReceivedAt    time.Time `json:"received_at" db:"received_at"`
}

// ThreadGroup is a smart thread and the emails assigned to it, oldest
// first. It is derived from stored emails and never persisted.
type ThreadGroup struct {
	SmartThreadID string        `json:"smart_thread_id"`
	Emails        []EmailRecord `json:"emails"`
}

// GroupThreads groups emails by SmartThreadID, keeping the input order
// within each group. Groups are ordered by their first email. Emails
// without a smart thread share the group with an empty ID.
func GroupThreads(emails []EmailRecord) []ThreadGroup {
	groups := []ThreadGroup{}
	index := make(map[string]int)
	for _, e := range emails {
		i, ok := index[e.SmartThreadID]
		if !ok {
			i = len(groups)
			index[e.SmartThreadID] = i
			groups = append(groups, ThreadGroup{SmartThreadID: e.SmartThreadID})
		}
		groups[i].Emails = append(groups[i].Emails, e)
	}
	return groups
}

// SenderRule overrides priority or enables auto-reply for senders matching a pattern.
type SenderRule struct {
	SenderPattern string    `json:"sender_pattern" yaml:"sender_pattern"`
	ForcePriority *Priority `json:"force_priority,omitempty" yaml:"force_priority,omitempty"`
	AutoReply     bool      `json:"auto_reply" yaml:"auto_reply"`
	// ReplyText is the canned answer sent when AutoReply is set.
	ReplyText string `json:"reply_text,omitempty" yaml:"reply_text,omitempty"`
}

// Matches reports whether the rule's pattern is contained in sender, ignoring case.
func (r SenderRule) Matches(sender string) bool {
	if r.SenderPattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(sender), strings.ToLower(r.SenderPattern))
}

// UserPreference holds the per-user interest keywords.
type UserPreference struct {
	Interests   []string `json:"interests" yaml:"interests"`
	PrimaryRole string   `json:"primary_role,omitempty" yaml:"primary_role,omitempty"`
}

// ExtractedTask is an action item found in an email.
type ExtractedTask struct {
	TaskText      string     `json:"task_text" db:"task_text"`
	Deadline      *time.Time `json:"deadline" db:"deadline"`
	SourceEmailID string     `json:"source_email_id" db:"email_id"`
}

// Decision collects everything the pipeline derived for one email.
type Decision struct {
	EmailID       string          `json:"email_id"`
	SmartThreadID string          `json:"smart_thread_id"`
	Priority      Priority        `json:"priority"`
	PriorityStage string          `json:"priority_stage"`
	Tasks         []ExtractedTask `json:"tasks"`

	// ExtractionAttempted is true when the pre-filter passed and the
	// extractor was called.
	ExtractionAttempted bool `json:"extraction_attempted"`

	// ExtractionSkipped is true when stored tasks already existed.
	ExtractionSkipped bool `json:"extraction_skipped,omitempty"`

	// ExtractionError names the degraded extraction outcome, if any.
	ExtractionError string `json:"extraction_error,omitempty"`

	AutoReply *SenderRule `json:"auto_reply,omitempty"`
}
