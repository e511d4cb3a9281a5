package extract

import (
	"regexp"

	"github.com/teemow/inboxtriage/internal/triage"
)

// ScanLimit is how many characters of the body the pre-filter inspects.
const ScanLimit = 2000

// Reason explains a pre-filter decision.
type Reason string

const (
	ReasonExcluded Reason = "excluded_category"
	ReasonPriority Reason = "priority"
	ReasonAction   Reason = "action_keyword"
	ReasonTime     Reason = "time_pattern"
	ReasonDate     Reason = "date_pattern"
	ReasonNone     Reason = "no_signal"
)

var excludedCategories = map[string]struct{}{
	triage.CategoryOffers:     {},
	triage.CategoryPromotions: {},
	triage.CategorySpam:       {},
}

var (
	actionPattern = regexp.MustCompile(`(?i)\b(submit|complete|fill|review|send|share|attend|join|schedule|update|approve|deadline|due|by|before)\b`)

	// 17:00, 5:30, 5pm, 5 PM
	timePattern = regexp.MustCompile(`(?i)\b(?:[01]?\d|2[0-3]):[0-5]\d\b|\b\d{1,2}\s?(?:am|pm)\b`)

	// today, tomorrow, EOD, ASAP, 12/09, 12-09, Sept 12
	datePattern = regexp.MustCompile(`(?i)\b(today|tomorrow|eod|asap)\b|\d{1,2}[/-]\d{1,2}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s\d{1,2}`)
)

// Prefilter decides whether an email is worth sending to the task
// extractor and reports why.
//
// Excluded categories (Offers, Promotions, Spam) always fail. Otherwise
// High and Medium priority emails pass. Everything else passes only if the
// subject or the first ScanLimit characters of the body contain an action
// keyword, a clock time or a date.
func Prefilter(subject, body, category string, priority *triage.Priority) (bool, Reason) {
	if _, ok := excludedCategories[category]; ok {
		return false, ReasonExcluded
	}

	if priority != nil && (*priority == triage.PriorityHigh || *priority == triage.PriorityMedium) {
		return true, ReasonPriority
	}

	text := subject + " " + truncateRunes(body, ScanLimit)
	switch {
	case actionPattern.MatchString(text):
		return true, ReasonAction
	case timePattern.MatchString(text):
		return true, ReasonTime
	case datePattern.MatchString(text):
		return true, ReasonDate
	}
	return false, ReasonNone
}

// ShouldExtract reports whether Prefilter lets the email through.
func ShouldExtract(subject, body, category string, priority *triage.Priority) bool {
	ok, _ := Prefilter(subject, body, category, priority)
	return ok
}

func truncateRunes(s string, n int) string {
	// Fast path for the common ASCII case.
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
