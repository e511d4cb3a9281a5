package extract

import (
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

// noDeadline holds the placeholders models answer with when a task has no
// due date.
var noDeadline = map[string]bool{
	"n/a": true, "na": true, "none": true, "null": true,
	"tbd": true, "tba": true, "unknown": true, "no deadline": true,
}

// DeadlineNormalizer turns free-text deadline phrases into absolute
// timestamps relative to a reference time.
type DeadlineNormalizer struct {
	now func() time.Time
	loc *time.Location
}

// NormalizerOption configures a DeadlineNormalizer.
type NormalizerOption func(*DeadlineNormalizer)

// WithClock sets the reference clock. Defaults to time.Now.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *DeadlineNormalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLocation sets the timezone phrases without an explicit zone are
// interpreted in. Defaults to time.Local.
func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *DeadlineNormalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// NewDeadlineNormalizer creates a normalizer.
func NewDeadlineNormalizer(opts ...NormalizerOption) *DeadlineNormalizer {
	n := &DeadlineNormalizer{
		now: time.Now,
		loc: time.Local,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize parses phrase relative to the normalizer's clock. Relative
// phrases resolve to the future ("Friday" is the next Friday). It returns
// nil when the phrase is empty or not a recognizable date.
func (n *DeadlineNormalizer) Normalize(phrase string) *time.Time {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || noDeadline[strings.ToLower(phrase)] {
		return nil
	}

	cfg := &dps.Configuration{
		Languages:            []string{"en"},
		CurrentTime:          n.now().In(n.loc),
		DefaultTimezone:      n.loc,
		PreferredDayOfMonth:  dps.Current,
		PreferredMonthOfYear: dps.CurrentMonth,
		PreferredDateSource:  dps.Future,
	}

	parsed, err := dps.Parse(cfg, phrase)
	if err != nil || parsed.Time.IsZero() {
		return nil
	}
	t := parsed.Time.In(n.loc)
	return &t
}
