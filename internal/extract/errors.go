package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/teemow/inboxtriage/internal/ai"
)

// ErrorKind classifies why an extraction fell back to the empty result.
type ErrorKind string

const (
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindRateLimited       ErrorKind = "rate_limited"
	KindAuthError         ErrorKind = "auth_error"
	KindUnavailable       ErrorKind = "unavailable"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindParseError        ErrorKind = "parse_error"
)

// ErrMissingTaskText is returned when the model reports a task without
// text. It is a contract violation and is not converted to the empty
// result.
var ErrMissingTaskText = errors.New("extracted task has no task_text")

// ExtractionError describes a degraded extraction. The accompanying
// Result is always the safe empty result.
type ExtractionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return "task extraction failed: " + string(e.Kind)
	}
	return fmt.Sprintf("task extraction failed (%s): %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsDegraded reports whether err is an ExtractionError, i.e. an outcome the
// caller may log and otherwise ignore.
func IsDegraded(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// KindOf returns the ErrorKind of err, or "" if err is not an
// ExtractionError.
func KindOf(err error) ErrorKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

func kindForCompleterError(err error) ErrorKind {
	switch {
	case errors.Is(err, ai.ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ai.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ai.ErrAuth):
		return KindAuthError
	case errors.Is(err, ai.ErrNoChoices):
		return KindMalformedResponse
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	}
	return KindUnavailable
}
