package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/inboxtriage/internal/ai"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/triage"
)

const (
	// BodyLimit is how many characters of the body are sent to the model.
	BodyLimit = 2000

	maxTokens   = 300
	temperature = 0.1
)

const promptTemplate = `You are a task extraction engine. Your goal is to identify explicit actionable tasks from the following email.

RULES:
1. Extract ONLY specific actions the user (recipient) needs to take.
2. Ignore: Promotions, Newsletters, FYI-only emails, General status updates without action required.
3. If there are no clear actions, return "has_tasks": false.
4. Deadlines: Extract if present (e.g., "by Friday", "tomorrow", "Jan 31st"). If none, set null.
5. Output MUST be valid JSON only. NO markdown, NO explanations.

JSON Schema:
{
  "has_tasks": boolean,
  "tasks": [
    {
      "task_text": "string (concise action)",
      "deadline": "string | null (natural language is fine)"
    }
  ]
}

EMAIL CONTENT:
Subject: %s
Body:
%s
`

// Result is the outcome of an extraction. Tasks is never nil.
type Result struct {
	HasTasks bool                   `json:"has_tasks"`
	Tasks    []triage.ExtractedTask `json:"tasks"`
}

// Empty returns the safe default result.
func Empty() Result {
	return Result{Tasks: []triage.ExtractedTask{}}
}

// Extractor asks the model for the actionable tasks in an email.
type Extractor struct {
	completer  ai.Completer
	normalizer *DeadlineNormalizer
	model      string
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(e *Extractor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithNormalizer sets the deadline normalizer.
func WithNormalizer(n *DeadlineNormalizer) Option {
	return func(e *Extractor) {
		if n != nil {
			e.normalizer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records extraction outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(e *Extractor) {
		e.metrics = m
	}
}

// NewExtractor creates an Extractor backed by completer.
func NewExtractor(completer ai.Completer, opts ...Option) *Extractor {
	e := &Extractor{
		completer:  completer,
		normalizer: NewDeadlineNormalizer(),
		model:      ai.DefaultModel,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.WithService(e.logger, "extract")
	return e
}

// BuildPrompt renders the extraction prompt for an email.
func BuildPrompt(subject, body string) string {
	return fmt.Sprintf(promptTemplate, subject, truncateRunes(body, BodyLimit))
}

// Extract returns the tasks found in the email.
//
// Completer failures and unusable answers return Empty() together with an
// *ExtractionError. A task without text returns ErrMissingTaskText. Each
// deadline is normalized independently; phrases that cannot be parsed
// leave that task's Deadline nil.
func (e *Extractor) Extract(ctx context.Context, emailID, subject, body string) (Result, error) {
	ctx, span := instrumentation.StartStageSpan(ctx, "extract_tasks")
	defer span.End()

	logger := logging.WithOperation(e.logger, "extract_tasks").With(slog.String(logging.KeyEmailID, emailID))

	res, err := e.extract(ctx, emailID, subject, body)
	outcome := "success"
	switch {
	case err == nil && !res.HasTasks:
		outcome = "no_tasks"
	case IsDegraded(err):
		outcome = string(KindOf(err))
		logger.Warn("task extraction degraded", slog.String("kind", outcome), logging.Err(err))
	case err != nil:
		outcome = "invalid_task"
		logger.Error("task extraction rejected", logging.Err(err))
	}
	e.metrics.RecordExtraction(ctx, outcome, len(res.Tasks))

	if err != nil {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
		logger.Debug("tasks extracted", slog.Int("count", len(res.Tasks)))
	}
	return res, err
}

func (e *Extractor) extract(ctx context.Context, emailID, subject, body string) (Result, error) {
	out, err := e.completer.Complete(ctx, ai.Request{
		Model:       e.model,
		Prompt:      BuildPrompt(subject, body),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Empty(), &ExtractionError{Kind: kindForCompleterError(err), Err: err}
	}

	resp := ParseResponse(out)
	if resp.Failure != nil {
		return Empty(), &ExtractionError{Kind: resp.Failure.Kind, Err: errors.New(resp.Failure.Reason)}
	}
	if !resp.Success.HasTasks {
		return Empty(), nil
	}

	tasks := make([]triage.ExtractedTask, 0, len(resp.Success.Tasks))
	for i, t := range resp.Success.Tasks {
		text := strings.TrimSpace(t.TaskText)
		if text == "" {
			return Empty(), fmt.Errorf("task %d: %w", i, ErrMissingTaskText)
		}
		task := triage.ExtractedTask{
			TaskText:      text,
			SourceEmailID: emailID,
		}
		if t.Deadline != nil {
			task.Deadline = e.normalizer.Normalize(*t.Deadline)
		}
		tasks = append(tasks, task)
	}

	return Result{HasTasks: len(tasks) > 0, Tasks: tasks}, nil
}
