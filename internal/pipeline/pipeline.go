package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/priority"
	"github.com/teemow/inboxtriage/internal/threading"
	"github.com/teemow/inboxtriage/internal/triage"
)

// TaskExtractor finds the tasks in an email. *extract.Extractor
// implements it.
type TaskExtractor interface {
	Extract(ctx context.Context, emailID, subject, body string) (extract.Result, error)
}

// Input is everything needed to triage one email.
type Input struct {
	Email triage.EmailRecord

	// AIPriority is the model's priority for the email. An invalid or
	// empty value is treated as Medium.
	AIPriority triage.Priority

	// History holds the user's earlier emails with their smart threads.
	History []triage.EmailRecord

	Preference *triage.UserPreference
	Rules      []triage.SenderRule

	// TasksStored is set when tasks were already extracted for the email;
	// extraction is then skipped.
	TasksStored bool
}

// Pipeline triages single emails. It is safe for concurrent use and keeps
// no state between calls.
type Pipeline struct {
	assigner  *threading.Assigner
	extractor TaskExtractor
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAssigner replaces the default thread assigner.
func WithAssigner(a *threading.Assigner) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.assigner = a
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline. A nil extractor disables task extraction.
func New(extractor TaskExtractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		assigner:  threading.NewAssigner(),
		extractor: extractor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.WithService(p.logger, "pipeline")
	return p
}

// ProcessEmail assigns the smart thread, resolves the final priority and
// extracts tasks for one email. The three steps share only their input and
// run concurrently.
//
// Degraded extraction is reported in Decision.ExtractionError and is not an
// error. An error is returned when no thread ID could be minted or when the
// model returned a task without text; the decision then holds whatever was
// computed.
func (p *Pipeline) ProcessEmail(ctx context.Context, in Input) (triage.Decision, error) {
	ctx, span := instrumentation.StartStageSpan(ctx, "process_email",
		attribute.String(instrumentation.SpanAttrEmailID, in.Email.ID))
	defer span.End()
	start := time.Now()

	aiPriority := in.AIPriority
	if !aiPriority.Valid() {
		aiPriority = triage.PriorityMedium
	}

	var (
		assignment threading.Assignment
		resolution priority.Resolution
		extraction extractionOutcome
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignment, err = p.assignThread(gctx, in)
		return err
	})
	g.Go(func() error {
		resolution = p.resolvePriority(gctx, in, aiPriority)
		return nil
	})
	g.Go(func() error {
		var err error
		extraction, err = p.extractTasks(gctx, in)
		return err
	})
	err := g.Wait()

	d := triage.Decision{
		EmailID:             in.Email.ID,
		SmartThreadID:       assignment.ThreadID,
		Priority:            resolution.Priority,
		PriorityStage:       string(resolution.Stage),
		Tasks:               extraction.result.Tasks,
		ExtractionAttempted: extraction.attempted,
		ExtractionSkipped:   extraction.skipped,
		ExtractionError:     extraction.degraded,
		AutoReply:           priority.AutoReplyRule(in.Email.Sender, in.Rules),
	}
	if d.Tasks == nil {
		d.Tasks = []triage.ExtractedTask{}
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	p.metrics.RecordEmailProcessed(ctx, status, time.Since(start))

	if err != nil {
		return d, fmt.Errorf("process email %s: %w", in.Email.ID, err)
	}
	return d, nil
}

func (p *Pipeline) assignThread(ctx context.Context, in Input) (threading.Assignment, error) {
	_, span := instrumentation.StartStageSpan(ctx, "assign_thread")
	defer span.End()

	asg, err := p.assigner.Assign(in.Email.UserEmail, in.Email.Subject, in.History)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return asg, err
	}
	span.SetAttributes(attribute.Bool("triage.thread_joined", asg.Joined))
	p.metrics.RecordThreadAssignment(ctx, asg.Joined)

	if asg.Joined {
		p.logger.Debug("email joined thread",
			logging.EmailID(in.Email.ID),
			slog.String(logging.KeyThreadID, asg.ThreadID),
			slog.String("matched_email_id", asg.MatchedEmailID),
			slog.Float64("score", asg.Score))
	}
	return asg, nil
}

func (p *Pipeline) resolvePriority(ctx context.Context, in Input, aiPriority triage.Priority) priority.Resolution {
	_, span := instrumentation.StartStageSpan(ctx, "resolve_priority")
	defer span.End()

	res := priority.Resolve(in.Email.Sender, in.Email.Subject, in.Email.Body, aiPriority, in.Preference, in.Rules)
	span.SetAttributes(
		attribute.String("triage.priority", string(res.Priority)),
		attribute.String("triage.priority_stage", string(res.Stage)),
	)
	p.metrics.RecordPriorityResolution(ctx, string(res.Stage), string(res.Priority))
	return res
}

type extractionOutcome struct {
	result    extract.Result
	attempted bool
	skipped   bool
	degraded  string
}

func (p *Pipeline) extractTasks(ctx context.Context, in Input) (extractionOutcome, error) {
	out := extractionOutcome{result: extract.Empty()}

	passed, reason := extract.Prefilter(in.Email.Subject, in.Email.Body, in.Email.Category, in.Email.Priority)
	p.metrics.RecordPrefilterDecision(ctx, string(reason), passed)
	if !passed {
		return out, nil
	}
	if in.TasksStored {
		out.skipped = true
		return out, nil
	}
	if p.extractor == nil {
		return out, nil
	}

	out.attempted = true
	res, err := p.extractor.Extract(ctx, in.Email.ID, in.Email.Subject, in.Email.Body)
	switch {
	case err == nil:
		out.result = res
	case extract.IsDegraded(err):
		out.degraded = string(extract.KindOf(err))
	case errors.Is(err, extract.ErrMissingTaskText):
		return out, err
	default:
		// Anything else the extractor returns is treated as unavailable.
		out.degraded = string(extract.KindUnavailable)
	}
	return out, nil
}
