package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxtriage/internal/ai"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/tasks"
	"github.com/teemow/inboxtriage/internal/triage"
)

// Store persists the results of a run. *store.Store implements it.
type Store interface {
	EmailExists(ctx context.Context, id string) (bool, error)
	HistoryForUser(ctx context.Context, userEmail string, limit int) ([]triage.EmailRecord, error)
	HasTasks(ctx context.Context, emailID string) (bool, error)
	SaveEmail(ctx context.Context, e triage.EmailRecord) error
	SaveTasks(ctx context.Context, userEmail string, tasks []triage.ExtractedTask) error
	SaveUserSummary(ctx context.Context, userEmail, runID, summary string) error
}

// Assistant runs the auxiliary AI steps. *ai.Assistant implements it.
type Assistant interface {
	Summarize(ctx context.Context, subject, body string) string
	Categorize(ctx context.Context, subject, body, sender string) string
	AnalyzePriorities(ctx context.Context, digests []ai.Digest) (ai.Analysis, error)
}

// Fetcher returns a user's recent emails. *gmail.Client implements it.
type Fetcher interface {
	FetchRecent(ctx context.Context, userEmail string, window time.Duration, maxResults int64, skip func(id string) bool) ([]triage.EmailRecord, []error, error)
}

// Exporter pushes a user's stored tasks somewhere. *tasks.Exporter
// implements it.
type Exporter interface {
	Export(ctx context.Context, userEmail string) (tasks.ExportResult, error)
}

// FetcherFactory opens a Fetcher for a Google account.
type FetcherFactory func(ctx context.Context, account string) (Fetcher, error)

// ExporterFactory opens an Exporter for a Google account.
type ExporterFactory func(ctx context.Context, account string) (Exporter, error)

// RunnerConfig holds the collaborators and limits of a Runner.
type RunnerConfig struct {
	Pipeline  *Pipeline
	Assistant Assistant
	Store     Store
	Profile   *config.Profile
	Fetchers  FetcherFactory

	// Exporters is optional; tasks are not exported when it is nil.
	Exporters ExporterFactory

	Window      time.Duration
	MaxMessages int64

	// Concurrency bounds how many users are processed at once.
	Concurrency int

	// HistoryLimit bounds how many stored emails are considered for
	// threading. Zero means all.
	HistoryLimit int

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// AutoReplyMatch is an email whose sender has auto-reply enabled.
type AutoReplyMatch struct {
	EmailID   string `json:"email_id"`
	Sender    string `json:"sender"`
	ReplyText string `json:"reply_text,omitempty"`
}

// UserReport is the outcome of a run for one user.
type UserReport struct {
	UserEmail   string              `json:"user_email"`
	Fetched     int                 `json:"fetched"`
	Processed   int                 `json:"processed"`
	Failed      int                 `json:"failed"`
	Tasks       int                 `json:"tasks"`
	Summary     string              `json:"summary,omitempty"`
	Decisions   []triage.Decision   `json:"decisions"`
	AutoReplies []AutoReplyMatch    `json:"auto_replies,omitempty"`
	Export      *tasks.ExportResult `json:"export,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	RunID    string        `json:"run_id"`
	Users    []UserReport  `json:"users"`
	Duration time.Duration `json:"duration"`
}

// Runner runs the batch triage job: for each user it fetches recent mail,
// summarizes and categorizes it, asks the model for priorities, triages
// every email through the Pipeline and stores the results.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Pipeline == nil || cfg.Assistant == nil || cfg.Store == nil || cfg.Fetchers == nil {
		return nil, fmt.Errorf("pipeline, assistant, store and fetchers are required")
	}
	if cfg.Profile == nil {
		cfg.Profile = &config.Profile{}
	}
	if cfg.Window <= 0 {
		cfg.Window = config.DefaultWindow
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = config.DefaultMaxMessages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logging.WithService(cfg.Logger, "runner")}, nil
}

// Run triages the given users, or every user in the profile when users is
// empty. Users are processed in parallel and never share state; one user's
// failure is recorded in its report and does not affect the others. When
// ctx is cancelled Run returns the partial report and the context error.
func (r *Runner) Run(ctx context.Context, users []string) (Report, error) {
	if len(users) == 0 {
		for _, u := range r.cfg.Profile.Users {
			users = append(users, u.Email)
		}
	}

	runID := uuid.NewString()
	ctx, span := instrumentation.StartStageSpan(ctx, "run", attribute.String(instrumentation.SpanAttrRunID, runID))
	defer span.End()
	start := time.Now()
	logger := logging.WithRun(r.logger, runID)
	logger.Info("triage run started", slog.Int("users", len(users)))

	reports := make([]UserReport, len(users))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for i, user := range users {
		g.Go(func() error {
			rep, err := r.RunUser(ctx, runID, user)
			if err != nil {
				rep.Error = err.Error()
				logger.Error("user triage failed", logging.UserHash(user), logging.Err(err))
			}
			reports[i] = rep
			return nil
		})
	}
	_ = g.Wait()

	report := Report{RunID: runID, Users: reports, Duration: time.Since(start)}

	status := instrumentation.StatusSuccess
	failed := 0
	for _, rep := range reports {
		if rep.Error != "" || rep.Failed > 0 {
			failed++
		}
	}
	switch {
	case ctx.Err() != nil:
		status = instrumentation.StatusError
	case failed == len(reports) && failed > 0:
		status = instrumentation.StatusError
	case failed > 0:
		status = instrumentation.StatusPartial
	}
	r.cfg.Metrics.RecordRun(ctx, status, report.Duration)
	logger.Info("triage run finished",
		logging.Status(status),
		slog.Duration(logging.KeyDuration, report.Duration))

	if err := ctx.Err(); err != nil {
		instrumentation.SetSpanError(span, err)
		return report, err
	}
	instrumentation.SetSpanSuccess(span)
	return report, nil
}

// RunUser triages the recent mail of one user.
func (r *Runner) RunUser(ctx context.Context, runID, userEmail string) (UserReport, error) {
	rep := UserReport{UserEmail: userEmail, Decisions: []triage.Decision{}}
	profile := r.cfg.Profile.User(userEmail)
	logger := logging.WithRun(r.logger, runID).With(logging.UserHash(userEmail))

	fetcher, err := r.cfg.Fetchers(ctx, profile.Account)
	if err != nil {
		return rep, fmt.Errorf("open mailbox: %w", err)
	}

	skip := func(id string) bool {
		exists, err := r.cfg.Store.EmailExists(ctx, id)
		return err == nil && exists
	}
	emails, fetchErrs, err := fetcher.FetchRecent(ctx, userEmail, r.cfg.Window, r.cfg.MaxMessages, skip)
	if err != nil {
		return rep, fmt.Errorf("fetch mail: %w", err)
	}
	for _, ferr := range fetchErrs {
		rep.Failed++
		logger.Warn("message fetch failed", logging.Err(ferr))
	}
	rep.Fetched = len(emails)
	if len(emails) == 0 {
		logger.Info("no new mail")
		return rep, nil
	}

	// Oldest first, so replies can join the thread of the mail they answer.
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})

	digests := make([]ai.Digest, 0, len(emails))
	for i := range emails {
		e := &emails[i]
		e.Summary = r.cfg.Assistant.Summarize(ctx, e.Subject, e.Body)
		e.Category = r.cfg.Assistant.Categorize(ctx, e.Subject, e.Body, e.Sender)
		digests = append(digests, ai.Digest{From: e.Sender, Subject: e.Subject, Summary: e.Summary})
	}

	analysis, err := r.cfg.Assistant.AnalyzePriorities(ctx, digests)
	if err != nil {
		logger.Warn("priority analysis failed, using Medium", logging.Err(err))
	}

	history, err := r.cfg.Store.HistoryForUser(ctx, userEmail, r.cfg.HistoryLimit)
	if err != nil {
		return rep, err
	}

	for _, e := range emails {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		aiPriority, ok := analysis.PriorityFor(e.Subject)
		if !ok {
			aiPriority = triage.PriorityMedium
		}
		e.Priority = aiPriority.Ptr()

		stored, err := r.cfg.Store.HasTasks(ctx, e.ID)
		if err != nil {
			logger.Warn("task lookup failed", logging.EmailID(e.ID), logging.Err(err))
		}

		d, perr := r.cfg.Pipeline.ProcessEmail(ctx, Input{
			Email:       e,
			AIPriority:  aiPriority,
			History:     history,
			Preference:  profile.Preference(),
			Rules:       profile.SenderRules,
			TasksStored: stored,
		})
		if d.SmartThreadID == "" {
			rep.Failed++
			logger.Error("email triage failed", logging.EmailID(e.ID), logging.Err(perr))
			continue
		}
		if perr != nil {
			rep.Failed++
			logger.Warn("email triaged without tasks", logging.EmailID(e.ID), logging.Err(perr))
		}

		e.SmartThreadID = d.SmartThreadID
		e.Priority = d.Priority.Ptr()
		if err := r.cfg.Store.SaveEmail(ctx, e); err != nil {
			rep.Failed++
			logger.Error("saving email failed", logging.EmailID(e.ID), logging.Err(err))
			continue
		}
		if err := r.cfg.Store.SaveTasks(ctx, userEmail, d.Tasks); err != nil {
			rep.Failed++
			logger.Error("saving tasks failed", logging.EmailID(e.ID), logging.Err(err))
		}
		history = append(history, e)

		rep.Processed++
		rep.Tasks += len(d.Tasks)
		rep.Decisions = append(rep.Decisions, d)
		if d.AutoReply != nil {
			rep.AutoReplies = append(rep.AutoReplies, AutoReplyMatch{
				EmailID:   e.ID,
				Sender:    e.Sender,
				ReplyText: d.AutoReply.ReplyText,
			})
		}

		record := instrumentation.DecisionRecord{
			RunID:         runID,
			UserEmail:     userEmail,
			EmailID:       e.ID,
			SmartThreadID: d.SmartThreadID,
			Priority:      string(d.Priority),
			PriorityStage: d.PriorityStage,
			Tasks:         len(d.Tasks),
			AutoReply:     d.AutoReply != nil,
			Error:         d.ExtractionError,
		}
		if perr != nil {
			record.Error = perr.Error()
		}
		r.cfg.Audit.LogDecision(ctx, record)
	}

	rep.Summary = analysis.OverallSummary
	if err := r.cfg.Store.SaveUserSummary(ctx, userEmail, runID, rep.Summary); err != nil {
		logger.Warn("saving summary failed", logging.Err(err))
	}

	if r.cfg.Exporters != nil {
		r.export(ctx, profile.Account, &rep, logger)
	}

	logger.Info("user triaged",
		slog.Int("fetched", rep.Fetched),
		slog.Int("processed", rep.Processed),
		slog.Int("failed", rep.Failed),
		slog.Int("tasks", rep.Tasks))
	return rep, nil
}

func (r *Runner) export(ctx context.Context, account string, rep *UserReport, logger *slog.Logger) {
	exporter, err := r.cfg.Exporters(ctx, account)
	if err != nil {
		logger.Warn("task export unavailable", logging.Err(err))
		return
	}
	res, err := exporter.Export(ctx, rep.UserEmail)
	if err != nil {
		logger.Warn("task export failed", logging.Err(err))
	}
	rep.Export = &res
}
