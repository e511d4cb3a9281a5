package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/inboxtriage/internal/ai"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/pipeline"
	"github.com/teemow/inboxtriage/internal/store"
	"github.com/teemow/inboxtriage/internal/tasks"
)

// ErrShutdown is returned by client lookups after Shutdown.
var ErrShutdown = errors.New("server is shut down")

// ReplyDrafter drafts answers to emails. *ai.Assistant implements it.
type ReplyDrafter interface {
	DraftReply(ctx context.Context, subject, body, sender, category, tone string) (ai.Reply, error)
}

// Services are the triage components shared by the CLI and the MCP server.
type Services struct {
	Store     *store.Store
	Profile   *config.Profile
	Pipeline  *pipeline.Pipeline
	Extractor pipeline.TaskExtractor
	Assistant pipeline.Assistant
	Drafter   ReplyDrafter
	Metrics   *instrumentation.Metrics
	Audit     *instrumentation.AuditLogger
	Logger    *slog.Logger

	// AIBreaker reports the state of the circuit breaker in front of the
	// completion service: closed, half-open or open.
	AIBreaker interface{ State() string }

	// TaskListTitle names the Google Tasks list tasks are exported to.
	// Empty disables export.
	TaskListTitle string
}

// ServerContext holds the triage services and the per-account Google
// clients, which are created lazily and cached.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	services Services

	gmailClients map[string]*gmail.Client // account name -> client
	tasksClients map[string]*tasks.Client
	hasToken     func(account string) bool

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context. The context is cancelled on
// Shutdown.
func NewServerContext(ctx context.Context, services Services) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	if services.Profile == nil {
		services.Profile = &config.Profile{}
	}
	if services.Logger == nil {
		services.Logger = slog.Default()
	}
	return &ServerContext{
		ctx:          shutdownCtx,
		cancel:       cancel,
		services:     services,
		gmailClients: make(map[string]*gmail.Client),
		tasksClients: make(map[string]*tasks.Client),
		hasToken:     google.HasTokenForAccount,
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Services returns the shared triage services.
func (sc *ServerContext) Services() Services {
	return sc.services
}

// Store returns the triage store.
func (sc *ServerContext) Store() *store.Store {
	return sc.services.Store
}

// AIBreakerState returns the completion breaker state, or "" when no
// breaker is configured.
func (sc *ServerContext) AIBreakerState() string {
	if sc.services.AIBreaker == nil {
		return ""
	}
	return sc.services.AIBreaker.State()
}

// Profile returns the user profile.
func (sc *ServerContext) Profile() *config.Profile {
	return sc.services.Profile
}

// Pipeline returns the per-email pipeline.
func (sc *ServerContext) Pipeline() *pipeline.Pipeline {
	return sc.services.Pipeline
}

// Extractor returns the task extractor, or nil if none is configured.
func (sc *ServerContext) Extractor() pipeline.TaskExtractor {
	return sc.services.Extractor
}

// Metrics returns the metrics recorder. It may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.services.Metrics
}

// Audit returns the audit logger. It may be nil.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger {
	return sc.services.Audit
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.services.Logger
}

// GmailClientForAccount returns the Gmail client for an account, creating
// and caching it on first use.
func (sc *ServerContext) GmailClientForAccount(account string) (*gmail.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil, ErrShutdown
	}
	if client, ok := sc.gmailClients[account]; ok {
		return client, nil
	}
	if !sc.hasToken(account) {
		return nil, errors.New(google.GetAuthenticationErrorMessage(account))
	}

	client, err := gmail.NewClientForAccount(sc.ctx, account)
	if err != nil {
		return nil, err
	}
	client.WithMetrics(sc.services.Metrics)
	sc.gmailClients[account] = client
	return client, nil
}

// SetGmailClientForAccount sets the Gmail client for an account.
func (sc *ServerContext) SetGmailClientForAccount(account string, client *gmail.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gmailClients[account] = client
}

// TasksClientForAccount returns the Google Tasks client for an account,
// creating and caching it on first use.
func (sc *ServerContext) TasksClientForAccount(account string) (*tasks.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil, ErrShutdown
	}
	if client, ok := sc.tasksClients[account]; ok {
		return client, nil
	}
	if !sc.hasToken(account) {
		return nil, errors.New(google.GetAuthenticationErrorMessage(account))
	}

	client, err := tasks.NewClientForAccount(sc.ctx, account)
	if err != nil {
		return nil, err
	}
	client.WithMetrics(sc.services.Metrics)
	sc.tasksClients[account] = client
	return client, nil
}

// SetTasksClientForAccount sets the Google Tasks client for an account.
func (sc *ServerContext) SetTasksClientForAccount(account string, client *tasks.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.tasksClients[account] = client
}

// NewRunner builds a batch Runner on top of the cached clients.
func (sc *ServerContext) NewRunner(cfg pipeline.RunnerConfig) (*pipeline.Runner, error) {
	s := sc.services
	if s.Store == nil {
		return nil, errors.New("store is required")
	}
	cfg.Pipeline = s.Pipeline
	cfg.Assistant = s.Assistant
	cfg.Store = s.Store
	cfg.Profile = s.Profile
	cfg.Metrics = s.Metrics
	cfg.Audit = s.Audit
	cfg.Logger = s.Logger
	cfg.Fetchers = func(_ context.Context, account string) (pipeline.Fetcher, error) {
		client, err := sc.GmailClientForAccount(account)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	if s.TaskListTitle != "" {
		cfg.Exporters = func(_ context.Context, account string) (pipeline.Exporter, error) {
			client, err := sc.TasksClientForAccount(account)
			if err != nil {
				return nil, err
			}
			return tasks.NewExporter(client, s.Store, s.TaskListTitle, s.Logger), nil
		}
	}
	return pipeline.NewRunner(cfg)
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
