package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/ai"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/pipeline"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/store"
)

// commonFlags are shared by every command that opens the triage services.
type commonFlags struct {
	envFile     string
	profilePath string
	dbPath      string
	model       string
	timezone    string
	debug       bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.envFile, "env-file", "", "Load environment variables from this file (default: ./.env if present)")
	cmd.Flags().StringVar(&f.profilePath, "profile", "", "Triage profile YAML file. Can also use TRIAGE_PROFILE env var. Default: triage.yaml")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite database path, or :memory:. Can also use TRIAGE_DB env var. Default: inboxtriage.db")
	cmd.Flags().StringVar(&f.model, "model", "", "Chat model used for summaries, priorities and task extraction. Can also use TRIAGE_MODEL env var.")
	cmd.Flags().StringVar(&f.timezone, "timezone", "", "IANA timezone deadlines are resolved in. Can also use TRIAGE_TIMEZONE env var. Default: local time")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
}

// loadConfig reads .env and the environment, then applies flags that were
// set explicitly.
func (f *commonFlags) loadConfig() (config.Config, error) {
	var files []string
	if f.envFile != "" {
		files = append(files, f.envFile)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return config.Config{}, err
	}

	cfg := config.FromEnv()
	if f.profilePath != "" {
		cfg.ProfilePath = f.profilePath
	}
	if f.dbPath != "" {
		cfg.DatabasePath = f.dbPath
	}
	if f.model != "" {
		cfg.AI.Model = f.model
	}
	if f.timezone != "" {
		cfg.Timezone = f.timezone
	}
	if f.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

// app is the set of triage services built from a Config, plus what has to
// be released when the command exits.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	services server.Services
	store    *store.Store
}

// newApp opens the store and wires the AI client, extractor and pipeline.
// logOut receives all logs; stdio servers must not log to stdout.
func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	logger := logging.New(logOut, cfg.Debug)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	metrics := provider.Metrics()

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	if cfg.AI.APIKey == "" {
		logger.Warn("no API key set (OPENROUTER_API_KEY or OPENAI_API_KEY); AI steps will fall back to defaults")
	}

	completer := ai.NewBreaker(ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:     cfg.AI.APIKey,
		BaseURL:    cfg.AI.BaseURL,
		MaxRetries: cfg.AI.MaxRetries,
		Timeout:    cfg.AI.Timeout,
		Metrics:    metrics,
		Logger:     logger,
	}), ai.BreakerConfig{Logger: logger})

	extractor := extract.NewExtractor(completer,
		extract.WithModel(cfg.AI.Model),
		extract.WithNormalizer(extract.NewDeadlineNormalizer(extract.WithLocation(loc))),
		extract.WithLogger(logger),
		extract.WithMetrics(metrics),
	)

	assistant := ai.NewAssistant(completer, cfg.AI.Model, logger)

	p := pipeline.New(extractor,
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		store:    st,
		services: server.Services{
			Store:     st,
			Profile:   profile,
			Pipeline:  p,
			Extractor: extractor,
			Assistant: assistant,
			Drafter:   assistant,
			Metrics:   metrics,
			Audit:     instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
			Logger:    logger,
			AIBreaker: completer,
		},
	}, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.store.Close(), a.provider.Shutdown(ctx))
}

// parseCommaSeparatedList splits s on commas and drops empty entries.
// An empty s yields nil.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
