package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/pipeline"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/tasks"
)

func newTriageCmd() *cobra.Command {
	var (
		common      commonFlags
		users       string
		window      time.Duration
		maxMessages int64
		concurrency int
		export      bool
		taskList    string
	)

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Triage recent mail for the users in the profile",
		Long: `Fetch recent Gmail messages for every user in the triage profile (or the
users given with --users) and run each new email through the pipeline:

  1. Summarize and categorize the email
  2. Assign it to a smart thread by subject similarity
  3. Resolve its final priority from the AI suggestion and the sender rules
  4. Pre-filter and extract actionable tasks with normalized deadlines

Results are stored in SQLite, so emails already seen are skipped on the next
run. With --export, new tasks are pushed to Google Tasks.

The report is printed as JSON on stdout; logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := common.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("window") {
				cfg.Window = window
			}
			if cmd.Flags().Changed("max-messages") {
				cfg.MaxMessages = maxMessages
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if export {
				cfg.ExportTasks = true
			}
			if taskList != "" {
				cfg.TaskListTitle = taskList
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runTriage(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, parseCommaSeparatedList(users))
		},
	}

	common.register(cmd)
	cmd.Flags().StringVar(&users, "users", "", "Comma-separated user emails to triage (default: every user in the profile)")
	cmd.Flags().DurationVar(&window, "window", 0, "How far back to fetch mail. Can also use TRIAGE_WINDOW env var. Default: 24h")
	cmd.Flags().Int64Var(&maxMessages, "max-messages", 0, "Maximum messages fetched per user. Can also use TRIAGE_MAX_MESSAGES env var. Default: 100")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Users processed in parallel. Can also use TRIAGE_CONCURRENCY env var. Default: 4")
	cmd.Flags().BoolVar(&export, "export", false, "Export new tasks to Google Tasks. Can also use TRIAGE_EXPORT_TASKS env var.")
	cmd.Flags().StringVar(&taskList, "task-list", "", "Google Tasks list to export to. Can also use TRIAGE_TASK_LIST env var. Default: "+tasks.DefaultListTitle)

	return cmd
}

func runTriage(ctx context.Context, out, logOut io.Writer, cfg config.Config, users []string) error {
	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			a.logger.Error("shutdown failed", logging.Err(err))
		}
	}()

	if len(users) == 0 && len(a.services.Profile.Users) == 0 {
		return fmt.Errorf("no users to triage: add users to %s or pass --users", cfg.ProfilePath)
	}

	services := a.services
	if cfg.ExportTasks {
		services.TaskListTitle = cfg.TaskListTitle
		if services.TaskListTitle == "" {
			services.TaskListTitle = tasks.DefaultListTitle
		}
	}

	sc := server.NewServerContext(ctx, services)
	defer func() { _ = sc.Shutdown() }()

	runner, err := sc.NewRunner(pipeline.RunnerConfig{
		Window:      cfg.Window,
		MaxMessages: cfg.MaxMessages,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx, users)

	if err := writeJSON(out, report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("triage run interrupted: %w", runErr)
	}
	if failed := countFailedUsers(report); failed > 0 {
		return fmt.Errorf("triage failed for %d of %d users", failed, len(report.Users))
	}
	return nil
}

func countFailedUsers(report pipeline.Report) int {
	n := 0
	for _, u := range report.Users {
		if u.Error != "" {
			n++
		}
	}
	return n
}
