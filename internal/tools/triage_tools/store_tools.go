package triage_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/pipeline"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/tasks"
	"github.com/teemow/inboxtriage/internal/tools/batch"
	"github.com/teemow/inboxtriage/internal/tools/common"
	"github.com/teemow/inboxtriage/internal/triage"
)

func registerStoreTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	getEmailsTool := mcp.NewTool("triage_get_emails",
		mcp.WithDescription("Get stored emails with their smart thread, category and priority"),
		mcp.WithString("email_ids",
			mcp.Required(),
			mcp.Description("A single email ID or a JSON array of IDs"),
		),
	)
	s.AddTool(getEmailsTool, common.InstrumentedToolHandler("triage_get_emails", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEmails(ctx, request, sc)
		}))

	listTasksTool := mcp.NewTool("triage_list_tasks",
		mcp.WithDescription("List the tasks extracted for a user"),
		withUserEmail(),
		mcp.WithBoolean("pending_only", mcp.Description("Only tasks not yet exported to Google Tasks (default: false)")),
	)
	s.AddTool(listTasksTool, common.InstrumentedToolHandler("triage_list_tasks", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTasks(ctx, request, sc)
		}))

	threadsTool := mcp.NewTool("triage_list_threads",
		mcp.WithDescription("List a user's stored emails grouped by smart thread, oldest thread first"),
		withUserEmail(),
	)
	s.AddTool(threadsTool, common.InstrumentedToolHandler("triage_list_threads", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListThreads(ctx, request, sc)
		}))

	summaryTool := mcp.NewTool("triage_latest_summary",
		mcp.WithDescription("Get the overall summary of the user's most recent triage run"),
		withUserEmail(),
	)
	s.AddTool(summaryTool, common.InstrumentedToolHandler("triage_latest_summary", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleLatestSummary(ctx, request, sc)
		}))

	if readOnly {
		return
	}

	runTool := mcp.NewTool("triage_run",
		mcp.WithDescription("Fetch recent Gmail messages for the given users (default: all configured users), triage and store them"),
		mcp.WithString("users", mcp.Description("A single user email or a JSON array of user emails")),
		mcp.WithString("window", mcp.Description("How far back to fetch, e.g. 24h (default: 24h)")),
		mcp.WithNumber("max_messages", mcp.Description("Maximum messages per user (default: 100)")),
	)
	s.AddTool(runTool, common.InstrumentedToolHandlerWithService("triage_run", instrumentation.ServiceGmail, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRun(ctx, request, sc)
		}))

	exportTool := mcp.NewTool("triage_export_tasks",
		mcp.WithDescription("Export a user's pending tasks to Google Tasks"),
		withUserEmail(),
		mcp.WithString("task_list", mcp.Description("Title of the task list (default: "+tasks.DefaultListTitle+")")),
		mcp.WithString("account", mcp.Description("Google account name (default: the user's configured account)")),
	)
	s.AddTool(exportTool, common.InstrumentedToolHandlerWithService("triage_export_tasks", instrumentation.ServiceTasks, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExportTasks(ctx, request, sc)
		}))
}

func handleGetEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st := sc.Store()
	if st == nil {
		return mcp.NewToolResultError("no triage database configured"), nil
	}
	ids, err := batch.ParseStringOrArray(request.GetArguments()["email_ids"], "email_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(ids, func(id string) (any, error) {
		return st.GetEmail(ctx, id)
	})
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleListTasks(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st := sc.Store()
	if st == nil {
		return mcp.NewToolResultError("no triage database configured"), nil
	}
	args := request.GetArguments()
	user := common.StringArg(args, "user_email")
	if user == "" {
		return mcp.NewToolResultError("user_email is required"), nil
	}

	stored, err := st.TasksForUser(ctx, user, common.BoolArg(args, "pending_only", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
	}
	if stored == nil {
		return jsonResult([]any{})
	}
	return jsonResult(stored)
}

// ThreadEmail is the per-email view returned by triage_list_threads.
type ThreadEmail struct {
	EmailID    string           `json:"email_id"`
	Subject    string           `json:"subject"`
	Summary    string           `json:"summary,omitempty"`
	Priority   *triage.Priority `json:"priority,omitempty"`
	Category   string           `json:"category,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
}

// ThreadView is one smart thread as returned by triage_list_threads.
type ThreadView struct {
	SmartThreadID string        `json:"smart_thread_id"`
	Emails        []ThreadEmail `json:"emails"`
}

func handleListThreads(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st := sc.Store()
	if st == nil {
		return mcp.NewToolResultError("no triage database configured"), nil
	}
	user := common.StringArg(request.GetArguments(), "user_email")
	if user == "" {
		return mcp.NewToolResultError("user_email is required"), nil
	}

	groups, err := st.ThreadsForUser(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list threads: %v", err)), nil
	}

	views := make([]ThreadView, 0, len(groups))
	for _, g := range groups {
		v := ThreadView{SmartThreadID: g.SmartThreadID, Emails: make([]ThreadEmail, 0, len(g.Emails))}
		for _, e := range g.Emails {
			v.Emails = append(v.Emails, ThreadEmail{
				EmailID:    e.ID,
				Subject:    e.Subject,
				Summary:    e.Summary,
				Priority:   e.Priority,
				Category:   e.Category,
				ReceivedAt: e.ReceivedAt,
			})
		}
		views = append(views, v)
	}
	return jsonResult(map[string]any{"smart_threads": views})
}

func handleLatestSummary(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st := sc.Store()
	if st == nil {
		return mcp.NewToolResultError("no triage database configured"), nil
	}
	user := common.StringArg(request.GetArguments(), "user_email")
	if user == "" {
		return mcp.NewToolResultError("user_email is required"), nil
	}

	summary, err := st.LatestUserSummary(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load summary: %v", err)), nil
	}
	if summary == "" {
		return mcp.NewToolResultText("No triage run recorded for this user yet."), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func handleRun(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var users []string
	if raw, ok := args["users"]; ok && raw != "" {
		var err error
		if users, err = batch.ParseStringOrArray(raw, "users"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	cfg := pipeline.RunnerConfig{}
	if raw := common.StringArg(args, "window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			return mcp.NewToolResultError("window must be a positive duration such as 24h"), nil
		}
		cfg.Window = window
	}
	if n, ok := args["max_messages"].(float64); ok && n > 0 {
		cfg.MaxMessages = int64(n)
	}

	runner, err := sc.NewRunner(cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start run: %v", err)), nil
	}
	report, err := runner.Run(ctx, users)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Run interrupted: %v", err)), nil
	}
	return jsonResult(report)
}

func handleExportTasks(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st := sc.Store()
	if st == nil {
		return mcp.NewToolResultError("no triage database configured"), nil
	}
	args := request.GetArguments()
	user := common.StringArg(args, "user_email")
	if user == "" {
		return mcp.NewToolResultError("user_email is required"), nil
	}

	client, err := sc.TasksClientForAccount(common.GetAccountFromArgs(sc.Profile(), args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	title := common.StringArg(args, "task_list")
	if title == "" {
		title = sc.Services().TaskListTitle
	}
	exporter := tasks.NewExporter(client, st, title, sc.Logger())
	res, err := exporter.Export(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to export tasks: %v", err)), nil
	}
	return jsonResult(res)
}
