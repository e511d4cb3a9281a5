package triage_tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/pipeline"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/tools/common"
	"github.com/teemow/inboxtriage/internal/triage"
)

// ExtractResponse is the result of triage_extract_tasks.
type ExtractResponse struct {
	HasTasks bool                   `json:"has_tasks"`
	Tasks    []triage.ExtractedTask `json:"tasks"`
	Error    string                 `json:"error,omitempty"`
}

// ProcessResponse is the result of triage_process_email.
type ProcessResponse struct {
	triage.Decision
	Saved bool `json:"saved"`
}

func registerExtractionTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	extractTool := mcp.NewTool("triage_extract_tasks",
		mcp.WithDescription("Extract actionable tasks and their deadlines from an email. Deadlines are normalized to absolute times."),
		mcp.WithString("email_id", mcp.Description("ID of the email the tasks come from")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Email subject")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Email body")),
	)
	s.AddTool(extractTool, common.InstrumentedToolHandler("triage_extract_tasks", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExtractTasks(ctx, request, sc)
		}))

	processTool := mcp.NewTool("triage_process_email",
		mcp.WithDescription("Run the full triage pipeline on one email: smart thread, final priority and tasks"),
		withUserEmail(),
		mcp.WithString("email_id", mcp.Required(), mcp.Description("Gmail message ID")),
		mcp.WithString("sender", mcp.Required(), mcp.Description("Sender of the email")),
		mcp.WithString("subject", mcp.Description("Email subject")),
		mcp.WithString("body", mcp.Description("Email body")),
		mcp.WithString("category", mcp.Description("Email category, e.g. Work or Promotions")),
		withPriority("ai_priority", "Priority assigned by the model (default: Medium)"),
		mcp.WithString("received_at", mcp.Description("RFC 3339 time the email was received (default: now)")),
		mcp.WithBoolean("save", mcp.Description("Store the email and its tasks (default: false)")),
	)
	s.AddTool(processTool, common.InstrumentedToolHandler("triage_process_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleProcessEmail(ctx, request, sc, readOnly)
		}))
}

func handleExtractTasks(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	extractor := sc.Extractor()
	if extractor == nil {
		return mcp.NewToolResultError("task extraction is not configured; set OPENROUTER_API_KEY"), nil
	}

	args := request.GetArguments()
	subject, sok := args["subject"].(string)
	body, bok := args["body"].(string)
	if !sok || !bok {
		return mcp.NewToolResultError("subject and body are required"), nil
	}

	res, err := extractor.Extract(ctx, common.StringArg(args, "email_id"), subject, body)
	resp := ExtractResponse{HasTasks: res.HasTasks, Tasks: res.Tasks}
	switch {
	case err == nil:
	case extract.IsDegraded(err):
		resp = ExtractResponse{Tasks: []triage.ExtractedTask{}, Error: string(extract.KindOf(err))}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to extract tasks: %v", err)), nil
	}
	if resp.Tasks == nil {
		resp.Tasks = []triage.ExtractedTask{}
	}
	return jsonResult(resp)
}

func handleProcessEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, readOnly bool) (*mcp.CallToolResult, error) {
	p := sc.Pipeline()
	if p == nil {
		return mcp.NewToolResultError("triage pipeline is not configured"), nil
	}

	args := request.GetArguments()
	email, err := emailFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	aiPriority, err := priorityArg(args, "ai_priority")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if aiPriority == nil {
		aiPriority = triage.PriorityMedium.Ptr()
	}
	email.Priority = aiPriority

	save := common.BoolArg(args, "save", false)
	if save && readOnly {
		return mcp.NewToolResultError("save is not available in read-only mode"), nil
	}
	st := sc.Store()
	if save && st == nil {
		return mcp.NewToolResultError("save requires a triage database"), nil
	}

	in := pipeline.Input{Email: email, AIPriority: *aiPriority}
	profile := sc.Profile().User(email.UserEmail)
	in.Preference = profile.Preference()
	in.Rules = profile.SenderRules

	if st != nil {
		if in.History, err = st.HistoryForUser(ctx, email.UserEmail, 0); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to load history: %v", err)), nil
		}
		if in.TasksStored, err = st.HasTasks(ctx, email.ID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to look up tasks: %v", err)), nil
		}
	}

	d, err := p.ProcessEmail(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := ProcessResponse{Decision: d}
	if save {
		email.SmartThreadID = d.SmartThreadID
		email.Priority = d.Priority.Ptr()
		if err := st.SaveEmail(ctx, email); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := st.SaveTasks(ctx, email.UserEmail, d.Tasks); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp.Saved = true
	}
	return jsonResult(resp)
}

func emailFromArgs(args map[string]interface{}) (triage.EmailRecord, error) {
	e := triage.EmailRecord{
		ID:        common.StringArg(args, "email_id"),
		UserEmail: common.StringArg(args, "user_email"),
		Sender:    common.StringArg(args, "sender"),
		Category:  common.StringArg(args, "category"),
	}
	e.Subject, _ = args["subject"].(string)
	e.Body, _ = args["body"].(string)
	if e.ID == "" || e.UserEmail == "" || e.Sender == "" {
		return e, errors.New("user_email, email_id and sender are required")
	}

	e.ReceivedAt = time.Now()
	if raw := common.StringArg(args, "received_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return e, fmt.Errorf("received_at must be RFC 3339: %v", err)
		}
		e.ReceivedAt = t
	}
	return e, nil
}
