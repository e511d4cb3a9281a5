package triage_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/priority"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/similarity"
	"github.com/teemow/inboxtriage/internal/threading"
	"github.com/teemow/inboxtriage/internal/tools/common"
	"github.com/teemow/inboxtriage/internal/triage"
)

// ThreadResponse is the result of triage_assign_thread.
type ThreadResponse struct {
	SmartThreadID  string  `json:"smart_thread_id"`
	Joined         bool    `json:"joined"`
	MatchedEmailID string  `json:"matched_email_id,omitempty"`
	Score          float64 `json:"score"`
	HistorySize    int     `json:"history_size"`
}

// PriorityResponse is the result of triage_resolve_priority.
type PriorityResponse struct {
	Priority  triage.Priority    `json:"priority"`
	Stage     priority.Stage     `json:"stage"`
	Rule      *triage.SenderRule `json:"rule,omitempty"`
	Interest  string             `json:"interest,omitempty"`
	AutoReply *triage.SenderRule `json:"auto_reply,omitempty"`
}

// PrefilterResponse is the result of triage_should_extract.
type PrefilterResponse struct {
	ShouldExtract bool           `json:"should_extract"`
	Reason        extract.Reason `json:"reason"`
}

func registerScoringTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	similarityTool := mcp.NewTool("triage_similarity",
		mcp.WithDescription("Score how similar two email subjects are, from 0 (unrelated) to 100 (same words). Emails join a thread above 85."),
		mcp.WithString("subject_a", mcp.Required(), mcp.Description("First subject")),
		mcp.WithString("subject_b", mcp.Required(), mcp.Description("Second subject")),
	)
	s.AddTool(similarityTool, common.InstrumentedToolHandler("triage_similarity", sc, handleSimilarity))

	assignTool := mcp.NewTool("triage_assign_thread",
		mcp.WithDescription("Assign an email subject to a smart thread. Without an explicit history the user's stored emails are used."),
		withUserEmail(),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject of the new email")),
		mcp.WithArray("history",
			mcp.Description("Earlier emails as objects with id, user_email, subject and smart_thread_id"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
	s.AddTool(assignTool, common.InstrumentedToolHandler("triage_assign_thread", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAssignThread(ctx, request, sc, threading.NewAssigner())
		}))

	priorityTool := mcp.NewTool("triage_resolve_priority",
		mcp.WithDescription("Resolve the final priority of an email from the user's sender rules and interests, falling back to the AI priority"),
		withUserEmail(),
		mcp.WithString("sender", mcp.Required(), mcp.Description("Sender, e.g. \"Jane <jane@example.com>\"")),
		mcp.WithString("subject", mcp.Description("Email subject")),
		mcp.WithString("body", mcp.Description("Email body")),
		withPriority("ai_priority", "Priority assigned by the model (default: Medium)"),
	)
	s.AddTool(priorityTool, common.InstrumentedToolHandler("triage_resolve_priority", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleResolvePriority(ctx, request, sc)
		}))

	prefilterTool := mcp.NewTool("triage_should_extract",
		mcp.WithDescription("Decide whether an email is worth sending to the task extractor"),
		mcp.WithString("subject", mcp.Description("Email subject")),
		mcp.WithString("body", mcp.Description("Email body")),
		mcp.WithString("category", mcp.Description("Email category, e.g. Work or Promotions")),
		withPriority("priority", "Current priority of the email"),
	)
	s.AddTool(prefilterTool, common.InstrumentedToolHandler("triage_should_extract", sc, handleShouldExtract))
}

func handleSimilarity(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	a, aok := args["subject_a"].(string)
	b, bok := args["subject_b"].(string)
	if !aok || !bok {
		return mcp.NewToolResultError("subject_a and subject_b are required"), nil
	}
	return jsonResult(map[string]float64{"score": similarity.Score(a, b)})
}

func handleAssignThread(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, assigner *threading.Assigner) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	user := common.StringArg(args, "user_email")
	if user == "" {
		return mcp.NewToolResultError("user_email is required"), nil
	}
	subject, ok := args["subject"].(string)
	if !ok {
		return mcp.NewToolResultError("subject is required"), nil
	}

	history, err := historyFor(ctx, sc, user, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	asg, err := assigner.Assign(user, subject, history)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to assign thread: %v", err)), nil
	}
	return jsonResult(ThreadResponse{
		SmartThreadID:  asg.ThreadID,
		Joined:         asg.Joined,
		MatchedEmailID: asg.MatchedEmailID,
		Score:          asg.Score,
		HistorySize:    len(history),
	})
}

// historyFor returns the explicit history argument, or the user's stored
// emails when none was given.
func historyFor(ctx context.Context, sc *server.ServerContext, user string, args map[string]interface{}) ([]triage.EmailRecord, error) {
	if _, ok := args["history"]; ok {
		var history []triage.EmailRecord
		if err := decodeArg(args, "history", &history); err != nil {
			return nil, fmt.Errorf("invalid history: %v", err)
		}
		for i := range history {
			if history[i].UserEmail == "" {
				history[i].UserEmail = user
			}
		}
		return history, nil
	}
	if sc.Store() == nil {
		return nil, nil
	}
	history, err := sc.Store().HistoryForUser(ctx, user, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %v", err)
	}
	return history, nil
}

func handleResolvePriority(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	user := common.StringArg(args, "user_email")
	sender := common.StringArg(args, "sender")
	if user == "" || sender == "" {
		return mcp.NewToolResultError("user_email and sender are required"), nil
	}
	aiPriority, err := priorityArg(args, "ai_priority")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if aiPriority == nil {
		aiPriority = triage.PriorityMedium.Ptr()
	}

	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)
	profile := sc.Profile().User(user)

	res := priority.Resolve(sender, subject, body, *aiPriority, profile.Preference(), profile.SenderRules)
	return jsonResult(PriorityResponse{
		Priority:  res.Priority,
		Stage:     res.Stage,
		Rule:      res.Rule,
		Interest:  res.Interest,
		AutoReply: priority.AutoReplyRule(sender, profile.SenderRules),
	})
}

func handleShouldExtract(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	p, err := priorityArg(args, "priority")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)
	category := common.StringArg(args, "category")

	passed, reason := extract.Prefilter(subject, body, category, p)
	return jsonResult(PrefilterResponse{ShouldExtract: passed, Reason: reason})
}
