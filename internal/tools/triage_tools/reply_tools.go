package triage_tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/ai"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/tools/common"
)

// DraftReplyResponse is the result of triage_draft_reply. The draft is
// returned to the caller only; nothing is sent or stored.
type DraftReplyResponse struct {
	EmailID string `json:"email_id,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Tone    string `json:"tone"`

	// Error is set when the model failed and Body holds the fallback text.
	Error string `json:"error,omitempty"`
}

func registerReplyTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	draftTool := mcp.NewTool("triage_draft_reply",
		mcp.WithDescription("Draft a reply to an email in the requested tone. Pass email_id for a stored email, or subject, body and sender. The draft is not sent."),
		mcp.WithString("user_email", mcp.Description("Mailbox owner; required with email_id")),
		mcp.WithString("email_id", mcp.Description("ID of a stored email to answer")),
		mcp.WithString("subject", mcp.Description("Subject of the email to answer")),
		mcp.WithString("body", mcp.Description("Body of the email to answer")),
		mcp.WithString("sender", mcp.Description("Sender of the email to answer")),
		mcp.WithString("category", mcp.Description("Category of the email, e.g. Work")),
		mcp.WithString("tone", mcp.Description("Tone of the reply, e.g. formal or friendly (default: "+ai.DefaultTone+")")),
	)
	s.AddTool(draftTool, common.InstrumentedToolHandler("triage_draft_reply", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDraftReply(ctx, request, sc)
		}))
}

func handleDraftReply(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	drafter := sc.Services().Drafter
	if drafter == nil {
		return mcp.NewToolResultError("reply drafting is not configured"), nil
	}

	args := request.GetArguments()
	emailID := common.StringArg(args, "email_id")
	subject := common.StringArg(args, "subject")
	body := common.StringArg(args, "body")
	sender := common.StringArg(args, "sender")
	category := common.StringArg(args, "category")
	tone := common.StringArg(args, "tone")
	if tone == "" {
		tone = ai.DefaultTone
	}

	if emailID != "" {
		st := sc.Store()
		if st == nil {
			return mcp.NewToolResultError("no triage database configured"), nil
		}
		user := common.StringArg(args, "user_email")
		if user == "" {
			return mcp.NewToolResultError("user_email is required with email_id"), nil
		}
		e, err := st.GetEmail(ctx, emailID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !strings.EqualFold(e.UserEmail, user)) {
			return mcp.NewToolResultError(fmt.Sprintf("email %s not found", emailID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		subject, body, sender, category = e.Subject, e.Body, e.Sender, e.Category
	}

	if strings.TrimSpace(subject) == "" && strings.TrimSpace(body) == "" {
		return mcp.NewToolResultError("email_id, or subject and body, are required"), nil
	}

	reply, err := drafter.DraftReply(ctx, subject, body, sender, category, tone)
	resp := DraftReplyResponse{
		EmailID: emailID,
		Subject: reply.Subject,
		Body:    reply.Body,
		Tone:    tone,
	}
	if err != nil {
		sc.Logger().Warn("reply draft fell back", logging.Err(err))
		resp.Error = ai.Outcome(err)
	}
	return jsonResult(resp)
}
