package triage_tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/triage"
)

// RegisterTriageTools registers all triage tools with the MCP server. In
// read-only mode tools that write to the store or to Google are left out.
func RegisterTriageTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if sc == nil {
		return fmt.Errorf("server context is required")
	}

	registerScoringTools(s, sc)
	registerExtractionTools(s, sc, readOnly)
	registerStoreTools(s, sc, readOnly)
	registerReplyTools(s, sc)
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// decodeArg converts a structured argument into v by round-tripping it
// through JSON.
func decodeArg(args map[string]interface{}, name string, v any) error {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		return json.Unmarshal([]byte(s), v)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// priorityArg parses an optional priority argument. An empty value yields
// nil.
func priorityArg(args map[string]interface{}, name string) (*triage.Priority, error) {
	raw, _ := args[name].(string)
	if raw == "" {
		return nil, nil
	}
	p, ok := triage.ParsePriority(raw)
	if !ok {
		return nil, fmt.Errorf("%s must be High, Medium or Low", name)
	}
	return &p, nil
}

func withUserEmail() mcp.ToolOption {
	return mcp.WithString("user_email",
		mcp.Required(),
		mcp.Description("Mailbox owner the email belongs to"),
	)
}

func withPriority(name, desc string) mcp.ToolOption {
	return mcp.WithString(name,
		mcp.Description(desc),
		mcp.Enum(string(triage.PriorityHigh), string(triage.PriorityMedium), string(triage.PriorityLow)),
	)
}
