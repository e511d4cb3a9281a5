package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/server"
)

const (
	profileURI    = "triage://profile"
	userURIPrefix = "triage://users/"
	summarySuffix = "/summary"
	tasksSuffix   = "/tasks"
	mimeTypeJSON  = "application/json"
	mimeTypeText  = "text/plain"
)

// RegisterUserResources registers the triage profile and the per-user
// summary and task resources.
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	profileResource := mcp.NewResource(
		profileURI,
		"Triage Profile",
		mcp.WithResourceDescription("Configured users with their interests and sender rules"),
		mcp.WithMIMEType(mimeTypeJSON),
	)
	s.AddResource(profileResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleProfile(ctx, request, sc)
	})

	summaryTemplate := mcp.NewResourceTemplate(
		userURIPrefix+"{email}"+summarySuffix,
		"Latest Triage Summary",
		mcp.WithTemplateDescription("Overall summary of the user's most recent triage run"),
		mcp.WithTemplateMIMEType(mimeTypeText),
	)
	s.AddResourceTemplate(summaryTemplate, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSummary(ctx, request, sc)
	})

	tasksTemplate := mcp.NewResourceTemplate(
		userURIPrefix+"{email}"+tasksSuffix,
		"Pending Tasks",
		mcp.WithTemplateDescription("Tasks extracted for the user that were not exported yet"),
		mcp.WithTemplateMIMEType(mimeTypeJSON),
	)
	s.AddResourceTemplate(tasksTemplate, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleTasks(ctx, request, sc)
	})

	return nil
}

// userFromURI extracts the email from triage://users/{email}/<suffix>.
func userFromURI(uri, suffix string) (string, error) {
	if !strings.HasPrefix(uri, userURIPrefix) || !strings.HasSuffix(uri, suffix) {
		return "", fmt.Errorf("unexpected resource URI: %s", uri)
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(uri, userURIPrefix), suffix)
	email, err := url.PathUnescape(raw)
	if err != nil || email == "" || strings.Contains(email, "/") {
		return "", fmt.Errorf("invalid user in resource URI: %s", uri)
	}
	return email, nil
}

func handleProfile(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(sc.Profile(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{URI: request.Params.URI, MIMEType: mimeTypeJSON, Text: string(data)},
	}, nil
}

func handleSummary(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	user, err := userFromURI(request.Params.URI, summarySuffix)
	if err != nil {
		return nil, err
	}
	if sc.Store() == nil {
		return nil, fmt.Errorf("no triage database configured")
	}

	summary, err := sc.Store().LatestUserSummary(ctx, user)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{URI: request.Params.URI, MIMEType: mimeTypeText, Text: summary},
	}, nil
}

func handleTasks(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	user, err := userFromURI(request.Params.URI, tasksSuffix)
	if err != nil {
		return nil, err
	}
	if sc.Store() == nil {
		return nil, fmt.Errorf("no triage database configured")
	}

	pending, err := sc.Store().TasksForUser(ctx, user, true)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return textJSON(request.Params.URI, []any{})
	}
	return textJSON(request.Params.URI, pending)
}

func textJSON(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{URI: uri, MIMEType: mimeTypeJSON, Text: string(data)},
	}, nil
}
