package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxtriage/internal/server"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "jane@example.com",
			expected: []string{"jane@example.com"},
		},
		{
			name:     "multiple values",
			input:    "jane@example.com,bob@example.com",
			expected: []string{"jane@example.com", "bob@example.com"},
		},
		{
			name:     "values with spaces around comma",
			input:    "jane@example.com, bob@example.com",
			expected: []string{"jane@example.com", "bob@example.com"},
		},
		{
			name:     "trailing comma",
			input:    "jane@example.com,bob@example.com,",
			expected: []string{"jane@example.com", "bob@example.com"},
		},
		{
			name:     "multiple consecutive commas",
			input:    "jane@example.com,,bob@example.com",
			expected: []string{"jane@example.com", "bob@example.com"},
		},
		{
			name:     "only commas and spaces",
			input:    ",  , , ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCommaSeparatedList(tt.input)

			// Handle nil vs empty slice comparison
			if tt.expected == nil {
				if result != nil {
					t.Errorf("parseCommaSeparatedList(%q) = %v, want nil", tt.input, result)
				}
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("parseCommaSeparatedList(%q) = %v (len %d), want %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
				return
			}

			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCommaSeparatedList(%q)[%d] = %q, want %q",
						tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}

func TestRegisterAllTools(t *testing.T) {
	writeTools := []string{"triage_run", "triage_export_tasks"}
	readTools := []string{
		"triage_similarity",
		"triage_assign_thread",
		"triage_resolve_priority",
		"triage_should_extract",
		"triage_extract_tasks",
		"triage_process_email",
		"triage_get_emails",
		"triage_list_tasks",
		"triage_latest_summary",
		"triage_list_threads",
		"triage_draft_reply",
		"google_get_auth_url",
		"google_save_auth_code",
	}

	for _, readOnly := range []bool{true, false} {
		sc := server.NewServerContext(context.Background(), server.Services{})
		mcpSrv := newMCPServer()
		if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
			t.Fatalf("registerAllTools(readOnly=%v) error = %v", readOnly, err)
		}

		tools := mcpSrv.ListTools()
		for _, name := range readTools {
			if _, ok := tools[name]; !ok {
				t.Errorf("readOnly=%v: tool %s not registered", readOnly, name)
			}
		}
		for _, name := range writeTools {
			_, ok := tools[name]
			if ok == readOnly {
				t.Errorf("readOnly=%v: tool %s registered = %v", readOnly, name, ok)
			}
		}
	}
}

func TestRunServe_UnsupportedTransport(t *testing.T) {
	err := runServe(context.Background(), serveOptions{transport: "sse"})
	if err == nil || !strings.Contains(err.Error(), "unsupported transport") {
		t.Errorf("runServe() error = %v, want unsupported transport", err)
	}
}

func TestStartAndWait(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		err := startAndWait(func(ready chan<- struct{}) error {
			close(ready)
			<-release
			return nil
		})
		if err != nil {
			t.Errorf("startAndWait() error = %v", err)
		}
	})

	t.Run("fails", func(t *testing.T) {
		want := errors.New("address in use")
		err := startAndWait(func(chan<- struct{}) error { return want })
		if !errors.Is(err, want) {
			t.Errorf("startAndWait() error = %v, want %v", err, want)
		}
	})

	t.Run("stops early", func(t *testing.T) {
		err := startAndWait(func(chan<- struct{}) error { return nil })
		if err == nil {
			t.Error("startAndWait() expected error when start returns before ready")
		}
	})
}

func TestGetCategoryFromToolName(t *testing.T) {
	tests := map[string]string{
		"triage_similarity":   "Triage Tools",
		"google_get_auth_url": "Google Account Tools",
		"calendar_list":       "Other",
	}
	for name, want := range tests {
		if got := getCategoryFromToolName(name); got != want {
			t.Errorf("getCategoryFromToolName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestGenerateToolsMarkdown(t *testing.T) {
	tools := []mcp.Tool{
		mcp.NewTool("triage_similarity",
			mcp.WithDescription("Score two subjects"),
			mcp.WithString("subject_a", mcp.Required(), mcp.Description("First subject")),
			mcp.WithString("subject_b", mcp.Description("Second subject")),
		),
		mcp.NewTool("google_get_auth_url", mcp.WithDescription("Get the OAuth URL")),
	}

	md := generateToolsMarkdown(tools)
	for _, want := range []string{
		"# MCP Tools Reference",
		"## Triage Tools",
		"## Google Account Tools",
		"### triage_similarity",
		"- `subject_a` (required): First subject",
		"- `subject_b` (optional): Second subject",
		"## Read-Only Mode",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Index(md, "## Google Account Tools") > strings.Index(md, "## Triage Tools") {
		t.Error("categories are not sorted")
	}
}

func TestRunGenerateDocs_MarksWriteTools(t *testing.T) {
	var buf bytes.Buffer
	if err := runGenerateDocs(&buf, ""); err != nil {
		t.Fatalf("runGenerateDocs() error = %v", err)
	}
	md := buf.String()

	section := func(name string) string {
		start := strings.Index(md, "### "+name+"\n")
		if start < 0 {
			t.Fatalf("markdown has no section for %s", name)
		}
		rest := md[start+4:]
		if end := strings.Index(rest, "\n### "); end >= 0 {
			rest = rest[:end]
		}
		return rest
	}

	if !strings.Contains(section("triage_run"), "Requires `--yolo`") {
		t.Error("triage_run is not marked as write-only")
	}
	if strings.Contains(section("triage_similarity"), "Requires `--yolo`") {
		t.Error("triage_similarity is marked as write-only")
	}
}

func TestStartAndWait_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the startup timeout")
	}
	block := make(chan struct{})
	defer close(block)
	start := time.Now()
	err := startAndWait(func(chan<- struct{}) error {
		<-block
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("startAndWait() error = %v, want timeout", err)
	}
	if time.Since(start) < 5*time.Second {
		t.Error("startAndWait() returned before the timeout")
	}
}
