package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxtriage/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for the MCP tools served by
"inboxtriage serve". Tools that are only registered with --yolo are marked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(out io.Writer, outputFile string) error {
	tools, err := listTools(false)
	if err != nil {
		return err
	}
	readOnlyTools, err := listTools(true)
	if err != nil {
		return err
	}

	writeOnly := make(map[string]bool)
	for _, t := range tools {
		writeOnly[t.Name] = true
	}
	for _, t := range readOnlyTools {
		delete(writeOnly, t.Name)
	}
	for i := range tools {
		if writeOnly[tools[i].Name] {
			tools[i].Description = strings.TrimSpace(tools[i].Description + " *Requires `--yolo`.*")
		}
	}

	markdown := generateToolsMarkdown(tools)
	if outputFile == "" {
		_, err := io.WriteString(out, markdown)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	return nil
}

// listTools registers every tool on a throwaway server. Registration does
// not touch the store or any Google account.
func listTools(readOnly bool) ([]mcp.Tool, error) {
	serverContext := server.NewServerContext(context.Background(), server.Services{})
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return nil, err
	}

	registered := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(registered))
	for _, st := range registered {
		tools = append(tools, st.Tool)
	}
	return tools, nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools available when running `inboxtriage serve`. Generated by `inboxtriage generate-docs`.\n\n")

	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		c := getCategoryFromToolName(tool.Name)
		byCategory[c] = append(byCategory[c], tool)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	sb.WriteString("## Table of Contents\n\n")
	for _, c := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", c, strings.ToLower(strings.ReplaceAll(c, " ", "-")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Accounts\n\n")
	sb.WriteString("Tools that reach Google take an optional `account` naming the stored token. ")
	sb.WriteString("Without it the account of the `user_email` profile entry is used, then `default`. ")
	sb.WriteString("Authorize accounts with `inboxtriage auth` or `google_get_auth_url` and `google_save_auth_code`.\n\n")

	sb.WriteString("## Read-Only Mode\n\n")
	sb.WriteString("Without `--yolo`, `triage_run` and `triage_export_tasks` are not registered and `triage_process_email` refuses `save`.\n\n")

	for _, c := range categories {
		group := byCategory[c]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })

		fmt.Fprintf(&sb, "## %s\n\n", c)
		for _, tool := range group {
			writeToolMarkdown(&sb, tool)
		}
	}

	return sb.String()
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "triage":
		return "Triage Tools"
	case "google":
		return "Google Account Tools"
	default:
		return "Other"
	}
}

func writeToolMarkdown(sb *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("**Arguments:**\n")
	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		required := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "required"
		}
		desc, _ := prop["description"].(string)
		if desc == "" {
			typ, _ := prop["type"].(string)
			if typ == "" {
				typ = "any"
			}
			desc = typ + " parameter"
		}
		fmt.Fprintf(sb, "- `%s` (%s): %s\n", name, required, desc)
	}
	sb.WriteString("\n")
}
