package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/engineeringwithtemi/aide/internal/lab"
	"github.com/engineeringwithtemi/aide/internal/storage"
)

// NewMCPServer creates an MCP server exposing the learning material to
// agent clients: browse workspaces and sources, inspect chapter
// structure, and see which labs can be generated.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"aide",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("aide — AI-assisted learning platform: workspaces of study material with generated labs."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_sources",
			mcp.WithDescription("List the content sources in a workspace with their type and title."),
			mcp.WithString("workspace_id", mcp.Description("Workspace to list"), mcp.Required()),
		),
		mcpListSources(deps),
	)

	s.AddTool(
		mcp.NewTool("source_overview",
			mcp.WithDescription("Describe a source: its chapter structure, reading position, and available lab actions."),
			mcp.WithString("source_id", mcp.Description("Source to describe"), mcp.Required()),
		),
		mcpSourceOverview(deps),
	)

	s.AddTool(
		mcp.NewTool("list_labs",
			mcp.WithDescription("List the labs generated from a source with their status."),
			mcp.WithString("source_id", mcp.Description("Source whose labs to list"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListLabs(deps),
	)

	s.AddTool(
		mcp.NewTool("list_lab_types",
			mcp.WithDescription("List the lab types the platform can generate."),
		),
		mcpListLabTypes(),
	)

	s.AddResource(
		mcp.NewResource(
			"aide://workspaces",
			"Workspaces",
			mcp.WithResourceDescription("All workspaces as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceWorkspaces(deps),
	)

	return s
}

func mcpListSources(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}

		sources, err := deps.Store.ListSources(ctx, workspaceID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list sources: %v", err)), nil
		}

		type sourceSummary struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			Title      string `json:"title"`
			HasContent bool   `json:"has_content"`
		}
		summaries := make([]sourceSummary, len(sources))
		for i, src := range sources {
			summaries[i] = sourceSummary{
				ID:         src.ID,
				Type:       src.Type,
				Title:      src.Title,
				HasContent: src.StoragePath != "",
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal sources: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSourceOverview(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sourceID, err := req.RequireString("source_id")
		if err != nil {
			return mcpError("source_id is required"), nil
		}

		row, err := deps.Store.GetSource(ctx, sourceID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get source: %v", err)), nil
		}
		rec, err := recordFromRow(row)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid source record: %v", err)), nil
		}
		src, err := deps.Sources.Hydrate(rec, deps.sourceDeps())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load source: %v", err)), nil
		}

		overview := src.ViewData()
		overview["id"] = row.ID
		overview["available_lab_types"] = src.AvailableLabTypes()

		b, err := json.Marshal(overview)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal overview: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListLabs(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sourceID, err := req.RequireString("source_id")
		if err != nil {
			return mcpError("source_id is required"), nil
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		labs, err := deps.Store.ListLabsBySource(ctx, sourceID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list labs: %v", err)), nil
		}
		if len(labs) > limit {
			labs = labs[:limit]
		}

		type labSummary struct {
			ID        string `json:"id"`
			Type      string `json:"type"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		summaries := make([]labSummary, len(labs))
		for i, l := range labs {
			summaries[i] = labSummary{
				ID:        l.ID,
				Type:      l.Type,
				Status:    l.Status,
				CreatedAt: l.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal labs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListLabTypes() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		type labType struct {
			Type        string `json:"type"`
			Label       string `json:"label"`
			Description string `json:"description"`
		}
		defs := lab.Definitions()
		out := make([]labType, len(defs))
		for i, d := range defs {
			out[i] = labType{Type: d.Type, Label: d.Label, Description: d.Description}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal lab types: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceWorkspaces(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		workspaces, err := deps.Store.ListWorkspaces(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list workspaces: %w", err)
		}
		if workspaces == nil {
			workspaces = []storage.Workspace{}
		}

		b, err := json.Marshal(workspaces)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal workspaces: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
