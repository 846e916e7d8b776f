package api

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/yskim/aihub/internal/notify"
)

// MCPSummarizer condenses text for the summarize tool.
type MCPSummarizer interface {
	Summarize(ctx context.Context, text string) string
}

// MCPDispatcher forwards notes to the configured destinations.
type MCPDispatcher interface {
	Dispatch(ctx context.Context, rec notify.Record)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Summarizer MCPSummarizer
	Dispatcher MCPDispatcher // optional; save_note errors when nil
}

// NewMCPServer creates an MCP server exposing the hub's tools to
// automation clients over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"aihub",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("aihub — summarize content and save notes to the connected workspaces."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("summarize",
			mcp.WithDescription("Summarize a piece of text with the hub's map-reduce summarizer."),
			mcp.WithString("text", mcp.Description("The text to summarize"), mcp.Required()),
		),
		mcpSummarize(deps),
	)

	s.AddTool(
		mcp.NewTool("save_note",
			mcp.WithDescription("Save a note to the connected workspaces (Notion, n8n, Slack)."),
			mcp.WithString("title", mcp.Description("Note title"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Note body"), mcp.Required()),
			mcp.WithString("source", mcp.Description("Origin tag (default: mcp)")),
		),
		mcpSaveNote(deps),
	)

	return s
}

func mcpSummarize(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		return mcpText(deps.Summarizer.Summarize(ctx, text)), nil
	}
}

func mcpSaveNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Dispatcher == nil {
			return mcpError("no note destinations configured"), nil
		}

		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		source := req.GetString("source", "mcp")

		deps.Dispatcher.Dispatch(ctx, notify.Record{
			Title:     title,
			Body:      content,
			SourceTag: source,
		})
		return mcpText(fmt.Sprintf("Saved note %q", title)), nil
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
