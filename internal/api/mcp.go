package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/turn"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Turns   *turn.Handler
	Version string
}

// NewMCPServer creates an MCP server exposing parley's chat modes as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"parley",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("parley: general Q&A and project planning chat with stored history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_general",
			mcp.WithDescription("Ask a general question. The answer is plain text and the turn is stored in the general history."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpTurn(deps, chat.ModeGeneral, "question"),
	)

	s.AddTool(
		mcp.NewTool("plan_project",
			mcp.WithDescription("Break a project request down into implementation steps and alternative approaches."),
			mcp.WithString("request", mcp.Description("The project to plan"), mcp.Required()),
		),
		mcpTurn(deps, chat.ModeProject, "request"),
	)

	s.AddTool(
		mcp.NewTool("load_history",
			mcp.WithDescription("Return the stored conversation for a mode as a JSON array of {role, content, created_at}."),
			mcp.WithString("mode", mcp.Description("general or project"), mcp.Required(), mcp.Enum("general", "project")),
			mcp.WithNumber("limit", mcp.Description("Only return the last N messages (default all)")),
		),
		mcpLoadHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"parley://modes",
			"Chat Modes",
			mcp.WithResourceDescription("Supported chat modes and their conversation tables"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceModes(),
	)

	return s
}

func mcpTurn(deps MCPDeps, mode chat.Mode, arg string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString(arg)
		if err != nil {
			return mcpError(arg + " is required"), nil
		}

		res, err := deps.Turns.Run(ctx, mode, chat.ChatRequest{
			Messages: []chat.Message{chat.UserMessage(text)},
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(res.Reply), nil
	}
}

func mcpLoadHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("mode")
		if err != nil {
			return mcpError("mode is required"), nil
		}
		mode, err := chat.ParseMode(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		entries, err := deps.Turns.History(ctx, mode)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load history: %v", err)), nil
		}
		if limit := req.GetInt("limit", 0); limit > 0 && len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceModes() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type modeInfo struct {
			Mode  chat.Mode `json:"mode"`
			Table string    `json:"table"`
		}

		var modes []modeInfo
		for _, m := range chat.Modes() {
			modes = append(modes, modeInfo{Mode: m, Table: m.Table()})
		}

		b, err := json.Marshal(modes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal modes: %w", err)
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
