// Package mcpserver exposes the conversation service as Model Context
// Protocol tools, so MCP clients can talk to the personas over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/persona"
)

// Server wraps an MCP server bound to a conversation service.
type Server struct {
	conv   *conversation.Service
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New builds the server and registers its tools.
func New(conv *conversation.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		conv:   conv,
		logger: logger,
		mcp: server.NewMCPServer("mpdchat", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Send a message to a persona and get its reply. Each (thread_id, persona_id) pair keeps its own history."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message.")),
		mcp.WithString("thread_id", mcp.Description("Conversation id. A new one is generated when empty.")),
		mcp.WithString("persona_id", mcp.Enum(persona.IDs()...), mcp.Description("Persona to talk to. Defaults to the configured persona.")),
		mcp.WithBoolean("new_thread", mcp.Description("Start the thread over, ignoring its stored history.")),
	), s.handleChat)

	s.mcp.AddTool(mcp.NewTool("list_personas",
		mcp.WithDescription("List the available personas."),
	), s.handleListPersonas)

	s.mcp.AddTool(mcp.NewTool("get_thread",
		mcp.WithDescription("Return the stored state of a conversation."),
		mcp.WithString("thread_id", mcp.Required()),
		mcp.WithString("persona_id", mcp.Required(), mcp.Enum(persona.IDs()...)),
	), s.handleGetThread)

	s.mcp.AddTool(mcp.NewTool("reset_thread",
		mcp.WithDescription("Delete the stored state of a conversation."),
		mcp.WithString("thread_id", mcp.Required()),
		mcp.WithString("persona_id", mcp.Required(), mcp.Enum(persona.IDs()...)),
	), s.handleResetThread)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves newline-delimited JSON-RPC on in and out until ctx
// ends or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.conv.HandleTurn(ctx, conversation.TurnRequest{
		Message:   conversation.Text(msg),
		ThreadID:  req.GetString("thread_id", ""),
		PersonaID: req.GetString("persona_id", ""),
		NewThread: req.GetBool("new_thread", false),
	})
	if err != nil {
		s.logger.Warn("mcp chat failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleListPersonas(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"default":  s.conv.DefaultPersonaID(),
		"personas": s.conv.Personas(),
	})
}

func (s *Server) handleGetThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	thread, personaID, errRes := threadArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	snap, err := s.conv.Thread(ctx, thread, personaID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func (s *Server) handleResetThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	thread, personaID, errRes := threadArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	n, err := s.conv.ResetThread(ctx, thread, personaID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]int{"deleted": n})
}

func threadArgs(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	thread, err := req.RequireString("thread_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	personaID, err := req.RequireString("persona_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return thread, personaID, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
