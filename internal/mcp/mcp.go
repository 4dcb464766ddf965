// Package mcp implements a Model Context Protocol server exposing blackboard
// introspection for agent-assisted debugging of a running dialog session. It
// surfaces event history, per-turn resolution traces, and the registered
// knowledge-source table as MCP tools, reading from the eventbus, registry,
// and storage packages.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/dialogflow/internal/eventbus"
	"github.com/ashita-ai/dialogflow/internal/registry"
	"github.com/ashita-ai/dialogflow/internal/storage"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake so every connected agent knows the available tools without
// requiring per-project configuration.
const serverInstructions = `You have access to dialogflow's blackboard introspection tools for
debugging a running dialog orchestrator.

TOOLS:
- dialogflow_events: list recent turn-pipeline events (source contributions,
  conflict resolutions, state transitions), optionally filtered by kind.
- dialogflow_turn_trace: load the persisted decision + resolution trace for
  a dialog, most recent turn first.
- dialogflow_sources: list the knowledge sources registered in this process,
  in the priority order the orchestrator runs them.

Use dialogflow_events first to find the turn number you're investigating,
then dialogflow_turn_trace for the full resolution trace of that turn.`

// Server wraps the MCP server with read-only access to a running
// orchestrator's event bus, source registry, and turn-trace store. db may be
// nil when the host application runs without durable persistence; in that
// case dialogflow_turn_trace reports unavailable rather than erroring.
type Server struct {
	mcpServer *mcpserver.MCPServer
	bus       *eventbus.Bus
	reg       *registry.Registry
	db        *storage.DB
	logger    *slog.Logger
}

// New creates and configures an MCP server exposing blackboard introspection
// tools.
func New(bus *eventbus.Bus, reg *registry.Registry, db *storage.DB, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		bus:    bus,
		reg:    reg,
		db:     db,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"dialogflow",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}
