package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/dialogflow/internal/eventbus"
)

func (s *Server) registerTools() {
	// dialogflow_events — recent turn-pipeline events from the bus history ring.
	s.mcpServer.AddTool(
		mcplib.NewTool("dialogflow_events",
			mcplib.WithDescription(`List recent turn-pipeline events from the event bus's history ring.

Each event is one step of a turn's pipeline: TURN_STARTED, SOURCE_CONTRIBUTED,
PROPOSAL_VALIDATED, CONFLICT_RESOLVED, DECISION_COMMITTED, STATE_TRANSITIONED,
or ERROR_OCCURRED. Use this to see what happened recently before digging into
a specific turn with dialogflow_turn_trace.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("kind",
				mcplib.Description("Optional: filter to one event kind, e.g. \"CONFLICT_RESOLVED\". Omit for all kinds."),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of events to return, most recent last."),
				mcplib.Min(1),
				mcplib.Max(200),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleEvents,
	)

	// dialogflow_turn_trace — persisted decision + resolution trace for a dialog.
	s.mcpServer.AddTool(
		mcplib.NewTool("dialogflow_turn_trace",
			mcplib.WithDescription(`Load the persisted committed decision and resolution trace for a dialog,
most recent turn first.

WHEN TO USE: after dialogflow_events points at a turn number that looks
wrong, call this to see the full ResolvedDecision and the conflict
resolver's resolution_trace map for that dialog's recent turns.

Returns an empty result with a note if this server was started without
durable storage (standalone mode).`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("dialog_id",
				mcplib.Description("The dialog/session identifier to load traces for."),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of turns to return."),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleTurnTrace,
	)

	// dialogflow_sources — registered knowledge sources in priority order.
	s.mcpServer.AddTool(
		mcplib.NewTool("dialogflow_sources",
			mcplib.WithDescription(`List the knowledge sources registered in this process, in the priority
order the orchestrator runs them each turn.

Use this to check whether a source you expect to contribute is actually
registered and enabled before looking for its SOURCE_CONTRIBUTED events.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handleSources,
	)
}

func (s *Server) handleEvents(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 20)

	var kindFilter *eventbus.Kind
	if kindStr := request.GetString("kind", ""); kindStr != "" {
		k, ok := parseKind(kindStr)
		if !ok {
			return errorResult(fmt.Sprintf("unknown event kind %q", kindStr)), nil
		}
		kindFilter = &k
	}

	events := s.bus.GetHistory(kindFilter, limit)
	payload := make([]map[string]any, len(events))
	for i, e := range events {
		payload[i] = map[string]any{
			"kind":        e.Kind.String(),
			"turn_number": e.TurnNumber,
			"timestamp":   e.Timestamp,
			"data":        e.Data,
		}
	}

	resultData, err := json.MarshalIndent(map[string]any{"events": payload, "total": len(payload)}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal events: %v", err)), nil
	}
	return textResult(string(resultData)), nil
}

func (s *Server) handleTurnTrace(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.db == nil {
		return textResult(`{"turns":[],"note":"server started without durable storage (standalone mode)"}`), nil
	}

	dialogID := request.GetString("dialog_id", "")
	if dialogID == "" {
		return errorResult("dialog_id is required"), nil
	}
	limit := request.GetInt("limit", 10)

	traces, err := s.db.LoadTurnTraces(ctx, dialogID, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("load turn traces: %v", err)), nil
	}

	payload := make([]map[string]any, len(traces))
	for i, t := range traces {
		payload[i] = map[string]any{
			"turn_number":      t.TurnNumber,
			"decision":         json.RawMessage(t.Decision),
			"resolution_trace": json.RawMessage(t.ResolutionTrace),
			"event_ids":        t.EventIDs,
			"committed_at":     t.CommittedAt,
		}
	}

	resultData, err := json.MarshalIndent(map[string]any{"turns": payload, "total": len(payload)}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal turn traces: %v", err)), nil
	}
	return textResult(string(resultData)), nil
}

func (s *Server) handleSources(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	names := s.reg.ListRegistered()
	resultData, err := json.MarshalIndent(map[string]any{"sources": names, "total": len(names)}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal sources: %v", err)), nil
	}
	return textResult(string(resultData)), nil
}

func parseKind(s string) (eventbus.Kind, bool) {
	switch s {
	case "TURN_STARTED":
		return eventbus.TurnStarted, true
	case "SOURCE_CONTRIBUTED":
		return eventbus.SourceContributed, true
	case "PROPOSAL_VALIDATED":
		return eventbus.ProposalValidated, true
	case "CONFLICT_RESOLVED":
		return eventbus.ConflictResolved, true
	case "DECISION_COMMITTED":
		return eventbus.DecisionCommitted, true
	case "STATE_TRANSITIONED":
		return eventbus.StateTransitioned, true
	case "ERROR_OCCURRED":
		return eventbus.ErrorOccurred, true
	default:
		return 0, false
	}
}
