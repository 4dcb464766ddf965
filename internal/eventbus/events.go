package eventbus

import "time"

// Helper constructors build the kind-specific data map for each DialogueEvent
// variant; NewEvent wraps such a map into an Event.

// NewEvent builds an Event of the given kind for turnNumber carrying data,
// stamped with the current wall-clock time.
func NewEvent(kind Kind, turnNumber int, data map[string]any) Event {
	return Event{Kind: kind, TurnNumber: turnNumber, Timestamp: time.Now(), Data: data}
}

// TurnStartedData builds the payload for a TURN_STARTED event.
func TurnStartedData(intent, state string) map[string]any {
	return map[string]any{"intent": intent, "state": state}
}

// SourceContributedData builds the payload for a SOURCE_CONTRIBUTED event.
func SourceContributedData(sourceName string, proposalsCount int, proposalsSummary []string, executionTimeMs float64) map[string]any {
	return map[string]any{
		"source_name":       sourceName,
		"proposals_count":   proposalsCount,
		"proposals_summary": proposalsSummary,
		"execution_time_ms": executionTimeMs,
	}
}

// ProposalValidatedData builds the payload for a PROPOSAL_VALIDATED event.
func ProposalValidatedData(validCount, errorCount, warningCount int, errors []string) map[string]any {
	return map[string]any{
		"valid_count":   validCount,
		"error_count":   errorCount,
		"warning_count": warningCount,
		"errors":        errors,
	}
}

// ConflictResolvedData builds the payload for a CONFLICT_RESOLVED event.
func ConflictResolvedData(winningAction string, winningTransition *string, rejectedCount int, mergeDecision string, resolutionTimeMs float64) map[string]any {
	return map[string]any{
		"winning_action":     winningAction,
		"winning_transition": winningTransition,
		"rejected_count":     rejectedCount,
		"merge_decision":     mergeDecision,
		"resolution_time_ms": resolutionTimeMs,
	}
}

// DecisionCommittedData builds the payload for a DECISION_COMMITTED event.
func DecisionCommittedData(action, nextState string, reasonCodes []string) map[string]any {
	return map[string]any{
		"action":       action,
		"next_state":   nextState,
		"reason_codes": reasonCodes,
	}
}

// StateTransitionedData builds the payload for a STATE_TRANSITIONED event.
func StateTransitionedData(fromState, toState, triggerReason string) map[string]any {
	return map[string]any{
		"from_state":     fromState,
		"to_state":       toState,
		"trigger_reason": triggerReason,
	}
}

// ErrorOccurredData builds the payload for an ERROR_OCCURRED event.
func ErrorOccurredData(errorType, errorMessage, component string) map[string]any {
	return map[string]any{
		"error_type":    errorType,
		"error_message": errorMessage,
		"component":     component,
	}
}
