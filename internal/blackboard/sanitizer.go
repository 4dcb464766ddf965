package blackboard

// InvalidNextStateReason is the reason code appended when the sanitizer
// rewrites an out-of-range transition target.
const InvalidNextStateReason = "invalid_next_state_sanitized"

// SanitizedTransitionResult is the pure outcome of sanitizing a transition
// target against the known state set.
type SanitizedTransitionResult struct {
	RequestedState  string
	EffectiveState  string
	IsValid         bool
	Sanitized       bool
	ReasonCode      string
	Diagnostic      map[string]any
}

// DecisionSanitizer is a pure, side-effect-free validator of transition
// targets. Callers apply EffectiveState themselves.
type DecisionSanitizer struct{}

// NewDecisionSanitizer constructs a sanitizer. It carries no state.
func NewDecisionSanitizer() *DecisionSanitizer { return &DecisionSanitizer{} }

// SanitizeTarget validates requestedState against validStates (nil means
// "pass everything through") and currentState as the fail-safe target.
func (DecisionSanitizer) SanitizeTarget(requestedState, currentState string, validStates map[string]bool, source string) SanitizedTransitionResult {
	if requestedState == "" {
		return SanitizedTransitionResult{
			RequestedState: requestedState,
			EffectiveState: currentState,
			IsValid:        true,
			Diagnostic: map[string]any{
				"requested_state": requestedState,
				"effective_state": currentState,
				"source":          source,
			},
		}
	}

	if validStates == nil {
		return SanitizedTransitionResult{
			RequestedState: requestedState,
			EffectiveState: requestedState,
			IsValid:        true,
			Diagnostic: map[string]any{
				"requested_state": requestedState,
				"effective_state": requestedState,
				"source":          source,
			},
		}
	}

	isValid := validStates[requestedState]
	effective := requestedState
	var reason string
	if !isValid {
		effective = currentState
		reason = InvalidNextStateReason
	}

	return SanitizedTransitionResult{
		RequestedState: requestedState,
		EffectiveState: effective,
		IsValid:        isValid,
		Sanitized:      !isValid,
		ReasonCode:     reason,
		Diagnostic: map[string]any{
			"requested_state": requestedState,
			"effective_state": effective,
			"source":          source,
			"sanitized_reason": reason,
		},
	}
}

// SanitizeDecision sanitizes decision.NextState without mutating it.
func (s DecisionSanitizer) SanitizeDecision(decision ResolvedDecision, currentState string, validStates map[string]bool, source string) SanitizedTransitionResult {
	return s.SanitizeTarget(decision.NextState, currentState, validStates, source)
}
