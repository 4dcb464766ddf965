package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// stallExemptIntents are clear-progress signals that must never trigger a
// hard stall ejection even once max_turns_in_state is reached.
var stallExemptIntents = map[string]bool{
	"contact_provided": true, "demo_request": true, "callback_request": true,
	"payment_confirmation": true,
}

// StallGuard is the universal safety net forcing a state transition when the
// dialog is stuck in any state longer than its configured max_turns_in_state,
// with a softer pre-ejection nudge one turn earlier. It
// prefers returning to a saved detour state (handle_objection) over a
// generic fallback, to preserve conversation context.
type StallGuard struct {
	Base
}

// NewStallGuard constructs the source.
func NewStallGuard() *StallGuard {
	return &StallGuard{Base: NewBase("StallGuard")}
}

func (s *StallGuard) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	maxTurns := ctx.StateConfig.MaxTurnsInState
	if maxTurns <= 0 {
		return false
	}
	env := ctx.ContextEnvelope
	consecutive := 0
	if env != nil {
		consecutive = env.ConsecutiveSameState()
	}

	if consecutive >= maxTurns {
		return !stallExemptIntents[ctx.CurrentIntent]
	}

	softThreshold := maxTurns - 1
	if softThreshold < 3 {
		softThreshold = 3
	}
	if consecutive >= softThreshold {
		if env == nil {
			return false
		}
		return !env.IsProgressing() && !env.HasExtractedData()
	}
	return false
}

func (s *StallGuard) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	maxTurns := ctx.StateConfig.MaxTurnsInState
	consecutive := 0
	if ctx.ContextEnvelope != nil {
		consecutive = ctx.ContextEnvelope.ConsecutiveSameState()
	}

	fallback := s.fallbackState(ctx)

	priority := blackboard.PriorityNormal
	reason := "stall_soft_progression"
	actionName := "stall_guard_nudge"
	if consecutive >= maxTurns {
		priority = blackboard.PriorityHigh
		reason = "max_turns_in_state_exceeded"
		actionName = "stall_guard_eject"
	}

	bb.ProposeAction(blackboard.Proposal{
		Value: actionName, Priority: priority, Combinable: true,
		ReasonCode: reason, SourceName: s.Name(),
		Metadata: map[string]any{"from_state": ctx.State, "to_state": fallback},
	})
	bb.ProposeTransition(blackboard.Proposal{
		Value: fallback, Priority: priority,
		ReasonCode: reason, SourceName: s.Name(),
		Metadata: map[string]any{"from_state": ctx.State, "to_state": fallback},
	})
	return nil
}

// fallbackState resolves the eject target: the saved pre-objection state
// first, then soft_close if the state declares terminal states, then the
// state's configured max_turns_fallback, then "close".
func (s *StallGuard) fallbackState(ctx blackboard.ContextSnapshot) string {
	if ctx.State == "handle_objection" && ctx.HasStateBeforeObjection && ctx.StateBeforeObjection != "" {
		return ctx.StateBeforeObjection
	}
	if len(ctx.StateConfig.TerminalStates) > 0 {
		return "soft_close"
	}
	if ctx.StateConfig.MaxTurnsFallback != "" {
		return ctx.StateConfig.MaxTurnsFallback
	}
	return "close"
}
