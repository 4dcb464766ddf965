package sources

import (
	"context"
	"strings"

	"github.com/ashita-ai/dialogflow/internal/blackboard"
)

// AutonomousDecisionRequest is the prompt context handed to an AutonomousLLM.
type AutonomousDecisionRequest struct {
	State            string
	Phase            string
	Goal             string
	Intent           string
	UserMessage      string
	CollectedData    map[string]any
	AvailableStates  []string
	TurnInState      int
	MaxTurns         int
	TerminalStates   []string
}

// AutonomousDecisionResult is the LLM's structured decision.
type AutonomousDecisionResult struct {
	NextState       string
	Action          string
	Reasoning       string
	ShouldTransition bool
}

// AutonomousLLM is the host-supplied structured-decision backend for the
// autonomous flow. A nil AutonomousLLM disables the source.
type AutonomousLLM interface {
	Decide(ctx context.Context, req AutonomousDecisionRequest) (AutonomousDecisionResult, error)
}

type autonomousRecord struct {
	state            string
	intent           string
	shouldTransition bool
	nextState        string
}

// AutonomousDecision is the LLM-driven transition source for the autonomous
// flow variant: gated on the autonomous_flow tenant feature flag and on the
// current state being an autonomous state (StateConfig.Autonomous set and an
// "autonomous_" name prefix; no flow name is checked), it asks the LLM whether to progress
// to the next sales phase, with a hard stay-streak override that bypasses
// the LLM once the configured phase_exhaust_threshold is reached.
type AutonomousDecision struct {
	Base
	llm     AutonomousLLM
	history []autonomousRecord
}

// NewAutonomousDecision constructs the source. A nil llm makes the source
// permanently inactive.
func NewAutonomousDecision(llm AutonomousLLM) *AutonomousDecision {
	return &AutonomousDecision{Base: NewBase("AutonomousDecision"), llm: llm}
}

func (s *AutonomousDecision) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() || s.llm == nil {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	if !ctx.IsTenantFeatureEnabled("autonomous_flow") {
		return false
	}
	if !ctx.StateConfig.Autonomous {
		return false
	}
	return strings.HasPrefix(ctx.State, "autonomous_")
}

func (s *AutonomousDecision) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}
	state := ctx.State

	turnInState := 0
	if ctx.ContextEnvelope != nil {
		turnInState = ctx.ContextEnvelope.ConsecutiveSameState()
	}
	maxTurns := ctx.StateConfig.MaxTurnsInState
	if maxTurns <= 0 {
		maxTurns = 6
	}
	threshold := ctx.StateConfig.PhaseExhaustThreshold
	if threshold <= 0 {
		threshold = 3
	}

	if target, overrideType, ok := s.hardOverride(ctx, state, threshold); ok {
		s.history = append(s.history, autonomousRecord{state: state, intent: ctx.CurrentIntent, shouldTransition: true, nextState: target})
		bb.ProposeAction(blackboard.Proposal{
			Value: "autonomous_respond", Priority: blackboard.PriorityHigh, Combinable: true,
			ReasonCode: "autonomous_hard_override_" + overrideType, SourceName: s.Name(),
		})
		bb.ProposeTransition(blackboard.Proposal{
			Value: target, Priority: blackboard.PriorityHigh,
			ReasonCode: "autonomous_hard_override_" + overrideType, SourceName: s.Name(),
		})
		return nil
	}

	available := s.availableStates(ctx, state)
	decision, err := s.llm.Decide(context.Background(), AutonomousDecisionRequest{
		State: state, Phase: ctx.StateConfig.Phase, Goal: ctx.StateConfig.Goal,
		Intent: ctx.CurrentIntent, UserMessage: ctx.UserMessage, CollectedData: ctx.CollectedData,
		AvailableStates: available, TurnInState: turnInState, MaxTurns: maxTurns,
		TerminalStates: ctx.StateConfig.TerminalStates,
	})
	if err != nil {
		bb.ProposeAction(blackboard.Proposal{
			Value: "autonomous_respond", Priority: blackboard.PriorityNormal,
			ReasonCode: "autonomous_llm_fallback", SourceName: s.Name(),
		})
		bb.ProposeTransition(blackboard.Proposal{
			Value: state, Priority: blackboard.PriorityNormal,
			ReasonCode: "autonomous_stay_llm_fallback", SourceName: s.Name(),
		})
		return nil
	}

	bb.ProposeAction(blackboard.Proposal{
		Value: "autonomous_respond", Priority: blackboard.PriorityNormal, Combinable: true,
		ReasonCode: "autonomous_action", SourceName: s.Name(),
	})

	target, transitioned := s.resolveTarget(ctx, state, available, decision)
	bb.ProposeTransition(blackboard.Proposal{
		Value: target, Priority: blackboard.PriorityNormal,
		ReasonCode: "autonomous_transition", SourceName: s.Name(),
	})
	s.history = append(s.history, autonomousRecord{state: state, intent: ctx.CurrentIntent, shouldTransition: transitioned, nextState: target})
	return nil
}

// hardOverride counts the consecutive trailing stay-decisions this source
// recorded for the current state and, once it reaches threshold, forces a
// transition without consulting the LLM.
func (s *AutonomousDecision) hardOverride(ctx blackboard.ContextSnapshot, state string, threshold int) (target, overrideType string, ok bool) {
	streak := 0
	allObjection := true
	for i := len(s.history) - 1; i >= 0; i-- {
		rec := s.history[i]
		if rec.state != state {
			break
		}
		if rec.shouldTransition {
			break
		}
		streak++
		if !isInCategory(ctx.FlowConfig.IntentCategory("objection"), rec.intent) {
			allObjection = false
		}
	}
	if streak < threshold {
		return "", "", false
	}

	if streak > 0 && allObjection {
		return "soft_close", "objection_driven", true
	}

	if terms := ctx.StateConfig.TerminalStates; len(terms) > 0 {
		for i := len(terms) - 1; i >= 0; i-- {
			t := terms[i]
			if s.requirementsMet(ctx, t) {
				return t, "phase_exhausted_terminal", true
			}
		}
		return "soft_close", "phase_exhausted_no_data", true
	}

	if next, ok := ctx.StateConfig.Parameters["next_phase_state"].(string); ok && next != "" {
		return next, "phase_exhausted", true
	}
	if ctx.StateConfig.MaxTurnsFallback != "" {
		return ctx.StateConfig.MaxTurnsFallback, "phase_exhausted", true
	}
	return "soft_close", "phase_exhausted", true
}

func (s *AutonomousDecision) requirementsMet(ctx blackboard.ContextSnapshot, terminal string) bool {
	reqs, ok := ctx.StateConfig.Rules["terminal_requirements:"+terminal].([]string)
	if !ok {
		return true
	}
	for _, field := range reqs {
		if !truthyValue(ctx.CollectedData[field]) {
			return false
		}
	}
	return true
}

func truthyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	default:
		return v != nil
	}
}

// availableStates lists every autonomous_* state other than the current one,
// in no defined order, plus the current state's configured terminal states.
func (s *AutonomousDecision) availableStates(ctx blackboard.ContextSnapshot, state string) []string {
	var out []string
	for name := range ctx.FlowConfig.States() {
		if name != state && strings.HasPrefix(name, "autonomous_") {
			out = append(out, name)
		}
	}
	for _, t := range ctx.StateConfig.TerminalStates {
		out = append(out, t)
	}
	return out
}

func (s *AutonomousDecision) resolveTarget(ctx blackboard.ContextSnapshot, state string, available []string, decision AutonomousDecisionResult) (string, bool) {
	if !decision.ShouldTransition || decision.NextState == "" {
		return state, false
	}
	target := decision.NextState
	if target == "close" && strings.HasPrefix(state, "autonomous_") {
		target = "soft_close"
		for _, a := range available {
			if a == "autonomous_closing" {
				target = "autonomous_closing"
				break
			}
		}
	}
	if !s.requirementsMet(ctx, target) {
		return state, false
	}
	valid := map[string]bool{"soft_close": true}
	for _, a := range available {
		valid[a] = true
	}
	if !valid[target] {
		return state, false
	}
	return target, true
}
