package sources

import (
	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

// dedicatedSourceIntents are handled by PriceQuestion/FactQuestion and must
// never be reprocessed generically here.
var dedicatedSourceIntents = map[string]bool{
	"price_question": true, "pricing_details": true, "cost_inquiry": true,
	"discount_request": true, "payment_terms": true, "pricing_comparison": true,
	"budget_question": true,
	"product_question": true, "company_question": true, "integration_question": true,
	"general_question": true,
}

// blockingRuleActions are actions a resolved rule must never combine with a
// subsequent data_complete transition proposed in the same turn.
var blockingRuleActions = map[string]bool{
	"handle_rejection":   true,
	"emergency_escalate": true,
	"end_conversation":   true,
}

// IntentProcessor resolves the current state's declarative `rules` map —
// intent to action, as a bare string, a {"when":condition,"then":action} map,
// or a chain of such maps terminated by a default string — and proposes the
// resolved action at NORMAL.
type IntentProcessor struct {
	Base
	conditions ports.ConditionRegistry
}

// NewIntentProcessor constructs the source. conditions may be nil, in which
// case conditional rule entries never match.
func NewIntentProcessor(conditions ports.ConditionRegistry) *IntentProcessor {
	return &IntentProcessor{Base: NewBase("IntentProcessor"), conditions: conditions}
}

func (s *IntentProcessor) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	intent, err := bb.CurrentIntent()
	if err != nil {
		return false
	}
	return !dedicatedSourceIntents[intent]
}

func (s *IntentProcessor) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}
	if dedicatedSourceIntents[ctx.CurrentIntent] {
		return nil
	}

	raw, ok := ctx.StateConfig.Rules[ctx.CurrentIntent]
	if !ok {
		return nil
	}
	action, ok := s.resolveRule(raw, ctx)
	if !ok || action == "" {
		return nil
	}

	bb.ProposeAction(blackboard.Proposal{
		Value:      action,
		Priority:   blackboard.PriorityNormal,
		Combinable: !blockingRuleActions[action],
		ReasonCode: "rule_" + ctx.CurrentIntent,
		SourceName: s.Name(),
	})
	return nil
}

// resolveRule supports a bare action string, a single {"when":..,"then":..}
// conditional, or a chain of conditionals terminated by a default string.
func (s *IntentProcessor) resolveRule(raw any, ctx blackboard.ContextSnapshot) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case map[string]any:
		return s.evalConditional(v, ctx)
	case []any:
		for _, item := range v {
			switch entry := item.(type) {
			case string:
				return entry, true
			case map[string]any:
				if action, ok := s.evalConditional(entry, ctx); ok {
					return action, true
				}
			}
		}
		return "", false
	default:
		return "", false
	}
}

func (s *IntentProcessor) evalConditional(v map[string]any, ctx blackboard.ContextSnapshot) (string, bool) {
	when, _ := v["when"].(string)
	then, _ := v["then"].(string)
	if when == "" || then == "" {
		return "", false
	}
	if s.conditions == nil || !s.conditions.Has(when) {
		return "", false
	}
	if !s.conditions.Evaluate(when, buildEvaluatorContext(ctx)) {
		return "", false
	}
	return then, true
}

// buildEvaluatorContext assembles the read-only evaluation context handed to
// a ConditionRegistry from a context snapshot, shared by IntentProcessor and
// TransitionResolver.
func buildEvaluatorContext(ctx blackboard.ContextSnapshot) ports.EvaluatorContext {
	eval := ports.EvaluatorContext{
		CollectedData:       ctx.CollectedData,
		State:               ctx.State,
		TurnNumber:          ctx.TurnNumber,
		CurrentIntent:       ctx.CurrentIntent,
		PrevIntent:          ctx.LastIntent,
		IntentTracker:       ctx.IntentTracker,
		MissingRequiredData: ctx.MissingRequiredData(),
		StateConfig:         ctx.StateConfig,
	}
	if phase, ok := ctx.FlowConfig.PhaseForState(ctx.State); ok {
		eval.CurrentPhase = phase
		eval.IsPhaseState = true
	}
	if env := ctx.ContextEnvelope; env != nil {
		eval.FrustrationLevel = env.FrustrationLevel()
		eval.IsStuck = env.IsStuck()
		eval.HasOscillation = env.HasOscillation()
		eval.MomentumDirection = env.MomentumDirection()
		eval.Momentum = env.Momentum()
		eval.EngagementLevel = env.EngagementLevel()
		if q, ok := env.RepeatedQuestion(); ok {
			eval.RepeatedQuestion, eval.HasRepeatedQuestion = q, true
		}
		eval.ConfidenceTrend = env.ConfidenceTrend()
		eval.TotalObjections = env.TotalObjections()
		eval.HasBreakthrough = env.HasBreakthrough()
		if n, ok := env.TurnsSinceBreakthrough(); ok {
			eval.TurnsSinceBreakthrough, eval.HasTurnsSinceBreakthrough = n, true
		}
		if g, ok := env.GuardIntervention(); ok {
			eval.GuardIntervention, eval.HasGuardIntervention = g, true
		}
		if t, ok := env.Tone(); ok {
			eval.Tone, eval.HasTone = t, true
		}
		eval.UnclearCount = env.UnclearCount()
	}
	return eval
}
