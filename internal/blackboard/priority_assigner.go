package blackboard

import (
	"strings"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

// PriorityAssigner maps declarative FlowConfig.Priorities definitions onto
// proposal priority_rank values, for tie-breaking within a Priority level.
// It does not generate proposals.
type PriorityAssigner struct {
	flowConfig        ports.FlowConfig
	conditions        ports.ConditionRegistry
	flags             ports.FeatureFlags
	definitions       []ports.PriorityDefinition
	categoryCache     map[string]map[string]bool
}

// NewPriorityAssigner constructs an assigner from a flow config's priority
// definitions. conditions/flags may be nil; condition- and flag-gated
// definitions then never match (fail-closed), except that a condition-gated
// definition with ElseUseTransitions still matches intent transitions outside
// autonomous states.
func NewPriorityAssigner(fc ports.FlowConfig, conditions ports.ConditionRegistry, flags ports.FeatureFlags) *PriorityAssigner {
	return &PriorityAssigner{
		flowConfig:    fc,
		conditions:    conditions,
		flags:         flags,
		definitions:   fc.Priorities(),
		categoryCache: map[string]map[string]bool{},
	}
}

// Assign returns a copy of proposals in which each proposal matched by a
// definition takes the lowest-numeric matching definition's Priority as its
// PriorityRank (recorded as priority_name/priority_value metadata), unless it
// already carries a lower rank. The input slice is not modified.
func (a *PriorityAssigner) Assign(proposals []Proposal, ctx ContextSnapshot) []Proposal {
	if len(a.definitions) == 0 {
		return proposals
	}
	out := make([]Proposal, len(proposals))
	for i, p := range proposals {
		best := a.findBestMatch(p, ctx)
		if best == nil {
			out[i] = p
			continue
		}
		if p.PriorityRank == nil || best.Priority < *p.PriorityRank {
			p.PriorityRank = ptr(best.Priority)
			if p.Metadata == nil {
				p.Metadata = map[string]any{}
			}
			p.Metadata["priority_name"] = best.Name
			p.Metadata["priority_value"] = best.Priority
		}
		out[i] = p
	}
	return out
}

func (a *PriorityAssigner) findBestMatch(p Proposal, ctx ContextSnapshot) *ports.PriorityDefinition {
	var best *ports.PriorityDefinition
	for i := range a.definitions {
		def := a.definitions[i]
		if !a.matches(def, p, ctx) {
			continue
		}
		if best == nil || def.Priority < best.Priority {
			d := def
			best = &d
		}
	}
	return best
}

func (a *PriorityAssigner) matches(def ports.PriorityDefinition, p Proposal, ctx ContextSnapshot) bool {
	if def.FeatureFlag != "" {
		if a.flags == nil || !a.flags.IsEnabled(def.FeatureFlag) {
			return false
		}
		if !ctx.IsTenantFeatureEnabled(def.FeatureFlag) {
			return false
		}
	}

	if len(def.Intents) > 0 && !contains(def.Intents, ctx.CurrentIntent) {
		return false
	}
	if def.IntentCategory != "" && !a.intentInCategory(ctx.CurrentIntent, def.IntentCategory) {
		return false
	}

	if def.Trigger != "" {
		switch def.Trigger {
		case "data_complete":
			if !(p.Kind == ProposalTransition && p.ReasonCode == "data_complete") {
				return false
			}
		case "any":
			if !(p.Kind == ProposalTransition && p.ReasonCode == "transition_any") {
				return false
			}
		default:
			return false
		}
	}

	if def.Condition != "" {
		if a.conditions == nil || !a.conditions.Has(def.Condition) || !a.conditions.Evaluate(def.Condition, a.buildEvalContext(ctx)) {
			if def.ElseUseTransitions {
				if ctx.StateConfig.Autonomous {
					return false
				}
				return p.Kind == ProposalTransition && a.isIntentTransition(p)
			}
			return false
		}
	}

	if def.Handler != "" && !a.handlerMatches(def.Handler, ctx.CurrentIntent) {
		return false
	}

	if def.Action != "" {
		if p.Kind != ProposalAction || p.Value != def.Action {
			return false
		}
	}

	if def.Source != "" {
		if def.Source != "rules" || !a.isRuleAction(p) {
			return false
		}
	}

	if def.UseResolver && p.Kind != ProposalAction {
		return false
	}

	if def.UseTransitions {
		if p.Kind != ProposalTransition {
			return false
		}
		if len(def.Intents) == 0 && def.IntentCategory == "" && def.Trigger == "" {
			if !a.isIntentTransition(p) {
				return false
			}
		}
	}

	return true
}

func (a *PriorityAssigner) handlerMatches(handler, currentIntent string) bool {
	switch handler {
	case "phase_progress_handler":
		progress := a.flowConfig.Constants()["progress_intents"]
		m, ok := progress.(map[string]any)
		if !ok {
			return false
		}
		_, ok = m[currentIntent]
		return ok
	case "circular_flow_handler":
		for _, intent := range a.flowConfig.IntentCategory("go_back") {
			if intent == currentIntent {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (a *PriorityAssigner) isRuleAction(p Proposal) bool {
	return p.Kind == ProposalAction && strings.HasPrefix(p.ReasonCode, "rule_")
}

func (a *PriorityAssigner) isIntentTransition(p Proposal) bool {
	return p.Kind == ProposalTransition && strings.HasPrefix(p.ReasonCode, "intent_transition_")
}

func (a *PriorityAssigner) intentInCategory(intent, category string) bool {
	if cached, ok := a.categoryCache[category]; ok {
		return cached[intent]
	}
	intents := a.flowConfig.IntentCategory(category)
	set := make(map[string]bool, len(intents))
	for _, i := range intents {
		set[i] = true
	}
	a.categoryCache[category] = set
	return set[intent]
}

func (a *PriorityAssigner) buildEvalContext(ctx ContextSnapshot) ports.EvaluatorContext {
	env := ctx.ContextEnvelope
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
	if env != nil {
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

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
