package sources

import (
	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

// excludedTransitionTriggers are handled by dedicated sources and must never
// be reprocessed here: "data_complete" by DataCollector, "any" as an
// orchestrator-level fallback.
var excludedTransitionTriggers = map[string]bool{"data_complete": true, "any": true}

// hardNoIntents get HIGH priority transitions so they win over routine
// NORMAL-priority intent transitions.
var hardNoIntents = map[string]bool{
	"rejection": true, "hard_no": true, "end_conversation": true,
	"explicit_close_request": true,
}

// TransitionResolver handles intent-based state transitions declared in a
// state's `transitions` map, distinct from DataCollector's data-based
// transitions. Each entry maps an intent to a bare target state name;
// conditional ({"when":..,"then":..}) and chained entries are not supported.
type TransitionResolver struct {
	Base
	conditions ports.ConditionRegistry
}

// NewTransitionResolver constructs the source. conditions may be nil; the
// registry is stored but not consulted when resolving transitions.
func NewTransitionResolver(conditions ports.ConditionRegistry) *TransitionResolver {
	return &TransitionResolver{Base: NewBase("TransitionResolver"), conditions: conditions}
}

func (s *TransitionResolver) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	return len(ctx.StateConfig.Transitions) > 0
}

func (s *TransitionResolver) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}
	intent := ctx.CurrentIntent
	if excludedTransitionTriggers[intent] {
		return nil
	}

	target, ok := ctx.StateConfig.Transitions[intent]
	if !ok || target == "" {
		return nil
	}

	priority := blackboard.PriorityNormal
	if hardNoIntents[intent] {
		priority = blackboard.PriorityHigh
	}

	bb.ProposeTransition(blackboard.Proposal{
		Value:      target,
		Priority:   priority,
		ReasonCode: "intent_transition_" + intent,
		SourceName: s.Name(),
	})
	return nil
}
