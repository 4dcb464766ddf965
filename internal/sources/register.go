package sources

import (
	"fmt"

	"github.com/ashita-ai/dialogflow/internal/ports"
	"github.com/ashita-ai/dialogflow/internal/registry"
)

// Dependencies carries every external collaborator a built-in source may
// need. Fields left at their zero value disable the sources that require
// them (AutonomousDecision with a nil LLM, ConversationGuard with a nil
// guard) rather than failing registration.
type Dependencies struct {
	Conditions      ports.ConditionRegistry
	ObjectionLimits map[string]ports.PersonaLimit
	SoftCloseState  string
	AutonomousLLM   AutonomousLLM
	GuardAnalyser   GuardAnalyser
	GuardFallback   FallbackHandler
	PriceFallback   AnswerResolver
	FactFallback    AnswerResolver
}

// priorityOrder fixes the deterministic instantiation order the orchestrator
// relies on: guards and resolvers that can block or redirect a turn run
// before the general-purpose processors, matching the order the teacher's
// own registry-backed plugin tables use for precedence-sensitive components.
var priorityOrder = map[string]int{
	"Escalation":         10,
	"ObjectionGuard":     20,
	"ConversationGuard":  30,
	"GoBackGuard":        40,
	"StallGuard":         50,
	"PhaseExhausted":     60,
	"Disambiguation":     70,
	"PriceQuestion":      80,
	"FactQuestion":       90,
	"DataCollector":      100,
	"TransitionResolver": 110,
	"IntentProcessor":    120,
	"ObjectionReturn":    130,
	"AutonomousDecision": 140,
}

// RegisterDefaults registers the fourteen built-in knowledge sources into
// reg, each enabled by default except AutonomousDecision and
// ConversationGuard, which are enabled by default only when the host
// application supplies their external collaborator (deps.AutonomousLLM,
// deps.GuardAnalyser).
func RegisterDefaults(reg *registry.Registry, deps Dependencies) error {
	register := func(name string, enabledByDefault bool, build func() KnowledgeSource) error {
		return reg.Register(name, func(any) (registry.Source, error) {
			return build(), nil
		}, priorityOrder[name], enabledByDefault, name, "")
	}

	entries := []struct {
		name    string
		enabled bool
		build   func() KnowledgeSource
	}{
		{"Escalation", true, func() KnowledgeSource { return NewEscalation() }},
		{"ObjectionGuard", true, func() KnowledgeSource {
			return NewObjectionGuard(deps.ObjectionLimits, deps.SoftCloseState)
		}},
		{"ConversationGuard", deps.GuardAnalyser != nil, func() KnowledgeSource {
			return NewConversationGuard(deps.GuardAnalyser, deps.GuardFallback, deps.SoftCloseState)
		}},
		{"GoBackGuard", true, func() KnowledgeSource { return NewGoBackGuard() }},
		{"StallGuard", true, func() KnowledgeSource { return NewStallGuard() }},
		{"PhaseExhausted", true, func() KnowledgeSource { return NewPhaseExhausted() }},
		{"Disambiguation", true, func() KnowledgeSource { return NewDisambiguation() }},
		{"PriceQuestion", true, func() KnowledgeSource { return NewPriceQuestion(deps.PriceFallback) }},
		{"FactQuestion", true, func() KnowledgeSource { return NewFactQuestion(deps.FactFallback) }},
		{"DataCollector", true, func() KnowledgeSource { return NewDataCollector() }},
		{"TransitionResolver", true, func() KnowledgeSource { return NewTransitionResolver(deps.Conditions) }},
		{"IntentProcessor", true, func() KnowledgeSource { return NewIntentProcessor(deps.Conditions) }},
		{"ObjectionReturn", true, func() KnowledgeSource { return NewObjectionReturn() }},
		{"AutonomousDecision", deps.AutonomousLLM != nil, func() KnowledgeSource {
			return NewAutonomousDecision(deps.AutonomousLLM)
		}},
	}

	for _, e := range entries {
		if err := register(e.name, e.enabled, e.build); err != nil {
			return fmt.Errorf("sources: register %s: %w", e.name, err)
		}
	}
	return nil
}

// ToKnowledgeSources narrows registry.CreateSources's return type to the
// richer interface the orchestrator needs. Every source registered by
// RegisterDefaults implements KnowledgeSource, so this only fails if a host
// application registered a bare registry.Source of its own.
func ToKnowledgeSources(in []registry.Source) ([]KnowledgeSource, error) {
	out := make([]KnowledgeSource, 0, len(in))
	for _, s := range in {
		ks, ok := s.(KnowledgeSource)
		if !ok {
			return nil, fmt.Errorf("sources: %s does not implement KnowledgeSource", s.Name())
		}
		out = append(out, ks)
	}
	return out, nil
}
