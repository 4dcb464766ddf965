package blackboard

import "github.com/ashita-ai/dialogflow/internal/ports"

// ContextSnapshot is an immutable, per-turn view of the dialog state, built
// exactly once by Blackboard.BeginTurn and read-only thereafter. Every
// knowledge source observes the same snapshot within a turn (snapshot
// isolation, testable property 1).
type ContextSnapshot struct {
	State         string
	CurrentIntent string
	TurnNumber    int
	Persona       string
	TenantID      string

	CollectedData map[string]any
	StateConfig   ports.StateConfig
	FlowConfig    ports.FlowConfig
	StateToPhase  map[string]string

	ContextEnvelope ports.ContextEnvelope
	UserMessage     string
	FrustrationLevel int

	StateBeforeObjection    string
	HasStateBeforeObjection bool

	LastIntent    string
	HasLastIntent bool

	IntentTracker ports.IntentTracker
	TenantConfig  ports.TenantConfig
}

// MissingRequiredData returns the subset of StateConfig.RequiredData that is
// absent or falsy in CollectedData.
func (c ContextSnapshot) MissingRequiredData() []string {
	var missing []string
	for _, field := range c.StateConfig.RequiredData {
		if !truthy(c.CollectedData[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}

// HasAllRequiredData reports whether every required field for the current
// state is present in CollectedData.
func (c ContextSnapshot) HasAllRequiredData() bool {
	return len(c.MissingRequiredData()) == 0
}

// GetTransition resolves a trigger name (e.g. "data_complete", "any", or an
// intent name) to its configured target state, if any.
func (c ContextSnapshot) GetTransition(trigger string) (string, bool) {
	target, ok := c.StateConfig.Transitions[trigger]
	return target, ok
}

// GetPersonaLimit resolves a persona's objection limit, preferring the
// tenant override table over any default supplied by the caller.
func (c ContextSnapshot) GetPersonaLimit(persona string, defaults map[string]ports.PersonaLimit) (ports.PersonaLimit, bool) {
	if c.TenantConfig.PersonaLimitsOverride != nil {
		if limit, ok := c.TenantConfig.PersonaLimitsOverride[persona]; ok {
			return limit, true
		}
	}
	if defaults != nil {
		if limit, ok := defaults[persona]; ok {
			return limit, true
		}
	}
	return ports.PersonaLimit{}, false
}

// IsTenantFeatureEnabled reports whether the given feature flag is enabled
// for this snapshot's tenant.
func (c ContextSnapshot) IsTenantFeatureEnabled(name string) bool {
	return c.TenantConfig.IsFeatureEnabled(name)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
