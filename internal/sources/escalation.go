package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// complexHighValueIntents gates the optional high-value-lead escalation path:
// only these intents, combined with a large company_size, escalate.
var complexHighValueIntents = map[string]bool{
	"custom_integration": true, "enterprise_features": true, "sla_question": true,
}

// Escalation detects situations requiring human intervention — explicit
// requests, sensitive topics, frustration thresholds, repeated
// misunderstandings, or a high-value lead asking a complex question — and
// proposes a blocking escalate_to_human action.
type Escalation struct {
	Base
	frustrationThreshold      int
	misunderstandingThreshold int
	highValueThreshold        int
}

// NewEscalation constructs the source with the default thresholds: 3
// frustration signals, 4 unclear intents, company_size >= 100.
func NewEscalation() *Escalation {
	return &Escalation{
		Base: NewBase("Escalation"), frustrationThreshold: 3,
		misunderstandingThreshold: 4, highValueThreshold: 100,
	}
}

func (s *Escalation) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	intent := ctx.CurrentIntent
	if isInCategory(ctx.FlowConfig.IntentCategory("escalation"), intent) ||
		isInCategory(ctx.FlowConfig.IntentCategory("sensitive"), intent) ||
		isInCategory(ctx.FlowConfig.IntentCategory("frustration"), intent) {
		return true
	}
	if ctx.IntentTracker == nil {
		return false
	}
	return ctx.IntentTracker.TotalCount("unclear") >= s.misunderstandingThreshold-1
}

func (s *Escalation) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}
	intent := ctx.CurrentIntent

	reason := ""
	priority := blackboard.PriorityHigh

	switch {
	case isInCategory(ctx.FlowConfig.IntentCategory("escalation"), intent):
		reason, priority = "explicit_request", blackboard.PriorityCritical
	case isInCategory(ctx.FlowConfig.IntentCategory("sensitive"), intent):
		reason, priority = "sensitive_topic", blackboard.PriorityCritical
	case isInCategory(ctx.FlowConfig.IntentCategory("frustration"), intent):
		if ctx.IntentTracker.CategoryTotal("frustration") >= s.frustrationThreshold {
			reason = "frustration_threshold"
		}
	}

	if reason == "" && ctx.IntentTracker.TotalCount("unclear") >= s.misunderstandingThreshold {
		reason = "misunderstanding_threshold"
	}

	if reason == "" {
		if size, ok := ctx.CollectedData["company_size"].(int); ok && size >= s.highValueThreshold {
			if complexHighValueIntents[intent] {
				reason = "high_value_complex"
			}
		}
	}

	if reason == "" {
		return nil
	}

	bb.ProposeAction(blackboard.Proposal{
		Value: "escalate_to_human", Priority: priority, Combinable: false,
		ReasonCode: "escalation_" + reason, SourceName: s.Name(),
		Metadata: map[string]any{"trigger": reason, "intent": intent},
	})

	escalationState := s.resolveEscalationState(ctx)
	bb.ProposeTransition(blackboard.Proposal{
		Value: escalationState, Priority: priority,
		ReasonCode: "escalation_" + reason, SourceName: s.Name(),
		Metadata: map[string]any{"trigger": reason, "resolved_state": escalationState},
	})
	return nil
}

// resolveEscalationState prefers the flow's declared escalation entry point,
// falling back to soft_close (present in every flow).
func (s *Escalation) resolveEscalationState(ctx blackboard.ContextSnapshot) string {
	if target, ok := ctx.FlowConfig.EntryPoint("escalation"); ok {
		if _, valid := ctx.FlowConfig.StateConfig(target); valid {
			return target
		}
	}
	return "soft_close"
}
