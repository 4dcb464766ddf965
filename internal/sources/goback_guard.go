package sources

import (
	"github.com/ashita-ai/dialogflow/internal/blackboard"
)

// GoBackGuard proposes acknowledging a "go back" navigation intent, or
// blocks it once the dialog's go-back counter is exhausted. The actual
// counter increment is deferred to the orchestrator, which applies it only
// if acknowledge_go_back wins the conflict resolution and the transition
// lands on the expected target.
type GoBackGuard struct {
	Base
}

// NewGoBackGuard constructs the GoBackGuard source.
func NewGoBackGuard() *GoBackGuard {
	b := NewBase("GoBackGuard")
	return &GoBackGuard{Base: b}
}

func (s *GoBackGuard) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	return isInCategory(ctx.FlowConfig.IntentCategory("go_back"), ctx.CurrentIntent)
}

func (s *GoBackGuard) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	circular := bb.StateMachine().CircularFlow()
	target, ok := circular.GoBackTarget(ctx.State, ctx.StateConfig.Transitions)
	if !ok {
		return nil
	}

	if circular.IsLimitReached() {
		bb.ProposeAction(blackboard.Proposal{
			Value:      "go_back_limit_reached",
			Priority:   blackboard.PriorityHigh,
			Combinable: false,
			ReasonCode: "go_back_limit_reached",
			SourceName: s.Name(),
		})
		return nil
	}

	bb.ProposeAction(blackboard.Proposal{
		Value:      "acknowledge_go_back",
		Priority:   blackboard.PriorityNormal,
		Combinable: true,
		ReasonCode: "rule_acknowledge_go_back",
		SourceName: s.Name(),
		Metadata: map[string]any{
			"pending_goback_increment": true,
			"to_state":                 target,
			"from_state":               ctx.State,
		},
	})
	return nil
}

func isInCategory(category []string, intent string) bool {
	for _, i := range category {
		if i == intent {
			return true
		}
	}
	return false
}
