package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// ObjectionReturn proposes returning to the state the dialog was in before
// entering handle_objection, once the objection is resolved by a positive
// or follow-up-question intent.
//
// A saved state that has a phase is proposed at HIGH priority. Otherwise the
// state's entry_state parameter, if it names a known state, is proposed at
// NORMAL priority; with neither, nothing is proposed and the dialog stays in
// handle_objection. Without a saved state the source does not contribute.
type ObjectionReturn struct {
	Base
}

// NewObjectionReturn constructs the source.
func NewObjectionReturn() *ObjectionReturn {
	return &ObjectionReturn{Base: NewBase("ObjectionReturn")}
}

func (s *ObjectionReturn) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	if ctx.State != "handle_objection" {
		return false
	}
	if !ctx.HasStateBeforeObjection {
		return false
	}
	return isInCategory(ctx.FlowConfig.IntentCategory("positive"), ctx.CurrentIntent) ||
		isInCategory(ctx.FlowConfig.IntentCategory("followup_question"), ctx.CurrentIntent)
}

func (s *ObjectionReturn) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	if ctx.HasStateBeforeObjection {
		if _, hasPhase := ctx.FlowConfig.PhaseForState(ctx.StateBeforeObjection); hasPhase {
			bb.ProposeTransition(blackboard.Proposal{
				Value: ctx.StateBeforeObjection, Priority: blackboard.PriorityHigh,
				ReasonCode: "objection_return_saved_state", SourceName: s.Name(),
			})
			return nil
		}
	}

	if entry, ok := ctx.StateConfig.Parameters["entry_state"].(string); ok && entry != "" {
		if _, valid := ctx.FlowConfig.StateConfig(entry); valid {
			bb.ProposeTransition(blackboard.Proposal{
				Value: entry, Priority: blackboard.PriorityNormal,
				ReasonCode: "objection_return_entry_state", SourceName: s.Name(),
			})
		}
	}
	return nil
}
