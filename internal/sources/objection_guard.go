package sources

import (
	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

// ObjectionGuard forces a soft close once a persona's objection limits are
// exceeded, setting the _objection_limit_final flag that both stops
// begin_turn from recording further objection intents and forces isFinal on
// the resulting soft_close, preventing an infinite objection loop.
type ObjectionGuard struct {
	Base
	defaultLimits map[string]ports.PersonaLimit
	softClose     string
}

// NewObjectionGuard constructs the source. defaultLimits is consulted when
// the tenant config carries no PersonaLimitsOverride entry for the current
// persona. softCloseState defaults to "soft_close".
func NewObjectionGuard(defaultLimits map[string]ports.PersonaLimit, softCloseState string) *ObjectionGuard {
	if softCloseState == "" {
		softCloseState = "soft_close"
	}
	return &ObjectionGuard{Base: NewBase("ObjectionGuard"), defaultLimits: defaultLimits, softClose: softCloseState}
}

func (s *ObjectionGuard) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	intent, err := bb.CurrentIntent()
	if err != nil {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	return isInCategory(ctx.FlowConfig.IntentCategory("objection"), intent)
}

func (s *ObjectionGuard) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	limit, ok := ctx.GetPersonaLimit(ctx.Persona, s.defaultLimits)
	if !ok {
		return nil
	}

	tracker := ctx.IntentTracker
	consecutive := tracker.ObjectionConsecutive()
	total := tracker.ObjectionTotal()

	exceeded := (limit.Consecutive > 0 && consecutive >= limit.Consecutive) ||
		(limit.Total > 0 && total >= limit.Total)
	if !exceeded {
		return nil
	}

	bb.ProposeAction(blackboard.Proposal{
		Value: "objection_limit_reached", Priority: blackboard.PriorityCritical, Combinable: true,
		ReasonCode: "objection_limit_reached", SourceName: s.Name(),
	})
	bb.ProposeTransition(blackboard.Proposal{
		Value: s.softClose, Priority: blackboard.PriorityCritical,
		ReasonCode: "objection_limit_reached", SourceName: s.Name(),
	})
	bb.ProposeDataUpdate("_objection_limit_final", true)
	return nil
}
