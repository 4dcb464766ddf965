package sources

import (
	"github.com/ashita-ai/dialogflow/internal/blackboard"
)

// GuardTier is the escalation tier returned by an external conversation
// guard analyser.
type GuardTier int

const (
	GuardTierNone GuardTier = iota
	GuardTier1
	GuardTier2
	GuardTier3
	GuardTier4
)

// GuardAnalyser is the external collaborator that inspects the current
// turn's context and returns an escalation tier, analogous to a safety
// classifier. Supplied by the host application, not implemented here.
type GuardAnalyser interface {
	Analyse(ctx blackboard.ContextSnapshot) (GuardTier, error)
}

// FallbackHandler resolves a skip-phase target for GuardTier3. Returning
// ok=false causes ConversationGuard to degrade to GuardTier2 behavior.
type FallbackHandler interface {
	SkipTarget(ctx blackboard.ContextSnapshot) (state string, ok bool)
}

// ConversationGuard maps an external guard analyser's tier into proposals
// that rephrase, offer options, skip the current phase, or end the dialog.
type ConversationGuard struct {
	Base
	guard    GuardAnalyser
	fallback FallbackHandler
	softClose string
}

// NewConversationGuard constructs the source. softCloseState names the
// target used for GuardTier4; it defaults to "soft_close".
func NewConversationGuard(guard GuardAnalyser, fallback FallbackHandler, softCloseState string) *ConversationGuard {
	if softCloseState == "" {
		softCloseState = "soft_close"
	}
	return &ConversationGuard{Base: NewBase("ConversationGuard"), guard: guard, fallback: fallback, softClose: softCloseState}
}

func (s *ConversationGuard) ShouldContribute(bb *blackboard.Blackboard) bool {
	return s.Enabled() && s.guard != nil
}

func (s *ConversationGuard) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	tier, err := s.guard.Analyse(ctx)
	if err != nil {
		return err
	}

	switch tier {
	case GuardTier1:
		bb.ProposeAction(blackboard.Proposal{
			Value: "guard_rephrase", Priority: blackboard.PriorityNormal, Combinable: true,
			ReasonCode: "guard_tier1", SourceName: s.Name(),
		})
	case GuardTier2:
		s.proposeTier2(bb)
	case GuardTier3:
		var target string
		var ok bool
		if s.fallback != nil {
			target, ok = s.fallback.SkipTarget(ctx)
		}
		if !ok {
			s.proposeTier2(bb)
			return nil
		}
		bb.ProposeAction(blackboard.Proposal{
			Value: "guard_skip_phase", Priority: blackboard.PriorityHigh, Combinable: true,
			ReasonCode: "guard_tier3", SourceName: s.Name(),
		})
		bb.ProposeTransition(blackboard.Proposal{
			Value: target, Priority: blackboard.PriorityHigh,
			ReasonCode: "guard_tier3", SourceName: s.Name(),
		})
	case GuardTier4:
		bb.ProposeAction(blackboard.Proposal{
			Value: "guard_soft_close", Priority: blackboard.PriorityCritical, Combinable: true,
			ReasonCode: "guard_tier4", SourceName: s.Name(),
		})
		bb.ProposeTransition(blackboard.Proposal{
			Value: s.softClose, Priority: blackboard.PriorityCritical,
			ReasonCode: "guard_tier4", SourceName: s.Name(),
		})
	}
	return nil
}

func (s *ConversationGuard) proposeTier2(bb *blackboard.Blackboard) {
	bb.ProposeAction(blackboard.Proposal{
		Value: "guard_offer_options", Priority: blackboard.PriorityHigh, Combinable: false,
		ReasonCode: "guard_tier2", SourceName: s.Name(),
	})
}
