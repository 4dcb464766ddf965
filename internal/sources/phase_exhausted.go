package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// PhaseExhausted offers an options menu when the dialog has stayed in a
// state without progress for longer than phase_exhaust_threshold but not
// yet long enough for StallGuard's harder ejection.
type PhaseExhausted struct {
	Base
}

// NewPhaseExhausted constructs the source.
func NewPhaseExhausted() *PhaseExhausted {
	return &PhaseExhausted{Base: NewBase("PhaseExhausted")}
}

// stallWindow computes the exclusive [effectiveThreshold, stallSoft) window
// shared by PhaseExhausted and StallGuard's soft tier.
func stallWindow(maxTurns, phaseThreshold int) (effectiveThreshold, stallSoft int) {
	stallSoft = maxTurns - 1
	if stallSoft < 3 {
		stallSoft = 3
	}
	effectiveThreshold = phaseThreshold
	if effectiveThreshold > stallSoft-1 {
		effectiveThreshold = stallSoft - 1
	}
	return
}

func (s *PhaseExhausted) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	maxTurns := ctx.StateConfig.MaxTurnsInState
	if maxTurns <= 0 {
		return false
	}
	env := ctx.ContextEnvelope
	if env == nil {
		return false
	}

	threshold := ctx.StateConfig.PhaseExhaustThreshold
	if threshold <= 0 {
		threshold = 3
	}
	effectiveThreshold, stallSoft := stallWindow(maxTurns, threshold)

	consecutive := env.ConsecutiveSameState()
	if consecutive < effectiveThreshold || consecutive >= stallSoft {
		return false
	}

	return !env.IsProgressing() && !env.HasExtractedData()
}

func (s *PhaseExhausted) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	bb.ProposeAction(blackboard.Proposal{
		Value:      "offer_options",
		Priority:   blackboard.PriorityNormal,
		Combinable: true,
		ReasonCode: "phase_exhausted_options",
		SourceName: s.Name(),
		Metadata: map[string]any{
			"options_type": "phase_exhausted",
			"from_state":   ctx.State,
		},
	})
	return nil
}
