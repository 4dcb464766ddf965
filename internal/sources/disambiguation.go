package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// Disambiguation fires when the refined intent is "disambiguation_needed"
// and asks the user to choose among the carried option metadata.
type Disambiguation struct {
	Base
}

// NewDisambiguation constructs the source.
func NewDisambiguation() *Disambiguation {
	return &Disambiguation{Base: NewBase("Disambiguation")}
}

func (s *Disambiguation) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	intent, err := bb.CurrentIntent()
	return err == nil && intent == "disambiguation_needed"
}

func (s *Disambiguation) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	metadata := map[string]any{}
	if env, ok := ctx.ContextEnvelope.(interface {
		DisambiguationOptions() []string
		DisambiguationQuestion() string
	}); ok {
		metadata["disambiguation_options"] = env.DisambiguationOptions()
		metadata["disambiguation_question"] = env.DisambiguationQuestion()
	}

	bb.ProposeAction(blackboard.Proposal{
		Value:      "ask_clarification",
		Priority:   blackboard.PriorityHigh,
		Combinable: false,
		ReasonCode: "disambiguation_needed",
		SourceName: s.Name(),
		Metadata:   metadata,
	})
	return nil
}
