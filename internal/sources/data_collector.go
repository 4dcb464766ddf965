package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// DataCollector proposes moving on once the current state's required data
// is fully present in the immutable snapshot. It reads only
// the frozen snapshot, so proposals from other sources in the same turn
// never retroactively satisfy required data (snapshot isolation).
type DataCollector struct {
	Base
}

// NewDataCollector constructs the source.
func NewDataCollector() *DataCollector {
	return &DataCollector{Base: NewBase("DataCollector")}
}

func (s *DataCollector) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	ctx, err := bb.GetContext()
	if err != nil {
		return false
	}
	if ctx.StateConfig.IsFinal {
		return false
	}
	if len(ctx.StateConfig.RequiredData) == 0 {
		return false
	}
	return ctx.HasAllRequiredData()
}

func (s *DataCollector) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}
	if len(ctx.StateConfig.RequiredData) == 0 || !ctx.HasAllRequiredData() {
		return nil
	}

	target, ok := ctx.GetTransition("data_complete")
	if !ok {
		return nil
	}

	bb.ProposeTransition(blackboard.Proposal{
		Value:      target,
		Priority:   blackboard.PriorityNormal,
		ReasonCode: "data_complete",
		SourceName: s.Name(),
	})
	return nil
}
