// Package sources implements the fourteen built-in knowledge sources. Each
// source contributes proposals only; none mutate the state machine directly
// (all mutation goes through the blackboard). The shared contract is an
// explicit Go interface rather than an abstract base class.
package sources

import (
	"github.com/ashita-ai/dialogflow/internal/blackboard"
)

// KnowledgeSource is the contract every built-in and custom source
// implements. ShouldContribute must be O(1); Contribute may do heavier work
// (e.g. call an LLM) but must only propose, never mutate the state machine.
type KnowledgeSource interface {
	Name() string
	Enabled() bool
	Enable()
	Disable()
	ShouldContribute(bb *blackboard.Blackboard) bool
	Contribute(bb *blackboard.Blackboard) error
}

// Base provides the enable/disable bookkeeping shared by every source.
// Embed it and override ShouldContribute when a source needs more than the
// enabled check.
type Base struct {
	name    string
	enabled bool
}

// NewBase constructs a Base with the given name, enabled by default.
func NewBase(name string) Base {
	return Base{name: name, enabled: true}
}

func (b *Base) Name() string     { return b.name }
func (b *Base) Enabled() bool    { return b.enabled }
func (b *Base) Enable()          { b.enabled = true }
func (b *Base) Disable()         { b.enabled = false }

// ShouldContribute is the default O(1) gate: only the enabled flag.
// Sources with cheap additional gating should override this method.
func (b *Base) ShouldContribute(*blackboard.Blackboard) bool { return b.enabled }
