// Package refinement implements the classification post-processing chain:
// a priority-ordered sequence of layers that each get one look at the
// classifier's raw intent/confidence and a chance to correct, narrow, or
// annotate it before the blackboard ever sees a turn.
package refinement

// Priority orders layers within the pipeline; higher runs first.
type Priority int

const (
	PriorityHighest  Priority = 110
	PriorityCritical Priority = 100
	PriorityHigh     Priority = 75
	PriorityNormal   Priority = 50
	PriorityLow      Priority = 25
)

// Decision is the outcome a layer reaches for a single message.
type Decision int

const (
	PassThrough Decision = iota
	Refined
	Skipped
)

func (d Decision) String() string {
	switch d {
	case Refined:
		return "REFINED"
	case Skipped:
		return "SKIPPED"
	default:
		return "PASS_THROUGH"
	}
}

// Context is the mutable metadata bag threaded through the pipeline. Layers
// read it to decide applicability and mutate Intent/Confidence/Metadata when
// they refine.
type Context struct {
	Message             string
	Intent              string
	Confidence          float64
	State               string
	Phase               string
	LastAction          string
	LastBotMessage      string
	ExtractedData       map[string]any
	InDisambiguation    bool
	DisambiguationOptions []string
	ExpectsDataType     string
	Alternatives        []string
	Metadata            map[string]any
}

func (c *Context) ensureMetadata() {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
}

// Result is what a single layer produces for one message.
type Result struct {
	LayerName        string
	Decision         Decision
	Intent           string
	Confidence       float64
	OriginalIntent   string
	RefinementReason string
	SecondarySignals []string
	Metadata         map[string]any
}

// Layer is one stage of the refinement chain. FeatureFlag, when non-empty, is
// checked by the Pipeline before ShouldApply is even called; a layer that
// needs a dynamic check (the flag lookup depends on per-tenant state the
// pipeline doesn't have) leaves FeatureFlag empty and does the check itself
// inside ShouldApply.
type Layer interface {
	Name() string
	LayerPriority() Priority
	FeatureFlag() string
	ShouldApply(ctx *Context) bool
	Refine(message string, result map[string]any, ctx *Context) Result
}

// FeatureFlags is the minimal flag-lookup port the pipeline needs to gate
// statically-flagged layers; host applications wire this to their own
// feature-flag backend.
type FeatureFlags interface {
	IsEnabled(flag string) bool
}

// PassThroughResult builds the canonical "unchanged" result a layer returns
// when it doesn't apply or fails. It preserves ctx's intent/confidence
// bit-for-bit, per the pipeline's non-destruction invariant.
func PassThroughResult(name string, ctx *Context) Result {
	return Result{LayerName: name, Decision: PassThrough, Intent: ctx.Intent, Confidence: ctx.Confidence}
}

// RefinedResult builds a REFINED result, clamping confidence to [0, 1] so a
// layer can never drive it negative.
func RefinedResult(name, newIntent string, newConfidence float64, originalIntent, reason string, metadata map[string]any) Result {
	if newConfidence < 0 {
		newConfidence = 0
	}
	if newConfidence > 1 {
		newConfidence = 1
	}
	return Result{
		LayerName: name, Decision: Refined, Intent: newIntent, Confidence: newConfidence,
		OriginalIntent: originalIntent, RefinementReason: reason, Metadata: metadata,
	}
}
