package refinement

import (
	"fmt"
	"log/slog"
	"sort"
)

// Pipeline runs a fixed set of layers, highest priority first, on every
// classified message. It owns no per-turn state — only the sorted layer
// list and the flag backend used to gate statically-flagged layers.
type Pipeline struct {
	layers []Layer
	flags  FeatureFlags
	logger *slog.Logger
}

// New builds a Pipeline from an unordered layer set, sorting them by
// descending priority (ties keep registration order, mirroring a stable
// priority queue rather than an arbitrary one).
func New(layers []Layer, flags FeatureFlags, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := make([]Layer, len(layers))
	copy(sorted, layers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LayerPriority() > sorted[j].LayerPriority()
	})
	return &Pipeline{layers: sorted, flags: flags, logger: logger}
}

// Refine runs every layer in priority order over one message, threading
// ctx.Intent/Confidence and the working result dict from one layer to the
// next. It returns the final result dict (a shallow copy of resultDict with
// each REFINED layer's updates folded in) plus the ordered trace of every
// layer's Result, for callers that want to inspect what happened.
func (p *Pipeline) Refine(message string, resultDict map[string]any, ctx *Context) (map[string]any, []Result) {
	working := copyResultDict(resultDict)
	trace := make([]Result, 0, len(p.layers))

	for _, layer := range p.layers {
		res := p.runLayer(layer, message, working, ctx)
		trace = append(trace, res)

		// Metadata (including secondary-intent signals from otherwise
		// PASS_THROUGH layers) always merges forward; only a REFINED
		// decision may change the intent/confidence every later layer sees.
		for k, v := range res.Metadata {
			ctx.ensureMetadata()
			ctx.Metadata[k] = v
		}

		if res.Decision != Refined {
			continue
		}
		ctx.Intent = res.Intent
		ctx.Confidence = res.Confidence
		working["intent"] = res.Intent
		working["confidence"] = res.Confidence
		if res.OriginalIntent != "" {
			working["original_intent"] = res.OriginalIntent
		}
		if res.RefinementReason != "" {
			working["refinement_reason"] = res.RefinementReason
		}
	}

	return working, trace
}

// runLayer applies one layer's gating (flag, then ShouldApply) and recovers
// from any panic or returns PASS_THROUGH on failure, so a single
// misbehaving layer can never break the chain.
func (p *Pipeline) runLayer(layer Layer, message string, working map[string]any, ctx *Context) (result Result) {
	name := layer.Name()

	if flag := layer.FeatureFlag(); flag != "" && p.flags != nil && !p.flags.IsEnabled(flag) {
		return PassThroughResult(name, ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("refinement layer panicked", "layer", name, "panic", r)
			result = PassThroughResult(name, ctx)
		}
	}()

	if !layer.ShouldApply(ctx) {
		return PassThroughResult(name, ctx)
	}

	result = layer.Refine(message, working, ctx)
	if result.Decision == Refined && isStyleIntent(result.Intent) {
		p.logger.Warn("refinement layer attempted to return a style intent; forcing pass-through",
			"layer", name, "attempted_intent", result.Intent)
		return PassThroughResult(name, ctx)
	}
	result.LayerName = name
	return result
}

func copyResultDict(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// styleIntents are never valid refinement outputs: StyleModifierDetection
// consumes them, so returning one as a *refined* intent would create an
// infinite style->semantic->style loop on the next pass.
var styleIntents = map[string]bool{
	"request_brevity": true, "example_request": true, "summary_request": true,
}

func isStyleIntent(intent string) bool { return styleIntents[intent] }

func layerError(name string, err any) error {
	return fmt.Errorf("refinement layer %s: %v", name, err)
}
