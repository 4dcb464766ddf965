package refinement

// customInputMarker is the sentinel a DisambiguationParser returns when the
// user's answer doesn't map to any offered option — a custom, free-form
// reply that should be classified on its own merits rather than forced onto
// one of the listed options.
const customInputMarker = "__custom_input__"

// DisambiguationParser resolves a free-text answer against the options a
// prior ask_clarification turn offered.
type DisambiguationParser interface {
	ParseAnswer(answer string, options []string) (resolved string, ok bool)
}

// disambiguationCriticalIntents can always cut a disambiguation short: no
// matter what was asked, a contact handoff, a flat rejection, or a demo
// request is never actually an answer to the clarifying question.
var disambiguationCriticalIntents = map[string]bool{
	"contact_provided": true, "rejection": true, "demo_request": true,
}

// DisambiguationResolution interprets the user's reply while a clarifying
// question is outstanding (ctx.InDisambiguation). Three paths, tried in
// order: a critical intent always exits disambiguation untouched; an
// options list gets parsed and, if resolved, promoted to a REFINED
// info_provided-equivalent intent; anything else — custom input, or no
// options at all — exits disambiguation but passes the LLM's own
// classification through unchanged, since at that point the LLM already
// classified the message and that classification is the answer.
type DisambiguationResolution struct {
	parser DisambiguationParser
}

// NewDisambiguationResolution builds the layer. parser may be nil, in which
// case the options-parsing path always falls through to path C.
func NewDisambiguationResolution(parser DisambiguationParser) *DisambiguationResolution {
	return &DisambiguationResolution{parser: parser}
}

func (d *DisambiguationResolution) Name() string           { return "DisambiguationResolution" }
func (d *DisambiguationResolution) LayerPriority() Priority { return PriorityCritical }
func (d *DisambiguationResolution) FeatureFlag() string     { return "unified_disambiguation" }

func (d *DisambiguationResolution) ShouldApply(ctx *Context) bool {
	return ctx.InDisambiguation
}

func (d *DisambiguationResolution) Refine(message string, result map[string]any, ctx *Context) Result {
	if disambiguationCriticalIntents[ctx.Intent] {
		ctx.ensureMetadata()
		ctx.Metadata["exit_disambiguation"] = true
		return PassThroughResult(d.Name(), ctx)
	}

	if len(ctx.DisambiguationOptions) > 0 && d.parser != nil {
		if resolved, ok := d.parser.ParseAnswer(message, ctx.DisambiguationOptions); ok && resolved != customInputMarker {
			return RefinedResult(d.Name(), resolved, 0.9, ctx.Intent, "disambiguation_resolved",
				map[string]any{
					"exit_disambiguation":              true,
					"disambiguation_resolved_intent":   resolved,
					"method":                           "disambiguation_resolved",
					"selected_option":                  resolved,
				})
		}
	}

	ctx.ensureMetadata()
	ctx.Metadata["exit_disambiguation"] = true
	return PassThroughResult(d.Name(), ctx)
}
