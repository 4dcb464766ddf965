package refinement

// meaningfulExtractedFields names the extracted-data keys that indicate the
// user actually supplied business information, as opposed to trivial
// bookkeeping fields (an option index, a UI acknowledgment flag) that don't
// imply the message itself was informative.
var meaningfulExtractedFields = map[string]bool{
	"company_size": true, "pain_point": true, "pain_category": true, "role": true,
	"timeline": true, "contact_info": true, "budget_range": true,
	"current_tools": true, "business_type": true, "users_count": true,
	"pain_impact": true, "financial_impact": true, "desired_outcome": true,
	"urgency": true, "client_name": true,
}

// DataAware promotes an "unclear" classification to info_provided whenever
// data extraction found meaningful fields in the same message — a defense
// against stalling when the classifier hedges but the extractor clearly
// found something usable.
type DataAware struct{}

func NewDataAware() *DataAware { return &DataAware{} }

func (d *DataAware) Name() string           { return "DataAware" }
func (d *DataAware) LayerPriority() Priority { return PriorityNormal }
func (d *DataAware) FeatureFlag() string     { return "data_aware_refinement" }

func (d *DataAware) ShouldApply(ctx *Context) bool {
	return ctx.Intent == "unclear" && len(ctx.ExtractedData) > 0
}

func (d *DataAware) Refine(message string, result map[string]any, ctx *Context) Result {
	var meaningful []string
	for k, v := range ctx.ExtractedData {
		if !meaningfulExtractedFields[k] {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if v == nil {
			continue
		}
		meaningful = append(meaningful, k)
	}

	if len(meaningful) == 0 {
		return PassThroughResult(d.Name(), ctx)
	}

	return RefinedResult(d.Name(), "info_provided", 0.75, ctx.Intent,
		"data_aware_meaningful_fields_present", map[string]any{"meaningful_fields": meaningful})
}
