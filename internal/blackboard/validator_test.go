package blackboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmptyValueIsError(t *testing.T) {
	v := NewProposalValidator(nil, nil, nil, false)
	findings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "", SourceName: "Test"}})

	require.Len(t, findings, 1)
	assert.Equal(t, SeverityError, findings[0].Severity)
	assert.Equal(t, "empty_value", findings[0].Code)
}

func TestValidateMissingSourceIsError(t *testing.T) {
	v := NewProposalValidator(nil, nil, nil, false)
	findings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "continue_current_goal"}})

	require.Len(t, findings, 1)
	assert.Equal(t, "missing_source", findings[0].Code)
}

func TestValidateUnknownActionIsWarningByDefault(t *testing.T) {
	v := NewProposalValidator(map[string]bool{"known_action": true}, nil, nil, false)
	findings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "made_up_action", SourceName: "Test", Combinable: true}})

	require.Len(t, findings, 1)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
}

func TestValidateUnknownActionElevatedToErrorInStrictMode(t *testing.T) {
	v := NewProposalValidator(map[string]bool{"known_action": true}, nil, nil, true)
	findings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "made_up_action", SourceName: "Test", Combinable: true}})

	require.Len(t, findings, 1)
	assert.Equal(t, SeverityError, findings[0].Severity)
}

func TestValidateNilKnownSetsSkipCheck(t *testing.T) {
	v := NewProposalValidator(nil, nil, nil, true)
	findings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "anything", SourceName: "Test", Combinable: true}})

	assert.Empty(t, findings)
}

func TestValidateUnknownTransitionStateIsError(t *testing.T) {
	v := NewProposalValidator(nil, map[string]bool{"discovery": true}, nil, false)
	findings := v.Validate([]Proposal{{Kind: ProposalTransition, Value: "nonexistent", SourceName: "Test", Combinable: true}})

	require.Len(t, findings, 1)
	assert.Equal(t, "unknown_state", findings[0].Code)
	assert.Equal(t, SeverityError, findings[0].Severity)
}

func TestValidateNonCombinableTransitionIsError(t *testing.T) {
	v := NewProposalValidator(nil, nil, nil, false)
	findings := v.Validate([]Proposal{{Kind: ProposalTransition, Value: "discovery", SourceName: "Test", Combinable: false}})

	require.Len(t, findings, 1)
	assert.Equal(t, "transition_not_combinable", findings[0].Code)
}

func TestValidateLowPriorityBlockingActionIsWarning(t *testing.T) {
	v := NewProposalValidator(nil, nil, nil, false)
	findings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "stay_quiet", SourceName: "Test", Combinable: false, Priority: PriorityLow}})

	require.Len(t, findings, 1)
	assert.Equal(t, "low_priority_blocking_action", findings[0].Code)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
}

func TestValidateUndocumentedReasonCodeIsWarning(t *testing.T) {
	v := NewProposalValidator(nil, nil, map[string]bool{"known_reason": true}, false)
	findings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "a", SourceName: "Test", Combinable: true, ReasonCode: "mystery_reason"}})

	require.Len(t, findings, 1)
	assert.Equal(t, "undocumented_reason_code", findings[0].Code)
}

func TestGetErrorsAndWarningsOnlyFilterCorrectly(t *testing.T) {
	v := NewProposalValidator(nil, nil, nil, false)
	findings := v.Validate([]Proposal{
		{Kind: ProposalAction, Value: "", SourceName: "Test"},
		{Kind: ProposalAction, Value: "a", SourceName: "Test", Combinable: false, Priority: PriorityLow},
	})

	errs := v.GetErrorsOnly(findings)
	warns := v.GetWarningsOnly(findings)

	assert.Len(t, errs, 1)
	assert.Len(t, warns, 1)
}

func TestHasBlockingErrorsTrueOnlyWithErrorSeverity(t *testing.T) {
	v := NewProposalValidator(nil, nil, nil, false)

	onlyWarnings := v.Validate([]Proposal{{Kind: ProposalAction, Value: "a", SourceName: "Test", Combinable: false, Priority: PriorityLow}})
	assert.False(t, v.HasBlockingErrors(onlyWarnings))

	withError := v.Validate([]Proposal{{Kind: ProposalAction, Value: "", SourceName: "Test"}})
	assert.True(t, v.HasBlockingErrors(withError))
}

func TestValidationErrorStringFormatting(t *testing.T) {
	ve := ValidationError{Code: "empty_value", Message: "bad", Severity: SeverityError}
	assert.Equal(t, "[error] empty_value: bad", ve.String())
}
