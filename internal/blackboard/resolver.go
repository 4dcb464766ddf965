package blackboard

import "sort"

// mergeMode names the outcome shape of a single resolution, recorded in the
// resolution trace for auditing.
const (
	modeBlocked       = "BLOCKED"
	modeMerged        = "MERGED"
	modeTransitionOnly = "TRANSITION_ONLY"
	modeActionOnly    = "ACTION_ONLY"
	modeNoProposals   = "NO_PROPOSALS"
)

// ConflictResolver is a pure function of (proposals, currentState, data
// updates, flags) to a ResolvedDecision. It holds no per-turn state; the
// only configuration is the fallback action used when no ACTION proposal
// wins.
type ConflictResolver struct {
	defaultAction string
}

// NewConflictResolver constructs a resolver with the given default action,
// used when no proposal wins the ACTION slot (e.g. "continue_current_goal").
func NewConflictResolver(defaultAction string) *ConflictResolver {
	if defaultAction == "" {
		defaultAction = "continue_current_goal"
	}
	return &ConflictResolver{defaultAction: defaultAction}
}

// rankOf returns a proposal's PriorityRank, or UnrankedSentinel when it has
// none. sortByPriority orders by (Priority, rankOf, insertionIndex).
func rankOf(p Proposal) int {
	if p.PriorityRank == nil {
		return UnrankedSentinel
	}
	return *p.PriorityRank
}

func sortByPriority(proposals []Proposal) []Proposal {
	sorted := append([]Proposal(nil), proposals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, c := sorted[i], sorted[j]
		if a.Priority != c.Priority {
			return a.Priority < c.Priority
		}
		ra, rc := rankOf(a), rankOf(c)
		if ra != rc {
			return ra < rc
		}
		return a.insertionIndex < c.insertionIndex
	})
	return sorted
}

// Resolve arbitrates proposals without a fallback transition. It is a thin
// wrapper over ResolveWithFallback.
func (r *ConflictResolver) Resolve(proposals []Proposal, currentState string, dataUpdates, flagsToSet map[string]any) ResolvedDecision {
	return r.ResolveWithFallback(proposals, currentState, "", false, dataUpdates, flagsToSet)
}

// ResolveWithFallback runs the full conflict-resolution algorithm, including
// the "any" transition fallback when nothing else moved the state.
func (r *ConflictResolver) ResolveWithFallback(proposals []Proposal, currentState string, fallbackTransition string, hasFallback bool, dataUpdates, flagsToSet map[string]any) ResolvedDecision {
	var actionsIn, transitionsIn []Proposal
	for _, p := range proposals {
		switch p.Kind {
		case ProposalAction:
			actionsIn = append(actionsIn, p)
		case ProposalTransition:
			transitionsIn = append(transitionsIn, p)
		}
	}

	actions := sortByPriority(actionsIn)
	transitions := sortByPriority(transitionsIn)

	var rejected []Proposal
	decision := ResolvedDecision{
		NextState:     currentState,
		Action:        r.defaultAction,
		DataUpdates:   dataUpdates,
		FlagsToSet:    flagsToSet,
	}

	trace := map[string]any{
		"action_ranking":     summarize(actions),
		"transition_ranking": summarize(transitions),
	}

	var winningAction *Proposal
	if len(actions) > 0 {
		w := actions[0]
		winningAction = &w
	}

	var winningTransition *Proposal
	mode := modeNoProposals

	if winningAction != nil && !winningAction.Combinable {
		mode = modeBlocked
		decision.Action = winningAction.Value
		decision.NextState = currentState
		decision.AddReasonCode(winningAction.ReasonCode)
		for _, t := range transitions {
			rejected = append(rejected, t)
		}
		for _, a := range actions[1:] {
			rejected = append(rejected, a)
		}
		trace["blocking_reason"] = winningAction.ReasonCode
	} else if len(transitions) > 0 {
		w := transitions[0]
		winningTransition = &w
		if winningAction != nil {
			mode = modeMerged
			decision.Action = winningAction.Value
			decision.AddReasonCode(winningAction.ReasonCode)
		} else {
			mode = modeTransitionOnly
		}
		decision.NextState = winningTransition.Value
		decision.AddReasonCode(winningTransition.ReasonCode)

		for _, a := range actions {
			if winningAction == nil || a.insertionIndex != winningAction.insertionIndex {
				rejected = append(rejected, a)
			}
		}
		for _, t := range transitions[1:] {
			rejected = append(rejected, t)
		}
	} else if winningAction != nil {
		mode = modeActionOnly
		decision.Action = winningAction.Value
		decision.AddReasonCode(winningAction.ReasonCode)
		for _, a := range actions[1:] {
			rejected = append(rejected, a)
		}
	}

	if winningTransition == nil && decision.NextState == currentState && hasFallback && fallbackTransition != "" {
		blocked := winningAction != nil && !winningAction.Combinable
		if !blocked {
			decision.NextState = fallbackTransition
			decision.AddReasonCode("fallback_any_transition")
		}
	}

	decision.RejectedProposals = rejected
	trace["merge_decision"] = mode
	if winningAction != nil {
		trace["winning_action_metadata"] = winningAction.Metadata
		trace["winning_action_value"] = winningAction.Value
	}
	if winningTransition != nil {
		trace["winning_transition_value"] = winningTransition.Value
	}
	decision.ResolutionTrace = trace

	return decision
}

func summarize(proposals []Proposal) []map[string]any {
	out := make([]map[string]any, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, map[string]any{
			"value":    p.Value,
			"priority": p.Priority.String(),
			"source":   p.SourceName,
		})
	}
	return out
}
