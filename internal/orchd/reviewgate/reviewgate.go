// Package reviewgate computes how many reviewer approvals a task
// needs under the org's review policy, and evaluates a set of
// approvals against that requirement.
package reviewgate

import "github.com/othala-dev/orchd/internal/orchd/domain"

// ReviewerAvailability is whether one enabled model is currently able
// to review (not itself the task's author, not out of capacity).
type ReviewerAvailability struct {
	Model     domain.ModelKind
	Available bool
}

// Config is the org-level review policy.
type Config struct {
	EnabledModels []domain.ModelKind
	Policy        domain.ReviewPolicy
	MinApprovals  int
}

// Requirement is what a task needs to clear review, computed fresh
// each time from the org's reviewer availability.
type Requirement struct {
	RequiredModels    []domain.ModelKind
	ApprovalsRequired int
	UnanimousRequired bool
	CapacityState     domain.ReviewCapacityState
}

// BlockingVerdict pairs a reviewer with the non-approving verdict it cast.
type BlockingVerdict struct {
	Model   domain.ModelKind
	Verdict domain.ReviewVerdict
}

// Evaluation is the result of checking a set of approvals against a Requirement.
type Evaluation struct {
	Requirement       Requirement
	ApprovalsReceived int
	BlockingVerdicts  []BlockingVerdict
	Approved          bool
	NeedsHuman        bool
}

// ComputeRequirement derives a Requirement from config and the current
// reviewer availability.
//
// Under AdaptivePolicy, a task needs unanimous approval from whichever
// of the enabled models are currently available, with two exceptions:
// with two or more enabled models but fewer than two available, or
// with exactly one enabled model that is unavailable, review cannot
// proceed without a human.
//
// Under StrictPolicy, every enabled model must be available; if any
// is not, the task waits rather than reviewing with a reduced set.
func ComputeRequirement(config Config, availability []ReviewerAvailability) Requirement {
	availabilityMap := make(map[domain.ModelKind]bool, len(availability))
	for _, entry := range availability {
		availabilityMap[entry.Model] = entry.Available
	}

	enabled := DedupeModels(config.EnabledModels)

	switch config.Policy {
	case domain.PolicyStrict:
		hasUnavailable := false
		for _, model := range enabled {
			if !availabilityMap[model] {
				hasUnavailable = true
				break
			}
		}
		if hasUnavailable {
			return Requirement{
				RequiredModels:    enabled,
				ApprovalsRequired: 0,
				UnanimousRequired: true,
				CapacityState:     domain.CapacityWaitingForReviewCapacity,
			}
		}
		return Requirement{
			RequiredModels:    enabled,
			ApprovalsRequired: len(enabled),
			UnanimousRequired: true,
			CapacityState:     domain.CapacitySufficient,
		}

	default: // domain.PolicyAdaptive
		var availableEnabled []domain.ModelKind
		for _, model := range enabled {
			if availabilityMap[model] {
				availableEnabled = append(availableEnabled, model)
			}
		}

		if len(enabled) >= 2 && len(availableEnabled) < 2 {
			return Requirement{
				RequiredModels:    availableEnabled,
				ApprovalsRequired: 0,
				UnanimousRequired: true,
				CapacityState:     domain.CapacityNeedsHuman,
			}
		}
		if len(enabled) == 1 && len(availableEnabled) == 0 {
			return Requirement{
				RequiredModels:    nil,
				ApprovalsRequired: 0,
				UnanimousRequired: true,
				CapacityState:     domain.CapacityNeedsHuman,
			}
		}

		return Requirement{
			RequiredModels:    availableEnabled,
			ApprovalsRequired: len(availableEnabled),
			UnanimousRequired: true,
			CapacityState:     domain.CapacitySufficient,
		}
	}
}

// Evaluate checks approvals against requirement. A NeedsHuman
// requirement always evaluates to not-approved with NeedsHuman set; a
// WaitingForReviewCapacity requirement evaluates to not-approved
// without flagging NeedsHuman, since capacity may still recover on its
// own.
func Evaluate(requirement Requirement, approvals []domain.TaskApproval) Evaluation {
	if requirement.CapacityState == domain.CapacityNeedsHuman {
		return Evaluation{Requirement: requirement, NeedsHuman: true}
	}
	if requirement.CapacityState == domain.CapacityWaitingForReviewCapacity {
		return Evaluation{Requirement: requirement}
	}

	required := map[domain.ModelKind]bool{}
	for _, model := range requirement.RequiredModels {
		required[model] = true
	}

	latestByModel := map[domain.ModelKind]domain.ReviewVerdict{}
	for _, approval := range approvals {
		if required[approval.Reviewer] {
			latestByModel[approval.Reviewer] = approval.Verdict
		}
	}

	approvalsReceived := 0
	var blocking []BlockingVerdict
	for _, model := range requirement.RequiredModels {
		switch latestByModel[model] {
		case domain.VerdictApprove:
			approvalsReceived++
		case domain.VerdictRequestChanges, domain.VerdictBlock:
			blocking = append(blocking, BlockingVerdict{Model: model, Verdict: latestByModel[model]})
		}
	}

	approved := len(blocking) == 0 && approvalsReceived >= requirement.ApprovalsRequired
	if approved && requirement.UnanimousRequired {
		approved = approvalsReceived == len(requirement.RequiredModels)
	}

	return Evaluation{
		Requirement:       requirement,
		ApprovalsReceived: approvalsReceived,
		BlockingVerdicts:  blocking,
		Approved:          approved,
	}
}

// DedupeModels preserves first-seen order while dropping repeats.
func DedupeModels(models []domain.ModelKind) []domain.ModelKind {
	seen := map[domain.ModelKind]bool{}
	var out []domain.ModelKind
	for _, model := range models {
		if seen[model] {
			continue
		}
		seen[model] = true
		out = append(out, model)
	}
	return out
}
