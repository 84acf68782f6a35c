// Package lifecyclegate decides when a task is ready to submit and
// whether auto-submission should fire, combining verify status,
// review evaluation, and graphite stack hygiene.
package lifecyclegate

import (
	"sort"

	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/othala-dev/orchd/internal/orchd/reviewgate"
)

// SubmitPolicy is the org/repo configuration governing submission.
type SubmitPolicy struct {
	OrgDefault   domain.SubmitMode
	RepoOverride *domain.SubmitMode
	AutoSubmit   bool
}

// ReadyFailureReason is one reason a task is not ready to submit.
type ReadyFailureReason string

const (
	ReasonVerifyQuickNotPassed       ReadyFailureReason = "verify_quick_not_passed"
	ReasonReviewNotApproved          ReadyFailureReason = "review_not_approved"
	ReasonWaitingForReviewCapacity   ReadyFailureReason = "waiting_for_review_capacity"
	ReasonNeedsHumanReviewerCapacity ReadyFailureReason = "needs_human_reviewer_capacity"
	ReasonGraphiteHygieneFailed      ReadyFailureReason = "graphite_hygiene_failed"
)

var readyFailureRank = map[ReadyFailureReason]int{
	ReasonVerifyQuickNotPassed:       0,
	ReasonWaitingForReviewCapacity:   1,
	ReasonNeedsHumanReviewerCapacity: 2,
	ReasonReviewNotApproved:          3,
	ReasonGraphiteHygieneFailed:      4,
}

// ReadyGateInput is everything the ready gate needs to decide.
type ReadyGateInput struct {
	VerifyStatus      domain.VerifyStatus
	ReviewEvaluation  reviewgate.Evaluation
	GraphiteHygieneOK bool
}

// ReadyGateDecision is the gate's verdict, with reasons in stable
// priority order and deduplicated.
type ReadyGateDecision struct {
	Ready   bool
	Reasons []ReadyFailureReason
}

// SubmitBlockReason explains why auto-submit did not fire.
type SubmitBlockReason string

const (
	SubmitBlockNotReady           SubmitBlockReason = "not_ready"
	SubmitBlockAutoSubmitDisabled SubmitBlockReason = "auto_submit_disabled"
)

// AutoSubmitDecision is the result of evaluating whether to auto-submit a task.
type AutoSubmitDecision struct {
	ShouldSubmit   bool
	Mode           *domain.SubmitMode
	BlockedReason  *SubmitBlockReason
}

// EvaluateReadyGate reports whether a task may submit: quick verify
// must have passed, review must be approved with sufficient reviewer
// capacity, and the graphite stack must be hygienic.
func EvaluateReadyGate(input ReadyGateInput) ReadyGateDecision {
	var reasons []ReadyFailureReason

	verifyQuickPassed := input.VerifyStatus.Kind == domain.VerifyPassed && input.VerifyStatus.Tier == domain.TierQuick
	if !verifyQuickPassed {
		reasons = append(reasons, ReasonVerifyQuickNotPassed)
	}

	switch input.ReviewEvaluation.Requirement.CapacityState {
	case domain.CapacitySufficient:
	case domain.CapacityWaitingForReviewCapacity:
		reasons = append(reasons, ReasonWaitingForReviewCapacity)
	case domain.CapacityNeedsHuman:
		reasons = append(reasons, ReasonNeedsHumanReviewerCapacity)
	}

	if !input.ReviewEvaluation.Approved {
		reasons = append(reasons, ReasonReviewNotApproved)
	}

	if !input.GraphiteHygieneOK {
		reasons = append(reasons, ReasonGraphiteHygieneFailed)
	}

	reasons = dedupeReasons(sortReasons(reasons))

	return ReadyGateDecision{Ready: len(reasons) == 0, Reasons: reasons}
}

// ResolveSubmitMode prefers a repo override over the task's own mode.
func ResolveSubmitMode(task *domain.Task, policy SubmitPolicy) domain.SubmitMode {
	if policy.RepoOverride != nil {
		return *policy.RepoOverride
	}
	return task.SubmitMode
}

// DecideAutoSubmit combines readiness with the org's auto-submit
// switch to decide whether to submit a task right now.
func DecideAutoSubmit(task *domain.Task, policy SubmitPolicy, readyGate ReadyGateDecision) AutoSubmitDecision {
	if !readyGate.Ready {
		reason := SubmitBlockNotReady
		return AutoSubmitDecision{BlockedReason: &reason}
	}
	if !policy.AutoSubmit {
		reason := SubmitBlockAutoSubmitDisabled
		return AutoSubmitDecision{BlockedReason: &reason}
	}

	mode := ResolveSubmitMode(task, policy)
	return AutoSubmitDecision{ShouldSubmit: true, Mode: &mode}
}

func sortReasons(reasons []ReadyFailureReason) []ReadyFailureReason {
	sort.SliceStable(reasons, func(i, j int) bool {
		return readyFailureRank[reasons[i]] < readyFailureRank[reasons[j]]
	})
	return reasons
}

func dedupeReasons(reasons []ReadyFailureReason) []ReadyFailureReason {
	seen := map[ReadyFailureReason]bool{}
	var out []ReadyFailureReason
	for _, reason := range reasons {
		if seen[reason] {
			continue
		}
		seen[reason] = true
		out = append(out, reason)
	}
	return out
}
