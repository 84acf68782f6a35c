package lifecyclegate

import (
	"testing"

	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/othala-dev/orchd/internal/orchd/reviewgate"
	"github.com/stretchr/testify/require"
)

func mkTask(submitMode domain.SubmitMode) *domain.Task {
	task := domain.NewTask("T1", "example", "Example", domain.TaskRole("general"), domain.TaskType{Kind: "feature"}, submitMode, 3)
	return task
}

func approvedReview() reviewgate.Evaluation {
	return reviewgate.Evaluation{
		Requirement: reviewgate.Requirement{
			RequiredModels:    []domain.ModelKind{domain.ModelClaude},
			ApprovalsRequired: 1,
			UnanimousRequired: true,
			CapacityState:     domain.CapacitySufficient,
		},
		ApprovalsReceived: 1,
		Approved:          true,
	}
}

func TestEvaluateReadyGate_RequiresQuickVerifyReviewAndHygiene(t *testing.T) {
	decision := EvaluateReadyGate(ReadyGateInput{
		VerifyStatus:      domain.NotRunStatus(),
		ReviewEvaluation:  approvedReview(),
		GraphiteHygieneOK: false,
	})
	require.False(t, decision.Ready)
	require.Equal(t, []ReadyFailureReason{ReasonVerifyQuickNotPassed, ReasonGraphiteHygieneFailed}, decision.Reasons)
}

func TestEvaluateReadyGate_PassesWhenAllConditionsHold(t *testing.T) {
	decision := EvaluateReadyGate(ReadyGateInput{
		VerifyStatus:      domain.PassedStatus(domain.TierQuick),
		ReviewEvaluation:  approvedReview(),
		GraphiteHygieneOK: true,
	})
	require.True(t, decision.Ready)
	require.Empty(t, decision.Reasons)
}

func TestEvaluateReadyGate_RejectsFullVerifyWhenQuickIsRequired(t *testing.T) {
	decision := EvaluateReadyGate(ReadyGateInput{
		VerifyStatus:      domain.PassedStatus(domain.TierFull),
		ReviewEvaluation:  approvedReview(),
		GraphiteHygieneOK: true,
	})
	require.False(t, decision.Ready)
	require.Equal(t, []ReadyFailureReason{ReasonVerifyQuickNotPassed}, decision.Reasons)
}

func TestDecideAutoSubmit_BlockedWhenNotReadyOrDisabled(t *testing.T) {
	task := mkTask(domain.SubmitSingle)
	notReady := ReadyGateDecision{Ready: false, Reasons: []ReadyFailureReason{ReasonReviewNotApproved}}

	decision := DecideAutoSubmit(task, SubmitPolicy{OrgDefault: domain.SubmitSingle, AutoSubmit: true}, notReady)
	require.False(t, decision.ShouldSubmit)
	require.Nil(t, decision.Mode)
	require.NotNil(t, decision.BlockedReason)
	require.Equal(t, SubmitBlockNotReady, *decision.BlockedReason)

	ready := ReadyGateDecision{Ready: true}
	decision = DecideAutoSubmit(task, SubmitPolicy{OrgDefault: domain.SubmitSingle, AutoSubmit: false}, ready)
	require.NotNil(t, decision.BlockedReason)
	require.Equal(t, SubmitBlockAutoSubmitDisabled, *decision.BlockedReason)
}

func TestDecideAutoSubmit_UsesRepoOverrideMode(t *testing.T) {
	task := mkTask(domain.SubmitSingle)
	stack := domain.SubmitStack
	ready := ReadyGateDecision{Ready: true}

	decision := DecideAutoSubmit(task, SubmitPolicy{OrgDefault: domain.SubmitSingle, RepoOverride: &stack, AutoSubmit: true}, ready)
	require.True(t, decision.ShouldSubmit)
	require.NotNil(t, decision.Mode)
	require.Equal(t, domain.SubmitStack, *decision.Mode)
}

func TestDecideAutoSubmit_UsesTaskSubmitModeWhenNoOverride(t *testing.T) {
	task := mkTask(domain.SubmitStack)
	ready := ReadyGateDecision{Ready: true}

	decision := DecideAutoSubmit(task, SubmitPolicy{OrgDefault: domain.SubmitSingle, AutoSubmit: true}, ready)
	require.True(t, decision.ShouldSubmit)
	require.Equal(t, domain.SubmitStack, *decision.Mode)
	require.Nil(t, decision.BlockedReason)
}

func TestEvaluateReadyGate_ReportsWaitingForReviewCapacityReason(t *testing.T) {
	review := approvedReview()
	review.Requirement.CapacityState = domain.CapacityWaitingForReviewCapacity
	review.Approved = false

	decision := EvaluateReadyGate(ReadyGateInput{
		VerifyStatus:      domain.PassedStatus(domain.TierQuick),
		ReviewEvaluation:  review,
		GraphiteHygieneOK: true,
	})
	require.False(t, decision.Ready)
	require.Equal(t, []ReadyFailureReason{ReasonWaitingForReviewCapacity, ReasonReviewNotApproved}, decision.Reasons)
}

func TestEvaluateReadyGate_ReportsNeedsHumanCapacityReason(t *testing.T) {
	review := approvedReview()
	review.Requirement.CapacityState = domain.CapacityNeedsHuman
	review.Approved = false
	review.NeedsHuman = true

	decision := EvaluateReadyGate(ReadyGateInput{
		VerifyStatus:      domain.PassedStatus(domain.TierQuick),
		ReviewEvaluation:  review,
		GraphiteHygieneOK: true,
	})
	require.False(t, decision.Ready)
	require.Equal(t, []ReadyFailureReason{ReasonNeedsHumanReviewerCapacity, ReasonReviewNotApproved}, decision.Reasons)
}

func TestEvaluateReadyGate_BlocksOnCapacityEvenWhenReviewsApproved(t *testing.T) {
	review := approvedReview()
	review.Requirement.CapacityState = domain.CapacityWaitingForReviewCapacity
	review.Approved = true

	decision := EvaluateReadyGate(ReadyGateInput{
		VerifyStatus:      domain.PassedStatus(domain.TierQuick),
		ReviewEvaluation:  review,
		GraphiteHygieneOK: true,
	})
	require.False(t, decision.Ready)
	require.Equal(t, []ReadyFailureReason{ReasonWaitingForReviewCapacity}, decision.Reasons)
}

func TestEvaluateReadyGate_DedupesReasonWhenCapacityNeedsHumanAndReviewNotApproved(t *testing.T) {
	decision := EvaluateReadyGate(ReadyGateInput{
		VerifyStatus: domain.NotRunStatus(),
		ReviewEvaluation: reviewgate.Evaluation{
			Requirement: reviewgate.Requirement{CapacityState: domain.CapacityNeedsHuman, UnanimousRequired: true},
			NeedsHuman:  true,
		},
		GraphiteHygieneOK: false,
	})
	require.Equal(t, []ReadyFailureReason{
		ReasonVerifyQuickNotPassed,
		ReasonNeedsHumanReviewerCapacity,
		ReasonReviewNotApproved,
		ReasonGraphiteHygieneFailed,
	}, decision.Reasons)
}

func TestResolveSubmitMode_UsesTaskModeWhenNoRepoOverride(t *testing.T) {
	task := mkTask(domain.SubmitStack)
	mode := ResolveSubmitMode(task, SubmitPolicy{OrgDefault: domain.SubmitSingle, AutoSubmit: true})
	require.Equal(t, domain.SubmitStack, mode)
}

func TestResolveSubmitMode_PrefersRepoOverride(t *testing.T) {
	task := mkTask(domain.SubmitSingle)
	stack := domain.SubmitStack
	mode := ResolveSubmitMode(task, SubmitPolicy{OrgDefault: domain.SubmitSingle, RepoOverride: &stack, AutoSubmit: true})
	require.Equal(t, domain.SubmitStack, mode)
}
