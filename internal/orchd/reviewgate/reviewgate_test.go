package reviewgate

import (
	"testing"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/stretchr/testify/require"
)

func TestComputeRequirement_AdaptiveRequiresTwoAvailableOrNeedsHuman(t *testing.T) {
	cfg := Config{
		EnabledModels: []domain.ModelKind{domain.ModelClaude, domain.ModelCodex, domain.ModelGemini},
		Policy:        domain.PolicyAdaptive,
		MinApprovals:  2,
	}
	requirement := ComputeRequirement(cfg, []ReviewerAvailability{
		{Model: domain.ModelClaude, Available: true},
		{Model: domain.ModelCodex, Available: false},
		{Model: domain.ModelGemini, Available: false},
	})

	require.Equal(t, domain.CapacityNeedsHuman, requirement.CapacityState)
	require.Equal(t, []domain.ModelKind{domain.ModelClaude}, requirement.RequiredModels)
	require.Equal(t, 0, requirement.ApprovalsRequired)
}

func TestComputeRequirement_StrictWaitsForUnavailableModels(t *testing.T) {
	cfg := Config{
		EnabledModels: []domain.ModelKind{domain.ModelClaude, domain.ModelCodex},
		Policy:        domain.PolicyStrict,
		MinApprovals:  2,
	}
	requirement := ComputeRequirement(cfg, []ReviewerAvailability{
		{Model: domain.ModelClaude, Available: true},
	})

	require.Equal(t, domain.CapacityWaitingForReviewCapacity, requirement.CapacityState)
	require.Equal(t, []domain.ModelKind{domain.ModelClaude, domain.ModelCodex}, requirement.RequiredModels)
}

func TestEvaluate_UnanimousApprovalRequired(t *testing.T) {
	cfg := Config{
		EnabledModels: []domain.ModelKind{domain.ModelClaude, domain.ModelCodex, domain.ModelGemini},
		Policy:        domain.PolicyAdaptive,
		MinApprovals:  2,
	}
	requirement := ComputeRequirement(cfg, []ReviewerAvailability{
		{Model: domain.ModelClaude, Available: true},
		{Model: domain.ModelCodex, Available: true},
		{Model: domain.ModelGemini, Available: false},
	})
	require.Len(t, requirement.RequiredModels, 2)
	require.Equal(t, 2, requirement.ApprovalsRequired)
	require.Equal(t, domain.CapacitySufficient, requirement.CapacityState)

	approvals := []domain.TaskApproval{
		{TaskID: "T123", Reviewer: domain.ModelClaude, Verdict: domain.VerdictApprove, IssuedAt: time.Now()},
		{TaskID: "T123", Reviewer: domain.ModelCodex, Verdict: domain.VerdictApprove, IssuedAt: time.Now()},
	}
	eval := Evaluate(requirement, approvals)
	require.True(t, eval.Approved)
	require.Equal(t, 2, eval.ApprovalsReceived)
}

func TestEvaluate_RequestChangesBlocksGate(t *testing.T) {
	cfg := Config{
		EnabledModels: []domain.ModelKind{domain.ModelClaude, domain.ModelCodex},
		Policy:        domain.PolicyAdaptive,
		MinApprovals:  2,
	}
	requirement := ComputeRequirement(cfg, []ReviewerAvailability{
		{Model: domain.ModelClaude, Available: true},
		{Model: domain.ModelCodex, Available: true},
	})

	approvals := []domain.TaskApproval{
		{TaskID: "T1", Reviewer: domain.ModelClaude, Verdict: domain.VerdictApprove, IssuedAt: time.Now()},
		{TaskID: "T1", Reviewer: domain.ModelCodex, Verdict: domain.VerdictRequestChanges, IssuedAt: time.Now()},
	}
	eval := Evaluate(requirement, approvals)
	require.False(t, eval.Approved)
	require.Len(t, eval.BlockingVerdicts, 1)
}

func TestEvaluate_NeedsHumanShortCircuits(t *testing.T) {
	requirement := Requirement{CapacityState: domain.CapacityNeedsHuman}
	eval := Evaluate(requirement, nil)
	require.False(t, eval.Approved)
	require.True(t, eval.NeedsHuman)
}

func TestDedupeModels_PreservesFirstSeenOrder(t *testing.T) {
	got := DedupeModels([]domain.ModelKind{domain.ModelCodex, domain.ModelClaude, domain.ModelCodex})
	require.Equal(t, []domain.ModelKind{domain.ModelCodex, domain.ModelClaude}, got)
}
