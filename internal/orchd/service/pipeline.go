package service

import (
	"context"
	"fmt"

	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/othala-dev/orchd/internal/orchd/graphite"
	"github.com/othala-dev/orchd/internal/orchd/lifecyclegate"
	"github.com/othala-dev/orchd/internal/orchd/orchlog"
	"github.com/othala-dev/orchd/internal/orchd/reviewgate"
	"github.com/othala-dev/orchd/internal/orchd/stackpipeline"
	"github.com/othala-dev/orchd/internal/orchd/verify"
)

// advanceTask moves task forward by exactly one step appropriate to its
// current state. It is safe to call repeatedly: a task with nothing
// left to do in its current state is a no-op.
func (s *Service) advanceTask(ctx context.Context, task *domain.Task) {
	repo, err := s.repoRuntime(task.RepoID)
	if err != nil {
		orchlog.ErrorErr(orchlog.CatService, "cannot advance task: unknown repo", err, "task_id", task.ID)
		return
	}

	switch task.State {
	case domain.StateRestacking:
		s.advanceRestacking(task, repo)
	case domain.StateVerifyingQuick:
		s.advanceVerifyingQuick(task, repo)
	case domain.StateVerifyingFull:
		s.advanceVerifyingFull(task, repo)
	case domain.StateReviewing:
		s.advanceReviewing(task, repo)
	case domain.StateReady:
		s.advanceReady(ctx, task, repo)
	}
}

func (s *Service) advanceRestacking(task *domain.Task, repo *RepoRuntime) {
	repo.mu.Lock()
	err := repo.Graphite.Restack()
	repo.mu.Unlock()

	if err != nil {
		if gerr, ok := err.(*graphite.Error); ok && gerr.IsRestackConflict() {
			s.transition(task, domain.StateRestackConflict, domain.EventKind{Kind: domain.EventRestackConflict})
			return
		}
		orchlog.ErrorErr(orchlog.CatGraphite, "restack failed", err, "task_id", task.ID)
		s.transition(task, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventNeedsHuman, Reason: "restack failed"})
		return
	}

	task.VerifyStatus = domain.NotRunStatus()
	s.transition(task, domain.StateVerifyingQuick, domain.EventKind{Kind: domain.EventRestackCompleted})
}

// ResolveRestackConflict is the operator-facing entry point for driving
// a stuck RestackConflict task back to resolution, per the decision to
// delegate conflict-resolution commands to an external caller rather
// than auto-run `gt add -A`/`gt continue`.
func (s *Service) ResolveRestackConflict(taskID domain.TaskId) error {
	task, err := s.store.LoadTask(taskID)
	if err != nil {
		return fmt.Errorf("service: loading task %s: %w", taskID, err)
	}
	if task.State != domain.StateRestackConflict {
		return fmt.Errorf("service: task %s is not in RestackConflict (state=%s)", taskID, task.State)
	}
	repo, err := s.repoRuntime(task.RepoID)
	if err != nil {
		return err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if err := repo.Graphite.BeginConflictResolution(); err != nil {
		return fmt.Errorf("staging conflict resolution: %w", err)
	}
	if err := repo.Graphite.ContinueConflictResolution(); err != nil {
		s.transition(task, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventNeedsHuman, Reason: "gt continue failed"})
		return fmt.Errorf("continuing restack: %w", err)
	}

	s.transition(task, domain.StateRestacking, domain.EventKind{Kind: domain.EventRestackResolved})
	return nil
}

func (s *Service) advanceVerifyingQuick(task *domain.Task, repo *RepoRuntime) {
	commands := verify.ResolveVerifyCommands(task.WorktreePath, domain.TierQuick, repo.Config.Verify.Quick.Commands)
	result, err := repo.Verify.RunTier(task.WorktreePath, repo.Config.Nix.DevShell, domain.TierQuick, commands)
	if err != nil {
		orchlog.ErrorErr(orchlog.CatVerify, "quick verify could not run", err, "task_id", task.ID)
		task.VerifyStatus = domain.FailedStatus(domain.TierQuick, err.Error())
		s.transition(task, domain.StateRunning, domain.EventKind{Kind: domain.EventVerifyCompleted, Tier: domain.TierQuick, Success: false})
		return
	}

	if result.Outcome == verify.OutcomeFailed {
		task.VerifyStatus = domain.FailedStatus(domain.TierQuick, summarizeVerifyResult(result))
		s.transition(task, domain.StateRunning, domain.EventKind{Kind: domain.EventVerifyCompleted, Tier: domain.TierQuick, Success: false})
		return
	}

	task.VerifyStatus = domain.PassedStatus(domain.TierQuick)
	s.transition(task, domain.StateReviewing, domain.EventKind{Kind: domain.EventVerifyCompleted, Tier: domain.TierQuick, Success: true})
}

// advanceVerifyingFull re-verifies a task sitting in AwaitingMerge after
// its stack head moved underneath it; success sends it back to
// AwaitingMerge, failure escalates to a human.
func (s *Service) advanceVerifyingFull(task *domain.Task, repo *RepoRuntime) {
	commands := verify.ResolveVerifyCommands(task.WorktreePath, domain.TierFull, repo.Config.Verify.Full.Commands)
	result, err := repo.Verify.RunTier(task.WorktreePath, repo.Config.Nix.DevShell, domain.TierFull, commands)
	if err != nil || result.Outcome == verify.OutcomeFailed {
		summary := summarizeVerifyResult(result)
		if err != nil {
			summary = err.Error()
		}
		task.VerifyStatus = domain.FailedStatus(domain.TierFull, summary)
		s.transition(task, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventVerifyCompleted, Tier: domain.TierFull, Success: false})
		return
	}

	task.VerifyStatus = domain.PassedStatus(domain.TierFull)
	s.transition(task, domain.StateAwaitingMerge, domain.EventKind{Kind: domain.EventVerifyCompleted, Tier: domain.TierFull, Success: true})
}

func (s *Service) advanceReviewing(task *domain.Task, repo *RepoRuntime) {
	requirement := reviewgate.ComputeRequirement(s.reviewCfg, s.reviewerAvailability(task))

	approvals, err := s.store.ListApprovalsForTask(task.ID)
	if err != nil {
		orchlog.ErrorErr(orchlog.CatReview, "failed to load approvals", err, "task_id", task.ID)
		return
	}

	evaluation := reviewgate.Evaluate(requirement, approvals)
	task.ReviewStatus = domain.ReviewStatus{
		RequiredModels:    requirement.RequiredModels,
		ApprovalsReceived: evaluation.ApprovalsReceived,
		ApprovalsRequired: requirement.ApprovalsRequired,
		Unanimous:         requirement.UnanimousRequired,
		CapacityState:     requirement.CapacityState,
	}

	switch {
	case evaluation.NeedsHuman:
		s.transition(task, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventNeedsHuman, Reason: "review capacity exhausted"})
	case evaluation.Approved:
		hygieneOK := s.graphiteHygieneOK(repo)
		decision := lifecyclegate.EvaluateReadyGate(lifecyclegate.ReadyGateInput{
			VerifyStatus:      task.VerifyStatus,
			ReviewEvaluation:  evaluation,
			GraphiteHygieneOK: hygieneOK,
		})
		if decision.Ready {
			s.transition(task, domain.StateReady, domain.EventKind{Kind: domain.EventReadyReached})
		}
	case len(evaluation.BlockingVerdicts) > 0:
		s.transition(task, domain.StateRunning, domain.EventKind{Kind: domain.EventReviewCompleted, Reason: "changes requested"})
	}

	s.persistTask(task)
	s.recordEvent(domain.NewEvent(task.ID, task.RepoID, domain.EventKind{Kind: domain.EventReviewRequested, RequiredModels: requirement.RequiredModels}))
}

// reviewerAvailability treats every enabled model except the one that
// most recently authored the task's code as an available reviewer;
// there is no dedicated "author model" field, so the task's preferred
// model (if set) is excluded as the conservative approximation.
func (s *Service) reviewerAvailability(task *domain.Task) []reviewgate.ReviewerAvailability {
	availability := make([]reviewgate.ReviewerAvailability, 0, len(s.enabledModels))
	for _, m := range s.enabledModels {
		if task.PreferredModel != nil && *task.PreferredModel == m {
			continue
		}
		availability = append(availability, reviewgate.ReviewerAvailability{Model: m, Available: true})
	}
	return availability
}

func (s *Service) graphiteHygieneOK(repo *RepoRuntime) bool {
	snapshot, err := repo.Graphite.StatusSnapshot()
	if err != nil {
		orchlog.ErrorErr(orchlog.CatGraphite, "failed to capture status snapshot", err)
		return false
	}
	return snapshot.Raw != ""
}

// advanceReady drives a Ready task through the stack pipeline: verify
// the branch, restack it onto its parent if it has one, verify the
// resulting stack, and submit. The task's own State stays Ready for the
// whole pipeline; only the terminal Submitting/AwaitingMerge/NeedsHuman
// moves are real domain transitions.
func (s *Service) advanceReady(ctx context.Context, task *domain.Task, repo *RepoRuntime) {
	_, span := s.tracer.Start(ctx, "orchd.stack_pipeline")
	defer span.End()

	pipeline := s.pipelineFor(task, repo)
	action := stackpipeline.NextAction(*pipeline)

	switch action.Kind {
	case stackpipeline.ActionRunVerify:
		commands := verify.ResolveVerifyCommands(task.WorktreePath, domain.TierFull, repo.Config.Verify.Full.Commands)
		result, err := repo.Verify.RunTier(task.WorktreePath, repo.Config.Nix.DevShell, domain.TierFull, commands)
		if err != nil || result.Outcome == verify.OutcomeFailed {
			summary := summarizeVerifyResult(result)
			if err != nil {
				summary = err.Error()
			}
			pipeline.Fail(summary)
			task.VerifyStatus = domain.FailedStatus(domain.TierFull, summary)
			s.transition(task, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventVerifyCompleted, Tier: domain.TierFull, Success: false})
			return
		}
		pipeline.Advance()

	case stackpipeline.ActionStackOnParent:
		repo.mu.Lock()
		err := repo.Graphite.Restack()
		repo.mu.Unlock()
		if err != nil {
			if gerr, ok := err.(*graphite.Error); ok && gerr.IsRestackConflict() {
				orchlog.Warn(orchlog.CatGraphite, "stack-on-parent hit a conflict, leaving for operator", "task_id", task.ID)
				return
			}
			pipeline.Fail(err.Error())
			s.transition(task, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventNeedsHuman, Reason: "stack-on-parent failed"})
			return
		}
		pipeline.Advance()

	case stackpipeline.ActionSubmit:
		policy := s.submitPolicyForRepo(repo)
		decision := lifecyclegate.DecideAutoSubmit(task, policy, lifecyclegate.ReadyGateDecision{Ready: true})
		if !decision.ShouldSubmit {
			orchlog.Info(orchlog.CatService, "ready task awaiting manual submit", "task_id", task.ID, "blocked_reason", decision.BlockedReason)
			return
		}

		s.transition(task, domain.StateSubmitting, domain.EventKind{Kind: domain.EventSubmitStarted, SubmitMode: *decision.Mode})
		repo.mu.Lock()
		err := repo.Graphite.Submit(*decision.Mode)
		repo.mu.Unlock()
		if err != nil {
			pipeline.Fail(err.Error())
			s.transition(task, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventNeedsHuman, Reason: "submit failed"})
			return
		}
		pipeline.Advance()
		s.transition(task, domain.StateAwaitingMerge, domain.EventKind{Kind: domain.EventSubmitCompleted, SubmitMode: *decision.Mode})

	case stackpipeline.ActionComplete, stackpipeline.ActionFailed:
		// Terminal; the domain transition already moved the task away
		// from Ready by the time a pipeline reaches either stage.
	}
}

func (s *Service) pipelineFor(task *domain.Task, repo *RepoRuntime) *stackpipeline.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pipelines[task.ID]; ok {
		return existing
	}

	var parentBranch *string
	if len(task.DependsOn) > 0 {
		if parent, err := s.store.LoadTask(task.DependsOn[0]); err == nil {
			branch := parent.BranchName
			parentBranch = &branch
		}
	}

	submitMode := lifecyclegate.ResolveSubmitMode(task, s.submitPolicyForRepo(repo))
	state := stackpipeline.New(task.ID, task.BranchName, task.WorktreePath, submitMode, parentBranch)
	s.pipelines[task.ID] = &state
	return s.pipelines[task.ID]
}

// submitPolicyForRepo layers repo's own Graphite submit-mode override
// on top of the org-wide default/auto-submit policy.
func (s *Service) submitPolicyForRepo(repo *RepoRuntime) lifecyclegate.SubmitPolicy {
	policy := s.submitPolicy
	policy.RepoOverride = repo.Config.Graphite.SubmitMode
	return policy
}

func summarizeVerifyResult(result verify.Result) string {
	for _, cmd := range result.Commands {
		if cmd.Outcome == verify.OutcomeFailed {
			class := "unknown"
			if cmd.FailureClass != nil {
				class = string(*cmd.FailureClass)
			}
			return fmt.Sprintf("%s: %s", class, cmd.Command.Effective)
		}
	}
	return "verify failed"
}
