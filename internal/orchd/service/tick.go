package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/othala-dev/orchd/internal/orchd/agent"
	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/othala-dev/orchd/internal/orchd/orchlog"
	"github.com/othala-dev/orchd/internal/orchd/retry"
	"github.com/othala-dev/orchd/internal/orchd/scheduler"
)

// TickReport summarizes what one Tick call observed: which queued
// tasks the scheduler couldn't admit, and why.
type TickReport struct {
	Blocked []scheduler.Blocked
}

// Tick runs one full coordination pass: admit queued tasks onto free
// model/repo slots, then advance every task already mid-pipeline
// (verify, review, ready, restack) by exactly one step.
func (s *Service) Tick(ctx context.Context) (TickReport, error) {
	ctx, span := s.tracer.Start(ctx, "orchd.tick")
	defer span.End()

	tasks, err := s.store.ListTasks()
	if err != nil {
		return TickReport{}, fmt.Errorf("service: listing tasks: %w", err)
	}

	plan := s.planAdmission(tasks)

	var wg sync.WaitGroup
	byID := make(map[domain.TaskId]*domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, assignment := range plan.Assignments {
		task := byID[assignment.TaskID]
		if task == nil {
			continue
		}
		wg.Add(1)
		go func(task *domain.Task, model domain.ModelKind) {
			defer wg.Done()
			if err := s.startTask(ctx, task, model); err != nil {
				orchlog.ErrorErr(orchlog.CatService, "failed to start task", err, "task_id", task.ID)
			}
		}(task, assignment.Model)
	}
	wg.Wait()

	for _, t := range tasks {
		switch t.State {
		case domain.StateRestacking, domain.StateVerifyingQuick, domain.StateReviewing,
			domain.StateReady, domain.StateVerifyingFull:
			s.advanceTask(ctx, t)
		}
	}

	s.checkTimeouts()

	return TickReport{Blocked: plan.Blocked}, nil
}

func (s *Service) planAdmission(tasks []*domain.Task) scheduler.Plan {
	s.mu.Lock()
	runningModels := make(map[domain.TaskId]domain.ModelKind, len(s.running))
	for id, model := range s.running {
		runningModels[id] = model
	}
	s.mu.Unlock()

	var queued []scheduler.QueuedTask
	var running []scheduler.RunningTask
	for _, t := range tasks {
		switch t.State {
		case domain.StateQueued:
			queued = append(queued, scheduler.QueuedTask{
				TaskID:         t.ID,
				RepoID:         t.RepoID,
				PreferredModel: t.PreferredModel,
				EligibleModels: s.eligibleModels(t),
				Priority:       0,
				EnqueuedAt:     t.CreatedAt,
			})
		case domain.StateRunning:
			model, ok := runningModels[t.ID]
			if !ok {
				model = s.fallbackModel(t)
			}
			running = append(running, scheduler.RunningTask{TaskID: t.ID, RepoID: t.RepoID, Model: model})
		}
	}

	availability := make([]scheduler.ModelAvailability, 0, len(s.enabledModels))
	for _, m := range s.enabledModels {
		availability = append(availability, scheduler.ModelAvailability{Model: m, Available: true})
	}

	return s.scheduler.Plan(scheduler.Input{
		Queued:        queued,
		Running:       running,
		EnabledModels: s.enabledModels,
		Availability:  availability,
	})
}

// eligibleModels is every enabled model this task hasn't already
// exhausted a failed attempt with.
func (s *Service) eligibleModels(task *domain.Task) []domain.ModelKind {
	eligible := make([]domain.ModelKind, 0, len(s.enabledModels))
	for _, m := range s.enabledModels {
		if !task.HasFailedModel(m) {
			eligible = append(eligible, m)
		}
	}
	return eligible
}

func (s *Service) fallbackModel(task *domain.Task) domain.ModelKind {
	if task.PreferredModel != nil {
		return *task.PreferredModel
	}
	if len(s.enabledModels) > 0 {
		return s.enabledModels[0]
	}
	return domain.ModelClaude
}

// startTask materializes a queued task's worktree and branch, marks it
// running, and runs its first agent epoch to completion before returning.
func (s *Service) startTask(ctx context.Context, task *domain.Task, model domain.ModelKind) error {
	ctx, span := s.tracer.Start(ctx, "orchd.start_task")
	defer span.End()

	repo, err := s.repoRuntime(task.RepoID)
	if err != nil {
		return err
	}

	if task.WorktreePath == "" {
		branch := fmt.Sprintf("task/%s", task.ID)
		info, err := repo.Worktrees.CreateWithEmptyInitialCommit(repo.Repo, string(task.ID), branch)
		if err != nil {
			return fmt.Errorf("creating worktree: %w", err)
		}
		task.BranchName = info.Branch
		task.WorktreePath = info.Path
	}

	s.transition(task, domain.StateInitializing, domain.EventKind{})
	if repo.Config.Graphite.DraftOnStart {
		s.transition(task, domain.StateDraftPrOpen, domain.EventKind{Kind: domain.EventDraftPrCreated})
	} else {
		s.transition(task, domain.StateDraftPrOpen, domain.EventKind{})
	}
	s.transition(task, domain.StateRunning, domain.EventKind{})

	s.mu.Lock()
	s.running[task.ID] = model
	s.mu.Unlock()
	s.timeouts.StartTracking(task.ID, string(domain.StateRunning))

	s.runEpoch(ctx, task, repo, model)
	return nil
}

// runEpoch drives one agent epoch to completion and interprets the
// result: success moves the task into the verify pipeline, a recorded
// need-human signal stops the task outright, and anything else is
// handed to the retry policy.
func (s *Service) runEpoch(ctx context.Context, task *domain.Task, repo *RepoRuntime, model domain.ModelKind) {
	_, span := s.tracer.Start(ctx, "orchd.agent_epoch")
	defer span.End()

	adapter, ok := repo.Adapters[model]
	if !ok {
		var err error
		adapter, err = agent.DefaultAdapterFor(model)
		if err != nil {
			orchlog.ErrorErr(orchlog.CatAgent, "no adapter available for model", err, "task_id", task.ID, "model", model)
			s.finishEpoch(task, retry.AgentOutcome{TaskID: task.ID, Model: model, NeedsHuman: true})
			return
		}
	}

	request := agent.EpochRequest{
		TaskID:      task.ID,
		RepoID:      task.RepoID,
		Model:       model,
		Prompt:      fmt.Sprintf("Implement task %s: %s", task.ID, task.Title),
		RepoPath:    task.WorktreePath,
		TimeoutSecs: 3600,
	}

	result, err := s.epochs.RunEpoch(request, adapter)
	if err != nil {
		orchlog.ErrorErr(orchlog.CatAgent, "agent epoch failed to run", err, "task_id", task.ID, "model", model)
		s.finishEpoch(task, retry.AgentOutcome{TaskID: task.ID, Model: model, Success: false})
		return
	}

	run := domain.TaskRunRecord{
		RunID:      domain.NewRunId(),
		TaskID:     task.ID,
		RepoID:     task.RepoID,
		Model:      model,
		StartedAt:  result.StartedAt,
		FinishedAt: &result.FinishedAt,
		StopReason: string(result.StopReason),
		ExitCode:   result.ExitCode,
	}
	if err := s.store.InsertRun(run); err != nil {
		orchlog.ErrorErr(orchlog.CatStore, "failed to record run", err, "task_id", task.ID, "run_id", run.RunID)
	}

	outcome := retry.AgentOutcome{
		TaskID:     task.ID,
		Model:      model,
		Success:    result.StopReason == agent.StopCompleted,
		PatchReady: result.StopReason == agent.StopPatchReady,
		NeedsHuman: result.StopReason == agent.StopNeedHuman,
	}
	s.finishEpoch(task, outcome)
}

func (s *Service) finishEpoch(task *domain.Task, outcome retry.AgentOutcome) {
	s.mu.Lock()
	delete(s.running, task.ID)
	s.mu.Unlock()
	s.timeouts.StopTracking(task.ID)

	current, err := s.store.LoadTask(task.ID)
	if err != nil {
		orchlog.ErrorErr(orchlog.CatService, "failed to reload task after epoch", err, "task_id", task.ID)
		current = task
	}

	switch {
	case outcome.Success, outcome.PatchReady:
		current.VerifyStatus = domain.NotRunStatus()
		s.transition(current, domain.StateVerifyingQuick, domain.EventKind{})
		return
	case outcome.NeedsHuman:
		s.transition(current, domain.StateNeedsHuman, domain.EventKind{Kind: domain.EventNeedsHuman, Reason: "agent requested human help"})
		return
	}

	decision := retry.Evaluate(current, outcome, s.enabledModels)
	current.RecordFailedModel(outcome.Model)
	current.RetryCount++
	if decision.ShouldRetry && decision.NextModel != nil {
		s.persistTask(current)
		s.mu.Lock()
		s.running[current.ID] = *decision.NextModel
		s.mu.Unlock()
		s.timeouts.StartTracking(current.ID, string(domain.StateRunning))
		go s.runEpoch(context.Background(), current, s.mustRepoRuntime(current.RepoID), *decision.NextModel)
		return
	}

	s.transition(current, domain.StateFailed, domain.EventKind{Kind: domain.EventError, Message: decision.Reason})
}

func (s *Service) mustRepoRuntime(repoID domain.RepoId) *RepoRuntime {
	runtime, err := s.repoRuntime(repoID)
	if err != nil {
		// A task cannot reach this point without a repo runtime already
		// having been resolved once for it; a failure here means the
		// daemon's repo configuration changed underneath a running task.
		panic(fmt.Sprintf("service: repo runtime vanished for %s: %v", repoID, err))
	}
	return runtime
}
