package service

import (
	"context"
	"fmt"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/config"
	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/othala-dev/orchd/internal/orchd/orchlog"
)

const defaultMaxRetries = 3

// CreateTask admits a new task spec into the store at Queued, ready for
// the next Tick's scheduler pass to pick it up.
func (s *Service) CreateTask(spec config.TaskSpec) (*domain.Task, error) {
	if _, err := s.repoRuntime(spec.RepoID); err != nil {
		return nil, err
	}

	taskID := spec.TaskID
	if taskID == "" {
		taskID = domain.NewTaskId()
	}

	submitMode := domain.SubmitSingle
	if spec.SubmitMode != nil {
		submitMode = *spec.SubmitMode
	}

	task := domain.NewTask(taskID, spec.RepoID, spec.Title, spec.Role, spec.TaskType, submitMode, defaultMaxRetries)
	task.PreferredModel = spec.PreferredModel
	task.DependsOn = spec.DependsOn

	s.persistTask(task)
	s.recordEvent(domain.NewEvent(task.ID, task.RepoID, domain.EventKind{Kind: domain.EventTaskCreated}))
	return task, nil
}

// RecordApproval upserts a reviewer's verdict on a task. The next Tick's
// Reviewing pass will re-evaluate the review gate with it included.
func (s *Service) RecordApproval(approval domain.TaskApproval) error {
	return s.store.UpsertApproval(approval)
}

// Pause moves a task to Paused, taking it out of scheduling and pipeline
// advancement until Resume is called.
func (s *Service) Pause(taskID domain.TaskId) error {
	task, err := s.store.LoadTask(taskID)
	if err != nil {
		return fmt.Errorf("service: loading task %s: %w", taskID, err)
	}
	s.transition(task, domain.StatePaused, domain.EventKind{})
	return nil
}

// Resume moves a Paused task back to Running.
func (s *Service) Resume(taskID domain.TaskId) error {
	task, err := s.store.LoadTask(taskID)
	if err != nil {
		return fmt.Errorf("service: loading task %s: %w", taskID, err)
	}
	if task.State != domain.StatePaused {
		return fmt.Errorf("service: task %s is not Paused (state=%s)", taskID, task.State)
	}
	s.transition(task, domain.StateRunning, domain.EventKind{})
	return nil
}

// GetTask loads a single task by id.
func (s *Service) GetTask(taskID domain.TaskId) (*domain.Task, error) {
	return s.store.LoadTask(taskID)
}

// ListTasks returns every task the store knows about.
func (s *Service) ListTasks() ([]*domain.Task, error) {
	return s.store.ListTasks()
}

// SyncRepos admits any repo in cfgs that isn't already configured,
// discovering its git handle and building its adapters just like New
// does at startup. It never removes or reconfigures an existing repo:
// changing a running repo's settings still requires a restart, since
// tasks may be mid-flight against its current worktrees/verify runner.
func (s *Service) SyncRepos(cfgs []config.RepoConfig) error {
	for _, repoCfg := range cfgs {
		s.mu.Lock()
		_, exists := s.repos[repoCfg.RepoID]
		s.mu.Unlock()
		if exists {
			continue
		}

		runtime, err := newRepoRuntime(repoCfg, s.org)
		if err != nil {
			return fmt.Errorf("service: setting up newly-discovered repo %s: %w", repoCfg.RepoID, err)
		}

		s.mu.Lock()
		s.repos[repoCfg.RepoID] = runtime
		s.mu.Unlock()
		orchlog.Info(orchlog.CatService, "admitted newly-discovered repo config", "repo_id", repoCfg.RepoID)
	}
	return nil
}

// Run ticks the service on interval until ctx is cancelled, the Go
// equivalent of the daemon's sleep-then-tick bootstrap loop.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				return fmt.Errorf("service: tick failed: %w", err)
			}
		}
	}
}
