package service

import (
	"fmt"

	"github.com/othala-dev/orchd/internal/orchd/depgraph"
	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/othala-dev/orchd/internal/orchd/orchlog"
	"github.com/othala-dev/orchd/internal/orchd/tasktimeout"
)

// ReportMerged is the operator/CLI-facing signal that a task's pull
// request has actually landed (the daemon has no GitHub client of its
// own to poll merge status). It moves the task to Merged and restacks
// every descendant still running atop it.
func (s *Service) ReportMerged(taskID domain.TaskId) error {
	task, err := s.store.LoadTask(taskID)
	if err != nil {
		return fmt.Errorf("service: loading task %s: %w", taskID, err)
	}
	if task.State != domain.StateAwaitingMerge {
		return fmt.Errorf("service: task %s is not AwaitingMerge (state=%s)", taskID, task.State)
	}

	s.transition(task, domain.StateMerged, domain.EventKind{})

	tasks, err := s.store.ListTasks()
	if err != nil {
		return fmt.Errorf("service: listing tasks for restack trigger: %w", err)
	}
	s.triggerDescendantRestacks(tasks, taskID)
	return nil
}

// triggerDescendantRestacks builds the dependency graph from explicit
// DependsOn edges plus, best-effort, each repo's Graphite-inferred
// stack edges, then moves every Running descendant of parentTaskID into
// Restacking. Only Running tasks can move directly to Restacking per
// the transition table; a descendant mid-review or already Ready picks
// up the new parent head the next time its own pipeline re-checks
// Graphite hygiene.
func (s *Service) triggerDescendantRestacks(tasks []*domain.Task, parentTaskID domain.TaskId) {
	inferred := s.inferredDependencies(tasks)
	graph := depgraph.Build(tasks, inferred)
	descendants := depgraph.RestackDescendants(graph, parentTaskID)

	byID := make(map[domain.TaskId]*domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, id := range descendants {
		descendant, ok := byID[id]
		if !ok {
			continue
		}
		switch descendant.State {
		case domain.StateRunning:
			s.transition(descendant, domain.StateRestacking, domain.EventKind{Kind: domain.EventParentHeadUpdated, ParentTaskID: parentTaskID})
		case domain.StateAwaitingMerge:
			// Already submitted atop the old head; re-verify against the
			// new one rather than restacking a branch that's done moving.
			s.transition(descendant, domain.StateVerifyingFull, domain.EventKind{Kind: domain.EventParentHeadUpdated, ParentTaskID: parentTaskID})
		}
	}
}

func (s *Service) inferredDependencies(tasks []*domain.Task) []depgraph.InferredDependency {
	branchToTask := map[domain.RepoId]map[string]string{}
	for _, t := range tasks {
		if t.BranchName == "" {
			continue
		}
		if branchToTask[t.RepoID] == nil {
			branchToTask[t.RepoID] = map[string]string{}
		}
		branchToTask[t.RepoID][t.BranchName] = string(t.ID)
	}

	var inferred []depgraph.InferredDependency
	s.mu.Lock()
	repos := make([]*RepoRuntime, 0, len(s.repos))
	for _, r := range s.repos {
		repos = append(repos, r)
	}
	s.mu.Unlock()

	for _, repo := range repos {
		mapping := branchToTask[repo.Config.RepoID]
		if len(mapping) == 0 {
			continue
		}
		deps, err := repo.Graphite.InferStackDependencies(mapping)
		if err != nil {
			orchlog.ErrorErr(orchlog.CatGraphite, "failed to infer stack dependencies", err, "repo_id", repo.Config.RepoID)
			continue
		}
		for _, d := range deps {
			inferred = append(inferred, depgraph.InferredDependency{
				ParentTaskID: domain.TaskId(d.Parent),
				ChildTaskID:  domain.TaskId(d.Child),
			})
		}
	}
	return inferred
}

// checkTimeouts runs the deadline tracker and acts on whatever it
// reports: a warning is logged, entering grace is logged, and a kill
// fails the task outright.
func (s *Service) checkTimeouts() {
	for _, action := range s.timeouts.CheckTimeouts() {
		switch action.Kind {
		case tasktimeout.ActionWarn:
			orchlog.Warn(orchlog.CatService, "task approaching its deadline", "task_id", action.TaskID, "remaining_secs", action.RemainingSecs)
		case tasktimeout.ActionGracePeriod:
			orchlog.Warn(orchlog.CatService, "task past its deadline, entering grace period", "task_id", action.TaskID)
		case tasktimeout.ActionKill:
			task, err := s.store.LoadTask(action.TaskID)
			if err != nil {
				orchlog.ErrorErr(orchlog.CatService, "could not load timed-out task", err, "task_id", action.TaskID)
				continue
			}
			s.transition(task, domain.StateFailed, domain.EventKind{Kind: domain.EventError, Message: "killed after exceeding deadline and grace period"})
		}
	}
}
