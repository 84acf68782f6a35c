// Package scheduler decides, on each tick, which queued tasks may
// start running given per-repo and per-model concurrency limits and
// model availability.
package scheduler

import (
	"sort"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// Config bounds how many tasks may run concurrently.
type Config struct {
	PerRepoLimit  int
	PerModelLimit map[domain.ModelKind]int
}

// QueuedTask is one task waiting for an assignment.
type QueuedTask struct {
	TaskID         domain.TaskId
	RepoID         domain.RepoId
	PreferredModel *domain.ModelKind
	EligibleModels []domain.ModelKind
	Priority       int
	EnqueuedAt     time.Time
}

// RunningTask is one task currently occupying a repo/model slot.
type RunningTask struct {
	TaskID domain.TaskId
	RepoID domain.RepoId
	Model  domain.ModelKind
}

// ModelAvailability overrides a model's default availability (enabled
// implies available unless explicitly marked otherwise).
type ModelAvailability struct {
	Model     domain.ModelKind
	Available bool
}

// Input is everything Plan needs to produce one scheduling decision.
type Input struct {
	Queued        []QueuedTask
	Running       []RunningTask
	EnabledModels []domain.ModelKind
	Availability  []ModelAvailability
}

// BlockReason explains why a queued task was not assigned this tick.
type BlockReason string

const (
	BlockRepoLimitReached  BlockReason = "repo_limit_reached"
	BlockModelLimitReached BlockReason = "model_limit_reached"
	BlockNoAvailableModel  BlockReason = "no_available_model"
)

// Assignment is one task cleared to start running on a model.
type Assignment struct {
	TaskID domain.TaskId
	RepoID domain.RepoId
	Model  domain.ModelKind
}

// Blocked is one task that stayed queued this tick, and why.
type Blocked struct {
	TaskID domain.TaskId
	Reason BlockReason
}

// Plan is the full output of one scheduling tick.
type Plan struct {
	Assignments []Assignment
	Blocked     []Blocked
}

// Scheduler holds the concurrency configuration Plan enforces.
type Scheduler struct {
	Config Config
}

// New builds a Scheduler for config.
func New(config Config) Scheduler { return Scheduler{Config: config} }

// Plan is a pure function of input: it does not mutate input, touch
// the clock, or read any external state. Queued tasks are considered
// in descending priority, then oldest-enqueued-first, then by task ID,
// so the result is deterministic for a given input.
func (s Scheduler) Plan(input Input) Plan {
	queued := make([]QueuedTask, len(input.Queued))
	copy(queued, input.Queued)
	sort.SliceStable(queued, func(i, j int) bool {
		a, b := queued[i], queued[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.TaskID < b.TaskID
	})

	repoCounts := map[domain.RepoId]int{}
	modelCounts := map[domain.ModelKind]int{}
	for _, running := range input.Running {
		repoCounts[running.RepoID]++
		modelCounts[running.Model]++
	}

	availableModels := availableModelSet(input.EnabledModels, input.Availability)

	var plan Plan
	for _, task := range queued {
		if repoCounts[task.RepoID] >= s.Config.PerRepoLimit {
			plan.Blocked = append(plan.Blocked, Blocked{TaskID: task.TaskID, Reason: BlockRepoLimitReached})
			continue
		}

		candidates := candidateModelsForTask(task, input.EnabledModels, availableModels)
		if len(candidates) == 0 {
			plan.Blocked = append(plan.Blocked, Blocked{TaskID: task.TaskID, Reason: BlockNoAvailableModel})
			continue
		}

		model, ok := selectModel(candidates, modelCounts, s.Config.PerModelLimit)
		if !ok {
			plan.Blocked = append(plan.Blocked, Blocked{TaskID: task.TaskID, Reason: BlockModelLimitReached})
			continue
		}

		repoCounts[task.RepoID]++
		modelCounts[model]++
		plan.Assignments = append(plan.Assignments, Assignment{TaskID: task.TaskID, RepoID: task.RepoID, Model: model})
	}

	return plan
}

func selectModel(candidates []domain.ModelKind, modelCounts map[domain.ModelKind]int, perModelLimit map[domain.ModelKind]int) (domain.ModelKind, bool) {
	for _, model := range candidates {
		limit, hasLimit := perModelLimit[model]
		if !hasLimit {
			return model, true
		}
		if modelCounts[model] < limit {
			return model, true
		}
	}
	return "", false
}

func availableModelSet(enabledModels []domain.ModelKind, availability []ModelAvailability) map[domain.ModelKind]bool {
	explicit := map[domain.ModelKind]bool{}
	for _, status := range availability {
		explicit[status.Model] = status.Available
	}

	result := map[domain.ModelKind]bool{}
	for _, model := range enabledModels {
		if available, ok := explicit[model]; ok {
			if available {
				result[model] = true
			}
			continue
		}
		result[model] = true
	}
	return result
}

func candidateModelsForTask(task QueuedTask, enabledModels []domain.ModelKind, availableModels map[domain.ModelKind]bool) []domain.ModelKind {
	if task.PreferredModel != nil {
		preferred := *task.PreferredModel
		if availableModels[preferred] && (len(task.EligibleModels) == 0 || containsModel(task.EligibleModels, preferred)) {
			return []domain.ModelKind{preferred}
		}
	}

	eligible := map[domain.ModelKind]bool{}
	for _, model := range task.EligibleModels {
		eligible[model] = true
	}

	var candidates []domain.ModelKind
	for _, model := range enabledModels {
		if !availableModels[model] {
			continue
		}
		if len(eligible) > 0 && !eligible[model] {
			continue
		}
		candidates = append(candidates, model)
	}
	return candidates
}

func containsModel(models []domain.ModelKind, target domain.ModelKind) bool {
	for _, model := range models {
		if model == target {
			return true
		}
	}
	return false
}
