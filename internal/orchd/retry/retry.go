// Package retry decides whether a failed task should be retried and,
// if so, which model the next attempt should use.
package retry

import (
	"fmt"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// AgentOutcome summarizes one agent epoch's result, as far as retry
// evaluation needs to know.
type AgentOutcome struct {
	TaskID     domain.TaskId
	Model      domain.ModelKind
	Success    bool
	PatchReady bool
	NeedsHuman bool
}

// Decision is the retry evaluator's verdict.
type Decision struct {
	ShouldRetry bool
	NextModel   *domain.ModelKind
	Reason      string
}

// Evaluate decides whether task should retry after outcome, and with
// which model. A successful or patch-ready outcome never retries; a
// needs-human outcome never auto-retries; otherwise the task retries
// with its preferred model (if that model isn't the one that just
// failed and hasn't failed before) or the first enabled model that
// hasn't failed, up to MaxRetries attempts.
func Evaluate(task *domain.Task, outcome AgentOutcome, enabledModels []domain.ModelKind) Decision {
	if outcome.Success || outcome.PatchReady {
		return Decision{Reason: "task succeeded"}
	}

	if outcome.NeedsHuman {
		return Decision{Reason: "agent requested human help"}
	}

	if task.RetryCount >= task.MaxRetries {
		return Decision{Reason: fmt.Sprintf("max retries (%d) exhausted", task.MaxRetries)}
	}

	nextModel := pickNextModel(task, outcome.Model, enabledModels)
	if nextModel == nil {
		return Decision{Reason: "no available models left (all have failed)"}
	}

	return Decision{
		ShouldRetry: true,
		NextModel:   nextModel,
		Reason: fmt.Sprintf(
			"retrying (attempt %d/%d) with %s",
			task.RetryCount+1, task.MaxRetries, nextModel.String(),
		),
	}
}

// pickNextModel prefers task's preferred model, skipping it when it
// is the model that just failed or has already failed this task, and
// otherwise falls back to the first enabled model that isn't
// justFailed and hasn't already failed.
func pickNextModel(task *domain.Task, justFailed domain.ModelKind, enabledModels []domain.ModelKind) *domain.ModelKind {
	if task.PreferredModel != nil {
		preferred := *task.PreferredModel
		if preferred != justFailed && !task.HasFailedModel(preferred) && containsModel(enabledModels, preferred) {
			return &preferred
		}
	}

	for _, model := range enabledModels {
		if model == justFailed {
			continue
		}
		if task.HasFailedModel(model) {
			continue
		}
		m := model
		return &m
	}

	return nil
}

func containsModel(models []domain.ModelKind, target domain.ModelKind) bool {
	for _, model := range models {
		if model == target {
			return true
		}
	}
	return false
}
