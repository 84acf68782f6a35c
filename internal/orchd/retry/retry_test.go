package retry

import (
	"testing"

	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/stretchr/testify/require"
)

func mkTask() *domain.Task {
	return domain.NewTask("T1", "repo", "Test task", domain.TaskRole("general"), domain.TaskType{Kind: "feature"}, domain.SubmitSingle, 3)
}

func mkOutcome(success bool) AgentOutcome {
	return AgentOutcome{TaskID: "T1", Model: domain.ModelClaude, Success: success, PatchReady: success}
}

func allModels() []domain.ModelKind {
	return []domain.ModelKind{domain.ModelClaude, domain.ModelCodex, domain.ModelGemini}
}

func TestEvaluate_NoRetryOnSuccess(t *testing.T) {
	decision := Evaluate(mkTask(), mkOutcome(true), allModels())
	require.False(t, decision.ShouldRetry)
}

func TestEvaluate_NoRetryOnNeedsHuman(t *testing.T) {
	outcome := mkOutcome(false)
	outcome.NeedsHuman = true
	decision := Evaluate(mkTask(), outcome, allModels())
	require.False(t, decision.ShouldRetry)
	require.Contains(t, decision.Reason, "human")
}

func TestEvaluate_RetriesWithPreferredModelWhenDifferentModelFailed(t *testing.T) {
	task := mkTask()
	claude := domain.ModelClaude
	task.PreferredModel = &claude

	outcome := mkOutcome(false)
	outcome.Model = domain.ModelCodex
	decision := Evaluate(task, outcome, allModels())

	require.True(t, decision.ShouldRetry)
	require.Equal(t, domain.ModelClaude, *decision.NextModel)
}

func TestEvaluate_SwitchesModelWhenPreferredJustFailed(t *testing.T) {
	task := mkTask()
	claude := domain.ModelClaude
	task.PreferredModel = &claude

	decision := Evaluate(task, mkOutcome(false), allModels())

	require.True(t, decision.ShouldRetry)
	require.Equal(t, domain.ModelCodex, *decision.NextModel)
}

func TestEvaluate_FallsBackWhenPreferredModelFailed(t *testing.T) {
	task := mkTask()
	claude := domain.ModelClaude
	task.PreferredModel = &claude
	task.RecordFailedModel(domain.ModelClaude)

	decision := Evaluate(task, mkOutcome(false), allModels())

	require.True(t, decision.ShouldRetry)
	require.Equal(t, domain.ModelCodex, *decision.NextModel)
}

func TestEvaluate_NoRetryWhenAllModelsFailed(t *testing.T) {
	task := mkTask()
	task.RecordFailedModel(domain.ModelClaude)
	task.RecordFailedModel(domain.ModelCodex)
	task.RecordFailedModel(domain.ModelGemini)

	decision := Evaluate(task, mkOutcome(false), allModels())

	require.False(t, decision.ShouldRetry)
	require.Contains(t, decision.Reason, "no available models")
}

func TestEvaluate_NoRetryWhenMaxRetriesExhausted(t *testing.T) {
	task := mkTask()
	task.RetryCount = 3
	task.MaxRetries = 3

	decision := Evaluate(task, mkOutcome(false), allModels())

	require.False(t, decision.ShouldRetry)
	require.Contains(t, decision.Reason, "exhausted")
}

func TestEvaluate_PicksFirstAvailableWhenNoPreferred(t *testing.T) {
	task := mkTask()
	decision := Evaluate(task, mkOutcome(false), allModels())

	require.True(t, decision.ShouldRetry)
	require.Equal(t, domain.ModelCodex, *decision.NextModel)
}

func TestEvaluate_SkipsDisabledModels(t *testing.T) {
	task := mkTask()
	gemini := domain.ModelGemini
	task.PreferredModel = &gemini

	outcome := mkOutcome(false)
	outcome.Model = domain.ModelGemini
	decision := Evaluate(task, outcome, []domain.ModelKind{domain.ModelClaude, domain.ModelCodex})

	require.True(t, decision.ShouldRetry)
	require.Equal(t, domain.ModelClaude, *decision.NextModel)
}

func TestEvaluate_NoRetryWhenJustFailedIsOnlyEnabledModel(t *testing.T) {
	task := mkTask()
	claude := domain.ModelClaude
	task.PreferredModel = &claude

	decision := Evaluate(task, mkOutcome(false), []domain.ModelKind{domain.ModelClaude})

	require.False(t, decision.ShouldRetry)
	require.Contains(t, decision.Reason, "no available models")
}
