package agent

import (
	"testing"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/stretchr/testify/require"
)

func TestDetectCommonSignal_NeedHuman(t *testing.T) {
	signal := DetectCommonSignal("status: [needs_human] reviewer input required")
	require.NotNil(t, signal)
	require.Equal(t, SignalNeedHuman, signal.Kind)
	require.Equal(t, "status: [needs_human] reviewer input required", signal.Message)
}

func TestDetectCommonSignal_PatchReady(t *testing.T) {
	signal := DetectCommonSignal("all done, ready for review")
	require.NotNil(t, signal)
	require.Equal(t, SignalPatchReady, signal.Kind)
}

func TestDetectCommonSignal_RateLimited(t *testing.T) {
	signal := DetectCommonSignal("429 too many requests from provider")
	require.NotNil(t, signal)
	require.Equal(t, SignalRateLimited, signal.Kind)
}

func TestDetectCommonSignal_ErrorHint(t *testing.T) {
	signal := DetectCommonSignal("fatal: failed to apply patch")
	require.NotNil(t, signal)
	require.Equal(t, SignalErrorHint, signal.Kind)
}

func TestDetectCommonSignal_NoneForPlainOutput(t *testing.T) {
	require.Nil(t, DetectCommonSignal("progress: compiling packages"))
}

func TestDefaultAdapterFor(t *testing.T) {
	a, err := DefaultAdapterFor(domain.ModelClaude)
	require.NoError(t, err)
	require.Equal(t, domain.ModelClaude, a.Model())

	_, err = DefaultAdapterFor(domain.ModelKind("unknown"))
	require.Error(t, err)
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	require.Equal(t, ErrUnsupportedModel, agentErr.Kind)
}

func TestBuildCommand_AppendsPromptAndPassesEnvThrough(t *testing.T) {
	a := NewClaudeAdapter("")
	req := EpochRequest{
		Prompt:    "fix the bug",
		ExtraArgs: []string{"--quiet"},
		Env:       []EnvPair{{Key: "FOO", Value: "bar"}},
	}
	cmd := a.BuildCommand(req)
	require.Equal(t, "claude", cmd.Executable)
	require.Equal(t, []string{"--quiet", "fix the bug"}, cmd.Args)
	require.Equal(t, []EnvPair{{Key: "FOO", Value: "bar"}}, cmd.Env)
}

func TestRenderShellInvocation_QuotesAndEscapes(t *testing.T) {
	cmd := AgentCommand{
		Executable: "claude",
		Args:       []string{"it's a test"},
		Env:        []EnvPair{{Key: "FOO", Value: "a'b"}, {Key: "", Value: "dropped"}},
	}
	got := renderShellInvocation("/repo path", cmd)
	require.Equal(t, `cd '/repo path' && FOO='a'"'"'b' 'claude' 'it'"'"'s a test'`, got)
}

func TestRunEpoch_RejectsZeroTimeout(t *testing.T) {
	r := NewEpochRunner()
	_, err := r.RunEpoch(EpochRequest{Prompt: "hi", TimeoutSecs: 0, RepoPath: "."}, NewClaudeAdapter(""))
	require.Error(t, err)
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	require.Equal(t, ErrInvalidRequest, agentErr.Kind)
}

func TestRunEpoch_RejectsBlankPrompt(t *testing.T) {
	r := NewEpochRunner()
	_, err := r.RunEpoch(EpochRequest{Prompt: "   ", TimeoutSecs: 5, RepoPath: "."}, NewClaudeAdapter(""))
	require.Error(t, err)
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	require.Equal(t, ErrInvalidRequest, agentErr.Kind)
}

func TestRunEpoch_CompletesOnPatchReadySignal(t *testing.T) {
	r := NewEpochRunner()
	r.PollInterval = 10 * time.Millisecond

	adapter := NewClaudeAdapter("")
	adapter.baseAdapter.executable = "echo"
	req := EpochRequest{
		TaskID:      "T-1",
		RepoID:      "R-1",
		Model:       domain.ModelClaude,
		Prompt:      "all good [patch_ready]",
		ExtraArgs:   nil,
		RepoPath:    t.TempDir(),
		TimeoutSecs: 5,
	}

	result, err := r.RunEpoch(req, adapter)
	require.NoError(t, err)
	require.Equal(t, StopPatchReady, result.StopReason)
	require.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestRunEpoch_TimesOutAndReportsElapsed(t *testing.T) {
	r := NewEpochRunner()
	r.PollInterval = 10 * time.Millisecond

	adapter := NewClaudeAdapter("")
	adapter.baseAdapter.executable = "sleep"
	req := EpochRequest{
		Model:       domain.ModelClaude,
		Prompt:      "5",
		RepoPath:    t.TempDir(),
		TimeoutSecs: 1,
	}

	result, err := r.RunEpoch(req, adapter)
	require.NoError(t, err)
	require.Equal(t, StopTimeout, result.StopReason)
	require.GreaterOrEqual(t, result.FinishedAt.Sub(result.StartedAt), time.Second)
}
