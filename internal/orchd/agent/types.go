package agent

import (
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// EnvPair is one ordered (key, value) environment entry. Order matters:
// it is reproduced verbatim in the rendered shell invocation.
type EnvPair struct {
	Key   string
	Value string
}

// EpochRequest is everything needed to drive a single agent epoch.
type EpochRequest struct {
	TaskID     domain.TaskId
	RepoID     domain.RepoId
	Model      domain.ModelKind
	Prompt     string
	ExtraArgs  []string
	Env        []EnvPair
	RepoPath   string
	TimeoutSecs uint64
}

// AgentCommand is the concrete executable/args/env an adapter builds for
// a request.
type AgentCommand struct {
	Executable string
	Args       []string
	Env        []EnvPair
}

// EpochStopReason is why an epoch's poll loop ended.
type EpochStopReason string

const (
	StopCompleted   EpochStopReason = "completed"
	StopFailed      EpochStopReason = "failed"
	StopTimeout     EpochStopReason = "timeout"
	StopNeedHuman   EpochStopReason = "need_human"
	StopPatchReady  EpochStopReason = "patch_ready"
	StopRateLimited EpochStopReason = "rate_limited"
)

// AgentSignalKind is the closed set of meaningful signals detectable in
// a line of agent output.
type AgentSignalKind string

const (
	SignalNeedHuman   AgentSignalKind = "need_human"
	SignalPatchReady  AgentSignalKind = "patch_ready"
	SignalRateLimited AgentSignalKind = "rate_limited"
	SignalErrorHint   AgentSignalKind = "error_hint"
)

// AgentSignal is one detected signal, carrying the line it came from.
type AgentSignal struct {
	Kind       AgentSignalKind
	At         time.Time
	Message    string
	SourceLine string
}

// PtyChunk is one captured line of PTY output with its arrival time.
type PtyChunk struct {
	At   time.Time
	Text string
}

// EpochResult is everything the runner captured over one epoch.
type EpochResult struct {
	TaskID     domain.TaskId
	RepoID     domain.RepoId
	Model      domain.ModelKind
	StartedAt  time.Time
	FinishedAt time.Time
	StopReason EpochStopReason
	ExitCode   *int
	Output     []PtyChunk
	Signals    []AgentSignal
}

// signalToStopReason maps a detected signal kind to the stop reason it
// forces, if any. ErrorHint is recorded but never forces a stop.
func signalToStopReason(kind AgentSignalKind) (EpochStopReason, bool) {
	switch kind {
	case SignalNeedHuman:
		return StopNeedHuman, true
	case SignalPatchReady:
		return StopPatchReady, true
	case SignalRateLimited:
		return StopRateLimited, true
	default:
		return "", false
	}
}
