// Package domain holds the orchestrator's core record types, enums, and
// the guarded task-state machine. Nothing in this package touches a
// subprocess, the filesystem, or the network: it is the shape of truth
// that every other orchd package reads and writes through the store.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskId, RepoId, and EventId are opaque short strings rather than
// distinct Go types: the store and every wire format treat them as plain
// strings, and a newtype wrapper would only add conversion noise at
// every call site.
type (
	TaskId  = string
	RepoId  = string
	EventId = string
)

// NewTaskId mints an opaque task identifier.
func NewTaskId() TaskId { return "T-" + uuid.NewString() }

// NewEventId mints an opaque event identifier.
func NewEventId() EventId { return uuid.NewString() }

// NewRunId mints an opaque agent-run identifier.
func NewRunId() string { return "R-" + uuid.NewString() }

// NewArtifactId mints an opaque artifact identifier.
func NewArtifactId() string { return "A-" + uuid.NewString() }

// ModelKind is the closed set of agent model providers.
type ModelKind string

const (
	ModelClaude ModelKind = "claude"
	ModelCodex  ModelKind = "codex"
	ModelGemini ModelKind = "gemini"
)

// String satisfies fmt.Stringer and is also the snake_case wire form.
func (m ModelKind) String() string { return string(m) }

// ParseModelKind validates a wire string against the closed set.
func ParseModelKind(s string) (ModelKind, error) {
	switch ModelKind(s) {
	case ModelClaude, ModelCodex, ModelGemini:
		return ModelKind(s), nil
	default:
		return "", fmt.Errorf("unknown model kind %q", s)
	}
}

// SubmitMode controls whether a task's branch is submitted alone or as
// part of a Graphite stack.
type SubmitMode string

const (
	SubmitSingle SubmitMode = "single"
	SubmitStack  SubmitMode = "stack"
)

// ReviewPolicy selects how many approvals the review gate demands.
type ReviewPolicy string

const (
	PolicyAdaptive ReviewPolicy = "adaptive"
	PolicyStrict   ReviewPolicy = "strict"
)

// ReviewCapacityState describes whether enough reviewers are available.
type ReviewCapacityState string

const (
	CapacitySufficient                ReviewCapacityState = "sufficient"
	CapacityWaitingForReviewCapacity  ReviewCapacityState = "waiting_for_review_capacity"
	CapacityNeedsHuman                ReviewCapacityState = "needs_human"
)

// VerifyTier is the depth of a verification pass.
type VerifyTier string

const (
	TierQuick VerifyTier = "quick"
	TierFull  VerifyTier = "full"
)

// TaskRole distinguishes the kind of work a task represents within a
// larger piece of work (e.g. the coordinating task of a stack versus a
// leaf task). Kept as an open string set: the orchestrator does not
// branch on role, only stores and reports it.
type TaskRole string

// TaskType is either one of a small closed set of well-known kinds or an
// arbitrary operator-supplied string, carried under the Other variant so
// it round-trips without the orchestrator needing to know every kind a
// caller might use.
type TaskType struct {
	Kind  string // "feature", "bugfix", "chore", or "other"
	Other string // populated iff Kind == "other"
}

// TaskTypeOf builds a TaskType, treating anything outside the well-known
// set as Other.
func TaskTypeOf(s string) TaskType {
	switch s {
	case "feature", "bugfix", "chore":
		return TaskType{Kind: s}
	default:
		return TaskType{Kind: "other", Other: s}
	}
}

// String renders the TaskType back to its wire form.
func (t TaskType) String() string {
	if t.Kind == "other" {
		return t.Other
	}
	return t.Kind
}

// PullRequestRef identifies the pull request, if any, opened for a task.
type PullRequestRef struct {
	Number int
	URL    string
	Draft  bool
}

// VerifyStatus is a sum type over the four states a verification pass
// can be in. Exactly one field is meaningful per Kind.
type VerifyStatus struct {
	Kind    VerifyStatusKind
	Tier    VerifyTier // meaningful for Running/Passed/Failed
	Summary string     // meaningful for Failed
}

// VerifyStatusKind discriminates VerifyStatus.
type VerifyStatusKind string

const (
	VerifyNotRun  VerifyStatusKind = "not_run"
	VerifyRunning VerifyStatusKind = "running"
	VerifyPassed  VerifyStatusKind = "passed"
	VerifyFailed  VerifyStatusKind = "failed"
)

// NotRunStatus is the zero-value verify status for a freshly queued task.
func NotRunStatus() VerifyStatus { return VerifyStatus{Kind: VerifyNotRun} }

// RunningStatus reports a verification pass in progress.
func RunningStatus(tier VerifyTier) VerifyStatus {
	return VerifyStatus{Kind: VerifyRunning, Tier: tier}
}

// PassedStatus reports a verification pass that succeeded.
func PassedStatus(tier VerifyTier) VerifyStatus {
	return VerifyStatus{Kind: VerifyPassed, Tier: tier}
}

// FailedStatus reports a verification pass that failed, with a summary.
func FailedStatus(tier VerifyTier, summary string) VerifyStatus {
	return VerifyStatus{Kind: VerifyFailed, Tier: tier, Summary: summary}
}

// ReviewStatus is the per-task snapshot of the review gate's bookkeeping.
type ReviewStatus struct {
	RequiredModels    []ModelKind
	ApprovalsReceived int
	ApprovalsRequired int
	Unanimous         bool
	CapacityState     ReviewCapacityState
}

// Task is the central mutable record. It is exclusively owned by the
// store and mutated only through Transition (for State) or explicit
// field assignment by the orchestrator service — never by any other
// package reaching into its fields and writing state directly.
type Task struct {
	ID             TaskId
	RepoID         RepoId
	Title          string
	Role           TaskRole
	Type           TaskType
	PreferredModel *ModelKind

	State      TaskState
	SubmitMode SubmitMode

	DependsOn []TaskId

	BranchName    string
	WorktreePath  string
	PR            *PullRequestRef

	VerifyStatus VerifyStatus
	ReviewStatus ReviewStatus

	RetryCount   int
	MaxRetries   int
	FailedModels map[ModelKind]struct{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTask constructs a Task at its initial Queued state with sensible
// zero values for the fields the scheduler and state machine require.
func NewTask(id, repoID, title string, role TaskRole, taskType TaskType, submitMode SubmitMode, maxRetries int) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:           id,
		RepoID:       repoID,
		Title:        title,
		Role:         role,
		Type:         taskType,
		State:        StateQueued,
		SubmitMode:   submitMode,
		VerifyStatus: NotRunStatus(),
		MaxRetries:   maxRetries,
		FailedModels: make(map[ModelKind]struct{}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasFailedModel reports whether model has already been recorded as
// having failed this task.
func (t *Task) HasFailedModel(m ModelKind) bool {
	_, ok := t.FailedModels[m]
	return ok
}

// RecordFailedModel adds model to the task's failed-model set.
func (t *Task) RecordFailedModel(m ModelKind) {
	if t.FailedModels == nil {
		t.FailedModels = make(map[ModelKind]struct{})
	}
	t.FailedModels[m] = struct{}{}
}

// TaskApproval is a single reviewer's latest verdict on a task. Unique by
// (TaskID, Reviewer); the store upserts so the latest write wins.
type TaskApproval struct {
	TaskID   TaskId
	Reviewer ModelKind
	Verdict  ReviewVerdict
	IssuedAt time.Time
}

// ReviewVerdict is a reviewer's judgment of a task's changes.
type ReviewVerdict string

const (
	VerdictApprove        ReviewVerdict = "approve"
	VerdictRequestChanges ReviewVerdict = "request_changes"
	VerdictBlock          ReviewVerdict = "block"
)

// TaskRunRecord captures one agent-epoch invocation for a task.
type TaskRunRecord struct {
	RunID      string
	TaskID     TaskId
	RepoID     RepoId
	Model      ModelKind
	StartedAt  time.Time
	FinishedAt *time.Time
	StopReason string
	ExitCode   *int
}

// ArtifactRecord is an insert-only pointer to a produced file (patch,
// log capture, diff snapshot, ...).
type ArtifactRecord struct {
	ArtifactID string
	TaskID     TaskId
	Kind       string
	Path       string
	CreatedAt  time.Time
	Metadata   map[string]any
}
