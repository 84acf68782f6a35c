package domain

import "time"

// EventKind is the closed set of event variants the orchestrator may
// append. Exactly one of the variant-specific fields is populated,
// selected by Kind.
type EventKind struct {
	Kind EventKindTag

	// TaskStateChanged
	From TaskState
	To   TaskState

	// DraftPrCreated
	PRNumber int
	PRURL    string

	// ParentHeadUpdated, RestackConflict(resolved ref)
	ParentTaskID TaskId

	// VerifyRequested / VerifyCompleted
	Tier    VerifyTier
	Success bool

	// ReviewRequested
	RequiredModels []ModelKind

	// ReviewCompleted
	Reviewer     ModelKind
	ReviewOutput ReviewOutput

	// NeedsHuman
	Reason string

	// SubmitStarted
	SubmitMode SubmitMode

	// Error
	Code    string
	Message string
}

// EventKindTag discriminates EventKind.
type EventKindTag string

const (
	EventTaskCreated       EventKindTag = "task_created"
	EventTaskStateChanged  EventKindTag = "task_state_changed"
	EventDraftPrCreated    EventKindTag = "draft_pr_created"
	EventParentHeadUpdated EventKindTag = "parent_head_updated"
	EventRestackStarted    EventKindTag = "restack_started"
	EventRestackCompleted  EventKindTag = "restack_completed"
	EventRestackConflict   EventKindTag = "restack_conflict"
	EventRestackResolved   EventKindTag = "restack_resolved"
	EventVerifyRequested   EventKindTag = "verify_requested"
	EventVerifyCompleted   EventKindTag = "verify_completed"
	EventReviewRequested   EventKindTag = "review_requested"
	EventReviewCompleted   EventKindTag = "review_completed"
	EventReadyReached      EventKindTag = "ready_reached"
	EventSubmitStarted     EventKindTag = "submit_started"
	EventSubmitCompleted   EventKindTag = "submit_completed"
	EventNeedsHuman        EventKindTag = "needs_human"
	EventError             EventKindTag = "error"
)

// IssueSeverity classifies a single review comment.
type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "info"
	SeverityWarning  IssueSeverity = "warning"
	SeverityBlocking IssueSeverity = "blocking"
)

// ReviewIssue is one reviewer-flagged concern attached to a ReviewOutput.
type ReviewIssue struct {
	Severity IssueSeverity
	File     string
	Line     int
	Message  string
}

// GraphiteHygieneReport summarizes whether a task's branch is clean from
// the Graphite stack's point of view (used as the ready gate's fourth
// input alongside verify/review/capacity).
type GraphiteHygieneReport struct {
	OK     bool
	Issues []string
}

// TestAssessment is a reviewer's judgment of whether the task's tests
// adequately cover its changes, carried as part of ReviewOutput.
type TestAssessment struct {
	Adequate bool
	Notes    string
}

// ReviewOutput is the full payload a reviewer attaches to a verdict.
type ReviewOutput struct {
	Verdict ReviewVerdict
	Summary string
	Issues  []ReviewIssue
	Tests   TestAssessment
}

// Event is an append-only record: once written it is never mutated. At
// least one of TaskID/RepoID is typically populated depending on scope.
type Event struct {
	ID     EventId
	TaskID TaskId // empty if not task-scoped
	RepoID RepoId // empty if not repo-scoped
	At     time.Time
	Kind   EventKind
}

// NewEvent stamps a fresh Event with a minted ID and the current time.
func NewEvent(taskID TaskId, repoID RepoId, kind EventKind) Event {
	return Event{
		ID:     NewEventId(),
		TaskID: taskID,
		RepoID: repoID,
		At:     time.Now().UTC(),
		Kind:   kind,
	}
}
