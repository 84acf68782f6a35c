package domain

import (
	"fmt"
	"time"
)

// TaskState is one of the sixteen lifecycle states a Task can occupy.
type TaskState string

const (
	StateQueued          TaskState = "Queued"
	StateInitializing    TaskState = "Initializing"
	StateDraftPrOpen     TaskState = "DraftPrOpen"
	StateRunning         TaskState = "Running"
	StateRestacking      TaskState = "Restacking"
	StateRestackConflict TaskState = "RestackConflict"
	StateVerifyingQuick  TaskState = "VerifyingQuick"
	StateVerifyingFull   TaskState = "VerifyingFull"
	StateReviewing       TaskState = "Reviewing"
	StateNeedsHuman      TaskState = "NeedsHuman"
	StateReady           TaskState = "Ready"
	StateSubmitting      TaskState = "Submitting"
	StateAwaitingMerge   TaskState = "AwaitingMerge"
	StateMerged          TaskState = "Merged"
	StateFailed          TaskState = "Failed"
	StatePaused          TaskState = "Paused"
)

// Tag renders the state as its SCREAMING_SNAKE_CASE wire form.
func (s TaskState) Tag() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateInitializing:
		return "INITIALIZING"
	case StateDraftPrOpen:
		return "DRAFT_PR_OPEN"
	case StateRunning:
		return "RUNNING"
	case StateRestacking:
		return "RESTACKING"
	case StateRestackConflict:
		return "RESTACK_CONFLICT"
	case StateVerifyingQuick:
		return "VERIFYING_QUICK"
	case StateVerifyingFull:
		return "VERIFYING_FULL"
	case StateReviewing:
		return "REVIEWING"
	case StateNeedsHuman:
		return "NEEDS_HUMAN"
	case StateReady:
		return "READY"
	case StateSubmitting:
		return "SUBMITTING"
	case StateAwaitingMerge:
		return "AWAITING_MERGE"
	case StateMerged:
		return "MERGED"
	case StateFailed:
		return "FAILED"
	case StatePaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// ParseTaskStateTag parses a SCREAMING_SNAKE_CASE wire tag back into a
// TaskState, the inverse of Tag.
func ParseTaskStateTag(tag string) (TaskState, error) {
	for _, s := range allStates {
		if s.Tag() == tag {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown task state tag %q", tag)
}

var allStates = []TaskState{
	StateQueued, StateInitializing, StateDraftPrOpen, StateRunning,
	StateRestacking, StateRestackConflict, StateVerifyingQuick,
	StateVerifyingFull, StateReviewing, StateNeedsHuman, StateReady,
	StateSubmitting, StateAwaitingMerge, StateMerged, StateFailed,
	StatePaused,
}

// terminalStates cannot transition to any other state, not even to
// Failed or Paused through the universal allowance; a self-transition is
// still allowed. Only Merged is terminal; Failed can return to Running
// (see table below).
var terminalStates = map[TaskState]bool{
	StateMerged: true,
}

// transitionTable is the authoritative, explicitly-declared subset of
// the transition graph from spec.md §4.1. Every non-terminal state may
// additionally move to Failed or Paused (enforced in IsTransitionAllowed,
// not duplicated here), and every state may self-transition.
var transitionTable = map[TaskState][]TaskState{
	StateQueued:          {StateInitializing},
	StateInitializing:    {StateDraftPrOpen},
	StateDraftPrOpen:     {StateRunning},
	StateRunning:         {StateRestacking, StateVerifyingQuick, StateNeedsHuman},
	StateRestacking:      {StateVerifyingQuick, StateRestackConflict},
	StateRestackConflict: {StateRestacking, StateNeedsHuman},
	StateVerifyingQuick:  {StateReviewing, StateRunning, StateNeedsHuman},
	StateVerifyingFull:   {StateRunning, StateReviewing, StateReady, StateAwaitingMerge, StateNeedsHuman},
	StateReviewing:       {StateReady, StateRunning, StateVerifyingFull, StateNeedsHuman},
	StateReady:           {StateVerifyingFull, StateSubmitting, StateAwaitingMerge},
	StateSubmitting:      {StateAwaitingMerge},
	StateAwaitingMerge:   {StateVerifyingFull, StateMerged, StateRunning},
	StateNeedsHuman:      {StateRunning},
	StatePaused:          {StateRunning},
	StateFailed:          {StateRunning},
}

// IsTransitionAllowed reports whether a move from `from` to `to` is
// permitted: self-transitions always are, moves to Failed or Paused are
// allowed from any non-terminal state, and every other move must appear
// in transitionTable.
func IsTransitionAllowed(from, to TaskState) bool {
	if from == to {
		return true
	}
	if terminalStates[from] {
		return false
	}
	if to == StateFailed || to == StatePaused {
		return true
	}
	for _, allowed := range transitionTable[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is the only error the state machine can
// produce; it is the sole sanctioned way to refuse a requested move.
type InvalidTransitionError struct {
	From, To TaskState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Transition moves task.State to `to` if the pair is allowed by
// IsTransitionAllowed, stamping UpdatedAt. It is the only sanctioned
// mutator of Task.State; every other package must go through it rather
// than assigning State directly. On failure the task is left unmodified.
func Transition(task *Task, to TaskState) error {
	return transitionAt(task, to, time.Now().UTC())
}

// transitionAt is Transition with an injectable clock, used by tests
// that need deterministic UpdatedAt values.
func transitionAt(task *Task, to TaskState, now time.Time) error {
	if !IsTransitionAllowed(task.State, to) {
		return &InvalidTransitionError{From: task.State, To: to}
	}
	task.State = to
	task.UpdatedAt = now
	return nil
}
