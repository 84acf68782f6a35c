// Package tasktimeout tracks per-task deadlines and, on each check,
// reports tasks that should be warned about, moved into a grace
// period, or killed outright.
package tasktimeout

import (
	"fmt"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

const warnThreshold = 5 * time.Minute

// Config bounds how long a task may run before being warned, given
// grace, or killed.
type Config struct {
	DefaultTimeout    time.Duration
	MaxTimeout        time.Duration
	GracePeriod       time.Duration
	CheckInterval     time.Duration
	PerStateTimeouts  map[string]time.Duration
}

// DefaultConfig matches the daemon's out-of-the-box timeouts: one
// hour default, one day maximum, one minute of grace, checked every
// thirty seconds.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: time.Hour,
		MaxTimeout:     24 * time.Hour,
		GracePeriod:    time.Minute,
		CheckInterval:  30 * time.Second,
	}
}

// Entry is one task's deadline bookkeeping.
type Entry struct {
	TaskID       domain.TaskId
	StartedAt    time.Time
	Deadline     time.Time
	StateAtStart string
	GraceExpires *time.Time
}

// ActionKind discriminates Action.
type ActionKind string

const (
	ActionWarn        ActionKind = "warn"
	ActionGracePeriod ActionKind = "grace_period"
	ActionKill        ActionKind = "kill"
)

// Action is one thing the caller should do about a tracked task.
type Action struct {
	Kind          ActionKind
	TaskID        domain.TaskId
	RemainingSecs int64 // meaningful for ActionWarn
}

// ErrorKind discriminates Error.
type ErrorKind string

const (
	ErrTaskNotTracked  ErrorKind = "task_not_tracked"
	ErrExceedsMaximum  ErrorKind = "exceeds_maximum"
)

// Error is the closed taxonomy of failures Tracker methods can return.
type Error struct {
	Kind           ErrorKind
	TaskID         domain.TaskId
	RequestedTotal time.Duration
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrTaskNotTracked:
		return fmt.Sprintf("task not tracked: %s", e.TaskID)
	case ErrExceedsMaximum:
		return fmt.Sprintf("requested timeout exceeds maximum allowed: %s", e.RequestedTotal)
	default:
		return "unknown timeout error"
	}
}

// Tracker holds every task currently under deadline tracking.
type Tracker struct {
	Entries map[domain.TaskId]Entry
	Config  Config
}

// New builds a Tracker for config.
func New(config Config) *Tracker {
	return &Tracker{Entries: map[domain.TaskId]Entry{}, Config: config}
}

// StartTracking begins tracking taskID from now, with a deadline
// derived from state's configured timeout (capped at MaxTimeout).
func (t *Tracker) StartTracking(taskID domain.TaskId, state string) Entry {
	now := time.Now().UTC()
	timeout := t.timeoutForState(state)
	entry := Entry{TaskID: taskID, StartedAt: now, Deadline: now.Add(timeout), StateAtStart: state}
	t.Entries[taskID] = entry
	return entry
}

// StopTracking removes taskID from tracking, returning the removed
// entry if it was tracked.
func (t *Tracker) StopTracking(taskID domain.TaskId) (Entry, bool) {
	entry, ok := t.Entries[taskID]
	if ok {
		delete(t.Entries, taskID)
	}
	return entry, ok
}

// IsTracked reports whether taskID currently has a deadline entry.
func (t *Tracker) IsTracked(taskID domain.TaskId) bool {
	_, ok := t.Entries[taskID]
	return ok
}

// ActiveCount is how many tasks are currently tracked.
func (t *Tracker) ActiveCount() int { return len(t.Entries) }

// RemainingSecs reports how many seconds remain until taskID's
// deadline (or grace expiry, if it's in grace), or false if untracked.
func (t *Tracker) RemainingSecs(taskID domain.TaskId) (int64, bool) {
	entry, ok := t.Entries[taskID]
	if !ok {
		return 0, false
	}
	target := entry.Deadline
	if entry.GraceExpires != nil {
		target = *entry.GraceExpires
	}
	return int64(time.Until(target).Seconds()), true
}

// ExtendDeadline adds extraSecs to taskID's deadline, rejecting the
// extension if the task's total runtime would then exceed MaxTimeout.
func (t *Tracker) ExtendDeadline(taskID domain.TaskId, extra time.Duration) error {
	entry, ok := t.Entries[taskID]
	if !ok {
		return &Error{Kind: ErrTaskNotTracked, TaskID: taskID}
	}

	requestedTotal := entry.Deadline.Sub(entry.StartedAt) + extra
	if requestedTotal > t.Config.MaxTimeout {
		return &Error{Kind: ErrExceedsMaximum, TaskID: taskID, RequestedTotal: requestedTotal}
	}

	entry.Deadline = entry.Deadline.Add(extra)
	t.Entries[taskID] = entry
	return nil
}

// CheckTimeouts evaluates every tracked task against the current time
// and returns the actions the caller should take. A task past its
// deadline enters grace; a task whose grace has expired is killed and
// dropped from tracking; a task within warnThreshold of its deadline
// is warned.
func (t *Tracker) CheckTimeouts() []Action {
	return t.checkTimeoutsAt(time.Now().UTC())
}

func (t *Tracker) checkTimeoutsAt(now time.Time) []Action {
	var actions []Action
	var toKill []domain.TaskId

	for taskID, entry := range t.Entries {
		if entry.GraceExpires != nil {
			if !now.Before(*entry.GraceExpires) {
				actions = append(actions, Action{Kind: ActionKill, TaskID: taskID})
				toKill = append(toKill, taskID)
			}
			continue
		}

		remaining := entry.Deadline.Sub(now)
		switch {
		case remaining <= 0:
			graceExpires := now.Add(t.Config.GracePeriod)
			entry.GraceExpires = &graceExpires
			t.Entries[taskID] = entry
			actions = append(actions, Action{Kind: ActionGracePeriod, TaskID: taskID})
		case remaining <= warnThreshold:
			actions = append(actions, Action{Kind: ActionWarn, TaskID: taskID, RemainingSecs: int64(remaining.Seconds())})
		}
	}

	for _, taskID := range toKill {
		delete(t.Entries, taskID)
	}

	return actions
}

func (t *Tracker) timeoutForState(state string) time.Duration {
	timeout := t.Config.DefaultTimeout
	if configured, ok := t.Config.PerStateTimeouts[state]; ok {
		timeout = configured
	}
	if timeout > t.Config.MaxTimeout {
		return t.Config.MaxTimeout
	}
	return timeout
}
