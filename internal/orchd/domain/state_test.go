package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStateTagRoundTrip(t *testing.T) {
	for _, s := range allStates {
		parsed, err := ParseTaskStateTag(s.Tag())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestParseTaskStateTagUnknown(t *testing.T) {
	_, err := ParseTaskStateTag("NOT_A_STATE")
	assert.Error(t, err)
}

func TestIsTransitionAllowedSelfAlwaysTrue(t *testing.T) {
	for _, s := range allStates {
		assert.True(t, IsTransitionAllowed(s, s), "self-transition from %s", s)
	}
}

func TestIsTransitionAllowedMergedIsTerminal(t *testing.T) {
	assert.False(t, IsTransitionAllowed(StateMerged, StateRunning))
	assert.False(t, IsTransitionAllowed(StateMerged, StateFailed))
	assert.True(t, IsTransitionAllowed(StateMerged, StateMerged))
}

func TestIsTransitionAllowedFailedAndPausedUniversal(t *testing.T) {
	for _, s := range allStates {
		if s == StateMerged {
			continue
		}
		assert.True(t, IsTransitionAllowed(s, StateFailed), "%s -> Failed", s)
		assert.True(t, IsTransitionAllowed(s, StatePaused), "%s -> Paused", s)
	}
}

func TestIsTransitionAllowedTableEntries(t *testing.T) {
	assert.True(t, IsTransitionAllowed(StateQueued, StateInitializing))
	assert.True(t, IsTransitionAllowed(StateRunning, StateRestacking))
	assert.True(t, IsTransitionAllowed(StateRunning, StateVerifyingQuick))
	assert.True(t, IsTransitionAllowed(StateReady, StateSubmitting))
	assert.False(t, IsTransitionAllowed(StateQueued, StateRunning))
	assert.False(t, IsTransitionAllowed(StateSubmitting, StateReady))
}

func TestTransitionMutatesOnSuccess(t *testing.T) {
	task := NewTask(NewTaskId(), "repo-1", "do the thing", TaskRole("implementer"), TaskTypeOf("feature"), SubmitSingle, 3)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := transitionAt(task, StateInitializing, fixed)
	require.NoError(t, err)
	assert.Equal(t, StateInitializing, task.State)
	assert.Equal(t, fixed, task.UpdatedAt)
}

func TestTransitionLeavesTaskUnmodifiedOnFailure(t *testing.T) {
	task := NewTask(NewTaskId(), "repo-1", "do the thing", TaskRole("implementer"), TaskTypeOf("feature"), SubmitSingle, 3)
	before := task.UpdatedAt

	err := Transition(task, StateReady)
	require.Error(t, err)

	var invalidErr *InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, StateQueued, invalidErr.From)
	assert.Equal(t, StateReady, invalidErr.To)
	assert.Equal(t, StateQueued, task.State)
	assert.Equal(t, before, task.UpdatedAt)
}
