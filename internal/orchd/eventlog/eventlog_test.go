package eventlog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

func TestAppendBothWritesGlobalAndTaskFiles(t *testing.T) {
	root := t.TempDir()
	log := New(root)

	evt := domain.NewEvent("T-1", "repo-a", domain.EventKind{Kind: domain.EventTaskCreated})
	require.NoError(t, log.AppendBoth(evt))

	assertLineCount(t, log.GlobalLogPath(), 1)
	assertLineCount(t, log.TaskLogPath("T-1"), 1)
}

func TestAppendTaskSkipsEventsWithoutTaskID(t *testing.T) {
	root := t.TempDir()
	log := New(root)
	require.NoError(t, log.EnsureLayout())

	evt := domain.NewEvent("", "repo-a", domain.EventKind{Kind: domain.EventError})
	require.NoError(t, log.AppendGlobal(evt))
	require.NoError(t, log.AppendTask(evt))

	assertLineCount(t, log.GlobalLogPath(), 1)
	_, err := os.Stat(filepath.Join(root, "tasks"))
	assert.NoError(t, err)
}

func assertLineCount(t *testing.T, path string, want int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	assert.Equal(t, want, count)
}
