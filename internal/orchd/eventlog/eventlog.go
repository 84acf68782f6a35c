// Package eventlog appends orchestrator events to a flat, newline-delimited
// JSON log: one file holding every event plus a per-task file for fast
// single-task tailing. It is written alongside the relational store, never
// instead of it — the store is for queries, this is for append-only audit
// and replay.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

const globalFileName = "global.jsonl"

// JsonlEventLog writes events under root: root/global.jsonl and
// root/tasks/<task_id>.jsonl.
type JsonlEventLog struct {
	root    string
	taskDir string
}

// New builds a JsonlEventLog rooted at root. Call EnsureLayout before the
// first append, or use AppendBoth which does it for you.
func New(root string) *JsonlEventLog {
	return &JsonlEventLog{
		root:    root,
		taskDir: filepath.Join(root, "tasks"),
	}
}

// EnsureLayout creates root and root/tasks if they don't already exist.
func (l *JsonlEventLog) EnsureLayout() error {
	if err := os.MkdirAll(l.taskDir, 0755); err != nil {
		return fmt.Errorf("creating event log directory %s: %w", l.taskDir, err)
	}
	return nil
}

// GlobalLogPath returns the path of the all-events log file.
func (l *JsonlEventLog) GlobalLogPath() string {
	return filepath.Join(l.root, globalFileName)
}

// TaskLogPath returns the path of the per-task log file for taskID.
func (l *JsonlEventLog) TaskLogPath(taskID domain.TaskId) string {
	return filepath.Join(l.taskDir, taskID+".jsonl")
}

// AppendGlobal appends event to the global log only.
func (l *JsonlEventLog) AppendGlobal(event domain.Event) error {
	return appendJSONLine(l.GlobalLogPath(), event)
}

// AppendTask appends event to its task-scoped log, a no-op if the event
// isn't task-scoped.
func (l *JsonlEventLog) AppendTask(event domain.Event) error {
	if event.TaskID == "" {
		return nil
	}
	return appendJSONLine(l.TaskLogPath(event.TaskID), event)
}

// AppendBoth ensures the directory layout exists, then appends event to
// the global log and, if task-scoped, its per-task log too.
func (l *JsonlEventLog) AppendBoth(event domain.Event) error {
	if err := l.EnsureLayout(); err != nil {
		return err
	}
	if err := l.AppendGlobal(event); err != nil {
		return err
	}
	return l.AppendTask(event)
}

func appendJSONLine(path string, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing event %s: %w", event.ID, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening event log %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("appending to event log %s: %w", path, err)
	}
	return nil
}
