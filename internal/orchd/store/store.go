// Package store is the orchestrator's durable relational store: one row
// per task/event/approval/run/artifact, with the full domain record kept
// as a self-describing JSON payload column and a handful of indexed
// scalar columns for querying. It is backed by sqlite via
// github.com/ncruces/go-sqlite3, a pure-Go driver that needs no cgo.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// Store is the orchestrator's relational store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// runs the schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens an ephemeral in-memory store, used by tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies every embedded migration (see internal/orchd/store/migrations)
// up to the latest version, via the golang-migrate engine.
func (s *Store) Migrate() error {
	return runMigrations(s.db)
}

// UpsertTask inserts task, or updates it in place if task_id already
// exists. The full record is stored as JSON; the scalar columns exist
// only to let SQL filter and order without deserializing every row.
func (s *Store) UpsertTask(task *domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("serializing task %s: %w", task.ID, err)
	}

	_, err = s.db.Exec(`
INSERT INTO tasks (task_id, repo_id, state_tag, payload_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
  repo_id = excluded.repo_id,
  state_tag = excluded.state_tag,
  payload_json = excluded.payload_json,
  updated_at = excluded.updated_at
`,
		task.ID, task.RepoID, task.State.Tag(), string(payload),
		task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting task %s: %w", task.ID, err)
	}
	return nil
}

// LoadTask returns the task for id, or nil if it doesn't exist.
func (s *Store) LoadTask(id domain.TaskId) (*domain.Task, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload_json FROM tasks WHERE task_id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	var task domain.Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &task, nil
}

// ListTasks returns every task, most recently updated first.
func (s *Store) ListTasks() ([]*domain.Task, error) {
	rows, err := s.db.Query(`SELECT payload_json FROM tasks ORDER BY updated_at DESC, task_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTasksByState returns every task currently in state, most recently
// updated first.
func (s *Store) ListTasksByState(state domain.TaskState) ([]*domain.Task, error) {
	rows, err := s.db.Query(
		`SELECT payload_json FROM tasks WHERE state_tag = ? ORDER BY updated_at DESC, task_id ASC`,
		state.Tag(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing tasks by state %s: %w", state, err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		var task domain.Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			return nil, fmt.Errorf("decoding task row: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}
