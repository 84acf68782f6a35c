package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// AppendEvent inserts a new event row. Events are never updated or
// deleted once written.
func (s *Store) AppendEvent(event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing event %s: %w", event.ID, err)
	}

	_, err = s.db.Exec(`
INSERT INTO events (event_id, task_id, repo_id, at, kind_tag, payload_json)
VALUES (?, ?, ?, ?, ?, ?)
`,
		event.ID, nullableString(event.TaskID), nullableString(event.RepoID),
		event.At.Format(time.RFC3339Nano), eventKindTag(event.Kind.Kind), string(payload),
	)
	if err != nil {
		return fmt.Errorf("appending event %s: %w", event.ID, err)
	}
	return nil
}

// ListEventsForTask returns every event scoped to taskID, oldest first.
func (s *Store) ListEventsForTask(taskID domain.TaskId) ([]domain.Event, error) {
	rows, err := s.db.Query(
		`SELECT payload_json FROM events WHERE task_id = ? ORDER BY at ASC, event_id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events for task %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsGlobal returns every event in the store, oldest first.
func (s *Store) ListEventsGlobal() ([]domain.Event, error) {
	rows, err := s.db.Query(`SELECT payload_json FROM events ORDER BY at ASC, event_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing global events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decoding event row: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// LatestEventAtForTask returns the timestamp of the most recent event
// scoped to taskID, or the zero time if it has none.
func (s *Store) LatestEventAtForTask(taskID domain.TaskId) (time.Time, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT at FROM events WHERE task_id = ? ORDER BY at DESC LIMIT 1`, taskID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("loading latest event for task %s: %w", taskID, err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing event timestamp %q: %w", raw, err)
	}
	return at, nil
}

// UpsertApproval records or replaces a reviewer's verdict for a task.
// Unique by (task_id, reviewer): a second verdict from the same reviewer
// overwrites the first.
func (s *Store) UpsertApproval(approval domain.TaskApproval) error {
	payload, err := json.Marshal(approval)
	if err != nil {
		return fmt.Errorf("serializing approval for task %s: %w", approval.TaskID, err)
	}

	_, err = s.db.Exec(`
INSERT INTO approvals (task_id, reviewer, verdict, issued_at, payload_json)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(task_id, reviewer) DO UPDATE SET
  verdict = excluded.verdict,
  issued_at = excluded.issued_at,
  payload_json = excluded.payload_json
`,
		approval.TaskID, approval.Reviewer.String(), string(approval.Verdict),
		approval.IssuedAt.Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return fmt.Errorf("upserting approval for task %s: %w", approval.TaskID, err)
	}
	return nil
}

// ListApprovalsForTask returns every reviewer's latest verdict for
// taskID, ordered by when it was issued.
func (s *Store) ListApprovalsForTask(taskID domain.TaskId) ([]domain.TaskApproval, error) {
	rows, err := s.db.Query(
		`SELECT payload_json FROM approvals WHERE task_id = ? ORDER BY issued_at ASC, reviewer ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing approvals for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var approvals []domain.TaskApproval
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning approval row: %w", err)
		}
		var approval domain.TaskApproval
		if err := json.Unmarshal([]byte(payload), &approval); err != nil {
			return nil, fmt.Errorf("decoding approval row: %w", err)
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

// InsertRun records one agent-epoch invocation. Runs are insert-only.
func (s *Store) InsertRun(run domain.TaskRunRecord) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("serializing run %s: %w", run.RunID, err)
	}

	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.Format(time.RFC3339Nano)
	}

	_, err = s.db.Exec(`
INSERT INTO runs (run_id, task_id, model, started_at, finished_at, stop_reason, exit_code, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		run.RunID, run.TaskID, run.Model.String(), run.StartedAt.Format(time.RFC3339Nano),
		finishedAt, nullableString(run.StopReason), run.ExitCode, string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// InsertArtifact records one produced artifact pointer. Artifacts are
// insert-only.
func (s *Store) InsertArtifact(artifact domain.ArtifactRecord) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("serializing artifact %s: %w", artifact.ArtifactID, err)
	}

	_, err = s.db.Exec(`
INSERT INTO artifacts (artifact_id, task_id, kind, path, created_at, payload_json)
VALUES (?, ?, ?, ?, ?, ?)
`,
		artifact.ArtifactID, artifact.TaskID, artifact.Kind, artifact.Path,
		artifact.CreatedAt.Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting artifact %s: %w", artifact.ArtifactID, err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func eventKindTag(kind domain.EventKindTag) string {
	return string(kind)
}
