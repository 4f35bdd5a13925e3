package index

import (
	"fmt"
	"strings"
	"time"

	"github.com/rferrer/taskpilot/internal/models"
)

// TaskRow represents a row in the tasks table.
type TaskRow struct {
	ID          string
	Description string
	Status      string
	Priority    string
	Deadline    string // ISO date or empty
	Notes       string // note texts joined for search
	UpdatedAt   time.Time
}

// RowFromRecord flattens a task record into its indexed form.
func RowFromRecord(rec models.TaskRecord) TaskRow {
	deadline := ""
	if rec.Deadline != nil {
		deadline = rec.Deadline.Format("2006-01-02")
	}
	texts := make([]string, len(rec.Notes))
	for i, n := range rec.Notes {
		texts[i] = n.Text
	}
	return TaskRow{
		ID:          rec.ID,
		Description: rec.Description,
		Status:      string(rec.Status),
		Priority:    string(rec.Priority),
		Deadline:    deadline,
		Notes:       strings.Join(texts, "\n"),
		UpdatedAt:   rec.UpdatedAt,
	}
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

// UpsertTask inserts or replaces a task row and its FTS entry within a transaction.
func (db *DB) UpsertTask(row TaskRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO tasks (id, description, status, priority, deadline, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			status      = excluded.status,
			priority    = excluded.priority,
			deadline    = excluded.deadline,
			notes       = excluded.notes,
			updated_at  = excluded.updated_at
	`, row.ID, row.Description, row.Status, row.Priority, row.Deadline, row.Notes, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert task: %w", err)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, row); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteTask removes a task row and its FTS entry.
func (db *DB) DeleteTask(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	_, _ = tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)

	return tx.Commit()
}

// AllIDs returns every indexed task id.
func (db *DB) AllIDs() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT id FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("index: all ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
