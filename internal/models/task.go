// Package models defines the domain types for Taskpilot.
package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority orders tasks in listings; high sorts first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the sort rank for p (high=0, medium=1, low=2).
// Unknown priorities sort after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Source tags where a task record came from.
type Source string

const (
	SourceEmail  Source = "email"
	SourceManual Source = "manual"
)

// Note is one append-only annotation on a task.
type Note struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskRecord is a structured unit of work tracked by the store.
// Notes are append-only; insertion order is significant.
type TaskRecord struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Priority    Priority   `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Source      Source     `json:"source"`
	Notes       []Note     `json:"notes"`
}

// NewTaskRecord creates a pending task with defaults applied.
func NewTaskRecord(description string, source Source) TaskRecord {
	now := time.Now()
	return TaskRecord{
		ID:          NewTaskID(),
		Description: description,
		Status:      StatusPending,
		Progress:    0,
		Priority:    PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
		Source:      source,
		Notes:       []Note{},
	}
}

// NewTaskID returns a short random hex token (8 chars).
func NewTaskID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// MeetingRecord holds details extracted from an email that carries a
// video-conferencing link. Any subset of fields may be empty; a fully
// empty record means "no meeting detected" and is discarded.
type MeetingRecord struct {
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
}

// Empty reports whether no meeting details were extracted.
func (m MeetingRecord) Empty() bool {
	return m.Date == "" && m.Time == "" && m.Link == "" && m.Description == ""
}

// LogEntry is one interaction in the conversation log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
}
