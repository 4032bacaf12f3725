package models

import (
	"time"
)

// TaskStatus enumerates lifecycle states persisted in Postgres.
const (
	StatusQueued    = "queued"
	StatusAssigned  = "assigned"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// TaskPriority values, highest first.
const (
	PriorityCritical   = "critical"
	PriorityHigh       = "high"
	PriorityNormal     = "normal"
	PriorityLow        = "low"
	PriorityBackground = "background"
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s string) bool {
	switch s {
	case StatusQueued, StatusAssigned, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known task priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow, PriorityBackground:
		return true
	}
	return false
}

// TerminalStatus reports whether s ends a task's lifecycle.
func TerminalStatus(s string) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Task represents a unit of work tracked through the status lifecycle.
// A task with a non-nil ParentTaskID is a subtask; parent/child is a
// non-owning reference resolved by lookup, never an embedded structure.
type Task struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  *string        `json:"description,omitempty"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	DepartmentID *string        `json:"department_id,omitempty"`
	AssignedToID *string        `json:"assigned_to_id,omitempty"`
	CreatedByID  *string        `json:"created_by_id,omitempty"`
	Payload      map[string]any `json:"payload"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	ParentTaskID *string        `json:"parent_task_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`

	// Populated on detail and subtask reads; nil elsewhere.
	AssignedTo *Agent      `json:"assigned_to,omitempty"`
	Department *Department `json:"department,omitempty"`
	Events     []TaskEvent `json:"events,omitempty"`
}

// TaskEvent is an immutable audit record of something that happened to a
// task. Rows are append-only; Task.Status stays authoritative.
type TaskEvent struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
