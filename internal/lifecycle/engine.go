// Package lifecycle is the sole authority for task status transitions.
// Every mutation goes through the engine, which derives timestamp rules and
// the audit event for the target status; the store executes both as one
// transaction.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"hivemind/internal/models"
	"hivemind/internal/store"
)

// ValidationError reports malformed input detected before any persistence.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
)

// TaskStore is the persistence surface the engine drives. *store.Store
// implements it; tests substitute an in-memory fake.
type TaskStore interface {
	CreateTask(ctx context.Context, p store.CreateTaskParams) (models.Task, error)
	UpdateTask(ctx context.Context, id string, u store.TaskUpdate) (models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error)
	ListSubtasks(ctx context.Context, parentID string) ([]models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTaskEvents(ctx context.Context, taskID string) ([]models.TaskEvent, error)
}

// Engine validates transitions and drives the task store.
type Engine struct {
	store TaskStore
	log   *slog.Logger
}

// New constructs the engine.
func New(st TaskStore, log *slog.Logger) *Engine {
	return &Engine{store: st, log: log}
}

// CreateInput carries new-task fields. Optional references use empty string.
type CreateInput struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	DepartmentID string         `json:"department_id"`
	AssignedToID string         `json:"assigned_to_id"`
	CreatedByID  string         `json:"created_by_id"`
	Priority     string         `json:"priority"`
	Payload      map[string]any `json:"payload"`
	ParentTaskID string         `json:"parent_task_id"`
}

// Create validates input and inserts a queued task with its creation event.
func (e *Engine) Create(ctx context.Context, in CreateInput) (models.Task, error) {
	if in.Title == "" {
		return models.Task{}, ValidationError("title is required")
	}
	if len(in.Title) > maxTitleLen {
		return models.Task{}, ValidationError("title too long")
	}
	if len(in.Description) > maxDescriptionLen {
		return models.Task{}, ValidationError("description too long")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !models.ValidPriority(in.Priority) {
		return models.Task{}, ValidationError(fmt.Sprintf("invalid priority %q", in.Priority))
	}

	task, err := e.store.CreateTask(ctx, store.CreateTaskParams{
		Title:        in.Title,
		Description:  in.Description,
		DepartmentID: in.DepartmentID,
		AssignedToID: in.AssignedToID,
		CreatedByID:  in.CreatedByID,
		Priority:     in.Priority,
		Payload:      in.Payload,
		ParentTaskID: in.ParentTaskID,
	})
	if err != nil {
		return models.Task{}, err
	}
	e.log.Info("task created", "task_id", task.ID, "priority", task.Priority)
	return task, nil
}

// Patch carries a permissive task update. Nil fields are left untouched;
// for nullable references an empty string clears the value. Status is not
// checked against a transition table: any status may follow any other, and
// the side effects below derive purely from the target status.
type Patch struct {
	Title        *string        `json:"title"`
	Description  *string        `json:"description"`
	Status       *string        `json:"status"`
	Priority     *string        `json:"priority"`
	AssignedToID *string        `json:"assigned_to_id"`
	DepartmentID *string        `json:"department_id"`
	Result       map[string]any `json:"result"`
	ErrorMessage *string        `json:"error_message"`
}

// Transition applies a patch. When a status is supplied it also applies the
// timestamp rules (first entry to running sets started_at, first entry to a
// terminal status sets finished_at) and appends one event of that type.
func (e *Engine) Transition(ctx context.Context, id string, p Patch) (models.Task, error) {
	if p.Status != nil && !models.ValidStatus(*p.Status) {
		return models.Task{}, ValidationError(fmt.Sprintf("invalid status %q", *p.Status))
	}
	if p.Priority != nil && !models.ValidPriority(*p.Priority) {
		return models.Task{}, ValidationError(fmt.Sprintf("invalid priority %q", *p.Priority))
	}
	if p.Title != nil && (*p.Title == "" || len(*p.Title) > maxTitleLen) {
		return models.Task{}, ValidationError("invalid title")
	}
	if p.Description != nil && len(*p.Description) > maxDescriptionLen {
		return models.Task{}, ValidationError("description too long")
	}

	u := store.TaskUpdate{
		Title:        p.Title,
		Description:  p.Description,
		Status:       p.Status,
		Priority:     p.Priority,
		AssignedToID: p.AssignedToID,
		DepartmentID: p.DepartmentID,
		Result:       p.Result,
		ErrorMessage: p.ErrorMessage,
	}
	if p.Status != nil {
		applyStatusEffects(&u, *p.Status)
	}

	task, err := e.store.UpdateTask(ctx, id, u)
	if err != nil {
		return models.Task{}, err
	}
	if p.Status != nil {
		e.log.Info("task transition", "task_id", id, "status", *p.Status)
	}
	return task, nil
}

// applyStatusEffects derives the timestamp directives and audit event for a
// target status.
func applyStatusEffects(u *store.TaskUpdate, status string) {
	if status == models.StatusRunning {
		u.SetStartedAt = true
	}
	if models.TerminalStatus(status) {
		u.SetFinishedAt = true
	}
	u.Event = &store.EventInput{Type: status, Message: "Task " + status}
}

// Cancel moves a task to canceled. Unlike a plain transition it overwrites
// finished_at even when already set, and repeated cancels append repeated
// events; that history is part of the contract.
func (e *Engine) Cancel(ctx context.Context, id string) (models.Task, error) {
	status := models.StatusCanceled
	task, err := e.store.UpdateTask(ctx, id, store.TaskUpdate{
		Status:          &status,
		ForceFinishedAt: true,
		Event:           &store.EventInput{Type: models.StatusCanceled, Message: "Task canceled"},
	})
	if err != nil {
		return models.Task{}, err
	}
	e.log.Info("task canceled", "task_id", id)
	return task, nil
}

// Retry re-queues a task, undoing terminal bookkeeping: error message,
// started_at and finished_at all reset to null. Intended for failed or
// canceled tasks but accepted from any state.
func (e *Engine) Retry(ctx context.Context, id string) (models.Task, error) {
	status := models.StatusQueued
	task, err := e.store.UpdateTask(ctx, id, store.TaskUpdate{
		Status:   &status,
		ClearRun: true,
		Event:    &store.EventInput{Type: models.StatusQueued, Message: "Task retry requested"},
	})
	if err != nil {
		return models.Task{}, err
	}
	e.log.Info("task retry requested", "task_id", id)
	return task, nil
}

// Get returns a task with its event history and subtasks resolved.
func (e *Engine) Get(ctx context.Context, id string) (models.Task, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	events, err := e.store.ListTaskEvents(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	task.Events = events
	return task, nil
}

// List returns tasks matching the filter, newest first.
func (e *Engine) List(ctx context.Context, f store.TaskFilter) ([]models.Task, error) {
	return e.store.ListTasks(ctx, f)
}

// ListSubtasks returns the direct children of a task.
func (e *Engine) ListSubtasks(ctx context.Context, id string) ([]models.Task, error) {
	if _, err := e.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListSubtasks(ctx, id)
}

// Delete hard-removes a task. An administrative escape hatch, not part of
// the lifecycle: no cascade to subtasks, which keep existing as roots.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	e.log.Info("task deleted", "task_id", id)
	return nil
}
