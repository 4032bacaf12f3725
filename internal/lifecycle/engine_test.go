package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"hivemind/internal/models"
	"hivemind/internal/store"
)

// fakeStore applies the same update directives the SQL layer does, against
// an in-memory map.
type fakeStore struct {
	seq    int
	tasks  map[string]*models.Task
	events map[string][]models.TaskEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]*models.Task{}, events: map[string][]models.TaskEvent{}}
}

func (f *fakeStore) CreateTask(_ context.Context, p store.CreateTaskParams) (models.Task, error) {
	f.seq++
	id := fmt.Sprintf("task-%d", f.seq)
	task := models.Task{
		ID:        id,
		Title:     p.Title,
		Status:    models.StatusQueued,
		Priority:  p.Priority,
		Payload:   p.Payload,
		CreatedAt: time.Now().UTC(),
	}
	if p.Description != "" {
		task.Description = &p.Description
	}
	if p.ParentTaskID != "" {
		task.ParentTaskID = &p.ParentTaskID
	}
	if p.AssignedToID != "" {
		task.AssignedToID = &p.AssignedToID
	}
	f.tasks[id] = &task
	f.appendEvent(id, "created", "Task created")
	return task, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, id string, u store.TaskUpdate) (models.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return models.Task{}, store.ErrNotFound
	}
	now := time.Now().UTC()
	if u.Title != nil {
		task.Title = *u.Title
	}
	if u.Description != nil {
		task.Description = u.Description
	}
	if u.Status != nil {
		task.Status = *u.Status
	}
	if u.Priority != nil {
		task.Priority = *u.Priority
	}
	if u.Result != nil {
		task.Result = u.Result
	}
	if u.ErrorMessage != nil {
		task.ErrorMessage = u.ErrorMessage
	}
	if u.SetStartedAt && task.StartedAt == nil {
		t := now
		task.StartedAt = &t
	}
	if u.SetFinishedAt && task.FinishedAt == nil {
		t := now
		task.FinishedAt = &t
	}
	if u.ForceFinishedAt {
		t := now
		task.FinishedAt = &t
	}
	if u.ClearRun {
		task.ErrorMessage = nil
		task.StartedAt = nil
		task.FinishedAt = nil
	}
	if u.Event != nil {
		f.appendEvent(id, u.Event.Type, u.Event.Message)
	}
	return *task, nil
}

func (f *fakeStore) GetTask(_ context.Context, id string) (models.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return models.Task{}, store.ErrNotFound
	}
	return *task, nil
}

func (f *fakeStore) ListTasks(_ context.Context, _ store.TaskFilter) ([]models.Task, error) {
	out := make([]models.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeStore) ListSubtasks(_ context.Context, parentID string) ([]models.Task, error) {
	out := make([]models.Task, 0)
	for _, t := range f.tasks {
		if t.ParentTaskID != nil && *t.ParentTaskID == parentID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteTask(_ context.Context, id string) error {
	if _, ok := f.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) ListTaskEvents(_ context.Context, taskID string) ([]models.TaskEvent, error) {
	events := f.events[taskID]
	out := make([]models.TaskEvent, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	return out, nil
}

func (f *fakeStore) appendEvent(taskID, eventType, message string) {
	f.events[taskID] = append(f.events[taskID], models.TaskEvent{
		TaskID:    taskID,
		Type:      eventType,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}

func newTestEngine() (*Engine, *fakeStore) {
	fs := newFakeStore()
	return New(fs, slog.New(slog.NewTextHandler(io.Discard, nil))), fs
}

func strp(s string) *string { return &s }

func TestCreateValidation(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	var verr ValidationError
	_, err := e.Create(ctx, CreateInput{})
	if !errors.As(err, &verr) {
		t.Fatalf("empty title should be a validation error, got %v", err)
	}

	_, err = e.Create(ctx, CreateInput{Title: strings.Repeat("x", 201)})
	if !errors.As(err, &verr) {
		t.Fatalf("overlong title should be a validation error, got %v", err)
	}

	_, err = e.Create(ctx, CreateInput{Title: "ok", Description: strings.Repeat("x", 2001)})
	if !errors.As(err, &verr) {
		t.Fatalf("overlong description should be a validation error, got %v", err)
	}

	_, err = e.Create(ctx, CreateInput{Title: "ok", Priority: "urgent"})
	if !errors.As(err, &verr) {
		t.Fatalf("unknown priority should be a validation error, got %v", err)
	}
}

func TestCreateDefaults(t *testing.T) {
	e, fs := newTestEngine()
	ctx := context.Background()

	task, err := e.Create(ctx, CreateInput{Title: "Index docs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != models.StatusQueued {
		t.Fatalf("new task status = %q, want queued", task.Status)
	}
	if task.Priority != models.PriorityNormal {
		t.Fatalf("default priority = %q, want normal", task.Priority)
	}
	if task.StartedAt != nil || task.FinishedAt != nil {
		t.Fatal("new task must have nil started_at and finished_at")
	}

	events := fs.events[task.ID]
	if len(events) != 1 || events[0].Type != "created" {
		t.Fatalf("expected exactly one created event, got %+v", events)
	}
}

func TestTransitionTimestampRules(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	task, _ := e.Create(ctx, CreateInput{Title: "t"})

	task, err := e.Transition(ctx, task.ID, Patch{Status: strp(models.StatusRunning)})
	if err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if task.StartedAt == nil {
		t.Fatal("entering running must set started_at")
	}
	started := *task.StartedAt

	// A second transition through running leaves started_at untouched.
	task, _ = e.Transition(ctx, task.ID, Patch{Status: strp(models.StatusAssigned)})
	task, _ = e.Transition(ctx, task.ID, Patch{Status: strp(models.StatusRunning)})
	if !task.StartedAt.Equal(started) {
		t.Fatal("started_at must never change after first set")
	}

	task, _ = e.Transition(ctx, task.ID, Patch{Status: strp(models.StatusCompleted)})
	if task.FinishedAt == nil {
		t.Fatal("terminal status must set finished_at")
	}
	finished := *task.FinishedAt

	task, _ = e.Transition(ctx, task.ID, Patch{Status: strp(models.StatusFailed)})
	if !task.FinishedAt.Equal(finished) {
		t.Fatal("finished_at is set once for plain transitions")
	}
}

func TestTransitionWithoutStatusEmitsNoEvent(t *testing.T) {
	e, fs := newTestEngine()
	ctx := context.Background()

	task, _ := e.Create(ctx, CreateInput{Title: "t"})
	if _, err := e.Transition(ctx, task.ID, Patch{Title: strp("renamed")}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if got := len(fs.events[task.ID]); got != 1 {
		t.Fatalf("field-only patch must not add events, got %d", got)
	}
}

func TestTransitionValidation(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	task, _ := e.Create(ctx, CreateInput{Title: "t"})

	var verr ValidationError
	if _, err := e.Transition(ctx, task.ID, Patch{Status: strp("paused")}); !errors.As(err, &verr) {
		t.Fatalf("unknown status should be a validation error, got %v", err)
	}
	if _, err := e.Transition(ctx, "missing", Patch{Status: strp(models.StatusRunning)}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown task should be not found, got %v", err)
	}
}

func TestCancelAlwaysOverwritesFinishedAt(t *testing.T) {
	e, fs := newTestEngine()
	ctx := context.Background()

	task, _ := e.Create(ctx, CreateInput{Title: "t"})
	earlier := time.Now().UTC().Add(-time.Hour)
	fs.tasks[task.ID].FinishedAt = &earlier

	task, err := e.Cancel(ctx, task.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if task.Status != models.StatusCanceled {
		t.Fatalf("status = %q, want canceled", task.Status)
	}
	if !task.FinishedAt.After(earlier) {
		t.Fatal("cancel must overwrite an existing finished_at")
	}

	// Repeated cancels append repeated events.
	if _, err := e.Cancel(ctx, task.ID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	events := fs.events[task.ID]
	cancels := 0
	for _, ev := range events {
		if ev.Type == models.StatusCanceled && ev.Message == "Task canceled" {
			cancels++
		}
	}
	if cancels != 2 {
		t.Fatalf("expected 2 canceled events, got %d", cancels)
	}
}

func TestRetryScenario(t *testing.T) {
	e, fs := newTestEngine()
	ctx := context.Background()

	task, err := e.Create(ctx, CreateInput{Title: "Index docs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if task, err = e.Transition(ctx, task.ID, Patch{Status: strp(models.StatusRunning)}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if task.StartedAt == nil {
		t.Fatal("started_at not set")
	}

	task, err = e.Transition(ctx, task.ID, Patch{Status: strp(models.StatusFailed), ErrorMessage: strp("timeout")})
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if task.FinishedAt == nil || task.ErrorMessage == nil || *task.ErrorMessage != "timeout" {
		t.Fatalf("failed task bookkeeping wrong: %+v", task)
	}

	task, err = e.Retry(ctx, task.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if task.Status != models.StatusQueued {
		t.Fatalf("status after retry = %q, want queued", task.Status)
	}
	if task.ErrorMessage != nil || task.StartedAt != nil || task.FinishedAt != nil {
		t.Fatalf("retry must clear error and timestamps: %+v", task)
	}

	events := fs.events[task.ID]
	if len(events) != 4 {
		t.Fatalf("expected 4 events (created, running, failed, queued), got %d", len(events))
	}
	last := events[len(events)-1]
	if last.Type != models.StatusQueued || last.Message != "Task retry requested" {
		t.Fatalf("unexpected retry event: %+v", last)
	}
}

func TestSubtasksAndDelete(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	parent, _ := e.Create(ctx, CreateInput{Title: "parent"})
	_, _ = e.Create(ctx, CreateInput{Title: "child a", ParentTaskID: parent.ID})
	_, _ = e.Create(ctx, CreateInput{Title: "child b", ParentTaskID: parent.ID})

	subtasks, err := e.ListSubtasks(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list subtasks: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(subtasks))
	}

	if err := e.Delete(ctx, parent.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.Delete(ctx, parent.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("double delete should be not found, got %v", err)
	}
}
