package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"hivemind/internal/models"
)

// CreateTaskParams collects inputs required to insert a task.
// Optional references use empty string for "not set".
type CreateTaskParams struct {
	Title        string
	Description  string
	DepartmentID string
	AssignedToID string
	CreatedByID  string
	Priority     string
	Payload      map[string]any
	ParentTaskID string
}

// EventInput describes the audit event appended alongside a task mutation.
type EventInput struct {
	Type    string
	Message string
}

// TaskUpdate carries a permissive field patch plus timestamp directives
// derived by the lifecycle engine. Nil pointer fields are left untouched;
// for nullable columns an empty string writes NULL.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	AssignedToID *string
	DepartmentID *string
	Result       map[string]any
	ErrorMessage *string

	SetStartedAt    bool // started_at = COALESCE(started_at, NOW())
	SetFinishedAt   bool // finished_at = COALESCE(finished_at, NOW())
	ForceFinishedAt bool // finished_at = NOW() unconditionally
	ClearRun        bool // NULL out error_message, started_at, finished_at

	Event *EventInput // appended in the same transaction when non-nil
}

// TaskFilter narrows ListTasks output.
type TaskFilter struct {
	Status       string
	DepartmentID string
	Priority     string
	AssignedToID string
	Limit        int
}

const taskCols = `id, title, description, status, priority, department_id, assigned_to_id, created_by_id, payload, result, error_message, parent_task_id, created_at, started_at, finished_at`

// CreateTask inserts a task row and its creation event as one transaction.
func (s *Store) CreateTask(ctx context.Context, p CreateTaskParams) (models.Task, error) {
	if p.Priority == "" {
		p.Priority = models.PriorityNormal
	}
	if p.Payload == nil {
		p.Payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return models.Task{}, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Task{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, department_id, assigned_to_id, created_by_id, payload, parent_task_id, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''), $11)
	`, id, p.Title, p.Description, models.StatusQueued, p.Priority, p.DepartmentID, p.AssignedToID, p.CreatedByID, payloadJSON, p.ParentTaskID, now)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}

	if err := appendTaskEvent(ctx, tx, id, "created", "Task created"); err != nil {
		return models.Task{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, fmt.Errorf("commit: %w", err)
	}

	return models.Task{
		ID:           id,
		Title:        p.Title,
		Description:  emptyToNil(p.Description),
		Status:       models.StatusQueued,
		Priority:     p.Priority,
		DepartmentID: emptyToNil(p.DepartmentID),
		AssignedToID: emptyToNil(p.AssignedToID),
		CreatedByID:  emptyToNil(p.CreatedByID),
		Payload:      p.Payload,
		ParentTaskID: emptyToNil(p.ParentTaskID),
		CreatedAt:    now,
	}, nil
}

// UpdateTask applies a patch plus any timestamp directives and appends the
// associated event, all in one transaction. Returns ErrNotFound for unknown
// ids. No partial application: if the event insert fails the task row change
// rolls back with it.
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) (models.Task, error) {
	set := make([]string, 0, 12)
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if u.Title != nil {
		set = append(set, "title = "+arg(*u.Title))
	}
	if u.Description != nil {
		set = append(set, "description = NULLIF("+arg(*u.Description)+", '')")
	}
	if u.Status != nil {
		set = append(set, "status = "+arg(*u.Status))
	}
	if u.Priority != nil {
		set = append(set, "priority = "+arg(*u.Priority))
	}
	if u.AssignedToID != nil {
		set = append(set, "assigned_to_id = NULLIF("+arg(*u.AssignedToID)+", '')")
	}
	if u.DepartmentID != nil {
		set = append(set, "department_id = NULLIF("+arg(*u.DepartmentID)+", '')")
	}
	if u.Result != nil {
		resultJSON, err := json.Marshal(u.Result)
		if err != nil {
			return models.Task{}, fmt.Errorf("marshal result: %w", err)
		}
		set = append(set, "result = "+arg(resultJSON))
	}
	if u.ErrorMessage != nil {
		set = append(set, "error_message = NULLIF("+arg(*u.ErrorMessage)+", '')")
	}
	if u.SetStartedAt {
		set = append(set, "started_at = COALESCE(started_at, NOW())")
	}
	if u.SetFinishedAt {
		set = append(set, "finished_at = COALESCE(finished_at, NOW())")
	}
	if u.ForceFinishedAt {
		set = append(set, "finished_at = NOW()")
	}
	if u.ClearRun {
		set = append(set, "error_message = NULL", "started_at = NULL", "finished_at = NULL")
	}
	if len(set) == 0 {
		return s.GetTask(ctx, id)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Task{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := "UPDATE tasks SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = $1 RETURNING " + taskCols

	task, err := scanTask(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}

	if u.Event != nil {
		if err := appendTaskEvent(ctx, tx, id, u.Event.Type, u.Event.Message); err != nil {
			return models.Task{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, fmt.Errorf("commit: %w", err)
	}
	return task, nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks newest first, with assignee and department
// references resolved to light records.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT t.id, t.title, t.description, t.status, t.priority, t.department_id, t.assigned_to_id, t.created_by_id,
		       t.payload, t.result, t.error_message, t.parent_task_id, t.created_at, t.started_at, t.finished_at,
		       a.name, d.name,
		       ev.id, ev.type, ev.message, ev.created_at
		FROM tasks t
		LEFT JOIN agents a ON a.id = t.assigned_to_id
		LEFT JOIN departments d ON d.id = t.department_id
		LEFT JOIN LATERAL (
			SELECT id, type, message, created_at
			FROM task_events
			WHERE task_id = t.id
			ORDER BY created_at DESC
			LIMIT 1
		) ev ON TRUE
		WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		query += " AND t.status = " + arg(f.Status)
	}
	if f.DepartmentID != "" {
		query += " AND t.department_id = " + arg(f.DepartmentID)
	}
	if f.Priority != "" {
		query += " AND t.priority = " + arg(f.Priority)
	}
	if f.AssignedToID != "" {
		query += " AND t.assigned_to_id = " + arg(f.AssignedToID)
	}
	query += " ORDER BY t.created_at DESC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		var task models.Task
		var r taskRow
		var agentName, deptName, evID, evType, evMsg pgtype.Text
		var evAt pgtype.Timestamptz
		dest := append(r.dest(&task), &agentName, &deptName, &evID, &evType, &evMsg, &evAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		if err := r.hydrate(&task); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		if task.AssignedToID != nil && agentName.Valid {
			task.AssignedTo = &models.Agent{ID: *task.AssignedToID, Name: agentName.String}
		}
		if task.DepartmentID != nil && deptName.Valid {
			task.Department = &models.Department{ID: *task.DepartmentID, Name: deptName.String}
		}
		if evID.Valid {
			task.Events = []models.TaskEvent{{
				ID:        evID.String,
				TaskID:    task.ID,
				Type:      evType.String,
				Message:   evMsg.String,
				CreatedAt: evAt.Time,
			}}
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListSubtasks returns the direct children of a task, each with its
// assignee resolved.
func (s *Store) ListSubtasks(ctx context.Context, parentID string) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.title, t.description, t.status, t.priority, t.department_id, t.assigned_to_id, t.created_by_id,
		       t.payload, t.result, t.error_message, t.parent_task_id, t.created_at, t.started_at, t.finished_at,
		       a.name, d.name
		FROM tasks t
		LEFT JOIN agents a ON a.id = t.assigned_to_id
		LEFT JOIN departments d ON d.id = t.department_id
		WHERE t.parent_task_id = $1
		ORDER BY t.created_at DESC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		task, err := scanTaskWithRefs(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subtask row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask hard-deletes a task row. Events cascade at the schema level;
// subtask parent references are set NULL rather than removed.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// taskRow holds the nullable columns scanned for every task query.
type taskRow struct {
	desc, deptID, assignedID, createdByID, errMsg, parentID pgtype.Text
	payloadJSON, resultJSON                                 []byte
	startedAt, finishedAt                                   pgtype.Timestamptz
}

func (r *taskRow) dest(task *models.Task) []any {
	return []any{
		&task.ID, &task.Title, &r.desc, &task.Status, &task.Priority,
		&r.deptID, &r.assignedID, &r.createdByID, &r.payloadJSON, &r.resultJSON,
		&r.errMsg, &r.parentID, &task.CreatedAt, &r.startedAt, &r.finishedAt,
	}
}

func (r *taskRow) hydrate(task *models.Task) error {
	task.Description = textPtr(r.desc)
	task.DepartmentID = textPtr(r.deptID)
	task.AssignedToID = textPtr(r.assignedID)
	task.CreatedByID = textPtr(r.createdByID)
	task.ErrorMessage = textPtr(r.errMsg)
	task.ParentTaskID = textPtr(r.parentID)
	task.StartedAt = timePtr(r.startedAt)
	task.FinishedAt = timePtr(r.finishedAt)
	if len(r.payloadJSON) > 0 {
		if err := json.Unmarshal(r.payloadJSON, &task.Payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(r.resultJSON) > 0 {
		if err := json.Unmarshal(r.resultJSON, &task.Result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

func scanTask(row pgx.Row) (models.Task, error) {
	var task models.Task
	var r taskRow
	if err := row.Scan(r.dest(&task)...); err != nil {
		return models.Task{}, err
	}
	if err := r.hydrate(&task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// scanTaskWithRefs scans a task row followed by joined assignee and
// department names.
func scanTaskWithRefs(row pgx.Row) (models.Task, error) {
	var task models.Task
	var r taskRow
	var agentName, deptName pgtype.Text
	dest := append(r.dest(&task), &agentName, &deptName)
	if err := row.Scan(dest...); err != nil {
		return models.Task{}, err
	}
	if err := r.hydrate(&task); err != nil {
		return models.Task{}, err
	}
	if task.AssignedToID != nil && agentName.Valid {
		task.AssignedTo = &models.Agent{ID: *task.AssignedToID, Name: agentName.String}
	}
	if task.DepartmentID != nil && deptName.Valid {
		task.Department = &models.Department{ID: *task.DepartmentID, Name: deptName.String}
	}
	return task, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
