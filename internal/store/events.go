package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hivemind/internal/models"
)

// The event tables are append-only: nothing in this file, or anywhere else,
// updates or deletes a row once written.

func appendTaskEvent(ctx context.Context, tx pgx.Tx, taskID, eventType, message string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO task_events (id, task_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.New().String(), taskID, eventType, message)
	if err != nil {
		return fmt.Errorf("insert task event: %w", err)
	}
	return nil
}

// ListTaskEvents returns a task's events newest first.
func (s *Store) ListTaskEvents(ctx context.Context, taskID string) ([]models.TaskEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, type, message, created_at
		FROM task_events
		WHERE task_id = $1
		ORDER BY created_at DESC, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	defer rows.Close()

	events := make([]models.TaskEvent, 0)
	for rows.Next() {
		var e models.TaskEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Type, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// AppendAgentEvent records an agent action in the audit trail.
func (s *Store) AppendAgentEvent(ctx context.Context, agentID, action, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_events (id, agent_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.New().String(), agentID, action, detail)
	if err != nil {
		return fmt.Errorf("insert agent event: %w", err)
	}
	return nil
}

// AgentEventFilter narrows ListAgentEvents output.
type AgentEventFilter struct {
	AgentID string
	Action  string
	Limit   int
}

// ListAgentEvents returns agent audit rows newest first, with the agent
// name resolved for display.
func (s *Store) ListAgentEvents(ctx context.Context, f AgentEventFilter) ([]models.AgentEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT e.id, e.agent_id, a.name, e.action, e.detail, e.created_at
		FROM agent_events e
		JOIN agents a ON a.id = e.agent_id
		WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.AgentID != "" {
		query += " AND e.agent_id = " + arg(f.AgentID)
	}
	if f.Action != "" {
		query += " AND e.action = " + arg(f.Action)
	}
	query += " ORDER BY e.created_at DESC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agent events: %w", err)
	}
	defer rows.Close()

	events := make([]models.AgentEvent, 0)
	for rows.Next() {
		var e models.AgentEvent
		if err := rows.Scan(&e.ID, &e.AgentID, &e.AgentName, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
