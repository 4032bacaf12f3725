package store

import (
	"context"
	"fmt"

	"hivemind/internal/models"
)

// Stats is the dashboard overview snapshot.
type Stats struct {
	Departments    int           `json:"departments"`
	Agents         int           `json:"agents"`
	ActiveTasks    int           `json:"active_tasks"`
	CompletedTasks int           `json:"completed_tasks"`
	FailedTasks    int           `json:"failed_tasks"`
	RecentTasks    []models.Task `json:"recent_tasks"`
}

// GetStats aggregates fleet-wide counts plus the newest active tasks.
func (s *Store) GetStats(ctx context.Context, recentLimit int) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM departments),
			(SELECT COUNT(*) FROM agents),
			(SELECT COUNT(*) FROM tasks WHERE status IN ('queued', 'assigned', 'running')),
			(SELECT COUNT(*) FROM tasks WHERE status = 'completed'),
			(SELECT COUNT(*) FROM tasks WHERE status = 'failed')
	`).Scan(&st.Departments, &st.Agents, &st.ActiveTasks, &st.CompletedTasks, &st.FailedTasks)
	if err != nil {
		return Stats{}, fmt.Errorf("count stats: %w", err)
	}

	if recentLimit <= 0 {
		recentLimit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.title, t.description, t.status, t.priority, t.department_id, t.assigned_to_id, t.created_by_id,
		       t.payload, t.result, t.error_message, t.parent_task_id, t.created_at, t.started_at, t.finished_at,
		       a.name, d.name
		FROM tasks t
		LEFT JOIN agents a ON a.id = t.assigned_to_id
		LEFT JOIN departments d ON d.id = t.department_id
		WHERE t.status IN ('queued', 'assigned', 'running')
		ORDER BY t.created_at DESC
		LIMIT $1
	`, recentLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("recent tasks: %w", err)
	}
	defer rows.Close()

	st.RecentTasks = make([]models.Task, 0, recentLimit)
	for rows.Next() {
		task, err := scanTaskWithRefs(rows)
		if err != nil {
			return Stats{}, fmt.Errorf("scan recent task: %w", err)
		}
		st.RecentTasks = append(st.RecentTasks, task)
	}
	return st, rows.Err()
}
