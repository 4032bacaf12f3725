package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"hivemind/internal/models"
)

// CreateAgentParams collects inputs required to register an agent.
type CreateAgentParams struct {
	Name         string
	Role         string
	Model        string
	DepartmentID string
}

// CreateAgent registers a new agent. Returns ErrConflict if the name is
// already taken.
func (s *Store) CreateAgent(ctx context.Context, p CreateAgentParams) (models.Agent, error) {
	if p.Model == "" {
		p.Model = "sonnet"
	}
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (id, name, role, model, status, health_score, department_id, created_at)
		VALUES ($1, $2, $3, $4, $5, 100, NULLIF($6, ''), $7)
	`, id, p.Name, p.Role, p.Model, models.AgentIdle, p.DepartmentID, now)
	if isUniqueViolation(err) {
		return models.Agent{}, ErrConflict
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("insert agent: %w", err)
	}

	return models.Agent{
		ID:           id,
		Name:         p.Name,
		Role:         p.Role,
		Model:        p.Model,
		Status:       models.AgentIdle,
		HealthScore:  100,
		DepartmentID: emptyToNil(p.DepartmentID),
		CreatedAt:    now,
	}, nil
}

// AgentUpdate is a permissive field patch. Nil fields are left untouched;
// empty string on DepartmentID writes NULL.
type AgentUpdate struct {
	Name         *string
	Role         *string
	Model        *string
	Status       *string
	HealthScore  *int
	DepartmentID *string
	LastActivity *time.Time
}

// UpdateAgent applies a patch and returns the updated row.
func (s *Store) UpdateAgent(ctx context.Context, id string, u AgentUpdate) (models.Agent, error) {
	set := make([]string, 0, 8)
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if u.Name != nil {
		set = append(set, "name = "+arg(*u.Name))
	}
	if u.Role != nil {
		set = append(set, "role = "+arg(*u.Role))
	}
	if u.Model != nil {
		set = append(set, "model = "+arg(*u.Model))
	}
	if u.Status != nil {
		set = append(set, "status = "+arg(*u.Status))
	}
	if u.HealthScore != nil {
		set = append(set, "health_score = "+arg(*u.HealthScore))
	}
	if u.DepartmentID != nil {
		set = append(set, "department_id = NULLIF("+arg(*u.DepartmentID)+", '')")
	}
	if u.LastActivity != nil {
		set = append(set, "last_activity = "+arg(*u.LastActivity))
	}
	if len(set) == 0 {
		return s.GetAgent(ctx, id)
	}

	query := "UPDATE agents SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = $1 RETURNING id, name, role, model, status, health_score, department_id, last_activity, created_at"

	agent, err := scanAgent(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Agent{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return models.Agent{}, ErrConflict
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("update agent: %w", err)
	}
	return agent, nil
}

// GetAgent fetches an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (models.Agent, error) {
	agent, err := scanAgent(s.pool.QueryRow(ctx, `
		SELECT id, name, role, model, status, health_score, department_id, last_activity, created_at
		FROM agents WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Agent{}, ErrNotFound
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns all agents ordered by name, each with its department
// name and task counts resolved.
func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.name, a.role, a.model, a.status, a.health_score, a.department_id, a.last_activity, a.created_at,
		       d.name,
		       COUNT(t.id) FILTER (WHERE t.status IN ('queued', 'assigned', 'running')),
		       COUNT(t.id)
		FROM agents a
		LEFT JOIN departments d ON d.id = a.department_id
		LEFT JOIN tasks t ON t.assigned_to_id = a.id
		GROUP BY a.id, d.name
		ORDER BY a.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]models.Agent, 0)
	for rows.Next() {
		var a models.Agent
		var deptID pgtype.Text
		var lastActivity pgtype.Timestamptz
		var deptName pgtype.Text
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.Model, &a.Status, &a.HealthScore, &deptID, &lastActivity, &a.CreatedAt, &deptName, &a.ActiveTasks, &a.TotalTasks); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		a.DepartmentID = textPtr(deptID)
		a.LastActivity = timePtr(lastActivity)
		if a.DepartmentID != nil && deptName.Valid {
			a.Department = &models.Department{ID: *a.DepartmentID, Name: deptName.String}
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an agent. Tasks referencing it fall back to NULL
// assignee at the schema level.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAgent(row pgx.Row) (models.Agent, error) {
	var a models.Agent
	var deptID pgtype.Text
	var lastActivity pgtype.Timestamptz
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.Model, &a.Status, &a.HealthScore, &deptID, &lastActivity, &a.CreatedAt); err != nil {
		return models.Agent{}, err
	}
	a.DepartmentID = textPtr(deptID)
	a.LastActivity = timePtr(lastActivity)
	return a, nil
}
