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

// CreateDepartmentParams collects inputs required to create a department.
type CreateDepartmentParams struct {
	Name        string
	Description string
	Icon        string
	IsCore      bool
}

// CreateDepartment inserts a department. Returns ErrConflict if the name is
// already taken.
func (s *Store) CreateDepartment(ctx context.Context, p CreateDepartmentParams) (models.Department, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO departments (id, name, description, icon, is_core, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
	`, id, p.Name, p.Description, p.Icon, p.IsCore, now)
	if isUniqueViolation(err) {
		return models.Department{}, ErrConflict
	}
	if err != nil {
		return models.Department{}, fmt.Errorf("insert department: %w", err)
	}

	return models.Department{
		ID:          id,
		Name:        p.Name,
		Description: emptyToNil(p.Description),
		Icon:        emptyToNil(p.Icon),
		IsCore:      p.IsCore,
		CreatedAt:   now,
	}, nil
}

// DepartmentUpdate is a permissive field patch.
type DepartmentUpdate struct {
	Name        *string
	Description *string
	Icon        *string
}

// UpdateDepartment applies a patch and returns the updated row.
func (s *Store) UpdateDepartment(ctx context.Context, id string, u DepartmentUpdate) (models.Department, error) {
	set := make([]string, 0, 3)
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if u.Name != nil {
		set = append(set, "name = "+arg(*u.Name))
	}
	if u.Description != nil {
		set = append(set, "description = NULLIF("+arg(*u.Description)+", '')")
	}
	if u.Icon != nil {
		set = append(set, "icon = NULLIF("+arg(*u.Icon)+", '')")
	}
	if len(set) == 0 {
		return s.GetDepartment(ctx, id)
	}

	query := "UPDATE departments SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = $1 RETURNING id, name, description, icon, is_core, created_at"

	dept, err := scanDepartment(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Department{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return models.Department{}, ErrConflict
	}
	if err != nil {
		return models.Department{}, fmt.Errorf("update department: %w", err)
	}
	return dept, nil
}

// GetDepartment fetches a department by id.
func (s *Store) GetDepartment(ctx context.Context, id string) (models.Department, error) {
	dept, err := scanDepartment(s.pool.QueryRow(ctx, `
		SELECT id, name, description, icon, is_core, created_at
		FROM departments WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Department{}, ErrNotFound
	}
	if err != nil {
		return models.Department{}, fmt.Errorf("get department: %w", err)
	}
	return dept, nil
}

// ListDepartments returns departments with agent and active-task counts,
// core departments first, then by name.
func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.name, d.description, d.icon, d.is_core, d.created_at,
		       (SELECT COUNT(*) FROM agents a WHERE a.department_id = d.id),
		       (SELECT COUNT(*) FROM tasks t WHERE t.department_id = d.id AND t.status IN ('queued', 'assigned', 'running'))
		FROM departments d
		ORDER BY d.is_core DESC, d.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	departments := make([]models.Department, 0)
	for rows.Next() {
		var d models.Department
		var desc, icon pgtype.Text
		if err := rows.Scan(&d.ID, &d.Name, &desc, &icon, &d.IsCore, &d.CreatedAt, &d.AgentCount, &d.ActiveTasks); err != nil {
			return nil, fmt.Errorf("scan department row: %w", err)
		}
		d.Description = textPtr(desc)
		d.Icon = textPtr(icon)
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// DeleteDepartment removes a department. Agents and tasks keep existing
// with a NULL department reference.
func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDepartment(row pgx.Row) (models.Department, error) {
	var d models.Department
	var desc, icon pgtype.Text
	if err := row.Scan(&d.ID, &d.Name, &desc, &icon, &d.IsCore, &d.CreatedAt); err != nil {
		return models.Department{}, err
	}
	d.Description = textPtr(desc)
	d.Icon = textPtr(icon)
	return d, nil
}
