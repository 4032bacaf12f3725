package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hivemind/internal/models"
)

// GetUserByUsername fetches an operator account for credential checks.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// EnsureUser creates an operator account if the username is free. Used for
// the startup admin seed; an existing account is left untouched.
func (s *Store) EnsureUser(ctx context.Context, username, passwordHash, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
	`, uuid.New().String(), username, passwordHash, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}
