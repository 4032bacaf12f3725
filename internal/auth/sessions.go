// Package auth implements the access gate: session-backed principals and
// credential verification. It performs no business logic of its own.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hivemind/internal/models"
)

// ErrUnauthenticated is returned when no valid session backs a request.
var ErrUnauthenticated = errors.New("unauthenticated")

const sessionKeyPrefix = "session:"

// Sessions stores opaque session tokens mapped to principals in Redis with
// a TTL. Tokens are uuids; the principal is stored as JSON.
type Sessions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessions constructs the session store.
func NewSessions(client *redis.Client, ttl time.Duration) *Sessions {
	return &Sessions{client: client, ttl: ttl}
}

// Create issues a fresh token for the principal.
func (s *Sessions) Create(ctx context.Context, p models.Principal) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal principal: %w", err)
	}
	token := uuid.New().String()
	if err := s.client.Set(ctx, sessionKeyPrefix+token, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Get resolves a token to its principal, or ErrUnauthenticated if the token
// is unknown or expired.
func (s *Sessions) Get(ctx context.Context, token string) (models.Principal, error) {
	if token == "" {
		return models.Principal{}, ErrUnauthenticated
	}
	data, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("load session: %w", err)
	}
	var p models.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Principal{}, fmt.Errorf("unmarshal principal: %w", err)
	}
	return p, nil
}

// Delete revokes a token. Deleting an unknown token is not an error.
func (s *Sessions) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
