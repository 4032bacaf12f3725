package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hivemind/internal/models"
)

func newTestSessions(t *testing.T) (*Sessions, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessions(client, time.Hour), mr
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)

	principal := models.Principal{UserID: "u1", Username: "scott", Role: "admin"}
	token, err := sessions.Create(ctx, principal)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	got, err := sessions.Get(ctx, token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != principal {
		t.Fatalf("principal mismatch: got %+v", got)
	}
}

func TestUnknownTokenIsUnauthenticated(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)

	if _, err := sessions.Get(ctx, "no-such-token"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := sessions.Get(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty token, got %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	sessions, mr := newTestSessions(t)

	token, err := sessions.Create(ctx, models.Principal{UserID: "u1", Username: "scott", Role: "admin"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := sessions.Get(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected expired session to be unauthenticated, got %v", err)
	}
}

func TestDeleteRevokesSession(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)

	token, err := sessions.Create(ctx, models.Principal{UserID: "u1", Username: "scott", Role: "admin"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := sessions.Delete(ctx, token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := sessions.Get(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected revoked session to be unauthenticated, got %v", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("HiveMind2026!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !VerifyPassword(hash, "HiveMind2026!") {
		t.Fatal("correct password should verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("wrong password must not verify")
	}
}
