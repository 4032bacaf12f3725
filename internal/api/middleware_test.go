package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hivemind/internal/auth"
	"hivemind/internal/config"
	"hivemind/internal/lifecycle"
	"hivemind/internal/models"
	"hivemind/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return &Server{
		cfg:      config.Config{SessionCookie: "hivemind_session"},
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: auth.NewSessions(client, time.Hour),
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.9:5412"
	if got := clientIP(r); got != "192.168.1.9" {
		t.Fatalf("clientIP = %q, want peer host", got)
	}

	r.Header.Set("X-Forwarded-For", "10.0.0.5, 70.1.1.1")
	if got := clientIP(r); got != "10.0.0.5" {
		t.Fatalf("clientIP = %q, want first forwarded hop", got)
	}
}

func TestRequireAuthRejectsWithoutSession(t *testing.T) {
	s := newTestServer(t)

	handler := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a principal")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Kind != kindUnauthenticated {
		t.Fatalf("kind = %q, want %q", resp.Kind, kindUnauthenticated)
	}
}

func TestRequireAuthAttachesPrincipal(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	principal := models.Principal{UserID: "u1", Username: "scott", Role: "admin"}
	token, err := s.sessions.Create(ctx, principal)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var got models.Principal
	handler := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			t.Fatal("principal missing from context")
		}
		got = p
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.AddCookie(&http.Cookie{Name: "hivemind_session", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got != principal {
		t.Fatalf("principal = %+v, want %+v", got, principal)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		err  error
		code int
		kind string
	}{
		{lifecycle.ValidationError("title is required"), http.StatusBadRequest, kindValidation},
		{store.ErrNotFound, http.StatusNotFound, kindNotFound},
		{store.ErrConflict, http.StatusConflict, kindConflict},
		{auth.ErrUnauthenticated, http.StatusUnauthorized, kindUnauthenticated},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, kindInternal},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.writeDomainError(rec, tc.err)
		if rec.Code != tc.code {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.code)
		}
		var resp errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if resp.Kind != tc.kind {
			t.Fatalf("%v: kind = %q, want %q", tc.err, resp.Kind, tc.kind)
		}
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.writeDomainError(rec, io.ErrUnexpectedEOF)

	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error != "internal error" {
		t.Fatalf("internal errors must not leak details, got %q", resp.Error)
	}
}
