package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hivemind/internal/auth"
	"hivemind/internal/config"
	"hivemind/internal/lifecycle"
	"hivemind/internal/ratelimit"
	"hivemind/internal/store"
	"hivemind/internal/telemetry"
)

// Server wires HTTP handlers for the dashboard API.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	store    *store.Store
	engine   *lifecycle.Engine
	sessions *auth.Sessions
	limiter  *ratelimit.SlidingWindow
}

// New constructs the API server.
func New(cfg config.Config, log *slog.Logger, st *store.Store, engine *lifecycle.Engine, sessions *auth.Sessions, limiter *ratelimit.SlidingWindow) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		store:    st,
		engine:   engine,
		sessions: sessions,
		limiter:  limiter,
	}
}

// Router builds the HTTP router. Everything except login, health and
// metrics sits behind the auth gate.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.RequireAuth)

		r.Get("/api/auth/me", s.handleMe)
		r.Post("/api/auth/logout", s.handleLogout)

		r.Get("/api/tasks", s.handleListTasks)
		r.Post("/api/tasks", s.handleCreateTask)
		r.Get("/api/tasks/{id}", s.handleGetTask)
		r.Patch("/api/tasks/{id}", s.handlePatchTask)
		r.Delete("/api/tasks/{id}", s.handleDeleteTask)
		r.Post("/api/tasks/{id}/cancel", s.handleCancelTask)
		r.Post("/api/tasks/{id}/retry", s.handleRetryTask)
		r.Get("/api/tasks/{id}/subtasks", s.handleListSubtasks)

		r.Get("/api/agents", s.handleListAgents)
		r.Post("/api/agents", s.handleCreateAgent)
		r.Get("/api/agents/{id}", s.handleGetAgent)
		r.Patch("/api/agents/{id}", s.handlePatchAgent)
		r.Delete("/api/agents/{id}", s.handleDeleteAgent)

		r.Get("/api/departments", s.handleListDepartments)
		r.Post("/api/departments", s.handleCreateDepartment)
		r.Get("/api/departments/{id}", s.handleGetDepartment)
		r.Patch("/api/departments/{id}", s.handlePatchDepartment)
		r.Delete("/api/departments/{id}", s.handleDeleteDepartment)

		r.Get("/api/stats", s.handleStats)
		r.Get("/api/logs", s.handleLogs)
	})

	return r
}
