package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hivemind/internal/lifecycle"
	"hivemind/internal/store"
	"hivemind/internal/telemetry"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := s.cfg.ListLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	tasks, err := s.engine.List(r.Context(), store.TaskFilter{
		Status:       q.Get("status"),
		DepartmentID: q.Get("department_id"),
		Priority:     q.Get("priority"),
		Limit:        limit,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json")
		return
	}
	task, err := s.engine.Create(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	telemetry.TasksCreated.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch lifecycle.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json")
		return
	}
	task, err := s.engine.Transition(r.Context(), id, patch)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if patch.Status != nil {
		telemetry.TaskTransitions.WithLabelValues(*patch.Status).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.engine.Cancel(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	telemetry.TaskTransitions.WithLabelValues(task.Status).Inc()
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.engine.Retry(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	telemetry.TaskRetries.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListSubtasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	subtasks, err := s.engine.ListSubtasks(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subtasks": subtasks})
}
