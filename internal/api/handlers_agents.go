package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hivemind/internal/store"
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

type createAgentRequest struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Model        string `json:"model"`
	DepartmentID string `json:"department_id"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json")
		return
	}
	if req.Name == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "name and role are required")
		return
	}
	if len(req.Name) > 100 {
		writeError(w, http.StatusBadRequest, kindValidation, "name too long")
		return
	}

	agent, err := s.store.CreateAgent(r.Context(), store.CreateAgentParams{
		Name:         req.Name,
		Role:         req.Role,
		Model:        req.Model,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.store.AppendAgentEvent(r.Context(), agent.ID, "registered", fmt.Sprintf("role=%s model=%s", agent.Role, agent.Model)); err != nil {
		s.log.Error("append agent event", "err", err)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"agent": agent})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	agent, err := s.store.GetAgent(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), store.TaskFilter{AssignedToID: id, Limit: 20})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	events, err := s.store.ListAgentEvents(r.Context(), store.AgentEventFilter{AgentID: id, Limit: 50})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent, "tasks": tasks, "events": events})
}

type patchAgentRequest struct {
	Name         *string `json:"name"`
	Role         *string `json:"role"`
	Model        *string `json:"model"`
	Status       *string `json:"status"`
	HealthScore  *int    `json:"health_score"`
	DepartmentID *string `json:"department_id"`
}

func (s *Server) handlePatchAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req patchAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json")
		return
	}
	now := time.Now().UTC()
	agent, err := s.store.UpdateAgent(r.Context(), id, store.AgentUpdate{
		Name:         req.Name,
		Role:         req.Role,
		Model:        req.Model,
		Status:       req.Status,
		HealthScore:  req.HealthScore,
		DepartmentID: req.DepartmentID,
		LastActivity: &now,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Status != nil {
		if err := s.store.AppendAgentEvent(r.Context(), id, "status", *req.Status); err != nil {
			s.log.Error("append agent event", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteAgent(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
