package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hivemind/internal/store"
)

func (s *Server) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := s.store.ListDepartments(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": departments})
}

type createDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	IsCore      bool   `json:"is_core"`
}

func (s *Server) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req createDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "name is required")
		return
	}
	if len(req.Name) > 100 || len(req.Description) > 500 {
		writeError(w, http.StatusBadRequest, kindValidation, "name or description too long")
		return
	}

	dept, err := s.store.CreateDepartment(r.Context(), store.CreateDepartmentParams{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		IsCore:      req.IsCore,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"department": dept})
}

func (s *Server) handleGetDepartment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dept, err := s.store.GetDepartment(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), store.TaskFilter{DepartmentID: id, Limit: 50})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"department": dept, "tasks": tasks})
}

type patchDepartmentRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

func (s *Server) handlePatchDepartment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req patchDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json")
		return
	}
	dept, err := s.store.UpdateDepartment(r.Context(), id, store.DepartmentUpdate{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"department": dept})
}

func (s *Server) handleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteDepartment(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
