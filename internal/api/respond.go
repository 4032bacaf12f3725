package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"hivemind/internal/auth"
	"hivemind/internal/lifecycle"
	"hivemind/internal/store"
)

// Stable machine-readable error kinds. Clients key off these, not the
// human-readable messages.
const (
	kindValidation      = "validation"
	kindNotFound        = "not_found"
	kindConflict        = "conflict"
	kindRateLimited     = "rate_limited"
	kindUnauthenticated = "unauthenticated"
	kindInternal        = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}

// writeDomainError maps engine and store errors onto the error taxonomy.
// Unknown errors surface as a bare internal kind; details go to the log,
// never to the client.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var verr lifecycle.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, kindValidation, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, kindConflict, "name already exists")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, kindUnauthenticated, "authentication required")
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}
