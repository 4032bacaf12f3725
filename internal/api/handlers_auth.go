package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"hivemind/internal/auth"
	"hivemind/internal/models"
	"hivemind/internal/store"
	"hivemind/internal/telemetry"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool             `json:"success"`
	User    models.Principal `json:"user"`
}

// handleLogin runs the gate sequence: rate limit check, credential verify,
// then either a recorded failure or a reset plus fresh session. Unknown
// username and bad password produce the same response so the two cannot be
// told apart.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	identity := clientIP(r)

	if allowed, retryAfter := s.limiter.Check(identity); !allowed {
		telemetry.RateLimitRejects.Inc()
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, kindRateLimited, "too many login attempts, try again later")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "username and password required")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		s.limiter.RecordFailure(identity)
		telemetry.LoginFailures.Inc()
		writeError(w, http.StatusUnauthorized, kindUnauthenticated, "invalid credentials")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.limiter.RecordFailure(identity)
		telemetry.LoginFailures.Inc()
		writeError(w, http.StatusUnauthorized, kindUnauthenticated, "invalid credentials")
		return
	}

	s.limiter.Reset(identity)

	principal := models.Principal{UserID: user.ID, Username: user.Username, Role: user.Role}
	token, err := s.sessions.Create(r.Context(), principal)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Env == "prod",
	})

	telemetry.LoginSuccess.Inc()
	s.log.Info("login", "username", user.Username, "identity", identity)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: principal})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, kindUnauthenticated, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": principal})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cfg.SessionCookie); err == nil {
		if err := s.sessions.Delete(r.Context(), c.Value); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
