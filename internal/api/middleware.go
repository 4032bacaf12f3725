package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"hivemind/internal/models"
)

type ctxKey int

const principalKey ctxKey = 0

// PrincipalFrom returns the authenticated principal attached by RequireAuth.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// RequireAuth resolves the session cookie to a principal before any handler
// work runs. Requests without a valid session get 401 and never reach
// downstream components.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(s.cfg.SessionCookie); err == nil {
			token = c.Value
		}
		principal, err := s.sessions.Get(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, kindUnauthenticated, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger emits one line per request.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// clientIP extracts the caller identity for rate limiting: first hop of
// X-Forwarded-For when present, otherwise the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
