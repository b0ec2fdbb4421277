package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"moneta/internal/backend"
	"moneta/internal/log"
	"moneta/internal/query"
)

// sessionHandler is a handler that runs only for a signed-in user.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess backend.Session)

// authed resolves the session cookie, refreshing an expired access token.
// Requests without a usable session are sent to the login page.
func (s *Server) authed(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := s.sessions.read(r)
		if err != nil {
			redirect(w, r, "/auth/login")
			return
		}

		if sess.Expired(s.now()) {
			fresh, err := s.refreshSession(ctx, sess)
			if err != nil {
				log.FromContext(ctx).WarnContext(ctx, "Session refresh failed",
					log.FieldUserID, sess.User.ID,
					log.FieldError, err,
					"error_type", log.ErrorTypeAuth)
				s.sessions.clear(w)
				redirect(w, r, "/auth/login")
				return
			}
			if err := s.sessions.write(w, fresh); err != nil {
				s.internalError(w, r, "Write session cookie", err)
				return
			}
			sess = fresh
		}

		logger := log.FromContext(ctx).With(log.FieldUserID, sess.User.ID)
		next(w, r.WithContext(log.NewContext(ctx, logger)), sess)
	}
}

func (s *Server) refreshSession(ctx context.Context, sess backend.Session) (backend.Session, error) {
	if sess.RefreshToken == "" {
		return backend.Session{}, errors.New("no refresh token")
	}
	fresh, err := s.backend.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		return backend.Session{}, err
	}
	if fresh.User.ID == "" {
		fresh.User = sess.User
	}
	return fresh, nil
}

// unauthorized ends a session the backend no longer accepts.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	s.forget(sess.User.ID)
	s.sessions.clear(w)
	redirect(w, r, "/auth/login")
}

// forget drops every cached query belonging to userID.
func (s *Server) forget(userID string) {
	if userID == "" {
		return
	}
	for _, resource := range []string{resourceAccounts, resourceTransactions, resourceOverview} {
		s.queries.Remove(query.Key{resource, userID})
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), msg,
		log.FieldError, err,
		"error_type", log.ErrorTypeInternal)
	InternalServerError("Something went wrong. Please try again.").Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.renderer == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.backend.Ping(ctx); err != nil {
		checks["backend"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["backend"] = "ok"
	}

	stats := s.queries.Stats()
	checks["query_cache"] = map[string]any{
		"entries":  stats.Entries,
		"hit_rate": stats.HitRate(),
		"errors":   stats.Errors,
		"status":   "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.read(r); err != nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// handleTheme flips between the light and dark theme and returns to the page
// the request came from.
func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	next := "dark"
	if themeFrom(r) == "dark" {
		next = "light"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     themeCookie,
		Value:    next,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   s.sessions.secure,
		SameSite: http.SameSiteLaxMode,
	})
	redirect(w, r, localReferer(r, "/dashboard"))
}

// handleFocus is reported by the page whenever the browser window regains
// focus. The refetch policy decides whether anything happens.
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	qc := query.MustFromContext(r.Context())
	if n := qc.WindowFocused(r.Context()); n > 0 {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Window focus refetch", "refetched", n)
	}
	w.WriteHeader(http.StatusNoContent)
}
