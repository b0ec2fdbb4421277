package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"moneta/internal/backend"
	"moneta/internal/log"
)

type authData struct {
	Email string
}

func (s *Server) authLogger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentBackend)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.read(r); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	v := View{Title: "Sign in", Data: authData{}}
	if r.URL.Query().Get("confirm") == "1" {
		v.Flash = "Check your inbox to confirm your email, then sign in."
	}
	s.renderPage(w, r, http.StatusOK, "login", v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	form := loginFormFrom(r.PostForm)
	v := View{Title: "Sign in", Data: authData{Email: form.Email}}

	if err := validate.Struct(form); err != nil {
		v.Error = validationMessage(err)
		s.renderPage(w, r, http.StatusUnprocessableEntity, "login", v)
		return
	}

	ctx := r.Context()
	sess, err := s.backend.SignIn(ctx, form.Email, form.Password)
	if err != nil {
		status, msg := authFailure(err)
		s.authLogger(ctx).WarnContext(ctx, "Sign in failed",
			log.FieldOperation, log.OpSignIn,
			log.FieldStatusCode, status,
			log.FieldError, err,
			"error_type", log.ErrorTypeAuth)
		v.Error = msg
		s.renderPage(w, r, status, "login", v)
		return
	}

	if err := s.sessions.write(w, sess); err != nil {
		s.internalError(w, r, "Write session cookie", err)
		return
	}
	s.authLogger(ctx).InfoContext(ctx, "Signed in",
		log.FieldOperation, log.OpSignIn,
		log.FieldUserID, sess.User.ID)
	redirect(w, r, "/dashboard")
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.read(r); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.renderPage(w, r, http.StatusOK, "signup", View{Title: "Create account", Data: authData{}})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	form := signupFormFrom(r.PostForm)
	v := View{Title: "Create account", Data: authData{Email: form.Email}}

	if err := validate.Struct(form); err != nil {
		v.Error = validationMessage(err)
		s.renderPage(w, r, http.StatusUnprocessableEntity, "signup", v)
		return
	}

	ctx := r.Context()
	sess, err := s.backend.SignUp(ctx, form.Email, form.Password)
	switch {
	case errors.Is(err, backend.ErrConfirmationRequired):
		s.authLogger(ctx).InfoContext(ctx, "Sign up awaiting confirmation", log.FieldOperation, log.OpSignUp)
		redirect(w, r, "/auth/login?confirm=1")
		return
	case err != nil:
		status, msg := authFailure(err)
		s.authLogger(ctx).WarnContext(ctx, "Sign up failed",
			log.FieldOperation, log.OpSignUp,
			log.FieldStatusCode, status,
			log.FieldError, err)
		v.Error = msg
		s.renderPage(w, r, status, "signup", v)
		return
	}

	if err := s.sessions.write(w, sess); err != nil {
		s.internalError(w, r, "Write session cookie", err)
		return
	}
	s.authLogger(ctx).InfoContext(ctx, "Signed up",
		log.FieldOperation, log.OpSignUp,
		log.FieldUserID, sess.User.ID)
	redirect(w, r, "/onboarding")
}

// handleLogout revokes the session best-effort and always clears the cookie
// and the user's cached queries.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessions.read(r); err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		if err := s.backend.SignOut(ctx, sess.AccessToken); err != nil {
			s.authLogger(ctx).WarnContext(ctx, "Sign out failed", log.FieldError, err)
		}
		cancel()
		s.forget(sess.User.ID)
	}
	s.sessions.clear(w)
	redirect(w, r, "/auth/login")
}

// authFailure maps a backend auth error to a status and a message safe to show.
func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, backend.ErrConflict):
		return http.StatusConflict, "An account with this email already exists"
	default:
		return http.StatusServiceUnavailable, "The service is unavailable. Please try again later."
	}
}
