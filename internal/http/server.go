package http

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moneta/internal/analytics"
	"moneta/internal/backend"
	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/middleware/ratelimit"
	"moneta/internal/middleware/security"
	"moneta/internal/middleware/trace"
	"moneta/internal/query"
	appweb "moneta/web"
)

// Backend is the subset of the backend client the handlers use.
type Backend interface {
	Ping(ctx context.Context) error

	SignIn(ctx context.Context, email, password string) (backend.Session, error)
	SignUp(ctx context.Context, email, password string) (backend.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (backend.Session, error)

	ListAccounts(ctx context.Context, token string) ([]core.Account, error)
	CreateAccount(ctx context.Context, token string, a core.Account) (core.Account, error)
	ListTransactions(ctx context.Context, token string, ym core.YearMonth) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, token string, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, token, id string) error
	MonthOverview(ctx context.Context, token string, ym core.YearMonth) (core.MonthOverview, error)
}

var _ Backend = (*backend.Client)(nil)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Backend  Backend
	Queries  *query.Client
	Listener *analytics.Listener
	Logger   *log.Logger

	// SessionSecret seals the session cookie. Empty means a per-process key.
	SessionSecret string
	// SecureCookies marks cookies Secure; off only for local development.
	SecureCookies bool
	RateLimit     ratelimit.Config

	// Templates and Static default to the embedded web assets.
	Templates fs.FS
	Static    fs.FS
}

type Server struct {
	http.Server

	backend  Backend
	queries  *query.Client
	listener *analytics.Listener
	renderer *renderer
	sessions *sessionCodec
	logger   *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	trace    *trace.Middleware
	registry *prometheus.Registry

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. Template errors are logged and reported by /readyz
// rather than failing startup.
func NewServer(addr string, d Deps) (*Server, error) {
	if d.Backend == nil {
		return nil, fmt.Errorf("http: backend is required")
	}
	if d.Logger == nil {
		d.Logger = log.Discard()
	}
	if d.Queries == nil {
		d.Queries = query.NewClient(query.DefaultOptions(), d.Logger)
	}
	if d.Listener == nil {
		d.Listener = analytics.NewListener(analytics.Nop{}, d.Logger)
	}
	if d.Templates == nil {
		d.Templates = appweb.TemplatesFS
	}
	if d.Static == nil {
		d.Static = appweb.StaticFS
	}

	sessions, err := newSessionCodec(d.SessionSecret, d.SecureCookies)
	if err != nil {
		return nil, fmt.Errorf("http: session key: %w", err)
	}

	logger := d.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		backend:  d.Backend,
		queries:  d.Queries,
		listener: d.Listener,
		sessions: sessions,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(d.RateLimit),
		detector: security.NewDetector(),
		started:  time.Now(),
		now:      time.Now,
	}
	s.trace = trace.NewMiddleware(d.Logger, s.detector.ExtractClientIP)

	if r, err := newRenderer(d.Templates); err != nil {
		logger.Warn("Failed parsing templates",
			log.FieldError, err,
			"error_type", log.ErrorTypeConfiguration)
	} else {
		s.renderer = r
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		newMetricsCollector(s),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	s.routes(mux, d.Static)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux, static fs.FS) {
	if sub, err := fs.Sub(static, "static"); err == nil {
		files := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(files))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /theme", s.handleTheme)
	mux.HandleFunc("POST /ui/focus", s.handleFocus)

	mux.HandleFunc("GET /auth/login", s.handleLoginPage)
	mux.Handle("POST /auth/login", s.limit(s.handleLogin))
	mux.HandleFunc("GET /auth/signup", s.handleSignupPage)
	mux.Handle("POST /auth/signup", s.limit(s.handleSignup))
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	mux.HandleFunc("GET /onboarding", s.authed(s.handleOnboardingPage))
	mux.Handle("POST /onboarding", s.limit(s.authed(s.handleOnboarding)))
	mux.HandleFunc("GET /dashboard", s.authed(s.handleDashboard))
	mux.HandleFunc("GET /accounts", s.authed(s.handleAccounts))
	mux.Handle("POST /accounts", s.limit(s.authed(s.handleCreateAccount)))
	mux.HandleFunc("GET /transactions", s.authed(s.handleTransactions))
	mux.Handle("POST /transactions", s.limit(s.authed(s.handleCreateTransaction)))
	mux.Handle("POST /transactions/{id}/delete", s.limit(s.authed(s.handleDeleteTransaction)))
}

// chain wraps the router, outermost first: tracing, security headers,
// suspicious request rejection, the query client, and navigation analytics.
func (s *Server) chain(mux http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var h http.Handler = mux
	h = analytics.Middleware(s.listener)(h)
	h = query.Provider(s.queries)(h)
	h = s.detector.Middleware(s.logger)(h)
	h = headers.Middleware(h)
	h = s.trace.Middleware(h)
	return h
}

func (s *Server) limit(next http.HandlerFunc) http.Handler {
	return s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		w.Header().Set("Retry-After", "60")
		ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again in a minute.").Write(w)
	})(next)
}

// Shutdown stops background work and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
