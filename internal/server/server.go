package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/teemow/meetgate/internal/directory"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/meetings"
	"github.com/teemow/meetgate/internal/session"
	"github.com/teemow/meetgate/internal/webex"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// Authenticator verifies directory credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*directory.Entry, error)
}

// SessionManager issues and verifies session tokens.
type SessionManager interface {
	TokenVerifier
	Issue(id session.Identity) (string, error)
}

// MeetingService lists and schedules meetings.
type MeetingService interface {
	Availability(ctx context.Context, from, to string) ([]webex.Meeting, error)
	Schedule(ctx context.Context, scheduler meetings.Scheduler, req meetings.Request) (*webex.Meeting, error)
}

// RateLimitConfig configures the login limiter.
type RateLimitConfig struct {
	Enabled bool
	Rate    float64 // sustained attempts per second per client
	Burst   int
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	StaticDir      string
	AllowedOrigins []string
	TrustProxy     bool
	LoginRateLimit RateLimitConfig
	Version        string
}

// Dependencies are the components the server routes requests to.
// Metrics and Audit may be nil.
type Dependencies struct {
	Authenticator Authenticator
	Sessions      SessionManager
	Meetings      MeetingService
	Metrics       *instrumentation.Metrics
	Audit         *instrumentation.AuditLogger
	Logger        *slog.Logger
}

// Server is the meetgate HTTP API.
type Server struct {
	config        Config
	authenticator Authenticator
	sessions      SessionManager
	meetings      MeetingService
	metrics       *instrumentation.Metrics
	audit         *instrumentation.AuditLogger
	logger        *slog.Logger

	router  chi.Router
	limiter *RateLimiter
	static  http.Handler
	health  *HealthChecker

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a Server and builds its routes.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if deps.Meetings == nil {
		return nil, errors.New("meeting service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		config:        cfg,
		authenticator: deps.Authenticator,
		sessions:      deps.Sessions,
		meetings:      deps.Meetings,
		metrics:       deps.Metrics,
		audit:         deps.Audit,
		logger:        deps.Logger,
		health:        NewHealthChecker(cfg.Version),
	}
	// Ready once Serve has a listener
	s.health.SetReady(false)

	if cfg.StaticDir != "" {
		static, err := newSPAHandler(cfg.StaticDir)
		if err != nil {
			return nil, fmt.Errorf("invalid static directory: %w", err)
		}
		s.static = static
	}
	if cfg.LoginRateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.LoginRateLimit.Rate, cfg.LoginRateLimit.Burst, cfg.TrustProxy)
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument(s.metrics))
	r.Use(logRequests(s.logger))

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	s.health.RegisterHealthEndpoints(r)

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
		// Set before the nested routes so the meetings subrouter inherits them
		r.NotFound(s.handleNotFound)
		r.MethodNotAllowed(s.handleMethodNotAllowed)

		login := r.With()
		if s.limiter != nil {
			login = r.With(s.limiter.Middleware(s.metrics))
		}
		login.Post("/auth/login", s.handleLogin)

		r.Route("/meetings", func(r chi.Router) {
			r.Use(RequireSession(s.sessions, s.logger))
			r.Get("/availability", s.handleAvailability)
			r.Post("/schedule", s.handleSchedule)
		})
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the server's health checker.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Route describes a registered HTTP route.
type Route struct {
	Method  string
	Pattern string
}

// Routes lists every registered route sorted by pattern, then method.
func (s *Server) Routes() ([]Route, error) {
	var routes []Route
	err := chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, Route{Method: method, Pattern: route})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Pattern != routes[j].Pattern {
			return routes[i].Pattern < routes[j].Pattern
		}
		return routes[i].Method < routes[j].Method
	})
	return routes, nil
}

// ListenAndServe serves on the configured address until Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	s.health.SetReady(true)
	return srv.Serve(ln)
}

// Shutdown marks the server as draining and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
