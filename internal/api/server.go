package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/scflocal/internal/events"
	"github.com/mattjoyce/scflocal/internal/history"
	"github.com/mattjoyce/scflocal/internal/invoke"
	"github.com/mattjoyce/scflocal/internal/runtime"
)

// maxEventBytes bounds the request body forwarded as an event.
const maxEventBytes = 6 << 20

// Invoker runs a single function invocation.
type Invoker interface {
	Invoke(ctx context.Context, opts invoke.Options) (*invoke.Result, error)
}

// HistoryReader reads recorded invocations.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*history.Record, error)
	List(ctx context.Context, function string, limit int) ([]*history.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// Token, when non-empty, is required as a bearer token.
	Token string
	// TemplatePath is the template every request invokes from.
	TemplatePath string
	// EnvFile is an optional environment override file applied to every request.
	EnvFile string
}

// Server serves local function invocations over HTTP. Invocations are
// serialized: one child process at a time.
type Server struct {
	config    Config
	invoker   Invoker
	history   HistoryReader
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// invokeMu serializes invocations.
	invokeMu sync.Mutex
}

// New creates a new API server instance. hist may be nil, in which case the
// invocation listing routes report 503.
func New(config Config, invoker Invoker, hist HistoryReader, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		invoker:   invoker,
		history:   hist,
		events:    events.NewHub(256),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// Long enough for the largest function timeout.
		WriteTimeout: time.Duration(runtime.MaxTimeout)*time.Second + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String(), "template", s.config.TemplatePath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/invoke/{namespace}/{function}", s.handleInvoke)
		r.Get("/invocations", s.handleListInvocations)
		r.Get("/invocations/{id}", s.handleGetInvocation)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
