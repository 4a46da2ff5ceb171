package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kagehq/echos-sub001/pkg/config"
	"github.com/kagehq/echos-sub001/pkg/consent"
	"github.com/kagehq/echos-sub001/pkg/engine"
	"github.com/kagehq/echos-sub001/pkg/policy/manager"
	"github.com/kagehq/echos-sub001/pkg/timeline"
	"github.com/kagehq/echos-sub001/pkg/token"
)

// Server is the daemon's HTTP server.
type Server struct {
	config *config.ServerConfig
	logger *slog.Logger

	engine   *engine.Engine
	consent  *consent.Orchestrator
	tokens   *token.Manager
	manager  *manager.Manager
	resolver *manager.Resolver
	timeline *timeline.Log
	registry *prometheus.Registry

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	mu        sync.RWMutex
	isRunning bool
}

// Deps bundles the components the server exposes.
type Deps struct {
	Engine   *engine.Engine
	Consent  *consent.Orchestrator
	Tokens   *token.Manager
	Manager  *manager.Manager
	Resolver *manager.Resolver
	Timeline *timeline.Log

	// Registry, when set, exposes /metrics.
	Registry *prometheus.Registry
}

// New creates the HTTP server.
func New(cfg *config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:       cfg,
		logger:       logger.With("component", "server"),
		engine:       deps.Engine,
		consent:      deps.Consent,
		tokens:       deps.Tokens,
		manager:      deps.Manager,
		resolver:     deps.Resolver,
		timeline:     deps.Timeline,
		registry:     deps.Registry,
		shutdownChan: make(chan struct{}),
	}
}

// Routes returns the full handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/decide", s.handleDecide)
	mux.HandleFunc("POST /v1/events", s.handleEventAppend)

	mux.HandleFunc("GET /v1/consent", s.handleConsentList)
	mux.HandleFunc("GET /v1/consent/{eventId}", s.handleConsentAwait)
	mux.HandleFunc("POST /v1/consent/{eventId}", s.handleConsentResolve)

	mux.HandleFunc("POST /v1/tokens", s.handleTokenIssue)
	mux.HandleFunc("GET /v1/tokens", s.handleTokenList)
	mux.HandleFunc("POST /v1/tokens/introspect", s.handleTokenIntrospect)
	mux.HandleFunc("POST /v1/tokens/pause", s.handleTokenOp("pause"))
	mux.HandleFunc("POST /v1/tokens/resume", s.handleTokenOp("resume"))
	mux.HandleFunc("POST /v1/tokens/revoke", s.handleTokenOp("revoke"))

	mux.HandleFunc("GET /v1/roles", s.handleRoleList)
	mux.HandleFunc("GET /v1/roles/{agentId}", s.handleRoleGet)
	mux.HandleFunc("POST /v1/roles/{agentId}", s.handleRoleApply)

	mux.HandleFunc("GET /v1/templates", s.handleTemplateList)

	mux.HandleFunc("GET /v1/timeline", s.handleTimeline)
	mux.HandleFunc("GET /v1/timeline/export", s.handleTimelineExport)
	mux.HandleFunc("GET /v1/stream", s.handleStream)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Routes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, bounded by the configured
// shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.isRunning = false
		s.mu.Unlock()
		if !running || s.httpServer == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	})

	return shutdownErr
}

// RequestShutdown asks a blocked Start to shut the server down.
func (s *Server) RequestShutdown() {
	select {
	case s.shutdownChan <- struct{}{}:
	default:
	}
}
