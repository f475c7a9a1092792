package webapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jdt2/agents-in-the-loop/internal/observability"
	"github.com/jdt2/agents-in-the-loop/pkg/query"
	"github.com/jdt2/agents-in-the-loop/pkg/store"
)

// Server serves the HTTP boundary.
type Server struct {
	host            string
	port            int
	orchestrator    *query.Orchestrator
	store           *store.Store
	agentConfigured bool
	logger          zerolog.Logger
	upgrader        websocket.Upgrader

	httpServer *http.Server

	inFlight   sync.WaitGroup
	shutdownMu sync.RWMutex
	stopping   bool
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	Orchestrator *query.Orchestrator
	Store        *store.Store
	// AgentConfigured is reported by the health endpoint.
	AgentConfigured bool
	Logger          zerolog.Logger
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		orchestrator:    cfg.Orchestrator,
		store:           cfg.Store,
		agentConfigured: cfg.AgentConfigured,
		logger:          cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	return s, nil
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(s.trackInFlight)

	r.Post("/query", s.handleQueryForm)
	r.Post("/api/query", s.handleQueryJSON)
	r.Get("/session/{id}", s.handleGetSession)
	r.Get("/session/{id}/stream", s.handleStream)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())

	return r
}

// trackInFlight counts requests so Stop can drain them, and rejects new
// work during shutdown.
func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.stopping {
			s.shutdownMu.RUnlock()
			Error(w, query.KindServiceUnavailable, "server is shutting down", "")
			return
		}
		s.inFlight.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlight.Done()

		next.ServeHTTP(w, r)
	})
}

// Start begins listening. It returns once the listener goroutine is running.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		// Runs can hold a response open for the full query timeout, so
		// writes are not bounded here.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop drains in-flight requests, then shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.stopping = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown deadline reached before requests drained")
	}

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
