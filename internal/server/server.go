// Package server wires the meta-service HTTP routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/chronodb/metasrv/internal/config"
	"github.com/chronodb/metasrv/internal/handler"
	"github.com/chronodb/metasrv/internal/health"
	"github.com/chronodb/metasrv/internal/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the HTTP server
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	handlers    *handler.Handlers
	healthCheck *health.HealthChecker
	logger      *zap.Logger
	cfg         *config.Config
}

// NewServer creates the HTTP server and registers its routes
func NewServer(cfg *config.Config, handlers *handler.Handlers, healthCheck *health.HealthChecker, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:      router,
		handlers:    handlers,
		healthCheck: healthCheck,
		logger:      logger,
		cfg:         cfg,
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger, "/v1/heartbeat", "/health"),
	}
	if s.cfg.RateLimiter.Enabled {
		rl := middleware.NewRateLimiter(s.cfg.RateLimiter.RequestsPerSecond, s.cfg.RateLimiter.BurstSize, s.logger)
		chain = append(chain, rl.Limit)
	}
	mw := middleware.Chain(chain...)
	s.router.Use(mux.MiddlewareFunc(mw))

	s.router.HandleFunc("/health/live", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// Routes are registered on the root router with full templates so a
	// method mismatch resolves to 405 instead of a subrouter miss.
	s.router.HandleFunc("/v1/heartbeat", s.handlers.Heartbeat).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/namespaces/{ns:[0-9]+}/select", s.handlers.Select).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/namespaces/{ns:[0-9]+}/peers", s.handlers.LivePeers).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/namespaces/{ns:[0-9]+}/directory", s.handlers.KnownPeers).Methods(http.MethodGet)

	// mux skips Use middleware for unmatched requests
	s.router.NotFoundHandler = mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	}))
	s.router.MethodNotAllowedHandler = mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"status":"error","error_code":"INVALID_ARGUMENT","message":"` + message + `"}`))
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
