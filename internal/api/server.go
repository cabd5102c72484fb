// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fishit-backend/internal/ledger"
	"github.com/fishit-backend/internal/logging"
	"github.com/fishit-backend/internal/progress"
)

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	hub        *progress.Hub
	ledger     *ledger.Ledger
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration // zero keeps event streams open
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	KeepAliveInterval time.Duration
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, hub *progress.Hub, led *ledger.Ledger, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router: mux.NewRouter(),
		hub:    hub,
		ledger: led,
		config: config,
		logger: logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint. OPTIONS is listed so the CORS middleware sees
	// preflight requests; mux skips middleware on method mismatches.
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET", "HEAD", "OPTIONS")

	// Per-user progress stream
	s.router.HandleFunc("/events/{userAddress}", s.handleEvents).Methods("GET", "OPTIONS")

	// Processed-event statistics
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods("GET", "OPTIONS")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "fishit-backend",
	})
}

// handleStats reports ledger statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"totalProcessed": stats.TotalProcessed,
		"uniqueUsers":    stats.UniqueUsers,
		"oldestEvent":    stats.OldestEvent,
		"newestEvent":    stats.NewestEvent,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
