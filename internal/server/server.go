package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/lightkeeperhq/guardrails/internal/audit"
	"github.com/lightkeeperhq/guardrails/internal/cache"
	"github.com/lightkeeperhq/guardrails/internal/chat"
	"github.com/lightkeeperhq/guardrails/internal/config"
	"github.com/lightkeeperhq/guardrails/internal/guardrails"
	"github.com/lightkeeperhq/guardrails/internal/logger"
	"github.com/lightkeeperhq/guardrails/internal/ratelimit"
	"github.com/lightkeeperhq/guardrails/internal/web"
	"github.com/lightkeeperhq/guardrails/internal/websocket"
	"go.uber.org/zap"
)

// Server is the guardrails gateway: it exposes the chat and sanitize
// endpoints and the monitoring surface.
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	sanitizer  *guardrails.Sanitizer
	pipeline   *chat.Pipeline
	limiter    *ratelimit.Limiter
	router     *mux.Router
	server     *http.Server
	wsHub      *websocket.Hub
	verdicts   *cache.VerdictCache
	auditStore *audit.Store
	started    time.Time
	stopStatus chan struct{}

	totalRequests   int64
	totalDetections int64
}

// New creates a new gateway server instance. The verdict cache and
// audit store are optional: a nil dependency disables that concern.
func New(cfg *config.Config, log *logger.Logger, verdicts *cache.VerdictCache, auditStore *audit.Store) (*Server, error) {
	sanitizer, err := guardrails.New(cfg.Guardrails, log.WithComponent("guardrails"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sanitizer: %w", err)
	}

	upstream := chat.NewClient(cfg.Upstream, log.WithComponent("upstream"))
	pipeline := chat.NewPipeline(sanitizer, upstream, verdicts, auditStore, log.WithComponent("chat"))

	wsHub := websocket.NewHub(cfg.WebSocket, log.WithComponent("websocket").Logger)

	router := mux.NewRouter()

	server := &Server{
		config:     cfg,
		logger:     log.WithComponent("server"),
		sanitizer:  sanitizer,
		pipeline:   pipeline,
		limiter:    ratelimit.New(cfg.RateLimit),
		router:     router,
		wsHub:      wsHub,
		verdicts:   verdicts,
		auditStore: auditStore,
		started:    time.Now(),
		stopStatus: make(chan struct{}),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket endpoint for dashboard
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	// API endpoints
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/chat", s.handleChat).Methods("POST")
	api.HandleFunc("/sanitize", s.handleSanitize).Methods("POST")

	// Admin endpoints for the optional audit store and verdict cache
	api.HandleFunc("/audit/export", s.handleAuditExport).Methods("POST")
	api.HandleFunc("/cache/clear", s.handleCacheClear).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting guardrails gateway",
		zap.Int("port", s.config.Server.Port),
		zap.String("upstream", s.config.Upstream.URL),
		zap.Strings("detectors", s.sanitizer.EnabledCategories()),
	)

	// Start WebSocket hub in a separate goroutine
	go s.wsHub.Run()

	s.limiter.StartCleanupRoutine()

	go s.statusLoop()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping guardrails gateway")
	close(s.stopStatus)
	return s.server.Shutdown(ctx)
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// statusInterval is how often the hub broadcasts a system_status event.
const statusInterval = 30 * time.Second

// statusLoop periodically broadcasts gateway status to dashboard clients
// until the server stops.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data:      s.systemStatus(),
			})
		case <-s.stopStatus:
			return
		}
	}
}

// systemStatus snapshots the gateway's aggregate counters.
func (s *Server) systemStatus() websocket.SystemStatusEvent {
	return websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.started).String(),
		TotalRequests:    atomic.LoadInt64(&s.totalRequests),
		TotalDetections:  atomic.LoadInt64(&s.totalDetections),
		ActiveDetectors:  len(s.sanitizer.EnabledCategories()),
		ConnectedClients: int(s.wsHub.GetStats().ActiveConnections),
	}
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
