// Package server provides the HTTP API server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"loom/internal/config"
	"loom/internal/prompt"
	"loom/internal/runner"
	"loom/internal/server/handlers"
	"loom/internal/server/middleware"
	"loom/internal/server/websocket"
	"loom/pkg/logger"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	config      *config.Config
	manager     *runner.Manager
	prompts     *prompt.Store
	watcher     *prompt.Watcher
	rateLimiter *middleware.RateLimiter
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, manager *runner.Manager, prompts *prompt.Store) *Server {
	router := mux.NewRouter()
	hub := websocket.NewHub()

	rlConfig := middleware.RateLimiterConfig{
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		Burst:             cfg.Server.RateLimit.Burst,
		Enabled:           cfg.Server.RateLimit.Enabled,
		CleanupInterval:   cfg.Server.RateLimit.CleanupInterval,
	}
	if rlConfig.RequestsPerMinute == 0 {
		rlConfig.RequestsPerMinute = 120
	}
	if rlConfig.Burst == 0 {
		rlConfig.Burst = 20
	}
	if rlConfig.CleanupInterval == 0 {
		rlConfig.CleanupInterval = 5 * time.Minute
	}
	rateLimiter := middleware.NewRateLimiter(rlConfig)

	// Middleware chain: Recovery -> Logging -> CORS -> RateLimit -> Version
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				rateLimiter.RateLimit(
					middleware.Version(middleware.DefaultVersionConfig())(router),
				),
			),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Handler:      handler,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 0, // websocket connections outlive any fixed deadline
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         hub,
		config:      cfg,
		manager:     manager,
		prompts:     prompts,
		rateLimiter: rateLimiter,
	}

	// Engine events flow to subscribed websocket clients.
	manager.OnEngineCreate(func(e *runner.SessionEngine) {
		e.Subscribe(func(ev runner.Event) {
			if err := s.hub.BroadcastEvent(ev.SessionID, ev); err != nil {
				logger.Warn().Err(err).Msg("event broadcast failed")
			}
		})
	})

	s.setupRoutes()
	return s
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", handlers.HealthHandler(s.config.Version)).Methods("GET")

	handlers.NewSessionHandler(s.manager).RegisterRoutes(s.router)
	if s.prompts != nil {
		handlers.NewPromptHandler(s.prompts).RegisterRoutes(s.router)
	}

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})
}

// EnablePromptReload starts watching the prompt directory and notifies
// websocket clients on every change.
func (s *Server) EnablePromptReload() error {
	if s.prompts == nil {
		return nil
	}
	w, err := prompt.NewWatcher(s.prompts)
	if err != nil {
		return err
	}
	w.OnReload(func(path string) {
		data, err := json.Marshal(websocket.WSMessage{
			Type: websocket.TypeReload,
			Path: path,
		})
		if err != nil {
			return
		}
		s.hub.BroadcastAll(data)
	})
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

// Start starts the HTTP server. Blocks until shutdown.
func (s *Server) Start() error {
	handlers.InitStartTime()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer.Addr = addr

	go s.hub.Run()

	logger.Info().
		Str("addr", addr).
		Msg("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, flushing loaded sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down API server")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if err := s.manager.FlushAll(); err != nil {
		logger.Warn().Err(err).Msg("flush on shutdown failed")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
