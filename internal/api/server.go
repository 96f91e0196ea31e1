package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Snapwave333/klashibot-sub000/internal/config"
)

// Server runs the HTTP/WebSocket surface for observers.
type Server struct {
	cfg      config.DashboardConfig
	hub      *Hub
	handlers *Handlers
	events   <-chan Event
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates the observer server. events is the engine's outbound
// event channel; the server drains it and broadcasts to connected clients.
func NewServer(
	cfg config.DashboardConfig,
	provider SnapshotProvider,
	events <-chan Event,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		events:   events,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the server and hub. Blocks until the listener stops.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("observer server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping observer server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// consumeEvents broadcasts engine events until the channel closes.
func (s *Server) consumeEvents() {
	if s.events == nil {
		return
	}
	for evt := range s.events {
		s.hub.BroadcastEvent(evt)
	}
}
