// Package server provides the HTTP API for the keeper assistant.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/keeperhq/keeper/internal/chat"
	"github.com/keeperhq/keeper/internal/config"
	"github.com/keeperhq/keeper/internal/memory"
)

// Server is the HTTP server for the keeper API.
type Server struct {
	assistant  *chat.Assistant
	store      *memory.Store
	summarizer *memory.Summarizer
	composer   *memory.Composer
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	assistant *chat.Assistant,
	store *memory.Store,
	summarizer *memory.Summarizer,
	composer *memory.Composer,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		assistant:  assistant,
		store:      store,
		summarizer: summarizer,
		composer:   composer,
		config:     cfg,
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ask", s.handleAsk)
	r.Post("/api/v1/narrate", s.handleNarrate)
	r.Post("/api/v1/summaries/trigger", s.handleTriggerSummary)
	r.Get("/api/v1/summaries", s.handleListSummaries)
	r.Post("/api/v1/stories/complete", s.handleCompleteStory)
	r.Post("/api/v1/stories/session", s.handleSessionStory)
	r.Get("/api/v1/stories/latest", s.handleLatestStory)
	r.Get("/api/v1/sessions", s.handleListSessions)
	r.Post("/api/v1/sessions", s.handleStartSession)
	r.Get("/api/v1/memory/stats", s.handleMemoryStats)
	r.Delete("/api/v1/memory", s.handleClearMemory)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
