// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/pipeline"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	pipeline *pipeline.Orchestrator
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server over the given pipeline.
func NewServer(p *pipeline.Orchestrator, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		pipeline: p,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
// Generation can legitimately take minutes, so there is no global timeout
// middleware; deadlines are enforced per request inside the pipeline.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ask", s.handleAsk)
	r.Post("/api/v1/retrieve", s.handleRetrieve)
	r.Post("/api/v1/index", s.handleBuildIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
