// Package server provides the HTTP API for codeindex.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/app"
	"github.com/hyperjump/codeindex/internal/config"
)

// Server is the HTTP server for the codeindex API.
type Server struct {
	app    *app.App
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server over the composed application.
func NewServer(a *app.App, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		app:    a,
		config: cfg,
		logger: logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/api/admin/ann", func(r chi.Router) {
		// rebuild can page through the whole store
		r.Post("/rebuild", s.handleRebuild)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Post("/persist", s.handlePersist)
			r.Post("/load", s.handleLoad)
			r.Get("/params", s.handleGetParams)
			r.Post("/params", s.handleSetParams)
			r.Get("/status", s.handleIndexStatus)
			r.Get("/health", s.handleIndexHealth)
			r.Post("/sample", s.handleSample)
		})
	})

	r.Route("/api/scan/job", func(r chi.Router) {
		r.Post("/start", s.handleJobStart)
		r.Post("/pause", s.handleJobPause)
		r.Post("/resume", s.handleJobResume)
		r.Post("/cancel", s.handleJobCancel)
		r.Get("/status", s.handleJobStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/api/query", s.handleQueryGet)
		r.Post("/api/query", s.handleQueryPost)
		r.Get("/api/retrieve", s.handleRetrieve)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
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

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
