// Package server provides the HTTP API for utsushi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/config"
	"github.com/hyperjump/utsushi/internal/metrics"
	"github.com/hyperjump/utsushi/internal/refresh"
	"github.com/hyperjump/utsushi/internal/search"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/internal/tasks"
	"github.com/hyperjump/utsushi/internal/vector"
)

// Server is the HTTP server for the utsushi API.
type Server struct {
	engine  *search.Engine
	refresh *refresh.Coordinator
	tasks   *tasks.Runner
	storage storage.Storage
	vectors vector.VectorStore
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	coordinator *refresh.Coordinator,
	runner *tasks.Runner,
	store storage.Storage,
	vectors vector.VectorStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:  engine,
		refresh: coordinator,
		tasks:   runner,
		storage: store,
		vectors: vectors,
		config:  cfg,
		logger:  logger,
	}
}

// Handler returns the router with every API route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search/text", s.handleTextSearch)
		r.Post("/search/image", s.handleImageSearch)
		r.Get("/search/name", s.handleNameSearch)
		r.Get("/folders", s.handleListFolders)
		r.Post("/folders", s.handleAddFolder)
		r.Post("/refresh", s.handleStartRefresh)
		r.Delete("/refresh", s.handleCancelRefresh)
		r.Get("/tasks/current", s.handleCurrentTask)
		r.Get("/media/{id}", s.handleGetMedia)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// instrument records request counts and latencies by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop cancels any running background task and gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.tasks.Cancel() {
		if err := s.tasks.Wait(ctx); err != nil {
			s.logger.Warn("background task did not stop in time", zap.Error(err))
		}
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
