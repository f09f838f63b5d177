// Package server provides the HTTP API for capsule.
//
// Every archive operation is exposed as a JSON POST endpoint:
//   - /api/archives/list           - list every entry of an archive
//   - /api/archives/list-many      - list several archives concurrently
//   - /api/archives/browse         - list the children of one directory
//   - /api/archives/extract        - extract an archive to a directory
//   - /api/archives/create         - create a new archive
//   - /api/archives/add            - add files to an archive
//   - /api/archives/remove         - remove entries from an archive
//   - /api/archives/preview        - preview one entry
//   - /api/archives/extract-entry  - extract one entry to a temp directory
//   - /api/archives/export         - upload an archive to a blob bucket
//   - /api/files/copy              - copy a file
//   - /api/files/size              - report a file's size
//
// Additional endpoints:
//   - /health    - Health check endpoint
//   - /metrics   - Prometheus metrics
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wayrou/Capsule/internal/capsule"
	"github.com/wayrou/Capsule/internal/config"
	"github.com/wayrou/Capsule/internal/metrics"
)

// Server is the capsule HTTP API server.
type Server struct {
	cfg    *config.Config
	svc    *capsule.Service
	logger *slog.Logger
	http   *http.Server
}

// New creates a new Server that runs operations on svc.
func New(cfg *config.Config, svc *capsule.Service, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
	}
}

// Router builds the chi router with all middleware and routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(s.LoggerMiddleware)
	r.Use(ActiveRequestsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/archives", func(r chi.Router) {
		r.Post("/list", s.handleList)
		r.Post("/list-many", s.handleListMany)
		r.Post("/browse", s.handleBrowse)
		r.Post("/extract", s.handleExtract)
		r.Post("/create", s.handleCreate)
		r.Post("/add", s.handleAdd)
		r.Post("/remove", s.handleRemove)
		r.Post("/preview", s.handlePreview)
		r.Post("/extract-entry", s.handleExtractEntry)
		r.Post("/export", s.handleExport)
	})

	r.Route("/api/files", func(r chi.Router) {
		r.Post("/copy", s.handleCopy)
		r.Post("/size", s.handleSize)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Large archives need time
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server",
		"listen", s.cfg.Listen,
		"temp_dir", s.cfg.TempDir,
		"export_url", s.cfg.Export.URL)

	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "ok")
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
