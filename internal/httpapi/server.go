// Package httpapi exposes DropService over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"darkdrop/internal/drop"
)

// multipartMemory is how much of a multipart upload is held in memory before
// the rest spills to temporary files.
const multipartMemory = 32 << 20

// Server is the DarkDrop HTTP API.
type Server struct {
	service  *drop.DropService
	logger   *slog.Logger
	metrics  *Metrics
	registry *prometheus.Registry
	router   chi.Router
}

// NewServer builds the router. Metrics are registered on a private registry
// served at /metrics.
func NewServer(service *drop.DropService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	registry := prometheus.NewRegistry()
	s := &Server{
		service:  service,
		logger:   logger,
		metrics:  NewMetrics(registry),
		registry: registry,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.metrics.Middleware)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/public/{token}", s.handlePublicDownload)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{accountID}", s.handleGetAccount)
		r.Post("/upload/{accountID}", s.handleUpload)
		r.Get("/download/{fileID}", s.handleDownload)

		r.Route("/files/{id}", func(r chi.Router) {
			r.Get("/", s.handleListFiles)
			r.Delete("/", s.handleDeleteFile)
			r.Get("/search", s.handleSearchFiles)
			r.Post("/share", s.handleShareFile)
			r.Get("/versions", s.handleListVersions)
			r.Post("/versions/{versionID}/restore", s.handleRestoreVersion)
			r.Get("/audit", s.handleAuditLog)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeValidation, "method not allowed")
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully,
// waiting at most shutdownTimeout for in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", slog.String("addr", ln.Addr().String()))
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "darkdrop-api"})
}
