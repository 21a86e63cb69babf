// Package server provides the HTTP server for the hand tracking service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/handstream/internal/app"
	"github.com/ayusman/handstream/internal/logger"
	"github.com/ayusman/handstream/internal/metrics"
	"github.com/ayusman/handstream/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long Serve waits for in-flight HTTP requests on shutdown.
const ShutdownTimeout = 10 * time.Second

// Config holds the server configuration.
type Config struct {
	App     *app.App
	Session session.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server represents the HTTP server for the hand tracking service.
type Server struct {
	config Config
	router chi.Router
	log    *slog.Logger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		config: config,
		router: chi.NewRouter(),
		log:    log,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures middleware and HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodOptions, http.MethodHead,
		},
		AllowedHeaders: []string{"*"},
	}))
	s.router.Use(logger.RequestLogger(s.log))
	s.router.Use(metrics.RequestMiddleware(s.config.Metrics))

	s.router.Get("/api/health", s.handleHealth)

	if s.config.Metrics != nil {
		s.router.Handle("/metrics", s.config.Metrics.Handler())
	}

	// Register hand tracking WebSocket endpoint if the App is configured
	if s.config.App != nil {
		tracking := NewHandTrackingHandler(s.config.App, s.config.Session, s.log, s.config.Metrics)
		s.router.Get("/ws/hand-tracking", tracking.ServeHTTP)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
// Requests, including upgraded WebSocket sessions, inherit ctx, so cancelling it also
// closes open sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
