// Package server exposes article generation and the scheduler trigger over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mediacms/internal/config"
	"mediacms/internal/core"
	"mediacms/internal/generation"
	"mediacms/internal/logger"
)

// Generator runs a manual generation request
type Generator interface {
	Generate(ctx context.Context, req core.GenerationRequest) (*generation.Result, error)
}

// TriggerRunner runs every schedule due at a moment
type TriggerRunner interface {
	Run(ctx context.Context, now time.Time) (core.TriggerSummary, error)
}

// Store is what the handlers read directly
type Store interface {
	GetArticle(ctx context.Context, id string) (*core.GeneratedArticle, error)
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      Store
	generator  Generator
	trigger    TriggerRunner
	config     config.Server
	cronSecret string
	production bool
	timeout    time.Duration
	imagesDir  string
	imagesPath string
	log        *slog.Logger
	now        func() time.Time
}

// New creates a new HTTP server instance
func New(cfg *config.Config, store Store, generator Generator, trigger TriggerRunner) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		store:      store,
		generator:  generator,
		trigger:    trigger,
		config:     cfg.Server,
		cronSecret: cfg.Scheduler.CronSecret,
		production: cfg.App.IsProduction(),
		timeout:    requestTimeout(cfg.Generation.Timeout),
		imagesDir:  cfg.Images.Directory,
		imagesPath: cfg.Images.PublicBaseURL,
		log:        logger.Get().With("component", "server"),
		now:        time.Now,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// requestTimeout leaves headroom above the pipeline budget so the pipeline
// reports its own timeout before the router cuts the request.
func requestTimeout(budget time.Duration) time.Duration {
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	return budget + 30*time.Second
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.With(middleware.Timeout(s.timeout)).Get("/health", s.handleHealth)

	// Images written by the file sink are served locally when their public
	// base URL is a path on this server.
	if prefix := strings.TrimRight(s.imagesPath, "/"); s.imagesDir != "" && strings.HasPrefix(prefix, "/") {
		s.router.With(cacheStaticAssets).Handle(prefix+"/*", serveFiles(prefix, s.imagesDir))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))
			r.Use(s.requireAdminAPI)
			r.Post("/articles/generate", s.handleGenerateArticle)
			r.Get("/articles/{id}", s.handleGetArticle)
		})

		// No route timeout: every due schedule runs to its own budget and the
		// caller waits for all of them.
		r.With(s.requireCronSecret).Post("/cron/scheduled-generation", s.handleScheduledGeneration)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
		"request_timeout", s.timeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
