package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediacms/internal/config"
	"mediacms/internal/generation"
	"mediacms/internal/logger"
	"mediacms/internal/observability"
	"mediacms/internal/scheduler"
	"mediacms/internal/server"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command for starting the HTTP API
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the article generation API",
		Long: `Start the HTTP API.

Endpoints:
  GET  /health                          Store connectivity check
  POST /api/articles/generate           Manual generation (admin bearer key)
  GET  /api/articles/{id}               Fetch a generated article (admin bearer key)
  POST /api/cron/scheduled-generation   Run due schedules (cron bearer secret)

Examples:
  # Start server on default port 8080
  mediacms serve

  # Start on custom port
  mediacms serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	tracker, err := observability.NewPostHogClient(cfg.PostHog)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracker.Shutdown(shutdownCtx)
	}()

	pipeline, closePipeline, err := generation.NewBuilder(cfg).
		WithStore(store).
		WithTracker(tracker).
		Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build generation pipeline: %w", err)
	}
	defer closePipeline()

	trigger := scheduler.NewTrigger(pipeline, store, tracker, cfg.Scheduler.Location(), cfg.Scheduler.Concurrency)
	srv := server.New(cfg, store, pipeline, trigger)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s", cfg.Server.Address()))
		log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed, forcing close", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		log.Info("Server stopped successfully")
	}

	return nil
}
