package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mediacms/internal/config"
	"mediacms/internal/logger"
	"mediacms/internal/persistence"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mediacms",
		Short: "AI article generation for a multi-tenant media CMS",
		Long: `mediacms generates complete articles for tenants of the media CMS.

A generation run picks a unique theme, writes an outline, drafts every
section, creates images with alt text and writes SEO metadata before
saving the article as published, draft or scheduled.

Examples:
  # Start the HTTP API
  mediacms serve

  # Generate one article from the command line
  mediacms generate --tenant t1 --category cat-tea --writer w-aoi --image-pattern ip-photo

  # Run every schedule due right now
  mediacms trigger

  # Create MongoDB indexes
  mediacms migrate`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .mediacms.yaml)")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewTriggerCmd())
	rootCmd.AddCommand(NewMigrateCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set, then rebuilds
// the logger from the logging section.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
}

// openStore connects the configured document store
func openStore(ctx context.Context, cfg *config.Config) (persistence.Store, error) {
	log := logger.Get()

	switch cfg.Database.Driver {
	case "memory":
		log.Info("Using in-memory store", "fixtures", cfg.Database.FixturesPath)
		store, err := persistence.NewMemoryStoreFromFile(cfg.Database.FixturesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixtures: %w", err)
		}
		return store, nil
	default:
		return openMongo(ctx, cfg)
	}
}

func openMongo(ctx context.Context, cfg *config.Config) (*persistence.MongoStore, error) {
	timeout := cfg.Database.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Get().Info("Connecting to MongoDB", "database", cfg.Database.Name)
	store, err := persistence.NewMongoStore(connectCtx, cfg.Database.URI, cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w\n\n"+
			"Make sure MongoDB is running and MONGODB_URI is correct.", err)
	}
	return store, nil
}

func closeStore(store persistence.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logger.Get().Warn("Failed to close store", "error", err)
	}
}
