package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mediacms/internal/config"
	"mediacms/internal/logger"
	"mediacms/internal/persistence"
)

// NewMigrateCmd creates the migrate command for MongoDB indexes
func NewMigrateCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create MongoDB indexes",
		Long: `Create the indexes the generation pipeline and the scheduler rely on.

Existing indexes with the same name are left untouched, so the command is
safe to run on every deploy.

Examples:
  mediacms migrate

  # Show the managed index names without connecting
  mediacms migrate --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, name := range persistence.IndexNames() {
					fmt.Println(name)
				}
				return nil
			}
			return runMigrate(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List managed index names")

	return cmd
}

func runMigrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != "mongo" {
		return fmt.Errorf("migrate requires database.driver=mongo (got %q)", cfg.Database.Driver)
	}

	store, err := openMongo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	log.Info("Ensuring indexes")
	n, err := store.EnsureIndexes(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("%s %d indexes ensured\n", okStyle.Render("ok"), n)
	return nil
}
