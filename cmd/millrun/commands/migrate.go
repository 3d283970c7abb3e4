package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Apply the embedded schema migrations to the configured store.

Migrations are idempotent; every other command also migrates on start-up.`,
		Example: `  # Migrate the default database (millrun.db)
  millrun migrate

  # Migrate a specific database
  millrun migrate --db /var/lib/millrun/millrun.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("store health check failed: %w", err)
			}

			log.Info().
				Str("driver", cfg.Store.Driver).
				Str("path", cfg.Store.Path).
				Msg("Schema is up to date")
			return nil
		},
	}

	return cmd
}
