package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	dbPath     string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "millrun",
		Short: "millrun - production scheduling and progress tracking",
		Long: `millrun schedules production stages onto equipment and tracks their
progress through to order completion.

Features:
  - Priority and due-date ordered scheduling onto an equipment calendar
  - Material reservation before a stage may be scheduled
  - Stage lifecycle tracking with quality inspection and rework
  - Plan and order cancellation with reservation release
  - Equipment maintenance with automatic requeueing
  - Event fan-out to NATS JetStream and a persistent event log`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides store.path)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newScheduleCommand())
	rootCmd.AddCommand(newStageCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newEquipmentCommand())
	rootCmd.AddCommand(newMaterialCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newBoardCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
