package commands

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/millrun/millrun/pkg/board"
)

func newBoardCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Live floor board",
		Long: `Open an interactive, auto-refreshing view of stages and equipment.

The board reads the database directly, so it follows changes made by a
running 'millrun serve' or by other operators' commands.`,
		Example: `  millrun board --db /var/lib/millrun/millrun.db --interval 5s`,
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

			m := board.New(cmd.Context(), store.Load, interval)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", board.DefaultRefreshInterval, "refresh interval")

	return cmd
}
