package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/millrun/millrun/pkg/stores"
)

func newEventsCommand() *cobra.Command {
	var (
		filter stores.EventFilter
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event log",
		Long: `List published engine events, newest first.

Events are recorded when store.event_log is enabled.`,
		Example: `  # Latest events
  millrun events

  # Everything that happened to one order
  millrun events --order ord-1001 --limit 200

  # Blocked stages only
  millrun events --type stage_blocked`,
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

			records, err := store.GetEvents(cmd.Context(), filter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No events")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%s  %-7s %-16s %s\n",
					r.Timestamp.Local().Format(time.DateTime), r.Level, r.Type, r.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Type, "type", "", "filter by event type")
	cmd.Flags().StringVar(&filter.OrderID, "order", "", "filter by order ID")
	cmd.Flags().StringVar(&filter.StageID, "stage", "", "filter by stage ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of events")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of events to skip")

	return cmd
}
