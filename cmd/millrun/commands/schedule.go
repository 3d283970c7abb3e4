package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run one scheduling pass",
		Long: `Run a single scheduling pass over all eligible stages.

Eligible stages are served by order priority, then due date, then stage
sequence. Each is given a material reservation and the earliest free slot
on equipment of its type, or is marked blocked with the reason it could not
be placed. Blocked stages are retried on the next pass.`,
		Example: `  # Schedule everything that is ready
  millrun schedule

  # Machine-readable result
  millrun schedule --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				res, err := rt.eng.ScheduleEligibleStages(cmd.Context())
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(res)
				}

				fmt.Printf("Considered %d stages: %d scheduled, %d blocked\n",
					res.Considered, len(res.Scheduled), len(res.Blocked))
				for _, a := range res.Scheduled {
					risk := ""
					if a.AtRisk {
						risk = "  AT RISK"
					}
					fmt.Printf("  %-20s %-12s %s - %s%s\n", a.StageID, a.EquipmentID,
						a.Start.Format(time.RFC3339), a.End.Format(time.RFC3339), risk)
				}
				for _, b := range res.Blocked {
					fmt.Printf("  %-20s blocked: %s\n", b.StageID, b.Reason)
				}
				return nil
			})
		},
	}

	return cmd
}
