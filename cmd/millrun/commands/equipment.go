package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newEquipmentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "equipment",
		Short: "Take equipment in and out of service",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "maintenance <equipment-id>",
		Short: "Put equipment into maintenance",
		Long: `Put equipment into maintenance.

Stages scheduled on the equipment lose their slot and return to pending so
the next scheduling pass can place them elsewhere. Equipment with a stage
in progress cannot enter maintenance.`,
		Example: `  millrun equipment maintenance press-2`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				requeued, err := rt.eng.SetEquipmentMaintenance(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(map[string]interface{}{
						"equipment_id": args[0],
						"requeued":     requeued,
					})
				}
				log.Info().Str("equipment_id", args[0]).Int("requeued", len(requeued)).Msg("Equipment in maintenance")
				for _, id := range requeued {
					fmt.Printf("Requeued %s\n", id)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "restore <equipment-id>",
		Short:   "Return equipment to service",
		Example: `  millrun equipment restore press-2`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if err := rt.eng.ReturnEquipmentToService(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("equipment_id", args[0]).Msg("Equipment returned to service")
				return nil
			})
		},
	})

	return cmd
}
