package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newMaterialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "material",
		Short: "Manage material stock",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "receive <material-id> <quantity>",
		Short: "Add received stock to a material",
		Long: `Add received stock to a material's on-hand quantity.

Stages blocked on insufficient material become eligible again on the next
scheduling pass.`,
		Example: `  millrun material receive steel-sheet-2mm 40.5`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}

			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if err := rt.eng.ReceiveMaterial(cmd.Context(), args[0], qty); err != nil {
					return err
				}

				m := rt.eng.Snapshot().Materials[args[0]]
				log.Info().
					Str("material_id", args[0]).
					Str("received", qty.String()).
					Str("on_hand", m.OnHand.String()).
					Str("available", m.Available().String()).
					Msg("Material received")
				return nil
			})
		},
	})

	return cmd
}
