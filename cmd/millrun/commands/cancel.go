package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel plans or orders",
		Long: `Cancel a production plan or a whole order.

Cancellation releases the material reservations and equipment slots of
every stage that has not finished. Completed stages keep their history.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "plan <plan-id>",
		Short:   "Cancel a production plan",
		Example: `  millrun cancel plan plan-1001`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if err := rt.eng.CancelPlan(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("plan_id", args[0]).Msg("Plan cancelled")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "order <order-id>",
		Short:   "Cancel an order and all of its plans",
		Example: `  millrun cancel order ord-1001`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if err := rt.eng.CancelOrder(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("order_id", args[0]).Msg("Order cancelled")
				return nil
			})
		},
	})

	return cmd
}
