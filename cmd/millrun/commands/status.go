package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/millrun/millrun/pkg/board"
	"github.com/millrun/millrun/pkg/engine"
)

func newStatusCommand() *cobra.Command {
	var dotPlan string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show orders, stages, equipment and stock",
		Long: `Print the current plant state.

Orders are listed in scheduling order (priority, then due date). Stage notes
show why a stage is blocked, whether its placement endangers the order's due
date, and which stage a rework stage replaces.

With --dot, the precedence graph of a single plan is printed in Graphviz
DOT format instead.`,
		Example: `  # Overview tables
  millrun status

  # Full state as JSON
  millrun status --json

  # Render a plan's precedence graph
  millrun status --dot plan-1001 | dot -Tsvg > plan-1001.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				snap := rt.eng.Snapshot()

				if dotPlan != "" {
					plan, ok := snap.Plans[dotPlan]
					if !ok {
						return fmt.Errorf("plan %s not found", dotPlan)
					}
					fmt.Print(engine.PlanToDOT(plan))
					return nil
				}

				if jsonOutput {
					return printJSON(snap)
				}
				fmt.Print(board.RenderStatus(snap, time.Now()))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dotPlan, "dot", "", "print the precedence graph of this plan in DOT format")

	return cmd
}
