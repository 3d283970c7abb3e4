package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/millrun/millrun/pkg/engine"
)

func newStageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Report progress on production stages",
		Long: `Record what happened on the shop floor.

A scheduled stage is started, then completed. Completed or running stages
can be inspected; a failed inspection inserts a rework stage after the
failed one, which the next scheduling pass picks up.`,
	}

	cmd.AddCommand(newStageStartCommand())
	cmd.AddCommand(newStageCompleteCommand())
	cmd.AddCommand(newStageQualityCommand())

	return cmd
}

func newStageStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "start <stage-id>",
		Short:   "Mark a scheduled stage as started",
		Example: `  millrun stage start ord-1001-cut`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if err := rt.eng.MarkStarted(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("stage_id", args[0]).Msg("Stage started")
				return nil
			})
		},
	}
}

func newStageCompleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <stage-id>",
		Short: "Mark a running stage as completed",
		Long: `Mark a running stage as completed.

The stage's material reservation is consumed or released according to
scheduler.consumption_policy, and its equipment is freed. Completing the
last stage of an order completes the order.`,
		Example: `  millrun stage complete ord-1001-cut`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if err := rt.eng.MarkCompleted(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("stage_id", args[0]).Msg("Stage completed")
				return nil
			})
		},
	}
}

func newStageQualityCommand() *cobra.Command {
	var (
		result    string
		inspector string
		notes     string
	)

	cmd := &cobra.Command{
		Use:   "quality <stage-id>",
		Short: "Record a quality inspection",
		Long: `Record the result of inspecting a stage.

Results:
  pass    the stage is accepted
  fail    the stage is failed and a rework stage is inserted after it
  rework  as fail, for defects that can be corrected in place`,
		Example: `  # Accept a stage
  millrun stage quality ord-1001-weld --result pass --inspector qa-7

  # Fail a stage with notes
  millrun stage quality ord-1001-weld --result fail --inspector qa-7 --notes "porosity at seam 2"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				rec, err := rt.eng.RecordQuality(cmd.Context(), args[0], engine.QualityResult(result), inspector, notes)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(rec)
				}
				fmt.Printf("Recorded %s inspection of %s (%s)\n", rec.Result, rec.StageID, rec.ID)
				if rec.ReworkStageID != "" {
					fmt.Printf("Rework stage %s inserted\n", rec.ReworkStageID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&result, "result", "r", "", "inspection result: pass, fail or rework")
	cmd.Flags().StringVarP(&inspector, "inspector", "i", "", "inspector identity")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form inspection notes")
	_ = cmd.MarkFlagRequired("result")
	_ = cmd.MarkFlagRequired("inspector")

	return cmd
}
