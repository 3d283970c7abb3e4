package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/millrun/millrun/pkg/ingest"
)

func newIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Load orders, plans, materials and equipment",
		Long: `Ingest batch documents into the engine.

Each path may be a YAML file or a directory, which is searched recursively
for .yaml and .yml files. All documents are validated first and ingested as
a single batch: if any of them is invalid, or any ID already exists, nothing
is ingested.`,
		Example: `  # Ingest a single file
  millrun ingest orders.yaml

  # Ingest stock and orders from a directory
  millrun ingest ./batches/2025-03-03`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				sum, err := ingest.NewIngester(rt.eng, rt.logger).IngestPaths(cmd.Context(), args...)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(sum)
				}
				fmt.Printf("Ingested %s\n", sum)
				return nil
			})
		},
	}

	return cmd
}
