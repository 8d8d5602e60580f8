package cmd

import (
	"github.com/graceinfra/shipyard/internal/config"
	"github.com/graceinfra/shipyard/internal/ui"
	"github.com/graceinfra/shipyard/types"
	"github.com/spf13/cobra"
)

var planOnly []string

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringSliceVar(&planOnly, "only", nil, "Plan only the named job(s) and what they need")
}

var planCmd = &cobra.Command{
	Use:   "plan [workflow-file]",
	Short: "Print the order jobs would run in",
	Long: `Plan validates shipyard.yml and prints its jobs in topological batches.
Every job of a batch only needs jobs of earlier batches, so a batch can run
in parallel up to the configured concurrency.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.LoadConfig(workflowFile(args), GetDependencies().Registry)
		if err != nil {
			return err
		}

		graph, err := config.BuildJobGraph(cfg)
		if err != nil {
			return err
		}
		order := cfg.Jobs.Names()
		if len(planOnly) > 0 {
			if order, err = config.Closure(graph, order, planOnly); err != nil {
				return err
			}
		}
		batches, err := config.Plan(graph, order)
		if err != nil {
			return err
		}

		out := ui.New(types.StyleHuman)
		out.Out = cmd.OutOrStdout()
		out.PrintPlan(batches)
		return nil
	},
}
