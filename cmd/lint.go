package cmd

import (
	"fmt"

	"github.com/graceinfra/shipyard/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(lintCmd)
}

var lintCmd = &cobra.Command{
	Use:   "lint [workflow-file]",
	Short: "Validate the syntax and structure of a shipyard.yml file",
	Long: `Lint checks a shipyard.yml file for correctness without running anything.
It reports every problem it finds: unknown fields and actions, dangling or
duplicated needs, dependency cycles, expressions that reference variables
their context does not provide, and artifacts consumed by jobs that do not
depend on their producer.

Exits with status 2 when the workflow is invalid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lintFile := workflowFile(args)
		fmt.Fprintf(cmd.OutOrStdout(), "Linting file: %s\n", lintFile)

		if _, _, err := config.LoadConfig(lintFile, GetDependencies().Registry); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid!\n", lintFile)
		return nil
	},
}
