package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/graceinfra/shipyard/internal/history"
	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show (0 for all)")
}

var historyCmd = &cobra.Command{
	Use:   "history [directory]",
	Short: "List recorded runs, most recent first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		store, err := history.Open(filepath.Join(dir, history.DefaultPath))
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tRUN\tREF\tSTATUS\tJOBS (ok/failed/skipped)\tRELEASE\tDURATION")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d/%d\t%s\t%s\n",
				r.StartedAt.Format(time.DateTime), r.RunID, r.Ref, r.Status,
				r.JobsSucceeded, r.JobsFailed, r.JobsSkipped, r.ReleaseState,
				time.Duration(r.DurationMs)*time.Millisecond)
		}
		return tw.Flush()
	},
}
