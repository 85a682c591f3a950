package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lodestar-dev/lodestar/internal/session"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session population statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	stats := a.store.Stats()

	switch format := mustString(cmd, "output"); format {
	case outputTable:
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "total sessions\t%d\n", stats.Total)
		for _, status := range []session.Status{
			session.StatusActive, session.StatusCompleted, session.StatusFailed,
			session.StatusTimeout, session.StatusCancelled,
		} {
			if n := stats.ByStatus[status]; n > 0 {
				fmt.Fprintf(tw, "  %s\t%d\n", status, n)
			}
		}
		fmt.Fprintf(tw, "checkpoints\t%d\n", stats.Checkpoint)
		if stats.OldestID != "" {
			fmt.Fprintf(tw, "oldest session\t%s\n", stats.OldestID)
		}
		return tw.Flush()
	default:
		return writeEncoded(cmd.OutOrStdout(), format, stats)
	}
}
