package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Time out idle sessions and optionally prune old terminal ones",
	Long: `Cleanup runs the idle sweep once: every active session idle longer than
--max-age is transitioned to timeout. With --prune, terminal sessions
older than --max-age are removed from the ledger entirely.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().Duration("max-age", 0, "idle window (defaults to lifecycle.max_idle_minutes)")
	cleanupCmd.Flags().Bool("prune", false, "also delete terminal sessions older than the window")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	maxAge, _ := cmd.Flags().GetDuration("max-age")
	if !cmd.Flags().Changed("max-age") {
		maxAge = a.cfg.Lifecycle.MaxIdle()
	}

	timedOut, err := a.store.CleanupExpired(maxAge)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "timed out %d idle session(s) (idle > %s)\n",
		timedOut, maxAge.Round(time.Second))

	if prune, _ := cmd.Flags().GetBool("prune"); prune {
		pruned, err := a.store.PruneTerminal(maxAge)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d terminal session(s)\n", pruned)
	}
	return nil
}
