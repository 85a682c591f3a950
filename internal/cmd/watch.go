package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch sessions live in a terminal view",
	Long: `Watch shows a live table of ledger sessions. The view reloads whenever
the ledger file changes on disk and refreshes on a timer otherwise.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("refresh", 2*time.Second, "fallback refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return lserrors.New("watch requires an interactive terminal")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ledgerPath := a.ledgerPath()
	// The watch view reads the ledger file directly; release the store so
	// this process is not a second logical writer while watching.
	a.close()

	refresh, _ := cmd.Flags().GetDuration("refresh")
	return tui.Run(ledgerPath, refresh)
}
