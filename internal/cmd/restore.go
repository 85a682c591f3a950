package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <session-id>",
	Short: "Restore a session, reloading the ledger from disk if needed",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	restoreCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.store.Restore(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format := mustString(cmd, "output"); format {
	case outputTable:
		fmt.Fprintf(out, "restored session %s\n", sess.ID)
		fmt.Fprintf(out, "task:        %s\n", sess.Task.ID)
		fmt.Fprintf(out, "status:      %s\n", sess.Status)
		if sess.Context != nil && sess.Context.Mode != "" {
			fmt.Fprintf(out, "mode:        %s (%s)\n", sess.Context.Mode, sess.Context.ModeSource)
		}
		fmt.Fprintf(out, "checkpoints: %d\n", len(sess.Checkpoints))
		return nil
	default:
		return writeEncoded(out, format, sess)
	}
}
