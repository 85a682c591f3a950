package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <session-id>",
	Short: "List a session's checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpoints,
}

var checkpointAddCmd = &cobra.Command{
	Use:   "add <session-id> <description>",
	Short: "Append a checkpoint to a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckpointAdd,
}

func init() {
	checkpointsCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	checkpointAddCmd.Flags().String("state", "", "checkpoint state as a JSON document")
	checkpointsCmd.AddCommand(checkpointAddCmd)
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sess, ok := a.store.Get(args[0])
	if !ok {
		return lserrors.NewNotFoundError("session", args[0])
	}

	switch format := mustString(cmd, "output"); format {
	case outputTable:
		if len(sess.Checkpoints) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "session %s has no checkpoints\n", sess.ID)
			return nil
		}
		writeCheckpointTable(cmd.OutOrStdout(), sess.Checkpoints)
		return nil
	default:
		return writeEncoded(cmd.OutOrStdout(), format, sess.Checkpoints)
	}
}

func runCheckpointAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var state json.RawMessage
	if raw := mustString(cmd, "state"); raw != "" {
		if !json.Valid([]byte(raw)) {
			return lserrors.NewConfigurationError("state", "state must be valid JSON")
		}
		state = json.RawMessage(raw)
	}

	cp, err := a.store.CreateCheckpoint(args[0], state, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s recorded on %s\n", cp.ID, args[0])
	return nil
}
