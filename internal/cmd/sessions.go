package cmd

import (
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions in the ledger",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().String("status", "", "filter by status: active, completed, failed, timeout, cancelled")
	sessionsCmd.Flags().String("filter", "", "glob filter on task id or title (e.g. 'auth-*')")
	sessionsCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sessions := a.store.All()

	if statusFlag := mustString(cmd, "status"); statusFlag != "" {
		status := session.Status(statusFlag)
		if !status.Valid() {
			return lserrors.NewConfigurationError("status", "unknown session status").WithValue(statusFlag)
		}
		sessions = filterSessions(sessions, func(s *session.Session) bool {
			return s.Status == status
		})
	}

	if pattern := mustString(cmd, "filter"); pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return lserrors.NewConfigurationError("filter", "invalid glob pattern").
				WithValue(pattern).WithCause(err)
		}
		sessions = filterSessions(sessions, func(s *session.Session) bool {
			return g.Match(s.Task.ID) || g.Match(s.Task.Title)
		})
	}

	switch format := mustString(cmd, "output"); format {
	case outputTable:
		writeSessionTable(cmd.OutOrStdout(), sessions)
		return nil
	default:
		return writeEncoded(cmd.OutOrStdout(), format, sessions)
	}
}

func filterSessions(sessions []*session.Session, keep func(*session.Session) bool) []*session.Session {
	out := sessions[:0]
	for _, s := range sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
