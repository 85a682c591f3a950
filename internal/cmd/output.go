package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/session"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// writeEncoded renders v as JSON or YAML
func writeEncoded(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return lserrors.NewConfigurationError("output", "unknown output format").WithValue(format)
	}
}

// writeSessionTable renders sessions as an aligned text table
func writeSessionTable(w io.Writer, sessions []*session.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tSTATUS\tMODE\tCREATED\tLAST ACTIVE\tCHECKPOINTS")
	for _, sess := range sessions {
		modeName := "-"
		if sess.Context != nil && sess.Context.Mode != "" {
			modeName = sess.Context.Mode
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			sess.ID,
			sess.Task.ID,
			sess.Status,
			modeName,
			sess.CreatedAt.Format(time.RFC3339),
			humanAge(sess.LastActiveAt),
			len(sess.Checkpoints),
		)
	}
	tw.Flush()
}

// writeCheckpointTable renders a session's checkpoints in append order
func writeCheckpointTable(w io.Writer, checkpoints []session.Checkpoint) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIMESTAMP\tDESCRIPTION")
	for _, cp := range checkpoints {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cp.ID, cp.Timestamp.Format(time.RFC3339), cp.Description)
	}
	tw.Flush()
}

// humanAge renders how long ago t was, coarsely
func humanAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh ago", d.Hours())
	default:
		return fmt.Sprintf("%.1fd ago", d.Hours()/24)
	}
}
