package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lodestar-dev/lodestar/internal/lifecycle"
	"github.com/lodestar-dev/lodestar/internal/mode"
	"github.com/lodestar-dev/lodestar/internal/orchestrator"
	"github.com/lodestar-dev/lodestar/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <task-id> [prompt...]",
	Short: "Run an analysis task under a managed session",
	Long: `Run creates (or resumes) a session for the task, resolves the execution
mode through the decision chain (explicit override, session continuity,
configured default, recommender), executes, and records the outcome.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("mode", "", "execution mode override: local, remote, or auto")
	runCmd.Flags().String("resume", "", "resume an existing session by id instead of creating one")
	runCmd.Flags().String("title", "", "short task title")
	runCmd.Flags().String("workdir", "", "directory the task operates on")
	runCmd.Flags().StringToString("option", nil, "free-form task options (key=value)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	selector, err := a.selector()
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(a.store, selector, []orchestrator.Executor{
		newAnnotatingExecutor(mode.ModeLocal, a.store),
		newAnnotatingExecutor(mode.ModeRemote, a.store),
	}, a.cfg.Mode.ExecutionTimeout(), a.logger)
	if err != nil {
		return err
	}

	sched, err := lifecycle.NewScheduler(a.store,
		a.cfg.Lifecycle.SweepInterval(), a.cfg.Lifecycle.MaxIdle(), a.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	task := session.Task{
		ID:    args[0],
		Title: mustString(cmd, "title"),
	}
	if len(args) > 1 {
		task.Prompt = strings.Join(args[1:], " ")
	}
	task.WorkDir = mustString(cmd, "workdir")

	override := mode.Mode(mustString(cmd, "mode"))
	options, _ := cmd.Flags().GetStringToString("option")

	result, err := orch.Run(ctx, task, orchestrator.RunOptions{
		Override: override,
		Resume:   mustString(cmd, "resume"),
		Options:  options,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session:  %s\n", result.SessionID)
	fmt.Fprintf(out, "mode:     %s (%s)\n", result.Mode, result.Source)
	fmt.Fprintf(out, "status:   %s\n", result.Status)
	fmt.Fprintf(out, "duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.Output != "" {
		fmt.Fprintf(out, "output:   %s\n", result.Output)
	}
	if result.Error != "" {
		fmt.Fprintf(out, "error:    %s\n", result.Error)
	}
	if !result.Success {
		// A structured failure still exits non-zero without usage spam.
		return fmt.Errorf("run finished with status %s", result.Status)
	}
	return nil
}

// newAnnotatingExecutor returns the built-in executor for a mode. It records
// an execution checkpoint and reports what would run; real analysis backends
// implement orchestrator.Executor and replace these.
func newAnnotatingExecutor(m mode.Mode, store *session.Store) orchestrator.Executor {
	return orchestrator.ExecutorFunc{
		ExecMode: m,
		Fn: func(ctx context.Context, task session.Task, sess *session.Session) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			state, _ := json.Marshal(map[string]string{
				"mode":   string(m),
				"taskId": task.ID,
			})
			if _, err := store.CreateCheckpoint(sess.ID, state, "execution started"); err != nil {
				return "", err
			}
			return fmt.Sprintf("task %s accepted for %s execution", task.ID, m), nil
		},
	}
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
