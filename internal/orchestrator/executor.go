package orchestrator

import (
	"context"
	"time"

	"github.com/lodestar-dev/lodestar/internal/mode"
	"github.com/lodestar-dev/lodestar/internal/session"
)

// Executor runs a task under one concrete execution mode. Implementations
// must honor ctx cancellation at their phase boundaries; partial progress
// they have already checkpointed is kept on abort.
type Executor interface {
	// Mode returns the concrete mode this executor implements
	Mode() mode.Mode
	// Execute runs the task against the given session and returns its
	// output. The session is a snapshot; durable progress goes through
	// the store's checkpoint and save-state calls.
	Execute(ctx context.Context, task session.Task, sess *session.Session) (string, error)
}

// Result is the structured outcome of a task run. Callers always receive
// one of these for an executed task, never a raw internal fault.
type Result struct {
	Success   bool           `json:"success"`
	Mode      mode.Mode      `json:"mode"`
	Source    mode.Source    `json:"modeSource"`
	SessionID string         `json:"sessionId"`
	Status    session.Status `json:"status"`
	Duration  time.Duration  `json:"duration"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ExecutorFunc adapts a function to the Executor interface for a fixed mode
type ExecutorFunc struct {
	ExecMode mode.Mode
	Fn       func(ctx context.Context, task session.Task, sess *session.Session) (string, error)
}

// Mode implements Executor
func (e ExecutorFunc) Mode() mode.Mode { return e.ExecMode }

// Execute implements Executor
func (e ExecutorFunc) Execute(ctx context.Context, task session.Task, sess *session.Session) (string, error) {
	return e.Fn(ctx, task, sess)
}
