// Package orchestrator ties the session store, the mode selector, and the
// executors together: it owns the run flow from session creation through
// mode resolution, execution, and the final status transition, and converts
// timeouts and cancellations into structured results at this boundary.
package orchestrator

import (
	"context"
	"time"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/logging"
	"github.com/lodestar-dev/lodestar/internal/mode"
	"github.com/lodestar-dev/lodestar/internal/session"
)

// Orchestrator coordinates one task run end to end. All collaborators are
// injected at construction; it keeps no hidden global state.
type Orchestrator struct {
	store     *session.Store
	selector  *mode.Selector
	executors map[mode.Mode]Executor
	timeout   time.Duration
	logger    *logging.Logger
}

// RunOptions tunes a single Run call
type RunOptions struct {
	// Override is the caller-requested mode; empty means no override. The
	// auto sentinel resolves through the recommender immediately.
	Override mode.Mode
	// Resume is a session id to resume instead of creating a new session
	Resume string
	// Options are free-form caller options stored on the session context
	Options map[string]string
}

// New builds an Orchestrator. timeout bounds a single execution; zero
// disables the bound. Every concrete mode the selector can produce needs
// an executor.
func New(store *session.Store, selector *mode.Selector, executors []Executor, timeout time.Duration, logger *logging.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, lserrors.NewConfigurationError("store", "session store must not be nil")
	}
	if selector == nil {
		return nil, lserrors.NewConfigurationError("selector", "mode selector must not be nil")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	byMode := make(map[mode.Mode]Executor, len(executors))
	for _, ex := range executors {
		if !ex.Mode().Concrete() {
			return nil, lserrors.NewConfigurationError("executor", "executor mode must be concrete").
				WithValue(string(ex.Mode()))
		}
		if _, dup := byMode[ex.Mode()]; dup {
			return nil, lserrors.NewConfigurationError("executor", "duplicate executor for mode").
				WithValue(string(ex.Mode()))
		}
		byMode[ex.Mode()] = ex
	}

	return &Orchestrator{
		store:     store,
		selector:  selector,
		executors: byMode,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Run executes task end to end: session creation (or resume), mode
// resolution, context persist, execution, final status. Setup failures
// (unknown resume id, invalid configuration, failed durability on create)
// surface as errors; execution faults come back as a structured Result
// with the session transitioned to the matching terminal status.
func (o *Orchestrator) Run(ctx context.Context, task session.Task, opts RunOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, lserrors.NewCancellationError("setup").WithCause(err)
	}

	sess, err := o.openSession(task, opts)
	if err != nil {
		return nil, err
	}
	log := o.logger.WithSession(sess.ID)

	decision, err := o.selector.Resolve(sess.Task, opts.Override)
	if err != nil {
		return nil, err
	}
	log.Info("mode resolved",
		"mode", string(decision.Mode), "source", string(decision.Source), "forced", decision.Forced)

	runCtx := session.Context{
		Mode:       string(decision.Mode),
		ModeSource: string(decision.Source),
		Forced:     decision.Forced,
		Complexity: decision.Score,
	}
	if _, err := o.store.UpdateContext(sess.ID, runCtx); err != nil {
		return nil, err
	}

	executor, ok := o.executors[decision.Mode]
	if !ok {
		return nil, lserrors.NewConfigurationError("executor", "no executor registered for mode").
			WithValue(string(decision.Mode))
	}

	result := o.execute(ctx, executor, sess, decision)

	if err := o.store.UpdateStatus(sess.ID, result.Status); err != nil {
		// The run itself finished; a durability failure on the final
		// transition is reported but does not replace the result.
		log.Error("final status persist failed", "status", string(result.Status), "error", err)
	}
	if result.Success {
		if err := o.store.SaveState(sess.ID, map[string]string{
			"lastResult":   "success",
			"lastDuration": result.Duration.String(),
		}); err != nil {
			log.Error("result metadata save failed", "error", err)
		}
	}

	log.Info("run finished",
		"status", string(result.Status), "duration", result.Duration.String(), "success", result.Success)
	return result, nil
}

// openSession resumes an existing session or creates a fresh one
func (o *Orchestrator) openSession(task session.Task, opts RunOptions) (*session.Session, error) {
	if opts.Resume != "" {
		sess, err := o.store.Restore(opts.Resume)
		if err != nil {
			return nil, err
		}
		o.logger.Info("session resumed", "session_id", sess.ID, "task_id", sess.Task.ID)
		return sess, nil
	}
	return o.store.Create(task, opts.Options)
}

// execute races the executor against the timeout and the caller's context,
// then maps the outcome to a terminal status. Cancellation observed here is
// cooperative: whatever the executor already checkpointed stays persisted.
func (o *Orchestrator) execute(ctx context.Context, executor Executor, sess *session.Session, decision mode.Decision) *Result {
	result := &Result{
		Mode:      decision.Mode,
		Source:    decision.Source,
		SessionID: sess.ID,
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if o.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		output, err := executor.Execute(execCtx, sess.Task, sess)
		done <- outcome{output, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-execCtx.Done():
		// The buffered channel keeps the executor goroutine from leaking
		// if it ignores cancellation and finishes late.
		out = outcome{err: execCtx.Err()}
	}
	result.Duration = time.Since(start)

	switch {
	case out.err == nil:
		result.Success = true
		result.Status = session.StatusCompleted
		result.Output = out.output

	case isTimeout(ctx, out.err):
		terr := lserrors.NewTimeoutError("execute", o.timeout).WithCause(out.err)
		result.Status = session.StatusTimeout
		result.Error = terr.Error()

	case lserrors.Is(out.err, context.Canceled) || lserrors.Is(out.err, lserrors.ErrCanceled):
		cerr := lserrors.NewCancellationError("execute").WithCause(out.err)
		result.Status = session.StatusCancelled
		result.Error = cerr.Error()

	default:
		result.Status = session.StatusFailed
		result.Error = out.err.Error()
		result.Output = out.output
	}

	return result
}

// isTimeout distinguishes the execution deadline from caller cancellation:
// a deadline means the timer won the race, a canceled outer context means
// the user aborted.
func isTimeout(outer context.Context, err error) bool {
	if lserrors.Is(err, lserrors.ErrTimeout) {
		return true
	}
	if !lserrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !lserrors.Is(outer.Err(), context.Canceled)
}
