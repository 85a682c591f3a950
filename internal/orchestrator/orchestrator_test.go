package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/mode"
	"github.com/lodestar-dev/lodestar/internal/session"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.NewStore(session.Options{
		LedgerPath: filepath.Join(t.TempDir(), "sessions.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSelector(t *testing.T, store *session.Store, def mode.Mode, rec mode.Recommendation) *mode.Selector {
	t.Helper()
	sel, err := mode.NewSelector(store, def, mode.RecommenderFunc(
		func(session.Task) (mode.Recommendation, error) { return rec, nil },
	), nil)
	if err != nil {
		t.Fatal(err)
	}
	return sel
}

func okExecutor(m mode.Mode, output string) Executor {
	return ExecutorFunc{ExecMode: m, Fn: func(context.Context, session.Task, *session.Session) (string, error) {
		return output, nil
	}}
}

func TestNewValidation(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})

	if _, err := New(nil, sel, nil, 0, nil); err == nil {
		t.Error("nil store should be rejected")
	}
	if _, err := New(store, nil, nil, 0, nil); err == nil {
		t.Error("nil selector should be rejected")
	}
	if _, err := New(store, sel, []Executor{okExecutor(mode.ModeAuto, "")}, 0, nil); err == nil {
		t.Error("non-concrete executor mode should be rejected")
	}
	if _, err := New(store, sel, []Executor{
		okExecutor(mode.ModeLocal, ""), okExecutor(mode.ModeLocal, ""),
	}, 0, nil); err == nil {
		t.Error("duplicate executors for one mode should be rejected")
	}
}

func TestRunCompletesAndPersists(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	orch, err := New(store, sel, []Executor{okExecutor(mode.ModeLocal, "3 findings")}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Run(context.Background(), session.Task{ID: "t1", Title: "review"}, RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Success || result.Status != session.StatusCompleted {
		t.Errorf("got %+v, want completed success", result)
	}
	if result.Output != "3 findings" {
		t.Errorf("output = %q", result.Output)
	}
	if result.Mode != mode.ModeLocal || result.Source != mode.SourceDefault {
		t.Errorf("got mode %q via %q, want local via default", result.Mode, result.Source)
	}

	sess, ok := store.Get(result.SessionID)
	if !ok {
		t.Fatal("session missing after run")
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("session status = %q, want completed", sess.Status)
	}
	if sess.Context == nil || sess.Context.Mode != "local" {
		t.Errorf("resolved mode not recorded on session: %+v", sess.Context)
	}
	if sess.Metadata["lastResult"] != "success" {
		t.Errorf("last result not cached in metadata: %+v", sess.Metadata)
	}
}

func TestRunExecutorFailureBecomesStructuredResult(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	failing := ExecutorFunc{ExecMode: mode.ModeLocal, Fn: func(context.Context, session.Task, *session.Session) (string, error) {
		return "partial", lserrors.New("analysis backend exploded")
	}}
	orch, _ := New(store, sel, []Executor{failing}, 0, nil)

	result, err := orch.Run(context.Background(), session.Task{ID: "t1"}, RunOptions{})
	if err != nil {
		t.Fatalf("execution faults must not surface as errors: %v", err)
	}
	if result.Success || result.Status != session.StatusFailed {
		t.Errorf("got %+v, want failed result", result)
	}
	if result.Error == "" {
		t.Error("failed result should carry the error message")
	}
	if result.Output != "partial" {
		t.Error("partial output should be preserved on failure")
	}

	sess, _ := store.Get(result.SessionID)
	if sess.Status != session.StatusFailed {
		t.Errorf("session status = %q, want failed", sess.Status)
	}
}

func TestRunTimeout(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	slow := ExecutorFunc{ExecMode: mode.ModeLocal, Fn: func(ctx context.Context, _ session.Task, _ *session.Session) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	orch, _ := New(store, sel, []Executor{slow}, 20*time.Millisecond, nil)

	result, err := orch.Run(context.Background(), session.Task{ID: "t1"}, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != session.StatusTimeout {
		t.Errorf("status = %q, want timeout", result.Status)
	}
	if result.Success {
		t.Error("timed-out run must not be successful")
	}

	sess, _ := store.Get(result.SessionID)
	if sess.Status != session.StatusTimeout {
		t.Errorf("session status = %q, want timeout", sess.Status)
	}
}

func TestRunCancellationIsDistinctFromTimeout(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	blocking := ExecutorFunc{ExecMode: mode.ModeLocal, Fn: func(ctx context.Context, _ session.Task, _ *session.Session) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	orch, _ := New(store, sel, []Executor{blocking}, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := orch.Run(ctx, session.Task{ID: "t1"}, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != session.StatusCancelled {
		t.Errorf("status = %q, want cancelled", result.Status)
	}

	sess, _ := store.Get(result.SessionID)
	if sess.Status != session.StatusCancelled {
		t.Errorf("session status = %q, want cancelled", sess.Status)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	orch, _ := New(store, sel, []Executor{okExecutor(mode.ModeLocal, "")}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Run(ctx, session.Task{ID: "t1"}, RunOptions{})
	if err == nil {
		t.Fatal("pre-cancelled context should abort setup")
	}
	var cerr *lserrors.CancellationError
	if !lserrors.As(err, &cerr) {
		t.Errorf("expected *CancellationError, got %T", err)
	}
	if stats := store.Stats(); stats.Total != 0 {
		t.Error("no session should be created for an aborted setup")
	}
}

func TestRunOverrideWinsAndPinsContinuity(t *testing.T) {
	store := newTestStore(t)
	// Default says local; the override forces remote.
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	orch, _ := New(store, sel, []Executor{
		okExecutor(mode.ModeLocal, "local ran"),
		okExecutor(mode.ModeRemote, "remote ran"),
	}, 0, nil)

	task := session.Task{ID: "t1"}
	first, err := orch.Run(context.Background(), task, RunOptions{Override: mode.ModeRemote})
	if err != nil {
		t.Fatal(err)
	}
	if first.Mode != mode.ModeRemote || first.Source != mode.SourceOverride {
		t.Fatalf("got %+v, want remote via override", first)
	}

	// A later run of the same task with no override must stick with remote.
	second, err := orch.Run(context.Background(), task, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Mode != mode.ModeRemote || second.Source != mode.SourceContinuity {
		t.Errorf("got %+v, want remote via continuity", second)
	}
	if second.Output != "remote ran" {
		t.Errorf("wrong executor ran: %q", second.Output)
	}
}

func TestRunResume(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	orch, _ := New(store, sel, []Executor{okExecutor(mode.ModeLocal, "resumed")}, 0, nil)

	sess, err := store.Create(session.Task{ID: "t1", Title: "long audit"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Run(context.Background(), session.Task{}, RunOptions{Resume: sess.ID})
	if err != nil {
		t.Fatal(err)
	}
	if result.SessionID != sess.ID {
		t.Errorf("resume ran session %q, want %q", result.SessionID, sess.ID)
	}
	if stats := store.Stats(); stats.Total != 1 {
		t.Errorf("resume must not create a second session, have %d", stats.Total)
	}

	_, err = orch.Run(context.Background(), session.Task{}, RunOptions{Resume: "analysis-0-00000000"})
	if !lserrors.IsNotFound(err) {
		t.Errorf("unknown resume id should surface NotFound, got: %v", err)
	}
}

func TestRunSurvivesSessionDeletedMidExecution(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeLocal, mode.Recommendation{Mode: mode.ModeLocal})
	// The executor yanks its own session out from under the run, so both
	// the final status transition and the metadata save hit NotFound.
	deleting := ExecutorFunc{ExecMode: mode.ModeLocal, Fn: func(_ context.Context, _ session.Task, sess *session.Session) (string, error) {
		if err := store.Delete(sess.ID); err != nil {
			return "", err
		}
		return "finished anyway", nil
	}}
	orch, _ := New(store, sel, []Executor{deleting}, 0, nil)

	result, err := orch.Run(context.Background(), session.Task{ID: "t1"}, RunOptions{})
	if err != nil {
		t.Fatalf("post-execution persistence failures must not surface as errors: %v", err)
	}
	if !result.Success || result.Status != session.StatusCompleted {
		t.Errorf("got %+v, want completed success", result)
	}
	if result.Output != "finished anyway" {
		t.Errorf("output = %q", result.Output)
	}
}

func TestRunMissingExecutor(t *testing.T) {
	store := newTestStore(t)
	sel := newTestSelector(t, store, mode.ModeRemote, mode.Recommendation{Mode: mode.ModeRemote})
	orch, _ := New(store, sel, []Executor{okExecutor(mode.ModeLocal, "")}, 0, nil)

	_, err := orch.Run(context.Background(), session.Task{ID: "t1"}, RunOptions{})
	if err == nil {
		t.Fatal("missing executor for resolved mode should fail")
	}
	var cerr *lserrors.ConfigurationError
	if !lserrors.As(err, &cerr) {
		t.Errorf("expected *ConfigurationError, got %T", err)
	}
}

func TestRunRecommenderPath(t *testing.T) {
	store := newTestStore(t)
	// Global default auto, recommender says remote with a high score.
	sel := newTestSelector(t, store, mode.ModeAuto, mode.Recommendation{Mode: mode.ModeRemote, Score: 8.5})
	orch, _ := New(store, sel, []Executor{
		okExecutor(mode.ModeLocal, ""),
		okExecutor(mode.ModeRemote, "deep analysis done"),
	}, 0, nil)

	result, err := orch.Run(context.Background(), session.Task{ID: "t1"}, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Mode != mode.ModeRemote || result.Source != mode.SourceRecommender {
		t.Errorf("got %+v, want remote via recommender", result)
	}

	sess, _ := store.Get(result.SessionID)
	if sess.Context == nil || sess.Context.Complexity != 8.5 {
		t.Errorf("recommender score not recorded: %+v", sess.Context)
	}
}
