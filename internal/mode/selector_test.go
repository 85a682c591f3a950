package mode

import (
	"path/filepath"
	"testing"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/session"
)

// stubIndex serves a canned session for continuity lookups
type stubIndex struct {
	sessions map[string]*session.Session
}

func (s *stubIndex) FindForcedMode(taskID string) *session.Session {
	sess := s.sessions[taskID]
	if sess == nil || sess.Context == nil || !sess.Context.Forced || sess.Context.Mode == "" {
		return nil
	}
	return sess
}

func stubRecommender(rec Recommendation, err error) Recommender {
	return RecommenderFunc(func(session.Task) (Recommendation, error) {
		return rec, err
	})
}

func newSelector(t *testing.T, index ContinuityIndex, def Mode, rec Recommender) *Selector {
	t.Helper()
	sel, err := NewSelector(index, def, rec, nil)
	if err != nil {
		t.Fatalf("NewSelector failed: %v", err)
	}
	return sel
}

func TestNewSelectorValidation(t *testing.T) {
	rec := stubRecommender(Recommendation{Mode: ModeLocal}, nil)

	if _, err := NewSelector(nil, Mode("hybrid"), rec, nil); err == nil {
		t.Error("invalid default mode should be rejected")
	}
	if _, err := NewSelector(nil, ModeAuto, nil, nil); err == nil {
		t.Error("nil recommender should be rejected")
	}
}

func TestResolveExplicitOverride(t *testing.T) {
	// The recommender disagrees with the override; the override must win.
	sel := newSelector(t, nil, ModeLocal, stubRecommender(Recommendation{Mode: ModeLocal}, nil))

	d, err := sel.Resolve(session.Task{ID: "t1"}, ModeRemote)
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeRemote || d.Source != SourceOverride {
		t.Errorf("got %+v, want remote via override", d)
	}
	if !d.Forced {
		t.Error("explicit override must be marked forced")
	}
}

func TestResolveAutoOverrideGoesStraightToRecommender(t *testing.T) {
	// Default is remote, but an explicit auto override must consult the
	// recommender instead of falling through to the default.
	sel := newSelector(t, nil, ModeRemote, stubRecommender(Recommendation{Mode: ModeLocal, Score: 2}, nil))

	d, err := sel.Resolve(session.Task{ID: "t1"}, ModeAuto)
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeLocal || d.Source != SourceRecommender {
		t.Errorf("got %+v, want local via recommender", d)
	}
}

// Scenario: no forced mode on the session, global default is the auto
// sentinel, recommender scores 8.5 for remote.
func TestResolveRecommenderDecides(t *testing.T) {
	index := &stubIndex{sessions: map[string]*session.Session{
		"t1": {ID: "analysis-1-00000001", Task: session.Task{ID: "t1"}},
	}}
	sel := newSelector(t, index, ModeAuto, stubRecommender(Recommendation{
		Mode: ModeRemote, Score: 8.5, Reasons: []string{"high complexity"},
	}, nil))

	d, err := sel.Resolve(session.Task{ID: "t1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeRemote {
		t.Errorf("mode = %q, want remote", d.Mode)
	}
	if d.Source != SourceRecommender || d.Score != 8.5 {
		t.Errorf("got %+v, want recommender decision with score 8.5", d)
	}
}

// Scenario: a session created with a forced remote mode keeps remote on
// re-resolution even though the global default would say otherwise.
func TestResolveContinuityBeatsDefault(t *testing.T) {
	index := &stubIndex{sessions: map[string]*session.Session{
		"t1": {
			ID:      "analysis-1-00000001",
			Task:    session.Task{ID: "t1"},
			Context: &session.Context{Mode: "remote", Forced: true},
		},
	}}
	sel := newSelector(t, index, ModeLocal, stubRecommender(Recommendation{Mode: ModeLocal}, nil))

	d, err := sel.Resolve(session.Task{ID: "t1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeRemote || d.Source != SourceContinuity {
		t.Errorf("got %+v, want remote via continuity", d)
	}
	if !d.Forced {
		t.Error("continuity decision should stay forced for further resumes")
	}
}

func TestResolveUnforcedModeDoesNotPinContinuity(t *testing.T) {
	// A prior session whose mode was not forced must not pin future runs.
	index := &stubIndex{sessions: map[string]*session.Session{
		"t1": {
			ID:      "analysis-1-00000001",
			Task:    session.Task{ID: "t1"},
			Context: &session.Context{Mode: "remote", Forced: false},
		},
	}}
	sel := newSelector(t, index, ModeLocal, stubRecommender(Recommendation{Mode: ModeRemote}, nil))

	d, err := sel.Resolve(session.Task{ID: "t1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeLocal || d.Source != SourceDefault {
		t.Errorf("got %+v, want local via configured default", d)
	}
}

func TestResolveConfiguredDefault(t *testing.T) {
	sel := newSelector(t, &stubIndex{}, ModeRemote, stubRecommender(Recommendation{Mode: ModeLocal}, nil))

	d, err := sel.Resolve(session.Task{ID: "t1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeRemote || d.Source != SourceDefault {
		t.Errorf("got %+v, want remote via default", d)
	}
	if d.Forced {
		t.Error("default decision must not be forced")
	}
}

func TestResolveRecommenderAutoFallsBack(t *testing.T) {
	sel := newSelector(t, nil, ModeAuto, stubRecommender(Recommendation{Mode: ModeAuto, Score: 5}, nil))

	d, err := sel.Resolve(session.Task{ID: "t1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != FallbackMode || d.Source != SourceFallback {
		t.Errorf("got %+v, want fallback when recommender answers auto", d)
	}
}

func TestResolveRecommenderErrorFallsBack(t *testing.T) {
	sel := newSelector(t, nil, ModeAuto, stubRecommender(Recommendation{}, lserrors.New("backend down")))

	d, err := sel.Resolve(session.Task{ID: "t1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != FallbackMode || d.Source != SourceFallback {
		t.Errorf("got %+v, want fallback when recommender fails", d)
	}
}

func TestResolveRejectsUnknownOverride(t *testing.T) {
	sel := newSelector(t, nil, ModeAuto, stubRecommender(Recommendation{Mode: ModeLocal}, nil))

	_, err := sel.Resolve(session.Task{ID: "t1"}, Mode("hybrid"))
	if err == nil {
		t.Fatal("unknown override should be rejected")
	}
	var cerr *lserrors.ConfigurationError
	if !lserrors.As(err, &cerr) {
		t.Errorf("expected *ConfigurationError, got %T", err)
	}
}

func TestResolveNeverReturnsAuto(t *testing.T) {
	recommendations := []Recommendation{
		{Mode: ModeAuto},
		{Mode: ModeLocal},
		{Mode: ModeRemote},
		{Mode: Mode("")},
	}
	overrides := []Mode{"", ModeAuto, ModeLocal, ModeRemote}
	defaults := []Mode{ModeAuto, ModeLocal, ModeRemote}

	for _, rec := range recommendations {
		for _, override := range overrides {
			for _, def := range defaults {
				sel := newSelector(t, &stubIndex{}, def, stubRecommender(rec, nil))
				d, err := sel.Resolve(session.Task{ID: "t1"}, override)
				if err != nil {
					t.Fatalf("Resolve(%q, default %q, rec %q): %v", override, def, rec.Mode, err)
				}
				if !d.Mode.Concrete() {
					t.Errorf("Resolve(%q, default %q, rec %q) returned non-concrete %q",
						override, def, rec.Mode, d.Mode)
				}
			}
		}
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	index := &stubIndex{sessions: map[string]*session.Session{
		"t1": {
			ID:      "analysis-1-00000001",
			Task:    session.Task{ID: "t1"},
			Context: &session.Context{Mode: "remote", Forced: true},
		},
	}}
	sel := newSelector(t, index, ModeAuto, stubRecommender(Recommendation{Mode: ModeLocal, Score: 3}, nil))

	first, err := sel.Resolve(session.Task{ID: "t1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := sel.Resolve(session.Task{ID: "t1"}, "")
		if err != nil {
			t.Fatal(err)
		}
		if again.Mode != first.Mode || again.Source != first.Source {
			t.Fatalf("resolution drifted on attempt %d: %+v != %+v", i, again, first)
		}
	}
}

// Continuity against the real store, end to end: create, record a forced
// mode, re-resolve.
func TestResolveContinuityWithRealStore(t *testing.T) {
	store, err := session.NewStore(session.Options{
		LedgerPath: filepath.Join(t.TempDir(), "sessions.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	task := session.Task{ID: "t1", Title: "review"}
	sess, err := store.Create(task, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateContext(sess.ID, session.Context{
		Mode: string(ModeRemote), ModeSource: string(SourceOverride), Forced: true,
	}); err != nil {
		t.Fatal(err)
	}

	sel := newSelector(t, store, ModeLocal, stubRecommender(Recommendation{Mode: ModeLocal}, nil))
	d, err := sel.Resolve(task, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeRemote || d.Source != SourceContinuity {
		t.Errorf("got %+v, want remote via continuity", d)
	}
}

func TestHeuristicRecommender(t *testing.T) {
	h := NewHeuristic(7)

	simple, err := h.Recommend(session.Task{ID: "t1", Prompt: "fix a typo"})
	if err != nil {
		t.Fatal(err)
	}
	if simple.Mode != ModeLocal {
		t.Errorf("trivial task should score local, got %q (score %.1f)", simple.Mode, simple.Score)
	}

	hard, err := h.Recommend(session.Task{
		ID:     "t2",
		Prompt: "perform a security audit of the entire codebase architecture and plan a migration",
	})
	if err != nil {
		t.Fatal(err)
	}
	if hard.Mode != ModeRemote {
		t.Errorf("complex task should score remote, got %q (score %.1f)", hard.Mode, hard.Score)
	}
	if hard.Score > 10 {
		t.Errorf("score must be capped at 10, got %.1f", hard.Score)
	}
	if len(hard.Reasons) == 0 {
		t.Error("recommendation should carry reasons")
	}
}
