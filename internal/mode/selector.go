package mode

import (
	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/logging"
	"github.com/lodestar-dev/lodestar/internal/session"
)

// FallbackMode is the concrete mode used when the recommender itself
// returns the auto sentinel or is unavailable
const FallbackMode = ModeLocal

// ContinuityIndex answers whether a task already has a session that
// recorded a forced mode. *session.Store satisfies it.
type ContinuityIndex interface {
	FindForcedMode(taskID string) *session.Session
}

// Selector resolves a task to a concrete execution mode. It is pure with
// respect to its inputs: given identical session state, configuration, and
// recommender output it always returns the same decision, and it never
// returns the auto sentinel.
type Selector struct {
	index       ContinuityIndex
	defaultMode Mode
	recommender Recommender
	logger      *logging.Logger
}

// NewSelector builds a Selector. All collaborators are explicit: index
// provides session continuity lookups, defaultMode is the configured
// global default, recommender is the external scorer consulted last.
func NewSelector(index ContinuityIndex, defaultMode Mode, recommender Recommender, logger *logging.Logger) (*Selector, error) {
	if !defaultMode.Valid() {
		return nil, lserrors.NewConfigurationError("mode.default", "unknown execution mode").
			WithValue(string(defaultMode))
	}
	if recommender == nil {
		return nil, lserrors.NewConfigurationError("recommender", "recommender must not be nil")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Selector{
		index:       index,
		defaultMode: defaultMode,
		recommender: recommender,
		logger:      logger,
	}, nil
}

// Resolve maps a task plus an optional caller override to a concrete mode.
// Priority, highest wins, no blending:
//
//  1. Explicit override. A concrete override is used as-is and marked
//     forced. The auto sentinel resolves immediately through the
//     recommender instead of falling through.
//  2. Session continuity: a prior session for this task that recorded a
//     forced mode keeps that mode, so a resumed task never silently
//     switches strategy.
//  3. The configured global default, unless it is itself the auto sentinel.
//  4. The recommender. If it answers with the auto sentinel, the fixed
//     fallback applies rather than recursing.
func (s *Selector) Resolve(task session.Task, override Mode) (Decision, error) {
	if override != "" && !override.Valid() {
		return Decision{}, lserrors.NewConfigurationError("mode", "unknown execution mode").
			WithValue(string(override))
	}

	// 1. Explicit override
	if override.Concrete() {
		s.logger.Debug("mode resolved by override", "task_id", task.ID, "mode", string(override))
		return Decision{Mode: override, Source: SourceOverride, Forced: true}, nil
	}
	if override == ModeAuto {
		return s.recommend(task)
	}

	// 2. Session continuity
	if s.index != nil {
		if prior := s.index.FindForcedMode(task.ID); prior != nil && prior.Context != nil {
			recorded := Mode(prior.Context.Mode)
			if prior.Context.Forced && recorded.Concrete() {
				s.logger.Debug("mode resolved by continuity",
					"task_id", task.ID, "session_id", prior.ID, "mode", string(recorded))
				return Decision{Mode: recorded, Source: SourceContinuity, Forced: true}, nil
			}
		}
	}

	// 3. Configured default
	if s.defaultMode.Concrete() {
		s.logger.Debug("mode resolved by default", "task_id", task.ID, "mode", string(s.defaultMode))
		return Decision{Mode: s.defaultMode, Source: SourceDefault}, nil
	}

	// 4. Recommender
	return s.recommend(task)
}

// recommend consults the external recommender and converts its answer to a
// terminal decision. A recommender failure or an auto answer funnels into
// the fixed fallback so resolution is total.
func (s *Selector) recommend(task session.Task) (Decision, error) {
	rec, err := s.recommender.Recommend(task)
	if err != nil {
		s.logger.Warn("recommender failed, using fallback mode",
			"task_id", task.ID, "fallback", string(FallbackMode), "error", err)
		return Decision{
			Mode:    FallbackMode,
			Source:  SourceFallback,
			Reasons: []string{"recommender unavailable"},
		}, nil
	}

	if !rec.Mode.Concrete() {
		s.logger.Debug("recommender returned no concrete mode, using fallback",
			"task_id", task.ID, "fallback", string(FallbackMode))
		return Decision{
			Mode:    FallbackMode,
			Source:  SourceFallback,
			Score:   rec.Score,
			Reasons: rec.Reasons,
		}, nil
	}

	s.logger.Debug("mode resolved by recommender",
		"task_id", task.ID, "mode", string(rec.Mode), "score", rec.Score)
	return Decision{
		Mode:    rec.Mode,
		Source:  SourceRecommender,
		Score:   rec.Score,
		Reasons: rec.Reasons,
	}, nil
}
