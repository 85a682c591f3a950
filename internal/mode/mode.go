// Package mode implements execution-mode resolution: a deterministic
// priority chain that maps a task to exactly one concrete execution
// strategy, honoring explicit overrides, session continuity, the
// configured default, and an external recommender, in that order.
package mode

import (
	"github.com/lodestar-dev/lodestar/internal/session"
)

// Mode is an execution strategy identifier
type Mode string

const (
	// ModeLocal runs the task with the local executor
	ModeLocal Mode = "local"
	// ModeRemote runs the task with the remote deep-analysis executor
	ModeRemote Mode = "remote"
	// ModeAuto is the sentinel that defers the choice to the recommender.
	// Resolution never returns it as a final answer.
	ModeAuto Mode = "auto"
)

// Concrete reports whether m is a terminal mode an executor can act on
func (m Mode) Concrete() bool {
	return m == ModeLocal || m == ModeRemote
}

// Valid reports whether m is a known mode value
func (m Mode) Valid() bool {
	return m == ModeLocal || m == ModeRemote || m == ModeAuto
}

// Source identifies which step of the resolution chain produced a decision
type Source string

const (
	// SourceOverride means the caller supplied a concrete mode
	SourceOverride Source = "override"
	// SourceContinuity means a prior session for the same task recorded a
	// forced mode, which is reused so a resumed task never switches strategy
	SourceContinuity Source = "continuity"
	// SourceDefault means the globally configured default applied
	SourceDefault Source = "default"
	// SourceRecommender means the external recommender chose the mode
	SourceRecommender Source = "recommender"
	// SourceFallback means the recommender returned the auto sentinel and
	// the fixed fallback applied instead
	SourceFallback Source = "fallback"
)

// Recommendation is the output of an external scoring collaborator. Mode may
// be the auto sentinel; the resolver converts that to the fixed fallback.
type Recommendation struct {
	Mode       Mode     `json:"mode"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Recommender scores a task and suggests an execution mode
type Recommender interface {
	Recommend(task session.Task) (Recommendation, error)
}

// Decision is a resolved execution mode with its provenance
type Decision struct {
	// Mode is the concrete mode to execute with; never the auto sentinel
	Mode Mode
	// Source records which chain step decided
	Source Source
	// Forced marks the decision as explicitly requested by the caller; a
	// forced mode is persisted on the session and reused on resume
	Forced bool
	// Score is the recommender's complexity score, when it was consulted
	Score float64
	// Reasons are the recommender's justifications, when it was consulted
	Reasons []string
}

// RecommenderFunc adapts a plain function to the Recommender interface
type RecommenderFunc func(task session.Task) (Recommendation, error)

// Recommend implements Recommender
func (f RecommenderFunc) Recommend(task session.Task) (Recommendation, error) {
	return f(task)
}
