package mode

import (
	"strings"

	"github.com/lodestar-dev/lodestar/internal/session"
)

// remoteSignals are prompt fragments that suggest a task benefits from the
// remote deep-analysis executor.
var remoteSignals = []string{
	"architecture",
	"audit",
	"cross-cutting",
	"entire codebase",
	"migration",
	"refactor",
	"security",
	"whole repository",
}

// Heuristic is a built-in recommender that scores a task's prompt on a 1-10
// complexity scale and suggests remote analysis at or above a threshold.
// It is deliberately simple; deployments with a real scoring backend plug
// in their own Recommender.
type Heuristic struct {
	// RemoteThreshold is the score at or above which remote is suggested
	RemoteThreshold float64
}

// NewHeuristic creates a heuristic recommender with the given threshold
func NewHeuristic(remoteThreshold float64) *Heuristic {
	return &Heuristic{RemoteThreshold: remoteThreshold}
}

// Recommend scores the task and suggests a mode. It never returns an error
// and never returns the auto sentinel.
func (h *Heuristic) Recommend(task session.Task) (Recommendation, error) {
	score := 1.0
	var reasons []string

	prompt := strings.ToLower(task.Prompt + " " + task.Title)

	// Long prompts tend to describe larger work.
	switch {
	case len(prompt) > 2000:
		score += 4
		reasons = append(reasons, "long task description")
	case len(prompt) > 500:
		score += 2
		reasons = append(reasons, "detailed task description")
	}

	for _, signal := range remoteSignals {
		if strings.Contains(prompt, signal) {
			score += 1.5
			reasons = append(reasons, "mentions "+signal)
		}
	}

	if score > 10 {
		score = 10
	}

	rec := Recommendation{
		Mode:       ModeLocal,
		Score:      score,
		Confidence: 0.5,
		Reasons:    reasons,
	}
	if score >= h.RemoteThreshold {
		rec.Mode = ModeRemote
		rec.Confidence = 0.7
	}
	return rec, nil
}
