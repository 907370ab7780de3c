// Package layer implements the classification strategies the cascade
// tries in order: keyword match, embedding similarity, context-augmented
// rerank, and a learned classifier. Every strategy sits behind the same
// Adapter interface so the orchestrator never knows which one it is
// talking to.
package layer

import (
	"context"
	"sort"

	"github.com/cortexmesh/cascade/internal/track"
)

// Candidate is one layer's proposed decision. A layer that cannot decide
// (empty index, no matches) returns Confidence 0 rather than an error,
// so the cascade can still make progress.
type Candidate struct {
	Target     string                 `json:"target"`
	Confidence float64                `json:"confidence"`
	Scores     map[string]float64     `json:"scores,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Adapter is the uniform wrapper around one classification strategy.
// Implementations must be safe for concurrent use; one adapter instance
// serves all in-flight cascades.
type Adapter interface {
	Name() string
	Attempt(ctx context.Context, task track.Task) (Candidate, error)
}

// Argmax selects the highest-scoring target; ties break lexicographically
// by target name so routing stays deterministic.
func Argmax(scores map[string]float64) (string, float64) {
	if len(scores) == 0 {
		return "", 0
	}
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	best := names[0]
	for _, name := range names[1:] {
		if scores[name] > scores[best] {
			best = name
		}
	}
	return best, scores[best]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
