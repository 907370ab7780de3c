package layer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cortexmesh/cascade/internal/backend"
	"github.com/cortexmesh/cascade/internal/registry"
	"github.com/cortexmesh/cascade/internal/track"
)

// Semantic routes by embedding similarity against per-target centroids
// built from the targets' static descriptions. This makes it the
// cold-start layer: a freshly registered target is routable here before
// any history exists. Confidence is cosine similarity normalized to
// [0,1].
type Semantic struct {
	embedder backend.Embedder
	registry *registry.Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	centroids map[string][]float64
}

func NewSemantic(embedder backend.Embedder, reg *registry.Registry, logger *slog.Logger) *Semantic {
	return &Semantic{
		embedder:  embedder,
		registry:  reg,
		logger:    logger,
		centroids: make(map[string][]float64),
	}
}

func (s *Semantic) Name() string { return "semantic" }

// WarmUp embeds every target description to build the similarity index.
// Targets whose embedding fails are skipped with a warning; the layer
// degrades to confidence 0 only if the whole index stays empty.
func (s *Semantic) WarmUp(ctx context.Context) error {
	for _, target := range s.registry.Targets() {
		if target.Description == "" {
			continue
		}
		vec, err := s.embedder.Embed(ctx, target.Description)
		if err != nil {
			s.logger.Warn("failed to embed target description",
				"target", target.Name, "error", err)
			continue
		}
		s.mu.Lock()
		s.centroids[target.Name] = vec
		s.mu.Unlock()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.centroids) == 0 {
		return fmt.Errorf("semantic index is empty")
	}
	return nil
}

func (s *Semantic) Attempt(ctx context.Context, task track.Task) (Candidate, error) {
	s.mu.RLock()
	empty := len(s.centroids) == 0
	s.mu.RUnlock()
	if empty {
		return Candidate{
			Confidence: 0,
			Metadata:   map[string]interface{}{"reason": "empty semantic index"},
		}, nil
	}

	vec, err := s.embedder.Embed(ctx, task.Description)
	if err != nil {
		return Candidate{}, fmt.Errorf("embed task: %w", err)
	}

	s.mu.RLock()
	scores := make(map[string]float64, len(s.centroids))
	for name, centroid := range s.centroids {
		scores[name] = clamp01((cosine(vec, centroid) + 1) / 2)
	}
	s.mu.RUnlock()

	target, confidence := Argmax(scores)
	return Candidate{
		Target:     target,
		Confidence: confidence,
		Scores:     scores,
	}, nil
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
