package layer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cortexmesh/cascade/internal/track"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbedder returns canned vectors per text and a fallback for
// anything unknown.
type fakeEmbedder struct {
	vectors  map[string][]float64
	fallback []float64
	err      error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.fallback, nil
}

func TestSemanticRoutesByCosine(t *testing.T) {
	reg := testRegistry(t)
	emb := &fakeEmbedder{
		vectors: map[string][]float64{
			"code changes, bug fixes, refactoring":    {1, 0, 0},
			"deployments, infrastructure, alerts":     {0, 1, 0},
			"reports, dashboards, queries":            {0, 0, 1},
			"ship the new helm chart to the cluster":  {0.1, 0.9, 0},
			"patch the session handling regression":   {0.95, 0.05, 0},
		},
	}
	s := NewSemantic(emb, reg, discardLogger())
	if err := s.WarmUp(context.Background()); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	tests := []struct {
		description string
		want        string
	}{
		{"ship the new helm chart to the cluster", "operations-master"},
		{"patch the session handling regression", "development-master"},
	}
	for _, tt := range tests {
		cand, err := s.Attempt(context.Background(), track.Task{Description: tt.description})
		if err != nil {
			t.Fatalf("attempt: %v", err)
		}
		if cand.Target != tt.want {
			t.Errorf("%q routed to %q, want %q", tt.description, cand.Target, tt.want)
		}
		if cand.Confidence <= 0.5 || cand.Confidence > 1 {
			t.Errorf("%q confidence = %f, want (0.5, 1]", tt.description, cand.Confidence)
		}
		if len(cand.Scores) != 3 {
			t.Errorf("scores for %d targets, want 3", len(cand.Scores))
		}
	}
}

func TestSemanticEmptyIndexReturnsZero(t *testing.T) {
	reg := testRegistry(t)
	s := NewSemantic(&fakeEmbedder{err: errors.New("down")}, reg, discardLogger())
	// WarmUp fails for every target, leaving the index empty.
	if err := s.WarmUp(context.Background()); err == nil {
		t.Fatal("expected warm-up error for empty index")
	}

	cand, err := s.Attempt(context.Background(), track.Task{Description: "anything"})
	if err != nil {
		t.Fatalf("attempt should not error on empty index: %v", err)
	}
	if cand.Confidence != 0 {
		t.Errorf("confidence = %f, want 0 for empty index", cand.Confidence)
	}
}

func TestSemanticEmbedErrorSurfaces(t *testing.T) {
	reg := testRegistry(t)
	emb := &fakeEmbedder{fallback: []float64{1, 0, 0}}
	s := NewSemantic(emb, reg, discardLogger())
	if err := s.WarmUp(context.Background()); err != nil {
		t.Fatal(err)
	}

	emb.err = errors.New("embedding service down")
	if _, err := s.Attempt(context.Background(), track.Task{Description: "x"}); err == nil {
		t.Error("expected error when task embedding fails")
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2}, []float64{1, 2}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
		{"length mismatch", []float64{1}, []float64{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosine(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("cosine = %f, want %f", got, tt.want)
			}
		})
	}
}
