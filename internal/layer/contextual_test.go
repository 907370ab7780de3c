package layer

import (
	"context"
	"errors"
	"testing"

	"github.com/cortexmesh/cascade/internal/backend"
	"github.com/cortexmesh/cascade/internal/track"
)

type fakeAdapter struct {
	name string
	cand Candidate
	err  error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Attempt(context.Context, track.Task) (Candidate, error) {
	return f.cand, f.err
}

type fakeRetriever struct {
	neighbors []backend.Neighbor
	err       error
}

func (f *fakeRetriever) Similar(context.Context, string, int) ([]backend.Neighbor, error) {
	return f.neighbors, f.err
}

func TestContextualBlendsRetrievalVote(t *testing.T) {
	inner := &fakeAdapter{
		name: "semantic",
		cand: Candidate{
			Target:     "development-master",
			Confidence: 0.6,
			Scores: map[string]float64{
				"development-master": 0.6,
				"operations-master":  0.5,
			},
		},
	}
	// Retrieval strongly favors operations-master.
	ret := &fakeRetriever{neighbors: []backend.Neighbor{
		{Target: "operations-master", Score: 0.9, Kind: "decision"},
		{Target: "operations-master", Score: 0.8, Kind: "capability"},
		{Target: "development-master", Score: 0.1, Kind: "decision"},
	}}

	c := NewContextual(inner, ret, 0.5, 10)
	cand, err := c.Attempt(context.Background(), track.Task{Description: "x"})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	// operations: 0.5*0.5 + 0.5*(1.7/1.8) ≈ 0.72
	// development: 0.5*0.6 + 0.5*(0.1/1.8) ≈ 0.33
	if cand.Target != "operations-master" {
		t.Errorf("target = %q, want operations-master after rerank", cand.Target)
	}
	if cand.Confidence <= inner.cand.Scores["operations-master"] {
		t.Errorf("blended confidence %f should exceed raw semantic %f",
			cand.Confidence, inner.cand.Scores["operations-master"])
	}
}

func TestContextualEmptyRetrievalPassesThrough(t *testing.T) {
	inner := &fakeAdapter{
		name: "semantic",
		cand: Candidate{
			Target:     "analytics-master",
			Confidence: 0.71,
			Scores:     map[string]float64{"analytics-master": 0.71},
		},
	}
	c := NewContextual(inner, &fakeRetriever{}, 0.6, 10)

	cand, err := c.Attempt(context.Background(), track.Task{Description: "x"})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if cand.Target != "analytics-master" || cand.Confidence != 0.71 {
		t.Errorf("got %q/%f, want semantic result unchanged", cand.Target, cand.Confidence)
	}
	if cand.Metadata["reason"] == nil {
		t.Error("pass-through should record a reason")
	}
}

func TestContextualErrorsPropagate(t *testing.T) {
	innerErr := &fakeAdapter{name: "semantic", err: errors.New("embed down")}
	c := NewContextual(innerErr, &fakeRetriever{}, 0.6, 10)
	if _, err := c.Attempt(context.Background(), track.Task{Description: "x"}); err == nil {
		t.Error("expected inner adapter error to propagate")
	}

	inner := &fakeAdapter{name: "semantic", cand: Candidate{Target: "a", Confidence: 0.5}}
	c = NewContextual(inner, &fakeRetriever{err: errors.New("index down")}, 0.6, 10)
	if _, err := c.Attempt(context.Background(), track.Task{Description: "x"}); err == nil {
		t.Error("expected retriever error to propagate")
	}
}
