package tuner

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cortexmesh/cascade/internal/track"
)

type fakeSource struct {
	events []*track.RoutingEvent
}

func (f *fakeSource) EventsBetween(context.Context, time.Time, time.Time) ([]*track.RoutingEvent, error) {
	return f.events, nil
}

type fakeStore struct {
	thresholds map[string]float64
	sets       int
}

func (f *fakeStore) Threshold(layer string) (float64, bool) {
	v, ok := f.thresholds[layer]
	return v, ok
}

func (f *fakeStore) SetThreshold(layer string, value float64) error {
	f.thresholds[layer] = value
	f.sets++
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// outcomeEvent builds a finalized event with ground truth for one layer
// attempt. The true target is always development-master; correct picks
// whether the layer agreed.
func outcomeEvent(layer string, confidence float64, correct bool) *track.RoutingEvent {
	selected := "development-master"
	if !correct {
		selected = "operations-master"
	}
	routed := "development-master"
	return &track.RoutingEvent{
		EventID: uuid.New(),
		LayerAttempts: []track.LayerAttempt{{
			LayerID: 2, Layer: layer, Attempted: true,
			Confidence: confidence, SelectedTarget: selected,
		}},
		FinalDecision: &track.FinalDecision{
			SelectedTarget: &routed,
			RoutingLayer:   layer,
			Confidence:     confidence,
		},
		Outcome: &track.Outcome{
			Status:      track.OutcomeCompleted,
			CorrectedTo: "development-master",
		},
	}
}

func repeat(n int, build func() *track.RoutingEvent) []*track.RoutingEvent {
	out := make([]*track.RoutingEvent, n)
	for i := 0; i < n; i++ {
		out[i] = build()
	}
	return out
}

func newTuner(events []*track.RoutingEvent, old float64) (*Tuner, *fakeStore) {
	store := &fakeStore{thresholds: map[string]float64{"semantic": old}}
	return New(&fakeSource{events: events}, store, nil, quietLogger()), store
}

func TestTuneInsufficientSamplesNoOp(t *testing.T) {
	events := repeat(30, func() *track.RoutingEvent {
		return outcomeEvent("semantic", 0.8, true)
	})
	tn, store := newTuner(events, 0.70)

	res, err := tn.Tune(context.Background(), Request{Layer: "semantic", MinSamples: 100})
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if res.Applied {
		t.Error("no-op run reported applied")
	}
	if res.NewThreshold != res.OldThreshold {
		t.Errorf("threshold moved %f -> %f on insufficient data", res.OldThreshold, res.NewThreshold)
	}
	if res.SamplesUsed != 30 {
		t.Errorf("samples used = %d, want 30", res.SamplesUsed)
	}
	if !strings.Contains(res.Rationale, "insufficient data") {
		t.Errorf("rationale = %q", res.Rationale)
	}
	if store.sets != 0 {
		t.Error("store written on no-op")
	}
}

func TestTuneBoundedStepDown(t *testing.T) {
	// Every sample is correct at confidence 0.60; the optimum is far
	// below the current 0.85, but one run only moves one step.
	events := repeat(150, func() *track.RoutingEvent {
		return outcomeEvent("semantic", 0.60, true)
	})
	tn, store := newTuner(events, 0.85)

	res, err := tn.Tune(context.Background(), Request{Layer: "semantic", MinSamples: 100, StepSize: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied {
		t.Fatal("adjustment not applied")
	}
	if res.NewThreshold != 0.80 {
		t.Errorf("new threshold = %f, want 0.80 (one bounded step)", res.NewThreshold)
	}
	if res.OptimalThreshold > 0.60 {
		t.Errorf("optimal = %f, want <= 0.60", res.OptimalThreshold)
	}
	if store.thresholds["semantic"] != 0.80 {
		t.Errorf("store = %f, want 0.80", store.thresholds["semantic"])
	}
	if res.MissedOpportunities != 150 || res.FalsePositives != 0 {
		t.Errorf("error classes = %d missed / %d false, want 150/0",
			res.MissedOpportunities, res.FalsePositives)
	}
	if !strings.Contains(res.Rationale, "threshold too high") {
		t.Errorf("rationale = %q, want missed-opportunity drift", res.Rationale)
	}
}

func TestTuneAggressiveDoublesStep(t *testing.T) {
	events := repeat(150, func() *track.RoutingEvent {
		return outcomeEvent("semantic", 0.60, true)
	})
	tn, _ := newTuner(events, 0.85)

	res, err := tn.Tune(context.Background(), Request{
		Layer: "semantic", MinSamples: 100, StepSize: 0.05, Aggressive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.NewThreshold != 0.75 {
		t.Errorf("new threshold = %f, want 0.75 (double step)", res.NewThreshold)
	}
}

func TestTuneOptimumAtCurrentIsNoOp(t *testing.T) {
	// Correct decisions sit at 0.90, wrong ones at 0.80; 0.85 separates
	// them perfectly, so the current threshold is already optimal.
	var events []*track.RoutingEvent
	for i := 0; i < 100; i++ {
		events = append(events, outcomeEvent("semantic", 0.90, true))
		events = append(events, outcomeEvent("semantic", 0.80, false))
	}
	tn, store := newTuner(events, 0.85)

	res, err := tn.Tune(context.Background(), Request{Layer: "semantic", MinSamples: 100})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied {
		t.Error("optimal threshold should not trigger a write")
	}
	if res.OptimalThreshold != 0.85 {
		t.Errorf("optimal = %f, want 0.85", res.OptimalThreshold)
	}
	if res.BestAccuracy != 1.0 {
		t.Errorf("best accuracy = %f, want 1.0", res.BestAccuracy)
	}
	if store.sets != 0 {
		t.Error("store written without a change")
	}
}

func TestTuneStepUpOnFalsePositives(t *testing.T) {
	// Wrong answers clear the current 0.70 threshold at 0.75; correct
	// ones sit at 0.90. The sweep pushes the threshold up.
	var events []*track.RoutingEvent
	for i := 0; i < 100; i++ {
		events = append(events, outcomeEvent("semantic", 0.90, true))
		events = append(events, outcomeEvent("semantic", 0.75, false))
	}
	tn, _ := newTuner(events, 0.70)

	res, err := tn.Tune(context.Background(), Request{Layer: "semantic", MinSamples: 100})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied || res.NewThreshold != 0.75 {
		t.Errorf("new threshold = %f applied=%v, want 0.75/true", res.NewThreshold, res.Applied)
	}
	if res.FalsePositives != 100 {
		t.Errorf("false positives = %d, want 100", res.FalsePositives)
	}
	if !strings.Contains(res.Rationale, "threshold too low") {
		t.Errorf("rationale = %q, want false-positive drift", res.Rationale)
	}
}

func TestTuneUnknownLayer(t *testing.T) {
	tn, _ := newTuner(nil, 0.70)
	if _, err := tn.Tune(context.Background(), Request{Layer: "ghost"}); err == nil {
		t.Error("expected error for unknown layer")
	}
}

func TestCollectSamplesFilters(t *testing.T) {
	clarified := &track.RoutingEvent{
		EventID:       uuid.New(),
		FinalDecision: &track.FinalDecision{RoutingLayer: track.LayerClarification, Confidence: 1.0},
		Outcome:       &track.Outcome{Status: track.OutcomeCompleted, CorrectedTo: "development-master"},
	}
	noOutcome := outcomeEvent("semantic", 0.8, true)
	noOutcome.Outcome = nil
	inProgress := outcomeEvent("semantic", 0.8, true)
	inProgress.Outcome = &track.Outcome{Status: track.OutcomeInProgress}
	otherLayer := outcomeEvent("keyword", 0.8, true)
	qualifying := outcomeEvent("semantic", 0.8, true)

	samples := collectSamples([]*track.RoutingEvent{
		clarified, noOutcome, inProgress, otherLayer, qualifying,
	}, "semantic")
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if !samples[0].correct || samples[0].confidence != 0.8 {
		t.Errorf("sample = %+v", samples[0])
	}
}
