// Package tuner recalibrates per-layer confidence thresholds from
// historical routing outcomes. It replays finalized events with
// attached outcomes, sweeps candidate thresholds, and nudges the live
// threshold toward the optimum by a bounded step. It never runs in the
// request path.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cortexmesh/cascade/internal/events"
	"github.com/cortexmesh/cascade/internal/metrics"
	"github.com/cortexmesh/cascade/internal/track"
)

// Candidate thresholds are swept in integer hundredths so a sample
// confidence of exactly 0.80 compares cleanly against the 0.80
// candidate.
const (
	sweepStartPct = 50
	sweepEndPct   = 95
	sweepStepPct  = 5

	DefaultMinSamples = 100
	DefaultStepSize   = 0.05
	DefaultWindow     = 7 * 24 * time.Hour
)

// EventSource yields finalized routing events in a time window. The
// tuner captures a fixed snapshot timestamp at run start, so events
// appended concurrently never shift its window.
type EventSource interface {
	EventsBetween(ctx context.Context, from, until time.Time) ([]*track.RoutingEvent, error)
}

// ThresholdStore is the live threshold surface the tuner writes back to.
type ThresholdStore interface {
	Threshold(layer string) (float64, bool)
	SetThreshold(layer string, value float64) error
}

type Request struct {
	Layer      string        `json:"layer"`
	Window     time.Duration `json:"-"`
	MinSamples int           `json:"min_samples"`
	StepSize   float64       `json:"step_size"`
	Aggressive bool          `json:"aggressive"`
}

type Result struct {
	Layer               string  `json:"layer"`
	OldThreshold        float64 `json:"old_threshold"`
	NewThreshold        float64 `json:"new_threshold"`
	OptimalThreshold    float64 `json:"optimal_threshold"`
	BestAccuracy        float64 `json:"best_accuracy"`
	SamplesUsed         int     `json:"samples_used"`
	MissedOpportunities int     `json:"missed_opportunities"`
	FalsePositives      int     `json:"false_positives"`
	Applied             bool    `json:"applied"`
	Rationale           string  `json:"rationale"`
}

type Tuner struct {
	source     EventSource
	thresholds ThresholdStore
	bus        events.Client // optional
	logger     *slog.Logger
}

func New(source EventSource, thresholds ThresholdStore, bus events.Client, logger *slog.Logger) *Tuner {
	return &Tuner{source: source, thresholds: thresholds, bus: bus, logger: logger}
}

// sample is one historical attempt of the tuned layer with known ground
// truth.
type sample struct {
	confidence float64
	correct    bool
}

// Tune recomputes one layer's optimal threshold from outcome history
// and applies a bounded adjustment. Insufficient data is a no-op with
// an explanatory rationale, not an error.
func (t *Tuner) Tune(ctx context.Context, req Request) (*Result, error) {
	if req.Window <= 0 {
		req.Window = DefaultWindow
	}
	if req.MinSamples <= 0 {
		req.MinSamples = DefaultMinSamples
	}
	if req.StepSize <= 0 {
		req.StepSize = DefaultStepSize
	}
	step := req.StepSize
	if req.Aggressive {
		step *= 2
	}

	old, ok := t.thresholds.Threshold(req.Layer)
	if !ok {
		return nil, fmt.Errorf("unknown layer %q", req.Layer)
	}

	// Fixed snapshot of the computation window.
	until := time.Now().UTC()
	from := until.Add(-req.Window)

	history, err := t.source.EventsBetween(ctx, from, until)
	if err != nil {
		return nil, fmt.Errorf("load routing history: %w", err)
	}

	samples := collectSamples(history, req.Layer)
	result := &Result{
		Layer:        req.Layer,
		OldThreshold: old,
		NewThreshold: old,
		SamplesUsed:  len(samples),
	}

	if len(samples) < req.MinSamples {
		result.Rationale = fmt.Sprintf(
			"insufficient data: %d qualifying samples, need %d; threshold unchanged",
			len(samples), req.MinSamples)
		return result, nil
	}

	// Systematic error classes at the current threshold.
	for _, s := range samples {
		if s.correct && s.confidence < old {
			result.MissedOpportunities++
		}
		if !s.correct && s.confidence >= old {
			result.FalsePositives++
		}
	}

	result.OptimalThreshold, result.BestAccuracy = sweep(samples)

	// Bounded move toward the optimum; the optimum itself is advisory.
	delta := result.OptimalThreshold - old
	if delta > step {
		delta = step
	} else if delta < -step {
		delta = -step
	}
	result.NewThreshold = math.Round((old+delta)*10000) / 10000

	if result.NewThreshold != old {
		if err := t.thresholds.SetThreshold(req.Layer, result.NewThreshold); err != nil {
			return nil, fmt.Errorf("apply threshold: %w", err)
		}
		result.Applied = true
		direction := "up"
		if result.NewThreshold < old {
			direction = "down"
		}
		metrics.ThresholdAdjustments.WithLabelValues(req.Layer, direction).Inc()
	}

	result.Rationale = rationale(result, old)

	t.publish(result)
	t.logger.Info("threshold tuned",
		"layer", req.Layer,
		"old", result.OldThreshold,
		"new", result.NewThreshold,
		"optimal", result.OptimalThreshold,
		"samples", result.SamplesUsed,
		"accuracy", result.BestAccuracy,
	)
	return result, nil
}

// collectSamples extracts qualifying attempts: the event is finalized,
// has an attached outcome establishing a true target, and the layer
// produced a candidate.
func collectSamples(history []*track.RoutingEvent, layer string) []sample {
	var out []sample
	for _, event := range history {
		if !event.Finalized() || event.Outcome == nil {
			continue
		}
		trueTarget := event.TrueTarget()
		if trueTarget == "" {
			continue
		}
		attempt := event.AttemptFor(layer)
		if attempt == nil || !attempt.Attempted || attempt.SelectedTarget == "" {
			continue
		}
		out = append(out, sample{
			confidence: attempt.Confidence,
			correct:    attempt.SelectedTarget == trueTarget,
		})
	}
	return out
}

// sweep evaluates each candidate threshold as a binary classifier over
// the samples and returns the one maximizing accuracy. Ties go to the
// lowest candidate, keeping the sweep deterministic.
func sweep(samples []sample) (best float64, bestAccuracy float64) {
	best = float64(sweepStartPct) / 100
	bestAccuracy = -1
	for pct := sweepStartPct; pct <= sweepEndPct; pct += sweepStepPct {
		cand := float64(pct) / 100
		var tp, fp, tn, fn int
		for _, s := range samples {
			above := s.confidence >= cand
			switch {
			case above && s.correct:
				tp++
			case above && !s.correct:
				fp++
			case !above && !s.correct:
				tn++ // correctly deferred to the next layer
			default:
				fn++ // missed opportunity
			}
		}
		accuracy := float64(tp+tn) / float64(tp+fp+tn+fn)
		if accuracy > bestAccuracy {
			bestAccuracy = accuracy
			best = cand
		}
	}
	return best, bestAccuracy
}

func rationale(r *Result, old float64) string {
	var drift string
	switch {
	case r.MissedOpportunities > r.FalsePositives:
		drift = "threshold too high: missed opportunities dominate"
	case r.FalsePositives > r.MissedOpportunities:
		drift = "threshold too low: false positives dominate"
	default:
		drift = "error classes balanced"
	}
	if !r.Applied {
		return fmt.Sprintf("optimum %.2f equals current threshold (accuracy %.3f over %d samples); %s",
			r.OptimalThreshold, r.BestAccuracy, r.SamplesUsed, drift)
	}
	return fmt.Sprintf("moved %.4f -> %.4f toward optimum %.2f (accuracy %.3f over %d samples); %s",
		old, r.NewThreshold, r.OptimalThreshold, r.BestAccuracy, r.SamplesUsed, drift)
}

func (t *Tuner) publish(r *Result) {
	if t.bus == nil || !r.Applied {
		return
	}
	err := t.bus.Publish(events.SubjectThresholdUpdated(r.Layer), events.ThresholdEvent{
		Layer:        r.Layer,
		OldThreshold: r.OldThreshold,
		NewThreshold: r.NewThreshold,
		SamplesUsed:  r.SamplesUsed,
		Rationale:    r.Rationale,
	})
	if err != nil {
		t.logger.Warn("failed to publish threshold event", "layer", r.Layer, "error", err)
	}
}
