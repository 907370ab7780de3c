// Package cascade drives the ordered layer cascade for one task: each
// layer is tried in turn under its latency budget, the first candidate
// to clear its layer's confidence threshold wins, and a task no layer
// is confident about terminates in a clarification decision instead of
// an error.
package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cortexmesh/cascade/internal/cache"
	"github.com/cortexmesh/cascade/internal/events"
	"github.com/cortexmesh/cascade/internal/layer"
	"github.com/cortexmesh/cascade/internal/metrics"
	"github.com/cortexmesh/cascade/internal/registry"
	"github.com/cortexmesh/cascade/internal/track"
)

// LayerSpec is the static configuration of one cascade layer. Attempt
// order follows ascending LayerID. ConfidenceThreshold is the only
// field mutated at runtime, and only through the Thresholds store.
type LayerSpec struct {
	LayerID             int     `json:"layer_id"`
	Name                string  `json:"name"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxLatencyBudgetMs  int     `json:"max_latency_budget_ms"`
}

// Entry pairs a layer spec with the adapter that implements it.
type Entry struct {
	Spec    LayerSpec
	Adapter layer.Adapter
}

// Decision is what Route returns to the caller. SelectedTarget is nil
// for clarification and cancelled decisions.
type Decision struct {
	EventID         uuid.UUID          `json:"event_id"`
	TaskID          string             `json:"task_id"`
	SelectedTarget  *string            `json:"selected_target"`
	RoutingLayer    string             `json:"routing_layer"`
	Confidence      float64            `json:"confidence"`
	CandidateScores map[string]float64 `json:"all_candidate_scores,omitempty"`
	LatencyMs       float64            `json:"latency_ms"`
	Attempts        int                `json:"attempts"`
	Cached          bool               `json:"cached"`
}

// Orchestrator routes tasks through the layer cascade. Safe for
// concurrent use; each Route call is independent and reads a threshold
// snapshot at start.
type Orchestrator struct {
	entries    []Entry
	thresholds *Thresholds
	tracker    *track.Tracker
	registry   *registry.Registry
	bus        events.Client    // optional
	decisions  *cache.Decisions // optional
	logger     *slog.Logger
}

func New(entries []Entry, thresholds *Thresholds, tracker *track.Tracker, reg *registry.Registry, bus events.Client, decisions *cache.Decisions, logger *slog.Logger) (*Orchestrator, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no cascade layers configured")
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Adapter == nil {
			return nil, fmt.Errorf("layer %q has no adapter", e.Spec.Name)
		}
		if e.Spec.Name != e.Adapter.Name() {
			return nil, fmt.Errorf("layer spec %q bound to adapter %q", e.Spec.Name, e.Adapter.Name())
		}
		if seen[e.Spec.Name] {
			return nil, fmt.Errorf("duplicate layer %q", e.Spec.Name)
		}
		seen[e.Spec.Name] = true
		if i > 0 && entries[i-1].Spec.LayerID >= e.Spec.LayerID {
			return nil, fmt.Errorf("layers must be ordered by ascending layer_id")
		}
	}
	return &Orchestrator{
		entries:    entries,
		thresholds: thresholds,
		tracker:    tracker,
		registry:   reg,
		bus:        bus,
		decisions:  decisions,
		logger:     logger,
	}, nil
}

// Route decides which target should handle the task. It always returns
// a decision unless the input is malformed or the caller cancels:
// classification uncertainty degrades into clarification, never into an
// error.
func (o *Orchestrator) Route(ctx context.Context, task track.Task) (*Decision, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	metrics.ActiveRequests.Inc()
	defer metrics.ActiveRequests.Dec()
	start := time.Now()
	defer func() {
		metrics.RouteLatency.Observe(time.Since(start).Seconds())
	}()

	if o.decisions != nil {
		if cached := o.cachedDecision(task, start); cached != nil {
			return cached, nil
		}
	}

	// Consistent snapshot: a tuner write mid-flight never affects this run.
	snapshot := o.thresholds.Snapshot()
	eventID := o.tracker.Start(task)

	candidateScores := make(map[string]float64)

	for _, entry := range o.entries {
		if ctx.Err() != nil {
			return o.finalizeCancelled(eventID, task, candidateScores)
		}

		threshold, ok := snapshot[entry.Spec.Name]
		if !ok {
			threshold = entry.Spec.ConfidenceThreshold
		}

		attemptStart := time.Now()
		cand, attemptErr := o.attempt(ctx, entry, task)
		elapsed := time.Since(attemptStart)
		metrics.LayerLatency.WithLabelValues(entry.Spec.Name).Observe(elapsed.Seconds())

		attempt := track.LayerAttempt{
			LayerID:        entry.Spec.LayerID,
			Layer:          entry.Spec.Name,
			Attempted:      true,
			Confidence:     cand.Confidence,
			Threshold:      threshold,
			SelectedTarget: cand.Target,
			LatencyMs:      float64(elapsed.Microseconds()) / 1000.0,
			Metadata:       cand.Metadata,
		}

		cancelled := false
		if attemptErr != nil {
			// Adapter errors and timeouts are recorded as failed
			// attempts; the cascade proceeds to the next layer.
			cancelled = ctx.Err() != nil
			kind := "error"
			if attemptErr == context.DeadlineExceeded {
				kind = "timeout"
			}
			if !cancelled {
				metrics.LayerErrors.WithLabelValues(entry.Spec.Name, kind).Inc()
			}
			attempt.Confidence = 0
			attempt.SelectedTarget = ""
			attempt.Metadata = map[string]interface{}{"failure": attemptErr.Error()}
			o.logger.Warn("layer attempt failed",
				"layer", entry.Spec.Name, "task_id", task.ID, "error", attemptErr)
		} else {
			attempt.Success = cand.Target != "" && cand.Confidence >= threshold
			if cand.Target != "" && cand.Confidence > candidateScores[cand.Target] {
				candidateScores[cand.Target] = cand.Confidence
			}
		}

		if err := o.tracker.RecordAttempt(eventID, attempt); err != nil {
			o.logger.Warn("failed to record layer attempt",
				"event_id", eventID, "layer", entry.Spec.Name, "error", err)
		}

		if cancelled {
			return o.finalizeCancelled(eventID, task, candidateScores)
		}

		if attempt.Success {
			target := cand.Target
			decision := track.FinalDecision{
				SelectedTarget:  &target,
				RoutingLayer:    entry.Spec.Name,
				Confidence:      cand.Confidence,
				CandidateScores: candidateScores,
			}
			return o.finalize(eventID, task, decision)
		}
	}

	// Terminal clarification: certain that no automatic decision could
	// be made. The per-layer best candidates go to whoever disambiguates.
	metrics.Clarifications.Inc()
	decision := track.FinalDecision{
		RoutingLayer:    track.LayerClarification,
		Confidence:      1.0,
		CandidateScores: candidateScores,
	}
	return o.finalize(eventID, task, decision)
}

// attempt invokes one adapter bounded by its layer's latency budget.
// An adapter that overruns the budget is abandoned and treated as a
// failed attempt.
func (o *Orchestrator) attempt(ctx context.Context, entry Entry, task track.Task) (layer.Candidate, error) {
	budget := time.Duration(entry.Spec.MaxLatencyBudgetMs) * time.Millisecond
	if budget <= 0 {
		budget = time.Second
	}
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		cand layer.Candidate
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		cand, err := entry.Adapter.Attempt(actx, task)
		ch <- result{cand, err}
	}()

	select {
	case r := <-ch:
		return r.cand, r.err
	case <-actx.Done():
		return layer.Candidate{}, actx.Err()
	}
}

func (o *Orchestrator) finalize(eventID uuid.UUID, task track.Task, decision track.FinalDecision) (*Decision, error) {
	// Telemetry persistence runs detached from the caller's context so
	// a cancelled request still leaves a consistent event behind.
	event, err := o.tracker.Finalize(context.Background(), eventID, decision)
	if err != nil && event == nil {
		return nil, err
	}
	if err != nil {
		o.logger.Error("failed to persist routing event; returning decision anyway",
			"event_id", eventID, "error", err)
	}

	out := &Decision{
		EventID:         eventID,
		TaskID:          task.ID,
		SelectedTarget:  decision.SelectedTarget,
		RoutingLayer:    decision.RoutingLayer,
		Confidence:      decision.Confidence,
		CandidateScores: decision.CandidateScores,
		LatencyMs:       event.TotalLatencyMs,
		Attempts:        len(event.LayerAttempts),
	}

	if decision.SelectedTarget != nil {
		metrics.Decisions.WithLabelValues(*decision.SelectedTarget, decision.RoutingLayer).Inc()
		o.registry.RecordSample(*decision.SelectedTarget)
		o.storeDecision(task, out)
	} else {
		metrics.Decisions.WithLabelValues("none", decision.RoutingLayer).Inc()
	}

	o.publish(event, out)

	o.logger.Info("routed task",
		"task_id", task.ID,
		"event_id", eventID,
		"layer", out.RoutingLayer,
		"target", targetOrNone(out.SelectedTarget),
		"confidence", out.Confidence,
		"attempts", out.Attempts,
		"latency_ms", out.LatencyMs,
	)
	return out, nil
}

// finalizeCancelled closes the event with whatever attempts were already
// recorded so telemetry stays consistent, then surfaces the cancellation
// to the caller.
func (o *Orchestrator) finalizeCancelled(eventID uuid.UUID, task track.Task, scores map[string]float64) (*Decision, error) {
	decision := track.FinalDecision{
		RoutingLayer:    track.LayerCancelled,
		CandidateScores: scores,
	}
	if _, err := o.tracker.Finalize(context.Background(), eventID, decision); err != nil {
		o.logger.Error("failed to persist cancelled routing event",
			"event_id", eventID, "error", err)
	}
	o.logger.Info("routing cancelled by caller", "task_id", task.ID, "event_id", eventID)
	return nil, context.Canceled
}

func (o *Orchestrator) cachedDecision(task track.Task, start time.Time) *Decision {
	data, ok := o.decisions.Get(cache.Key(task.Description))
	if !ok {
		metrics.CacheMisses.Inc()
		return nil
	}
	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		metrics.CacheMisses.Inc()
		return nil
	}
	metrics.CacheHits.Inc()
	d.TaskID = task.ID
	d.Cached = true
	d.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
	return &d
}

func (o *Orchestrator) storeDecision(task track.Task, d *Decision) {
	if o.decisions == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	o.decisions.Set(cache.Key(task.Description), data)
}

func (o *Orchestrator) publish(event *track.RoutingEvent, d *Decision) {
	if o.bus == nil {
		return
	}
	subject := events.SubjectDecisionFinalized(d.EventID.String())
	if d.RoutingLayer == track.LayerClarification {
		subject = events.SubjectClarification(d.EventID.String())
	}
	payload := events.DecisionEvent{
		EventID:        d.EventID.String(),
		TaskID:         d.TaskID,
		SelectedTarget: targetOrNone(d.SelectedTarget),
		RoutingLayer:   d.RoutingLayer,
		Confidence:     d.Confidence,
		LatencyMs:      event.TotalLatencyMs,
		Attempts:       len(event.LayerAttempts),
	}
	if err := o.bus.Publish(subject, payload); err != nil {
		o.logger.Warn("failed to publish decision event", "event_id", d.EventID, "error", err)
	}
}

func targetOrNone(t *string) string {
	if t == nil {
		return ""
	}
	return *t
}
