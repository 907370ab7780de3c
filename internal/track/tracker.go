package track

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker owns routing telemetry. A cascade run opens an event with
// Start, appends attempts, and closes it with Finalize; the outcome
// arrives at an unbounded later time via RecordOutcome. Persistence is
// best-effort for attempts and outcomes never block routing.
type Tracker struct {
	log    RecordLog
	logger *slog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*RoutingEvent

	statsMu sync.Mutex
	stats   Stats
}

// Stats are in-process aggregates since startup, served by the admin API.
type Stats struct {
	TotalDecisions   int            `json:"total_decisions"`
	ByLayer          map[string]int `json:"decisions_by_layer"`
	Clarifications   int            `json:"clarifications"`
	Cancelled        int            `json:"cancelled"`
	OutcomesRecorded int            `json:"outcomes_recorded"`
}

func NewTracker(log RecordLog, logger *slog.Logger) *Tracker {
	return &Tracker{
		log:     log,
		logger:  logger,
		pending: make(map[uuid.UUID]*RoutingEvent),
		stats:   Stats{ByLayer: make(map[string]int)},
	}
}

// Start allocates a RoutingEvent for one cascade run. The event id is
// generated before any layer attempt begins.
func (t *Tracker) Start(task Task) uuid.UUID {
	event := &RoutingEvent{
		EventID:         uuid.New(),
		TaskID:          task.ID,
		TaskDescription: task.Description,
		CreatedAt:       time.Now().UTC(),
	}
	t.mu.Lock()
	t.pending[event.EventID] = event
	t.mu.Unlock()
	return event.EventID
}

// RecordAttempt appends one layer attempt to an open event. Safe to call
// even if the owning cascade run later fails or is cancelled.
func (t *Tracker) RecordAttempt(eventID uuid.UUID, attempt LayerAttempt) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	event, ok := t.pending[eventID]
	if !ok {
		return ErrEventNotFound
	}
	event.LayerAttempts = append(event.LayerAttempts, attempt)
	return nil
}

// Finalize closes the event with its terminal decision and persists the
// decision record. The caller keeps the decision even if persistence
// fails; routing correctness never depends on telemetry durability.
func (t *Tracker) Finalize(ctx context.Context, eventID uuid.UUID, decision FinalDecision) (*RoutingEvent, error) {
	t.mu.Lock()
	event, ok := t.pending[eventID]
	if ok {
		delete(t.pending, eventID)
	}
	t.mu.Unlock()
	if !ok {
		return nil, ErrEventNotFound
	}

	event.FinalDecision = &decision
	event.TotalLatencyMs = float64(time.Since(event.CreatedAt).Microseconds()) / 1000.0

	t.statsMu.Lock()
	t.stats.TotalDecisions++
	t.stats.ByLayer[decision.RoutingLayer]++
	switch decision.RoutingLayer {
	case LayerClarification:
		t.stats.Clarifications++
	case LayerCancelled:
		t.stats.Cancelled++
	}
	t.statsMu.Unlock()

	rec := &Record{EventID: eventID, Type: RecordDecision, Event: event}
	if err := t.log.Append(ctx, rec); err != nil {
		t.logger.Error("failed to persist routing event", "event_id", eventID, "error", err)
		return event, fmt.Errorf("persist routing event: %w", err)
	}
	return event, nil
}

// Event reconstructs the current state of a finalized event by folding
// its records in arrival order.
func (t *Tracker) Event(ctx context.Context, eventID uuid.UUID) (*RoutingEvent, error) {
	records, err := t.log.Records(ctx, eventID)
	if err != nil {
		return nil, err
	}
	event := Fold(records)
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// RecordOutcome attaches a real-world outcome to a finalized event and
// derives tuning feedback from the recorded layer attempts. Idempotent:
// a repeated submission appends a newer outcome record that overwrites
// the earlier one when folded.
func (t *Tracker) RecordOutcome(ctx context.Context, eventID uuid.UUID, outcome Outcome) (*Feedback, error) {
	event, err := t.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}

	event.Outcome = &outcome
	feedback := DeriveFeedback(event)

	rec := &Record{
		EventID:  eventID,
		Type:     RecordOutcome,
		Outcome:  &outcome,
		Feedback: feedback,
	}
	if err := t.log.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist outcome: %w", err)
	}

	t.statsMu.Lock()
	t.stats.OutcomesRecorded++
	t.statsMu.Unlock()

	return feedback, nil
}

// EventsBetween folds all events whose decision record landed in
// [from, until). Used by the threshold tuner, which captures a fixed
// snapshot timestamp at run start so concurrent appends never shift its
// window.
func (t *Tracker) EventsBetween(ctx context.Context, from, until time.Time) ([]*RoutingEvent, error) {
	records, err := t.log.RecordsBetween(ctx, from, until)
	if err != nil {
		return nil, err
	}
	return FoldAll(records), nil
}

func (t *Tracker) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	out := t.stats
	out.ByLayer = make(map[string]int, len(t.stats.ByLayer))
	for k, v := range t.stats.ByLayer {
		out.ByLayer[k] = v
	}
	return out
}

// DeriveFeedback compares each recorded layer attempt against the true
// target established by the outcome. A layer that held the right answer
// below its threshold signals threshold-too-high; a layer that cleared
// its threshold with the wrong answer signals threshold-too-low.
func DeriveFeedback(event *RoutingEvent) *Feedback {
	if event.Outcome == nil {
		return nil
	}
	feedback := &Feedback{}

	if event.FinalDecision != nil && event.FinalDecision.SelectedTarget != nil &&
		event.Outcome.WasCorrectTarget != nil {
		correct := *event.Outcome.WasCorrectTarget
		feedback.RoutedCorrectly = &correct
	}

	trueTarget := event.TrueTarget()
	if trueTarget == "" {
		return feedback
	}
	feedback.TrueTarget = trueTarget

	for _, attempt := range event.LayerAttempts {
		if !attempt.Attempted || attempt.SelectedTarget == "" {
			continue
		}
		aboveThreshold := attempt.Confidence >= attempt.Threshold
		switch {
		case attempt.SelectedTarget == trueTarget && !aboveThreshold:
			feedback.Signals = append(feedback.Signals, LayerSignal{
				Layer:      attempt.Layer,
				Kind:       SignalThresholdTooHigh,
				Candidate:  attempt.SelectedTarget,
				Confidence: attempt.Confidence,
				Threshold:  attempt.Threshold,
			})
		case attempt.SelectedTarget != trueTarget && aboveThreshold:
			feedback.Signals = append(feedback.Signals, LayerSignal{
				Layer:      attempt.Layer,
				Kind:       SignalThresholdTooLow,
				Candidate:  attempt.SelectedTarget,
				Confidence: attempt.Confidence,
				Threshold:  attempt.Threshold,
			})
		}
	}
	return feedback
}
