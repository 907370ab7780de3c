package track

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RecordType string

const (
	RecordDecision RecordType = "decision"
	RecordOutcome  RecordType = "outcome"
)

// Record is one line in the append-only routing log. A decision record
// carries the full finalized event; an outcome record carries only the
// outcome plus derived feedback, correlated by EventID. The log is
// write-once: attaching an outcome appends rather than mutating.
type Record struct {
	EventID   uuid.UUID     `json:"event_id"`
	Type      RecordType    `json:"record_type"`
	Event     *RoutingEvent `json:"event,omitempty"`
	Outcome   *Outcome      `json:"outcome,omitempty"`
	Feedback  *Feedback     `json:"feedback,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

var ErrEventNotFound = errors.New("routing event not found")

// RecordLog is the append-only persistence port for routing telemetry.
type RecordLog interface {
	Append(ctx context.Context, rec *Record) error
	// Records returns all records for one event in arrival order.
	Records(ctx context.Context, eventID uuid.UUID) ([]*Record, error)
	// RecordsBetween returns all records appended in [from, until) in
	// arrival order, across events.
	RecordsBetween(ctx context.Context, from, until time.Time) ([]*Record, error)
	Close() error
}

// Fold reconstructs the current state of an event from its records in
// arrival order. Later outcome records overwrite earlier ones, so
// repeated outcome submissions are idempotent.
func Fold(records []*Record) *RoutingEvent {
	var event *RoutingEvent
	for _, rec := range records {
		switch rec.Type {
		case RecordDecision:
			if rec.Event != nil {
				copied := *rec.Event
				event = &copied
			}
		case RecordOutcome:
			if event != nil {
				event.Outcome = rec.Outcome
				event.Feedback = rec.Feedback
			}
		}
	}
	return event
}

// FoldAll groups records by event and folds each. Events with no
// decision record are dropped.
func FoldAll(records []*Record) []*RoutingEvent {
	byEvent := make(map[uuid.UUID][]*Record)
	var order []uuid.UUID
	for _, rec := range records {
		if _, seen := byEvent[rec.EventID]; !seen {
			order = append(order, rec.EventID)
		}
		byEvent[rec.EventID] = append(byEvent[rec.EventID], rec)
	}
	var events []*RoutingEvent
	for _, id := range order {
		if e := Fold(byEvent[id]); e != nil {
			events = append(events, e)
		}
	}
	return events
}

// MemoryLog is an in-process RecordLog for development and tests.
type MemoryLog struct {
	mu      sync.RWMutex
	records []*Record
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *MemoryLog) Records(_ context.Context, eventID uuid.UUID) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Record
	for _, rec := range l.records {
		if rec.EventID == eventID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *MemoryLog) RecordsBetween(_ context.Context, from, until time.Time) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Record
	for _, rec := range l.records {
		if !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(until) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *MemoryLog) Close() error { return nil }
