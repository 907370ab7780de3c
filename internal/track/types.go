package track

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task is the routing input. Immutable once submitted; the cascade only
// ever reads it.
type Task struct {
	ID          string            `json:"task_id"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

var ErrEmptyDescription = errors.New("task description is empty")

// Validate rejects malformed tasks at the orchestrator boundary.
func (t Task) Validate() error {
	if t.Description == "" {
		return ErrEmptyDescription
	}
	return nil
}

// LayerAttempt records one layer tried during a cascade run. Immutable
// after creation.
type LayerAttempt struct {
	LayerID        int                    `json:"layer_id"`
	Layer          string                 `json:"layer"`
	Attempted      bool                   `json:"attempted"`
	Success        bool                   `json:"success"`
	Confidence     float64                `json:"confidence"`
	Threshold      float64                `json:"threshold"`
	SelectedTarget string                 `json:"selected_target,omitempty"`
	LatencyMs      float64                `json:"latency_ms"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Routing layers that terminate a cascade without a layer succeeding.
const (
	LayerClarification = "clarification"
	LayerCancelled     = "cancelled"
)

// FinalDecision is the terminal state of one cascade run. SelectedTarget
// is nil for clarification and cancelled decisions.
type FinalDecision struct {
	SelectedTarget  *string            `json:"selected_target"`
	RoutingLayer    string             `json:"routing_layer"`
	Confidence      float64            `json:"confidence"`
	CandidateScores map[string]float64 `json:"all_candidate_scores,omitempty"`
}

// Clarification reports whether no layer was confident enough and a
// human or higher-level process must decide.
func (d FinalDecision) Clarification() bool {
	return d.RoutingLayer == LayerClarification
}

type OutcomeStatus string

const (
	OutcomeCompleted  OutcomeStatus = "completed"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeInProgress OutcomeStatus = "in_progress"
)

// Outcome is pushed by whatever executed the routed task, minutes to
// hours after the decision. Optional per task.
type Outcome struct {
	TaskCompleted         bool          `json:"task_completed"`
	Status                OutcomeStatus `json:"status"`
	WasCorrectTarget      *bool         `json:"was_correct_target,omitempty"`
	CorrectedTo           string        `json:"corrected_to,omitempty"`
	CompletionTimeMinutes *float64      `json:"completion_time_minutes,omitempty"`
	QualityScore          *float64      `json:"quality_score,omitempty"`
}

// Signal kinds derived when an outcome is attached.
const (
	SignalThresholdTooHigh = "threshold_too_high"
	SignalThresholdTooLow  = "threshold_too_low"
)

// LayerSignal flags one layer whose recorded confidence and threshold
// disagree with the true target: either the layer had the right answer
// below its threshold, or the wrong answer above it.
type LayerSignal struct {
	Layer      string  `json:"layer"`
	Kind       string  `json:"kind"`
	Candidate  string  `json:"candidate"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

// Feedback is derived from an Outcome plus the recorded layer attempts.
// Consumed by the threshold tuner, never supplied by callers.
type Feedback struct {
	TrueTarget      string        `json:"true_target,omitempty"`
	RoutedCorrectly *bool         `json:"routed_correctly,omitempty"`
	Signals         []LayerSignal `json:"signals,omitempty"`
}

// RoutingEvent is the complete telemetry record of one cascade run.
// Append-only: outcome and feedback arrive as a second record type
// correlated by EventID, folded on read.
type RoutingEvent struct {
	EventID         uuid.UUID      `json:"event_id"`
	TaskID          string         `json:"task_id"`
	TaskDescription string         `json:"task_description"`
	LayerAttempts   []LayerAttempt `json:"layer_attempts"`
	FinalDecision   *FinalDecision `json:"final_decision,omitempty"`
	TotalLatencyMs  float64        `json:"total_latency_ms"`
	Outcome         *Outcome       `json:"outcome,omitempty"`
	Feedback        *Feedback      `json:"learning_feedback,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Finalized reports whether the cascade run reached a terminal decision.
func (e *RoutingEvent) Finalized() bool {
	return e.FinalDecision != nil
}

// AttemptFor returns the recorded attempt for the named layer, or nil.
func (e *RoutingEvent) AttemptFor(layer string) *LayerAttempt {
	for i := range e.LayerAttempts {
		if e.LayerAttempts[i].Layer == layer {
			return &e.LayerAttempts[i]
		}
	}
	return nil
}

// TrueTarget resolves the target the task should have been routed to,
// from the attached outcome. Empty when the outcome does not establish
// ground truth (e.g. in-progress, or no correctness verdict).
func (e *RoutingEvent) TrueTarget() string {
	if e.Outcome == nil {
		return ""
	}
	if e.Outcome.CorrectedTo != "" {
		return e.Outcome.CorrectedTo
	}
	if e.Outcome.WasCorrectTarget != nil && *e.Outcome.WasCorrectTarget &&
		e.FinalDecision != nil && e.FinalDecision.SelectedTarget != nil {
		return *e.FinalDecision.SelectedTarget
	}
	return ""
}
