package events

import "time"

type DecisionEvent struct {
	EventID        string  `json:"event_id"`
	TaskID         string  `json:"task_id"`
	SelectedTarget string  `json:"selected_target,omitempty"`
	RoutingLayer   string  `json:"routing_layer"`
	Confidence     float64 `json:"confidence"`
	LatencyMs      float64 `json:"latency_ms"`
	Attempts       int     `json:"attempts"`
}

type OutcomeEvent struct {
	EventID       string `json:"event_id"`
	TaskID        string `json:"task_id,omitempty"`
	Status        string `json:"status"`
	TaskCompleted bool   `json:"task_completed"`
	CorrectedTo   string `json:"corrected_to,omitempty"`
}

type ThresholdEvent struct {
	Layer        string  `json:"layer"`
	OldThreshold float64 `json:"old_threshold"`
	NewThreshold float64 `json:"new_threshold"`
	SamplesUsed  int     `json:"samples_used"`
	Rationale    string  `json:"rationale"`
}

type StatsEvent struct {
	TotalDecisions int            `json:"total_decisions"`
	ByLayer        map[string]int `json:"decisions_by_layer"`
	Clarifications int            `json:"clarifications"`
	Timestamp      time.Time      `json:"timestamp"`
}
