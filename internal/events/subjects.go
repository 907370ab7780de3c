package events

const (
	StreamName   = "CASCADE_EVENTS"
	StreamMaxAge = "720h" // 30 days

	SubjectStats = "cascade.stats"
)

func SubjectDecisionFinalized(eventID string) string { return "cascade.decision." + eventID + ".finalized" }
func SubjectOutcomeRecorded(eventID string) string   { return "cascade.outcome." + eventID + ".recorded" }
func SubjectClarification(eventID string) string     { return "cascade.decision." + eventID + ".clarification" }

func SubjectThresholdUpdated(layer string) string { return "cascade.threshold." + layer + ".updated" }
