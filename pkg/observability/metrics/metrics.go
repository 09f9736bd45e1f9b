package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnLatency tracks end-to-end turn processing duration by resulting state.
	TurnLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_turn_duration_seconds",
			Help:    "End-to-end message turn processing duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"resulting_state"},
	)

	// ClassifierLatency tracks individual classifier call duration.
	ClassifierLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_classifier_duration_seconds",
			Help:    "Classifier model call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"classifier"},
	)

	// CrisisDetections counts crisis-threshold hits by the signal that produced them.
	CrisisDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_crisis_detections_total",
			Help: "Messages whose combined crisis score met the crisis threshold",
		},
		[]string{"signal"},
	)

	// ClassifierDegradations counts fail-safe degradations by classifier and reason.
	ClassifierDegradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_classifier_degradations_total",
			Help: "Classifier calls that fell back to degraded scoring",
		},
		[]string{"classifier", "reason"},
	)

	// PolicyMatches counts guardrail rule matches by rule and action.
	PolicyMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_policy_matches_total",
			Help: "Policy rule matches by rule ID and action",
		},
		[]string{"rule_id", "action"},
	)

	// PIIRedactions counts redacted entities by category.
	PIIRedactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_pii_redactions_total",
			Help: "PII entities redacted from inbound or outbound text",
		},
		[]string{"category", "direction"},
	)

	// PersistenceRetries counts session/message persistence retries.
	PersistenceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_persistence_retries_total",
			Help: "Persistence operations that required a retry",
		},
	)

	// TurnsFailedClosed counts turns dropped after repeated persistence failure.
	TurnsFailedClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_turns_failed_closed_total",
			Help: "Turns that failed closed instead of responding unlogged",
		},
	)

	// RuleSetRevision exposes the revision of the active policy rule set.
	RuleSetRevision = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_policy_ruleset_revision",
			Help: "Monotonic revision number of the active policy rule set",
		},
	)

	// RuleSetReloadFailures counts hot-reload attempts that kept last-known-good.
	RuleSetReloadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_policy_reload_failures_total",
			Help: "Policy rule set reloads rejected by validation",
		},
	)

	// StateTransitions counts state machine transitions.
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_state_transitions_total",
			Help: "Session state transitions by source and target state",
		},
		[]string{"from", "to"},
	)

	// SessionsArchived counts sessions archived by the inactivity archiver.
	SessionsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_sessions_archived_total",
			Help: "Sessions archived after the inactivity timeout",
		},
	)
)

// RecordClassifierLatency records one classifier call duration.
func RecordClassifierLatency(classifier string, seconds float64) {
	ClassifierLatency.WithLabelValues(classifier).Observe(seconds)
}

// RecordDegradation records a fail-safe classifier degradation.
func RecordDegradation(classifier, reason string) {
	ClassifierDegradations.WithLabelValues(classifier, reason).Inc()
}

// RecordPolicyMatch records a guardrail rule match.
func RecordPolicyMatch(ruleID, action string) {
	PolicyMatches.WithLabelValues(ruleID, action).Inc()
}

// RecordTransition records a state machine transition.
func RecordTransition(from, to string) {
	StateTransitions.WithLabelValues(from, to).Inc()
}
