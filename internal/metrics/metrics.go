package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mikey/mail-triage/internal/core"
)

// Classification metrics
var (
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_classifications_total",
			Help: "Total number of classified messages by primary label.",
		},
		[]string{"label"},
	)

	ClassificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mail_triage_classification_duration_seconds",
			Help:    "Duration of rule evaluation per message in seconds.",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	RuleSetFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_rule_set_failures_total",
			Help: "Total number of rule sets skipped because their evaluation failed.",
		},
		[]string{"label"},
	)

	MoveDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_move_decisions_total",
			Help: "Total number of move decisions.",
		},
		[]string{"decision"}, // decision: "move", "stay"
	)
)

// Pipeline metrics
var (
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_messages_processed_total",
			Help: "Total number of messages handled by a filter.",
		},
		[]string{"source", "status"}, // source: "postfix", "imap", "cli", "http"; status: "success", "error"
	)
)

// Recorder publishes classification outcomes to the package collectors
type Recorder struct{}

// NewRecorder creates a Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveClassification records one classification
func (Recorder) ObserveClassification(c core.Classified, elapsed time.Duration) {
	ClassificationsTotal.WithLabelValues(c.PrimaryLabel).Inc()
	ClassificationDuration.Observe(elapsed.Seconds())
	MoveDecisionsTotal.WithLabelValues(MoveDecision(c.Move)).Inc()
}

// ObserveRuleSetFailure records a skipped rule set
func (Recorder) ObserveRuleSetFailure(label string) {
	RuleSetFailuresTotal.WithLabelValues(label).Inc()
}

// ObserveMessage records the outcome of handling one message
func (Recorder) ObserveMessage(source string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	MessagesProcessedTotal.WithLabelValues(source, status).Inc()
}

// MoveDecision renders a move decision as a label value
func MoveDecision(move bool) string {
	if move {
		return "move"
	}
	return "stay"
}

// FormatConfidence renders a confidence for headers and logs
func FormatConfidence(confidence float64) string {
	return strconv.FormatFloat(confidence, 'f', 2, 64)
}
