package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "scale"
	metricsSubsystem = "messaging"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeInvalid = "invalid"
)

type Metrics struct {
	// Messages processed, by type and outcome.
	processed *prometheus.CounterVec
	// Entities changed or skipped, by message type.
	entities *prometheus.CounterVec
	// Messages sent, by type.
	sent *prometheus.CounterVec
	// Time taken by Execute, by type.
	executeTime *prometheus.HistogramVec
}

// NewMetrics creates the messaging metrics and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	processed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_processed_total",
			Help:      "Number of command messages processed.",
		},
		[]string{"type", "outcome"},
	)
	entities := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "entities_total",
			Help:      "Number of entities changed or skipped by command messages.",
		},
		[]string{"type", "result"},
	)
	sent := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_sent_total",
			Help:      "Number of command messages sent.",
		},
		[]string{"type"},
	)
	executeTime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "execute_seconds",
			Help:      "Time taken to execute a command message.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"type"},
	)
	registerer.MustRegister(processed, entities, sent, executeTime)
	return &Metrics{
		processed:   processed,
		entities:    entities,
		sent:        sent,
		executeTime: executeTime,
	}
}

func (m *Metrics) reportProcessed(messageType string, outcome string) {
	m.processed.WithLabelValues(messageType, outcome).Inc()
}

func (m *Metrics) reportOutcome(messageType string, outcome *Outcome, seconds float64) {
	applied, skipped := outcome.Counts()
	m.entities.WithLabelValues(messageType, "applied").Add(float64(applied))
	m.entities.WithLabelValues(messageType, "skipped").Add(float64(skipped))
	m.executeTime.WithLabelValues(messageType).Observe(seconds)
}

func (m *Metrics) reportSent(envelopes []*Envelope) {
	for _, envelope := range envelopes {
		m.sent.WithLabelValues(envelope.Type).Inc()
	}
}
