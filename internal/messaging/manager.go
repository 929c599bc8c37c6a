package messaging

import (
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
)

type Config struct {
	// Maximum number of messages received and processed per batch.
	BatchSize int `validate:"gt=0"`
	// How long a receive waits for the first message.
	ReceiveWait time.Duration
	// Number of attempts made to send a batch of messages before giving up.
	SendAttempts uint `validate:"gt=0"`
	// Delay between send attempts; doubled after each failure.
	SendRetryDelay time.Duration
	// How long to back off after the backend fails to receive.
	ReceiveErrorBackoff time.Duration
}

// Manager sends and receives command messages. One is created per process and passed to whatever needs it.
type Manager struct {
	backend  Backend
	registry *Registry
	config   Config
	clock    clock.Clock
	metrics  *Metrics
}

func NewManager(backend Backend, registry *Registry, config Config, clock clock.Clock, metrics *Metrics) *Manager {
	return &Manager{
		backend:  backend,
		registry: registry,
		config:   config,
		clock:    clock,
		metrics:  metrics,
	}
}

// SendMessages serialises the given messages and sends them, retrying failed sends.
func (m *Manager) SendMessages(ctx *scalecontext.Context, msgs []CommandMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	envelopes := make([]*Envelope, len(msgs))
	bodies := make([][]byte, len(msgs))
	for i, msg := range msgs {
		envelope, err := NewEnvelope(msg)
		if err != nil {
			return err
		}
		body, err := envelope.Encode()
		if err != nil {
			return err
		}
		envelopes[i] = envelope
		bodies[i] = body
	}
	err := retry.Do(
		func() error {
			return m.backend.Send(ctx, bodies)
		},
		retry.Context(ctx),
		retry.Attempts(m.config.SendAttempts),
		retry.Delay(m.config.SendRetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.WithStacktrace(ctx.Log, err).Warnf("failed to send %d messages, attempt %d", len(bodies), n+1)
		}),
	)
	if err != nil {
		return errors.WithMessagef(err, "sending %d messages", len(bodies))
	}
	m.metrics.reportSent(envelopes)
	return nil
}

// ReceiveMessages receives and processes a single batch of messages. It returns the number of messages received.
func (m *Manager) ReceiveMessages(ctx *scalecontext.Context) (int, error) {
	deliveries, err := m.backend.Receive(ctx, m.config.BatchSize, m.config.ReceiveWait)
	if err != nil {
		return 0, err
	}
	for _, delivery := range deliveries {
		m.process(ctx, delivery)
	}
	return len(deliveries), nil
}

// Run receives and processes messages until ctx is cancelled.
func (m *Manager) Run(ctx *scalecontext.Context) error {
	ctx.Log.Infof("processing command messages of types %v", m.registry.Types())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := m.ReceiveMessages(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.WithStacktrace(ctx.Log, err).Error("failed to receive messages")
			select {
			case <-ctx.Done():
				return nil
			case <-m.clock.After(m.config.ReceiveErrorBackoff):
			}
		}
	}
}

// process executes one delivery. Invalid messages are dropped, failed ones handed back to the backend, and the messages
// produced by successful ones sent before the delivery is acknowledged.
func (m *Manager) process(ctx *scalecontext.Context, delivery Delivery) {
	envelope, err := DecodeEnvelope(delivery.Body())
	if err == nil {
		ctx = scalecontext.WithLogFields(ctx, logrus.Fields{"messageId": envelope.ID, "messageType": envelope.Type})
		var msg CommandMessage
		msg, err = m.registry.Extract(envelope)
		if err == nil {
			m.execute(ctx, envelope, msg, delivery)
			return
		}
	}
	logging.WithStacktrace(ctx.Log, err).Error("dropping invalid command message")
	typ := "unknown"
	if envelope != nil && envelope.Type != "" {
		typ = envelope.Type
	}
	m.metrics.reportProcessed(typ, outcomeInvalid)
	m.ack(ctx, delivery)
}

func (m *Manager) execute(ctx *scalecontext.Context, envelope *Envelope, msg CommandMessage, delivery Delivery) {
	start := m.clock.Now()
	outcome, err := msg.Execute(ctx)
	if err != nil {
		err = &ErrCommandMessageExecuteFailure{ID: envelope.ID, Type: envelope.Type, Cause: err}
		logging.WithStacktrace(ctx.Log, err).Warn("command message failed and will be redelivered")
		m.metrics.reportProcessed(envelope.Type, outcomeFailure)
		m.nack(ctx, delivery)
		return
	}
	if outcome == nil {
		outcome = &Outcome{}
	}
	m.metrics.reportOutcome(envelope.Type, outcome, m.clock.Since(start).Seconds())
	if err := m.SendMessages(ctx, outcome.NewMessages); err != nil {
		// The message is executed again on redelivery, which produces the same messages.
		logging.WithStacktrace(ctx.Log, err).Warn("failed to send messages produced by command message")
		m.metrics.reportProcessed(envelope.Type, outcomeFailure)
		m.nack(ctx, delivery)
		return
	}
	applied, skipped := outcome.Counts()
	ctx.Log.Debugf("command message applied to %d entities, skipped %d, sent %d messages", applied, skipped, len(outcome.NewMessages))
	m.metrics.reportProcessed(envelope.Type, outcomeSuccess)
	m.ack(ctx, delivery)
}

func (m *Manager) ack(ctx *scalecontext.Context, delivery Delivery) {
	if err := delivery.Ack(ctx); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("failed to acknowledge command message")
	}
}

func (m *Manager) nack(ctx *scalecontext.Context, delivery Delivery) {
	if err := delivery.Nack(ctx); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("failed to return command message")
	}
}
