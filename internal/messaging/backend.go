package messaging

import (
	"time"

	"github.com/ngageoint/scale/internal/common/scalecontext"
)

// Backend is a broker with at-least-once delivery and no ordering guarantee.
type Backend interface {
	// Send enqueues encoded envelopes.
	Send(ctx *scalecontext.Context, bodies [][]byte) error
	// Receive returns up to batchSize deliveries, waiting at most wait for the first one. An empty batch is not an
	// error.
	Receive(ctx *scalecontext.Context, batchSize int, wait time.Duration) ([]Delivery, error)
	Close() error
}

// Delivery is a received message that must be either acknowledged or handed back.
type Delivery interface {
	Body() []byte
	// Ack removes the message from the backend.
	Ack(ctx *scalecontext.Context) error
	// Nack returns the message to the backend for redelivery.
	Nack(ctx *scalecontext.Context) error
}
