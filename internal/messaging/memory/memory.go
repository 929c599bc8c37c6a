// Package memory is an in-process messaging backend, used by single-process deployments and tests.
package memory

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
)

type Backend struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	// signalled, without blocking, on every send
	available chan struct{}
	clock     clock.Clock
}

func New(clock clock.Clock) *Backend {
	return &Backend{
		available: make(chan struct{}, 1),
		clock:     clock,
	}
}

func (b *Backend) Send(_ *scalecontext.Context, bodies [][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("backend closed")
	}
	b.queue = append(b.queue, bodies...)
	select {
	case b.available <- struct{}{}:
	default:
	}
	return nil
}

func (b *Backend) Receive(ctx *scalecontext.Context, batchSize int, wait time.Duration) ([]messaging.Delivery, error) {
	if deliveries := b.take(batchSize); len(deliveries) > 0 || wait <= 0 {
		return deliveries, nil
	}
	timeout := b.clock.NewTimer(wait)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-timeout.C():
			return b.take(batchSize), nil
		case <-b.available:
			if deliveries := b.take(batchSize); len(deliveries) > 0 {
				return deliveries, nil
			}
		}
	}
}

func (b *Backend) take(batchSize int) []messaging.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := batchSize
	if n > len(b.queue) {
		n = len(b.queue)
	}
	deliveries := make([]messaging.Delivery, n)
	for i := 0; i < n; i++ {
		deliveries[i] = &delivery{backend: b, body: b.queue[i]}
	}
	b.queue = b.queue[n:]
	return deliveries
}

// Len returns the number of messages waiting to be received.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Drain removes and returns every waiting message.
func (b *Backend) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	bodies := b.queue
	b.queue = nil
	return bodies
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type delivery struct {
	backend *Backend
	body    []byte
}

func (d *delivery) Body() []byte {
	return d.body
}

func (d *delivery) Ack(_ *scalecontext.Context) error {
	return nil
}

func (d *delivery) Nack(ctx *scalecontext.Context) error {
	return d.backend.Send(ctx, [][]byte{d.body})
}
