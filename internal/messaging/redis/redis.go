// Package redis is a messaging backend built on redis lists.
//
// Producers LPUSH onto the queue list. A consumer moves each message it receives onto its own processing list with
// RPOPLPUSH, removes it from there on Ack, and moves it back onto the queue on Nack. Messages left on a processing list
// by a consumer that died are put back on the queue by Recover when a consumer of the same name starts.
package redis

import (
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
)

type Backend struct {
	db            redis.UniversalClient
	queueKey      string
	processingKey string
}

// New returns a backend consuming from queue under the given consumer name.
func New(db redis.UniversalClient, queue string, consumer string) *Backend {
	return &Backend{
		db:            db,
		queueKey:      queue,
		processingKey: queue + ":processing:" + consumer,
	}
}

func (b *Backend) Send(_ *scalecontext.Context, bodies [][]byte) error {
	if len(bodies) == 0 {
		return nil
	}
	values := make([]interface{}, len(bodies))
	for i, body := range bodies {
		values[i] = body
	}
	return errors.WithStack(b.db.LPush(b.queueKey, values...).Err())
}

// Receive blocks for at most wait, rounded down to whole seconds, for the first message. Batches are then filled with
// whatever is immediately available.
func (b *Backend) Receive(ctx *scalecontext.Context, batchSize int, wait time.Duration) ([]messaging.Delivery, error) {
	var deliveries []messaging.Delivery
	for len(deliveries) < batchSize {
		if err := ctx.Err(); err != nil {
			return deliveries, errors.WithStack(err)
		}
		var cmd *redis.StringCmd
		if len(deliveries) == 0 && wait >= time.Second {
			cmd = b.db.BRPopLPush(b.queueKey, b.processingKey, wait)
		} else {
			cmd = b.db.RPopLPush(b.queueKey, b.processingKey)
		}
		body, err := cmd.Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return deliveries, errors.WithStack(err)
		}
		deliveries = append(deliveries, &delivery{backend: b, body: body})
	}
	return deliveries, nil
}

// Recover moves every message left on this consumer's processing list back onto the queue. It returns the number of
// messages moved.
func (b *Backend) Recover() (int, error) {
	moved := 0
	for {
		err := b.db.RPopLPush(b.processingKey, b.queueKey).Err()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, errors.WithStack(err)
		}
		moved++
	}
}

func (b *Backend) Close() error {
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
	return errors.WithStack(d.backend.db.LRem(d.backend.processingKey, 1, d.body).Err())
}

func (d *delivery) Nack(_ *scalecontext.Context) error {
	_, err := d.backend.db.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.LRem(d.backend.processingKey, 1, d.body)
		pipe.LPush(d.backend.queueKey, d.body)
		return nil
	})
	return errors.WithStack(err)
}
