// Package messaging moves command messages between workers. A command message is a serialisable, idempotent unit of
// state-transition work; executing one may produce further messages, which are only sent once the execution that
// produced them has committed.
//
// Delivery is at-least-once and unordered. Messages must therefore tolerate being executed more than once, and in any
// order relative to each other.
package messaging

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/common/util"
)

type CommandMessage interface {
	// Type is the name the message is registered under.
	Type() string
	// ToJSON returns the body of the message. Passing the body to the factory registered for Type must give back an
	// equivalent message.
	ToJSON() ([]byte, error)
	// Execute applies the message. A non-nil error means nothing was committed and the message should be delivered
	// again later.
	Execute(ctx *scalecontext.Context) (*Outcome, error)
}

// Factory builds a message from its body.
type Factory func(body []byte) (CommandMessage, error)

// Registry maps message types to factories. It is filled in once at process start and only read afterwards.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory. Registering the same type twice is a programming error and panics.
func (r *Registry) Register(messageType string, factory Factory) {
	if _, ok := r.factories[messageType]; ok {
		panic(errors.Errorf("message type %s registered twice", messageType))
	}
	r.factories[messageType] = factory
}

func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Extract builds the message held in an envelope.
func (r *Registry) Extract(envelope *Envelope) (CommandMessage, error) {
	if envelope.Type == "" {
		return nil, errors.WithStack(&ErrInvalidCommandMessage{ID: envelope.ID, Message: "missing type"})
	}
	if len(envelope.Body) == 0 {
		return nil, errors.WithStack(&ErrInvalidCommandMessage{ID: envelope.ID, Type: envelope.Type, Message: "missing body"})
	}
	factory, ok := r.factories[envelope.Type]
	if !ok {
		return nil, errors.WithStack(&ErrInvalidCommandMessage{ID: envelope.ID, Type: envelope.Type, Message: "unregistered type"})
	}
	msg, err := factory(envelope.Body)
	if err != nil {
		return nil, errors.WithStack(&ErrInvalidCommandMessage{ID: envelope.ID, Type: envelope.Type, Message: err.Error()})
	}
	return msg, nil
}

// Envelope is what travels over a backend.
type Envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// NewEnvelope wraps a message in an envelope with a fresh ID.
func NewEnvelope(msg CommandMessage) (*Envelope, error) {
	body, err := msg.ToJSON()
	if err != nil {
		return nil, errors.WithMessagef(err, "serialising %s message", msg.Type())
	}
	return &Envelope{ID: util.NewULID(), Type: msg.Type(), Body: body}, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	return b, errors.WithStack(err)
}

func DecodeEnvelope(b []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, errors.WithStack(&ErrInvalidCommandMessage{Message: err.Error()})
	}
	return &envelope, nil
}

// EntityResult records what a message did to one entity.
type EntityResult struct {
	Entity  string
	ID      int64
	Applied bool
	// Reason is set when the entity was skipped, e.g. because its status no longer allowed the change.
	Reason string
}

// Outcome is the result of executing a message: one result per entity the message was asked to change, and the
// messages to send once the execution has committed.
type Outcome struct {
	Results     []EntityResult
	NewMessages []CommandMessage
}

func (o *Outcome) Apply(entity string, id int64) {
	o.Results = append(o.Results, EntityResult{Entity: entity, ID: id, Applied: true})
}

func (o *Outcome) Skip(entity string, id int64, reason string) {
	o.Results = append(o.Results, EntityResult{Entity: entity, ID: id, Reason: reason})
}

// Send queues messages for sending after commit. Nil messages are ignored.
func (o *Outcome) Send(msgs ...CommandMessage) {
	for _, msg := range msgs {
		if msg != nil {
			o.NewMessages = append(o.NewMessages, msg)
		}
	}
}

// AppliedIDs returns the ids of the entities of the given kind that were changed.
func (o *Outcome) AppliedIDs(entity string) []int64 {
	var ids []int64
	for _, result := range o.Results {
		if result.Applied && result.Entity == entity {
			ids = append(ids, result.ID)
		}
	}
	return ids
}

// Counts returns the number of applied and skipped results.
func (o *Outcome) Counts() (applied int, skipped int) {
	for _, result := range o.Results {
		if result.Applied {
			applied++
		} else {
			skipped++
		}
	}
	return applied, skipped
}
