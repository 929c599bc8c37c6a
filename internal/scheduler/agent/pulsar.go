package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

type Action string

const (
	ActionLaunch Action = "launch"
	ActionKill   Action = "kill"
)

// TaskRequest asks the agent on a task's node to launch or kill the task.
type TaskRequest struct {
	Action Action                 `json:"action"`
	Task   *schedulerobjects.Task `json:"task"`
}

type EventType string

const (
	EventTaskUpdate EventType = "task_update"
	EventAgentLost  EventType = "agent_lost"
)

// Event is something an agent reports to the scheduler: either a task status update or the loss of an agent.
type Event struct {
	Type       EventType                    `json:"type"`
	TaskUpdate *schedulerobjects.TaskUpdate `json:"task_update,omitempty"`
	AgentID    string                       `json:"agent_id,omitempty"`
}

// EventHandler is told about the events reported by the agents.
type EventHandler interface {
	HandleTaskUpdate(ctx *scalecontext.Context, update *schedulerobjects.TaskUpdate) error
	LostAgent(ctx *scalecontext.Context, agentID string) error
}

// PulsarTaskLauncher publishes task requests on a pulsar topic. Requests are keyed by agent, so each agent sees its
// requests in the order they were made.
type PulsarTaskLauncher struct {
	producer    pulsar.Producer
	sendTimeout time.Duration
}

func NewPulsarTaskLauncher(producer pulsar.Producer, sendTimeout time.Duration) *PulsarTaskLauncher {
	return &PulsarTaskLauncher{producer: producer, sendTimeout: sendTimeout}
}

func (l *PulsarTaskLauncher) LaunchTasks(ctx *scalecontext.Context, tasks []*schedulerobjects.Task) error {
	return l.send(ctx, ActionLaunch, tasks)
}

func (l *PulsarTaskLauncher) KillTasks(ctx *scalecontext.Context, tasks []*schedulerobjects.Task) error {
	return l.send(ctx, ActionKill, tasks)
}

func (l *PulsarTaskLauncher) send(ctx *scalecontext.Context, action Action, tasks []*schedulerobjects.Task) error {
	msgs, err := requestMessages(action, tasks)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var result *multierror.Error
	wg := sync.WaitGroup{}
	wg.Add(len(msgs))
	var sendCtx *scalecontext.Context
	var cancel context.CancelFunc
	if l.sendTimeout > 0 {
		sendCtx, cancel = scalecontext.WithTimeout(ctx, l.sendTimeout)
	} else {
		sendCtx, cancel = scalecontext.WithCancel(ctx)
	}
	defer cancel()
	for _, msg := range msgs {
		l.producer.SendAsync(sendCtx, msg, func(_ pulsar.MessageID, msg *pulsar.ProducerMessage, err error) {
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, errors.Wrapf(err, "sending %s request for agent %s", action, msg.Key))
				mu.Unlock()
			}
			wg.Done()
		})
	}
	wg.Wait()
	return result.ErrorOrNil()
}

func requestMessages(action Action, tasks []*schedulerobjects.Task) ([]*pulsar.ProducerMessage, error) {
	msgs := make([]*pulsar.ProducerMessage, len(tasks))
	for i, task := range tasks {
		payload, err := json.Marshal(&TaskRequest{Action: action, Task: task})
		if err != nil {
			return nil, errors.WithStack(err)
		}
		msgs[i] = &pulsar.ProducerMessage{
			Payload:    payload,
			Key:        task.AgentID,
			Properties: map[string]string{"action": string(action), "task": task.ID},
		}
	}
	return msgs, nil
}

// PulsarEventConsumer receives the events the agents publish.
type PulsarEventConsumer struct {
	consumer       pulsar.Consumer
	receiveTimeout time.Duration
}

func NewPulsarEventConsumer(consumer pulsar.Consumer, receiveTimeout time.Duration) *PulsarEventConsumer {
	return &PulsarEventConsumer{consumer: consumer, receiveTimeout: receiveTimeout}
}

// Run passes every event received to handler until ctx is cancelled. Events the handler fails are redelivered;
// events that cannot be decoded are dropped.
func (c *PulsarEventConsumer) Run(ctx *scalecontext.Context, handler EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		receiveCtx, cancel := scalecontext.WithTimeout(ctx, c.receiveTimeout)
		msg, err := c.consumer.Receive(receiveCtx)
		cancel()
		if err != nil {
			// Nothing arrived in time, or we are shutting down.
			continue
		}
		err = dispatch(ctx, msg.Payload(), handler)
		var invalid *ErrInvalidEvent
		switch {
		case errors.As(err, &invalid):
			logging.WithStacktrace(ctx.Log, err).Warn("Dropping invalid agent event")
			c.consumer.Ack(msg)
		case err != nil:
			logging.WithStacktrace(ctx.Log, err).Error("Failed to handle agent event")
			c.consumer.Nack(msg)
		default:
			c.consumer.Ack(msg)
		}
	}
}

// ErrInvalidEvent is returned for events that can never be handled.
type ErrInvalidEvent struct {
	Message string
}

func (err *ErrInvalidEvent) Error() string {
	return "invalid agent event: " + err.Message
}

func dispatch(ctx *scalecontext.Context, payload []byte, handler EventHandler) error {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.WithStack(&ErrInvalidEvent{Message: err.Error()})
	}
	switch event.Type {
	case EventTaskUpdate:
		if event.TaskUpdate == nil || event.TaskUpdate.TaskID == "" {
			return errors.WithStack(&ErrInvalidEvent{Message: "task update without a task id"})
		}
		return handler.HandleTaskUpdate(ctx, event.TaskUpdate)
	case EventAgentLost:
		if event.AgentID == "" {
			return errors.WithStack(&ErrInvalidEvent{Message: "lost agent without an id"})
		}
		return handler.LostAgent(ctx, event.AgentID)
	default:
		return errors.WithStack(&ErrInvalidEvent{Message: "unknown event type " + string(event.Type)})
	}
}
