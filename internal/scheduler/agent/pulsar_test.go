package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

// fakeProducer records the messages sent and fails those keyed by an agent in failFor.
type fakeProducer struct {
	pulsar.Producer
	mu      sync.Mutex
	sent    []*pulsar.ProducerMessage
	failFor map[string]bool
}

func (p *fakeProducer) SendAsync(
	_ context.Context,
	msg *pulsar.ProducerMessage,
	callback func(pulsar.MessageID, *pulsar.ProducerMessage, error),
) {
	if p.failFor[msg.Key] {
		callback(nil, msg, errors.New("send failed"))
		return
	}
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	callback(nil, msg, nil)
}

type recordingHandler struct {
	updates []*schedulerobjects.TaskUpdate
	lost    []string
	err     error
}

func (h *recordingHandler) HandleTaskUpdate(_ *scalecontext.Context, update *schedulerobjects.TaskUpdate) error {
	h.updates = append(h.updates, update)
	return h.err
}

func (h *recordingHandler) LostAgent(_ *scalecontext.Context, agentID string) error {
	h.lost = append(h.lost, agentID)
	return h.err
}

func testTask(jobID int64, agentID string) *schedulerobjects.Task {
	return &schedulerobjects.Task{
		ID:        schedulerobjects.TaskID(jobID, 1, schedulerobjects.PreTask, 0),
		Type:      schedulerobjects.PreTask,
		JobID:     jobID,
		ExeNum:    1,
		NodeID:    1,
		AgentID:   agentID,
		Resources: model.Resources{model.CPUs: 1},
	}
}

func TestPulsarTaskLauncher_LaunchTasks(t *testing.T) {
	producer := &fakeProducer{}
	launcher := NewPulsarTaskLauncher(producer, 0)

	tasks := []*schedulerobjects.Task{testTask(1, "agent-a"), testTask(2, "agent-b")}
	require.NoError(t, launcher.LaunchTasks(scalecontext.Background(), tasks))

	require.Len(t, producer.sent, 2)
	for i, msg := range producer.sent {
		assert.Equal(t, tasks[i].AgentID, msg.Key)
		assert.Equal(t, map[string]string{"action": "launch", "task": tasks[i].ID}, msg.Properties)
		var request TaskRequest
		require.NoError(t, json.Unmarshal(msg.Payload, &request))
		assert.Equal(t, ActionLaunch, request.Action)
		assert.Equal(t, tasks[i].ID, request.Task.ID)
		assert.Equal(t, tasks[i].Resources, request.Task.Resources)
	}
}

func TestPulsarTaskLauncher_KillTasksReportsFailures(t *testing.T) {
	producer := &fakeProducer{failFor: map[string]bool{"agent-b": true}}
	launcher := NewPulsarTaskLauncher(producer, 0)

	err := launcher.KillTasks(scalecontext.Background(), []*schedulerobjects.Task{testTask(1, "agent-a"), testTask(2, "agent-b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent-b")
	require.Len(t, producer.sent, 1)
	assert.Equal(t, "kill", producer.sent[0].Properties["action"])
}

func TestDispatch(t *testing.T) {
	tests := map[string]struct {
		payload         string
		expectedUpdates []string
		expectedLost    []string
		invalid         bool
	}{
		"task update": {
			payload:         `{"type": "task_update", "task_update": {"task_id": "scale_job_1_1_pre", "status": "RUNNING"}}`,
			expectedUpdates: []string{"scale_job_1_1_pre"},
		},
		"agent lost": {
			payload:      `{"type": "agent_lost", "agent_id": "agent-a"}`,
			expectedLost: []string{"agent-a"},
		},
		"not json": {
			payload: `{`,
			invalid: true,
		},
		"task update without task": {
			payload: `{"type": "task_update"}`,
			invalid: true,
		},
		"agent lost without agent": {
			payload: `{"type": "agent_lost"}`,
			invalid: true,
		},
		"unknown type": {
			payload: `{"type": "node_added"}`,
			invalid: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			handler := &recordingHandler{}
			err := dispatch(scalecontext.Background(), []byte(tc.payload), handler)
			if tc.invalid {
				var invalid *ErrInvalidEvent
				assert.True(t, errors.As(err, &invalid))
				assert.Empty(t, handler.updates)
				assert.Empty(t, handler.lost)
				return
			}
			require.NoError(t, err)
			var updates []string
			for _, update := range handler.updates {
				updates = append(updates, update.TaskID)
			}
			assert.Equal(t, tc.expectedUpdates, updates)
			assert.Equal(t, tc.expectedLost, handler.lost)
		})
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	handler := &recordingHandler{err: errors.New("store unavailable")}
	err := dispatch(scalecontext.Background(), []byte(`{"type": "agent_lost", "agent_id": "agent-a"}`), handler)
	require.Error(t, err)
	var invalid *ErrInvalidEvent
	assert.False(t, errors.As(err, &invalid))
}
