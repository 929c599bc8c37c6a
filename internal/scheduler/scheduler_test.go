package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/messages"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
	"github.com/ngageoint/scale/internal/store"
)

var nodeResources = model.Resources{model.CPUs: 4, model.Mem: 4096}

func TestScheduler_Cycle(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.source.snapshots = []*schedulerobjects.NodeSnapshot{readySnapshot(1, "agent-1", nodeResources)}

	require.NoError(t, env.scheduler.Cycle(env.ctx))

	require.Len(t, env.launcher.launched, 1)
	assert.Equal(t, job.ID, env.launcher.launched[0].JobID)
	assert.Equal(t, map[int64][]messages.JobExe{1: {{ID: job.ID, ExeNum: 1}}}, env.sender.running())
}

func TestScheduler_Cycle_AgentChanged(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.report(readySnapshot(1, "agent-1", nodeResources))
	require.Equal(t, 1, env.schedule())

	// The agent restarted: everything launched through the old one is gone.
	env.report(readySnapshot(1, "agent-2", model.Resources{}))
	require.NoError(t, env.scheduler.Cycle(env.ctx))

	assert.Equal(t, map[string][]messages.JobExe{model.NodeLostError.Name: {{ID: job.ID, ExeNum: 1}}}, env.sender.failed())
	node, ok := env.nodes.Node(1)
	require.True(t, ok)
	assert.Equal(t, "agent-2", node.AgentID)
	assert.Equal(t, NodeReady, node.State)
}

func TestScheduler_Cycle_NodeNoLongerReported(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.report(
		readySnapshot(1, "agent-1", nodeResources),
		readySnapshot(2, "agent-2", model.Resources{model.CPUs: 1, model.Mem: 1024}),
	)
	require.Equal(t, 1, env.schedule())
	require.Equal(t, int64(2), env.lastLaunched().NodeID)

	env.report(readySnapshot(1, "agent-1", nodeResources))
	_, err := env.exes.ReportFinished(env.ctx, env.sender, env.clock.Now())
	require.NoError(t, err)

	assert.Equal(t, map[string][]messages.JobExe{model.NodeLostError.Name: {{ID: job.ID, ExeNum: 1}}}, env.sender.failed())
	node, ok := env.nodes.Node(2)
	require.True(t, ok)
	assert.Equal(t, NodeOffline, node.State)
}

func TestScheduler_LostAgent(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.report(readySnapshot(1, "agent-1", nodeResources))
	require.Equal(t, 1, env.schedule())

	require.NoError(t, env.scheduler.LostAgent(env.ctx, "agent-unknown"))
	assert.Empty(t, env.sender.failed())

	require.NoError(t, env.scheduler.LostAgent(env.ctx, "agent-1"))
	assert.Equal(t, map[string][]messages.JobExe{model.NodeLostError.Name: {{ID: job.ID, ExeNum: 1}}}, env.sender.failed())
	node, ok := env.nodes.Node(1)
	require.True(t, ok)
	assert.Equal(t, NodeOffline, node.State)
}

func TestScheduler_LostAgentDeclinesOffer(t *testing.T) {
	env := newTestEnv(t, algType(0))
	env.report(readySnapshot(1, "agent-1", nodeResources))
	require.Equal(t, 1, env.offers.Count())

	require.NoError(t, env.scheduler.LostAgent(env.ctx, "agent-1"))

	assert.Equal(t, 0, env.offers.Count())
	declined := env.declinedOffers()
	require.Len(t, declined, 1)
	assert.Equal(t, int64(1), declined[0].NodeID)
}

func TestScheduler_CancelsExecutionsOfJobsThatMovedOn(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.source.snapshots = []*schedulerobjects.NodeSnapshot{readySnapshot(1, "agent-1", nodeResources)}
	require.NoError(t, env.scheduler.Cycle(env.ctx))
	pre := env.lastLaunched()

	require.NoError(t, env.store.Atomic(env.ctx, func(tx store.Tx) error {
		update, canceled := store.NewJobUpdate(job)
		canceled.Status = model.JobCanceled
		_, err := tx.UpdateJobs([]store.JobUpdate{update})
		return err
	}))
	env.clock.Step(time.Second)
	require.NoError(t, env.scheduler.Cycle(env.ctx))

	require.Len(t, env.launcher.killed, 1)
	assert.Equal(t, pre.ID, env.launcher.killed[0].ID)
	assert.False(t, env.exes.IsRunning(job.ID))
	assert.Empty(t, env.sender.failed())
	assert.Empty(t, env.sender.completed())
}

func TestScheduler_HandleTaskUpdate(t *testing.T) {
	tests := map[string]struct {
		started   bool
		errorName string
		expected  string
	}{
		"failed before starting":  {expected: model.TaskLaunchError.Name},
		"failed while running":    {started: true, expected: model.UnknownError.Name},
		"failed with named error": {started: true, errorName: model.TimeoutError.Name, expected: model.TimeoutError.Name},
		"failed with bogus error": {started: true, errorName: "bogus", expected: model.UnknownError.Name},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, algType(0))
			job := queuedJob(100)
			env.queue(job)
			env.report(readySnapshot(1, "agent-1", nodeResources))
			require.Equal(t, 1, env.schedule())
			pre := env.lastLaunched()
			if tc.started {
				env.update(pre, schedulerobjects.TaskRunning)
			}

			require.NoError(t, env.scheduler.HandleTaskUpdate(env.ctx, &schedulerobjects.TaskUpdate{
				TaskID:    pre.ID,
				Status:    schedulerobjects.TaskFailed,
				ErrorName: tc.errorName,
				When:      env.clock.Now(),
			}))

			assert.Equal(t, map[string][]messages.JobExe{tc.expected: {{ID: job.ID, ExeNum: 1}}}, env.sender.failed())
		})
	}
}

func TestScheduler_HandleTaskUpdate_UnknownTask(t *testing.T) {
	env := newTestEnv(t, algType(0))
	require.NoError(t, env.scheduler.HandleTaskUpdate(env.ctx, &schedulerobjects.TaskUpdate{
		TaskID: "scale_job_7_1_pre",
		Status: schedulerobjects.TaskFinished,
	}))
	assert.Empty(t, env.sender.sent)
}
