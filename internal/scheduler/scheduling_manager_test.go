package scheduler

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/messages"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

func TestPerformScheduling_QueueOrder(t *testing.T) {
	env := newTestEnv(t, algType(0))
	jobs := []*model.Job{queuedJob(200), queuedJob(100), queuedJob(300)}
	env.queue(jobs...)
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 1, model.Mem: 1024}))

	assert.Equal(t, 1, env.schedule())

	require.Len(t, env.launcher.launched, 1)
	task := env.launcher.launched[0]
	assert.Equal(t, jobs[1].ID, task.JobID)
	assert.Equal(t, schedulerobjects.PreTask, task.Type)
	assert.Equal(t, schedulerobjects.TaskID(jobs[1].ID, 1, schedulerobjects.PreTask, 0), task.ID)
	assert.Equal(t, "agent-1", task.AgentID)
	assert.Equal(t, map[int64][]messages.JobExe{1: {{ID: jobs[1].ID, ExeNum: 1}}}, env.sender.running())
	assert.True(t, env.exes.IsRunning(jobs[1].ID))
	assert.Equal(t, 0, env.offers.Count())
	assert.Empty(t, env.declinedOffers())
}

func TestPerformScheduling_FillsNodesFirst(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.report(
		readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}),
		readySnapshot(2, "agent-2", model.Resources{model.CPUs: 1, model.Mem: 1024}),
	)

	assert.Equal(t, 1, env.schedule())

	assert.Equal(t, int64(2), env.lastLaunched().NodeID)
	// The larger node was not used, so its offer is still there.
	offers := env.offers.Offers()
	require.Len(t, offers, 1)
	assert.Equal(t, int64(1), offers[0].NodeID)
}

func TestPerformScheduling_ResourcesConserved(t *testing.T) {
	tests := map[string]struct {
		cpus             float64
		jobs             int
		expectedLaunched int
	}{
		"more jobs than resources": {cpus: 3, jobs: 5, expectedLaunched: 3},
		"more resources than jobs": {cpus: 8, jobs: 2, expectedLaunched: 2},
		"nothing fits":             {cpus: 0.5, jobs: 1, expectedLaunched: 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, algType(0))
			for i := 0; i < tc.jobs; i++ {
				env.queue(queuedJob(100))
			}
			env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: tc.cpus, model.Mem: 100000}))

			assert.Equal(t, tc.expectedLaunched, env.schedule())

			used := model.Resources{}
			for _, task := range env.launcher.launched {
				used.Add(task.Resources)
			}
			assert.True(t, model.Resources{model.CPUs: tc.cpus, model.Mem: 100000}.IsSufficientToMeet(used))
			assert.Len(t, env.exes.RunningExes(), tc.expectedLaunched)
		})
	}
}

func TestPerformScheduling_MaxScheduled(t *testing.T) {
	env := newTestEnv(t, algType(2))
	for i := 0; i < 5; i++ {
		env.queue(queuedJob(100))
	}
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 10, model.Mem: 10000}))
	assert.Equal(t, 2, env.schedule())

	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 8, model.Mem: 9000}))
	assert.Equal(t, 0, env.schedule())
	assert.Equal(t, map[model.JobTypeKey]int{{Name: "alg", Version: "1.0"}: 2}, env.exes.CountByJobType())
}

func TestPerformScheduling_Paused(t *testing.T) {
	env := newTestEnv(t, algType(0))
	env.queue(queuedJob(100))
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}))
	env.scheduler.SetPaused(true)

	assert.Equal(t, 0, env.schedule())

	assert.Empty(t, env.launcher.launched)
	assert.Empty(t, env.sender.sent)
	assert.Equal(t, 1, env.offers.Count())
	node, ok := env.nodes.Node(1)
	require.True(t, ok)
	assert.Equal(t, NodeSchedulerStopped, node.State)

	env.scheduler.SetPaused(false)
	assert.Equal(t, 1, env.schedule())
}

func TestPerformScheduling_SkipsUnschedulableJobs(t *testing.T) {
	paused := algType(0)
	paused.Name = "paused"
	paused.IsPaused = true
	env := newTestEnv(t, algType(0), paused)

	pausedJob := queuedJob(1)
	pausedJob.JobTypeName = "paused"
	unknownJob := queuedJob(2)
	unknownJob.JobTypeName = "unknown"
	job := queuedJob(3)
	env.queue(pausedJob, unknownJob, job)
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}))

	assert.Equal(t, 1, env.schedule())
	assert.Equal(t, job.ID, env.lastLaunched().JobID)
}

func TestPerformScheduling_NodeNotReady(t *testing.T) {
	env := newTestEnv(t, algType(0))
	env.queue(queuedJob(100))
	snapshot := readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096})
	snapshot.Errors = []string{"disk full"}
	env.report(snapshot)

	assert.Equal(t, 0, env.schedule())
	node, ok := env.nodes.Node(1)
	require.True(t, ok)
	assert.Equal(t, NodeDegraded, node.State)
}

func TestPerformScheduling_SendFailure(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}))
	env.sender.err = errors.New("broker unavailable")

	launched, err := env.scheduling.PerformScheduling(env.ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, launched)
	assert.Empty(t, env.launcher.launched)
	assert.False(t, env.exes.IsRunning(job.ID))
	assert.Equal(t, 1, env.offers.Count())

	env.sender.err = nil
	assert.Equal(t, 1, env.schedule())
	assert.Equal(t, job.ID, env.lastLaunched().JobID)
}

func TestPerformScheduling_LaunchFailureLeftToTimeout(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}))
	env.launcher.err = errors.New("agent unreachable")

	_, err := env.scheduling.PerformScheduling(env.ctx)
	assert.Error(t, err)
	assert.True(t, env.exes.IsRunning(job.ID))
	assert.Len(t, env.sender.running()[1], 1)
}

func TestPerformScheduling_RunsTasksInSequence(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	resources := model.Resources{model.CPUs: 4, model.Mem: 4096}

	env.report(readySnapshot(1, "agent-1", resources))
	require.Equal(t, 1, env.schedule())
	pre := env.lastLaunched()
	assert.Equal(t, schedulerobjects.PreTask, pre.Type)

	env.update(pre, schedulerobjects.TaskRunning)
	env.update(pre, schedulerobjects.TaskFinished)
	// The offer was used by the pre task, nothing can be launched until the node offers again.
	assert.Equal(t, 0, env.schedule())

	env.report(readySnapshot(1, "agent-1", resources))
	require.Equal(t, 1, env.schedule())
	main := env.lastLaunched()
	assert.Equal(t, schedulerobjects.TaskID(job.ID, 1, schedulerobjects.MainTask, 0), main.ID)
	env.update(main, schedulerobjects.TaskRunning)
	env.update(main, schedulerobjects.TaskFinished)

	env.report(readySnapshot(1, "agent-1", resources))
	require.Equal(t, 1, env.schedule())
	post := env.lastLaunched()
	assert.Equal(t, schedulerobjects.PostTask, post.Type)
	assert.Empty(t, env.sender.completed())

	env.update(post, schedulerobjects.TaskRunning)
	env.update(post, schedulerobjects.TaskFinished)

	completed := env.sender.completed()
	require.Len(t, completed, 1)
	assert.Equal(t, job.ID, completed[0].ID)
	assert.Equal(t, 1, completed[0].ExeNum)
	assert.NotNil(t, completed[0].Output)
	assert.False(t, env.exes.IsRunning(job.ID))
}

func TestPerformScheduling_WaitingTaskOnNodeThatCannotRunIt(t *testing.T) {
	env := newTestEnv(t, algType(0))
	job := queuedJob(100)
	env.queue(job)
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}))
	require.Equal(t, 1, env.schedule())
	pre := env.lastLaunched()
	env.update(pre, schedulerobjects.TaskRunning)
	env.update(pre, schedulerobjects.TaskFinished)

	snapshot := readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096})
	snapshot.IsImagePulled = false
	env.report(snapshot)
	assert.Equal(t, 0, env.schedule())

	assert.False(t, env.exes.IsRunning(job.ID))
	_, err := env.exes.ReportFinished(env.ctx, env.sender, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, map[string][]messages.JobExe{model.NodeLostError.Name: {{ID: job.ID, ExeNum: 1}}}, env.sender.failed())
}

func TestBestNode(t *testing.T) {
	small := model.Resources{model.CPUs: 1}
	large := model.Resources{model.CPUs: 4}
	tests := map[string]struct {
		remaining     map[int64]model.Resources
		required      model.Resources
		typeResources []model.Resources
		expected      int64
	}{
		"fewest types left able to fit": {
			remaining:     map[int64]model.Resources{1: {model.CPUs: 8}, 2: {model.CPUs: 2}},
			required:      small,
			typeResources: []model.Resources{small, large},
			expected:      2,
		},
		"ties go to the lowest id": {
			remaining:     map[int64]model.Resources{3: {model.CPUs: 2}, 2: {model.CPUs: 2}},
			required:      small,
			typeResources: []model.Resources{small},
			expected:      2,
		},
		"only node that fits": {
			remaining:     map[int64]model.Resources{1: {model.CPUs: 2}, 2: {model.CPUs: 8}},
			required:      large,
			typeResources: []model.Resources{small, large},
			expected:      2,
		},
		"nothing fits": {
			remaining:     map[int64]model.Resources{1: {model.CPUs: 2}},
			required:      large,
			typeResources: []model.Resources{large},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			nodes := map[int64]*schedulingNode{}
			var order []int64
			for _, id := range []int64{1, 2, 3} {
				remaining, ok := tc.remaining[id]
				if !ok {
					continue
				}
				nodes[id] = &schedulingNode{node: newNode(readyStatus(id, "agent"), false), remaining: remaining}
				order = append(order, id)
			}
			best := bestNode(nodes, order, tc.required, tc.typeResources)
			if tc.expected == 0 {
				assert.Nil(t, best)
				return
			}
			require.NotNil(t, best)
			assert.Equal(t, tc.expected, best.node.NodeID)
		})
	}
}

func TestPerformScheduling_NodeWithUnplacedWaitingTaskTakesNoNewJobs(t *testing.T) {
	env := newTestEnv(t, algType(0))
	running := queuedJob(100)
	running.Resources = model.Resources{model.CPUs: 3, model.Mem: 256}
	env.queue(running)
	env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}))
	require.Equal(t, 1, env.schedule())
	pre := env.lastLaunched()
	env.update(pre, schedulerobjects.TaskRunning)
	env.update(pre, schedulerobjects.TaskFinished)

	small := queuedJob(200)
	env.queue(small)
	// Node 1 cannot run the main task of the running job, which needs three cpus.
	env.report(
		readySnapshot(1, "agent-1", model.Resources{model.CPUs: 2, model.Mem: 4096}),
		readySnapshot(2, "agent-2", model.Resources{model.CPUs: 8, model.Mem: 8192}),
	)

	assert.Equal(t, 1, env.schedule())
	task := env.lastLaunched()
	assert.Equal(t, small.ID, task.JobID)
	assert.Equal(t, int64(2), task.NodeID)
	assert.Equal(t, []messages.JobExe{{ID: small.ID, ExeNum: 1}}, env.sender.running()[2])
	assert.True(t, env.exes.IsRunning(running.ID))
}

func TestPerformScheduling_ReservesNodeForJobThatFitsNowhere(t *testing.T) {
	tests := map[string]struct {
		runningPriority  int
		expectedLaunched int
	}{
		"lower priority work on the node is expected to finish": {runningPriority: 500, expectedLaunched: 0},
		"higher priority work on the node stays":                {runningPriority: 5, expectedLaunched: 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, algType(0))
			running := queuedJob(tc.runningPriority)
			running.Resources = model.Resources{model.CPUs: 2, model.Mem: 256}
			env.queue(running)
			env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 4, model.Mem: 4096}))
			require.Equal(t, 1, env.schedule())

			large := queuedJob(10)
			large.Resources = model.Resources{model.CPUs: 4, model.Mem: 256}
			small := queuedJob(100)
			env.queue(large, small)
			env.report(readySnapshot(1, "agent-1", model.Resources{model.CPUs: 2, model.Mem: 4096}))

			assert.Equal(t, tc.expectedLaunched, env.schedule())
			assert.False(t, env.exes.IsRunning(large.ID))
			assert.Equal(t, tc.expectedLaunched == 1, env.exes.IsRunning(small.ID))
		})
	}
}

func TestReservationNode(t *testing.T) {
	typeResources := []model.Resources{{model.CPUs: 1}, {model.CPUs: 4}}
	tests := map[string]struct {
		offered  map[int64]model.Resources
		reserved map[int64]bool
		required model.Resources
		expected int64
	}{
		"fewest types left able to fit": {
			offered:  map[int64]model.Resources{1: {model.CPUs: 8}, 2: {model.CPUs: 5}},
			required: model.Resources{model.CPUs: 4},
			expected: 2,
		},
		"reserved nodes are passed over": {
			offered:  map[int64]model.Resources{1: {model.CPUs: 8}, 2: {model.CPUs: 5}},
			reserved: map[int64]bool{2: true},
			required: model.Resources{model.CPUs: 4},
			expected: 1,
		},
		"nothing could ever fit": {
			offered:  map[int64]model.Resources{1: {model.CPUs: 2}},
			required: model.Resources{model.CPUs: 4},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			nodes := map[int64]*schedulingNode{}
			var order []int64
			for _, id := range []int64{1, 2} {
				offered, ok := tc.offered[id]
				if !ok {
					continue
				}
				nodes[id] = &schedulingNode{
					node:      newNode(readyStatus(id, "agent"), false),
					offered:   offered,
					remaining: model.Resources{},
					reserved:  tc.reserved[id],
				}
				order = append(order, id)
			}
			node := reservationNode(nodes, order, 100, tc.required, typeResources)
			if tc.expected == 0 {
				assert.Nil(t, node)
				return
			}
			require.NotNil(t, node)
			assert.Equal(t, tc.expected, node.node.NodeID)
		})
	}
}
