package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/ngageoint/scale/internal/catalog"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messages"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
	"github.com/ngageoint/scale/internal/store"
	"github.com/ngageoint/scale/internal/store/memory"
)

var baseTime = time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeLauncher struct {
	launched []*schedulerobjects.Task
	killed   []*schedulerobjects.Task
	err      error
}

func (l *fakeLauncher) LaunchTasks(_ *scalecontext.Context, tasks []*schedulerobjects.Task) error {
	if l.err != nil {
		return l.err
	}
	l.launched = append(l.launched, tasks...)
	return nil
}

func (l *fakeLauncher) KillTasks(_ *scalecontext.Context, tasks []*schedulerobjects.Task) error {
	if l.err != nil {
		return l.err
	}
	l.killed = append(l.killed, tasks...)
	return nil
}

type fakeSender struct {
	sent []messaging.CommandMessage
	err  error
}

func (s *fakeSender) SendMessages(_ *scalecontext.Context, msgs []messaging.CommandMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msgs...)
	return nil
}

// running returns the executions reported started, by node.
func (s *fakeSender) running() map[int64][]messages.JobExe {
	result := map[int64][]messages.JobExe{}
	for _, msg := range s.sent {
		if running, ok := msg.(*messages.RunningJobs); ok {
			for _, node := range running.Nodes {
				result[node.NodeID] = append(result[node.NodeID], node.Jobs...)
			}
		}
	}
	return result
}

func (s *fakeSender) completed() []messages.CompletedJob {
	var result []messages.CompletedJob
	for _, msg := range s.sent {
		if completed, ok := msg.(*messages.CompletedJobs); ok {
			result = append(result, completed.Jobs...)
		}
	}
	return result
}

// failed returns the executions reported failed, by error.
func (s *fakeSender) failed() map[string][]messages.JobExe {
	result := map[string][]messages.JobExe{}
	for _, msg := range s.sent {
		if failed, ok := msg.(*messages.FailedJobs); ok {
			for _, with := range failed.Errors {
				result[with.ErrorName] = append(result[with.ErrorName], with.Jobs...)
			}
		}
	}
	return result
}

type fakeOfferSource struct {
	snapshots []*schedulerobjects.NodeSnapshot
}

func (s *fakeOfferSource) Snapshots(_ *scalecontext.Context) ([]*schedulerobjects.NodeSnapshot, error) {
	return s.snapshots, nil
}

type testEnv struct {
	t          *testing.T
	ctx        *scalecontext.Context
	clock      *clock.FakeClock
	store      *memory.Store
	catalog    *catalog.InMemoryCatalog
	nodes      *NodeManager
	offers     *OfferManager
	exes       *JobExeManager
	launcher   *fakeLauncher
	sender     *fakeSender
	source     *fakeOfferSource
	scheduling *SchedulingManager
	scheduler  *Scheduler
	timeouts   *TimeoutSync

	mu       sync.Mutex
	declined []*ResourceOffer
}

const launchTimeout = time.Minute

func newTestEnv(t *testing.T, jobTypes ...*model.JobType) *testEnv {
	fakeClock := clock.NewFakeClock(baseTime)
	s, err := memory.New(fakeClock)
	require.NoError(t, err)
	c := catalog.NewInMemoryCatalog()
	for _, jobType := range jobTypes {
		c.PutJobType(jobType)
	}
	env := &testEnv{
		t:        t,
		ctx:      scalecontext.Background(),
		clock:    fakeClock,
		store:    s,
		catalog:  c,
		nodes:    NewNodeManager(),
		exes:     NewJobExeManager(),
		launcher: &fakeLauncher{},
		sender:   &fakeSender{},
		source:   &fakeOfferSource{},
	}
	env.offers = NewOfferManager(time.Hour, func(offer *ResourceOffer) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.declined = append(env.declined, offer)
	})
	metrics := NewMetrics(prometheus.NewRegistry())
	env.scheduling = NewSchedulingManager(
		s, c, env.nodes, env.offers, env.exes, env.launcher, env.sender, fakeClock, 100, TaskResources{}, metrics)
	env.scheduler = NewScheduler(
		s, env.source, env.nodes, env.offers, env.exes, env.scheduling, env.launcher, env.sender, fakeClock, time.Second, metrics)
	env.timeouts = NewTimeoutSync(env.exes, env.launcher, env.sender, fakeClock, time.Second, launchTimeout, metrics)
	return env
}

func algType(maxScheduled int) *model.JobType {
	return &model.JobType{
		Name:         "alg",
		Version:      "1.0",
		IsActive:     true,
		MaxScheduled: maxScheduled,
		DockerImage:  "alg:1.0",
		Resources:    model.Resources{model.CPUs: 1, model.Mem: 256},
	}
}

func readyStatus(nodeID int64, agentID string) schedulerobjects.NodeStatus {
	return schedulerobjects.NodeStatus{
		NodeID:        nodeID,
		Hostname:      "node",
		AgentID:       agentID,
		IsActive:      true,
		IsOnline:      true,
		IsCleanedUp:   true,
		IsImagePulled: true,
	}
}

func readySnapshot(nodeID int64, agentID string, available model.Resources) *schedulerobjects.NodeSnapshot {
	return &schedulerobjects.NodeSnapshot{NodeStatus: readyStatus(nodeID, agentID), Available: available}
}

// report makes the snapshots the latest ones and syncs the nodes and offers with them, one second after the previous
// report.
func (e *testEnv) report(snapshots ...*schedulerobjects.NodeSnapshot) {
	e.clock.Step(time.Second)
	for _, snapshot := range snapshots {
		snapshot.Reported = e.clock.Now()
	}
	e.source.snapshots = snapshots
	require.NoError(e.t, e.scheduler.syncNodes(e.ctx, e.clock.Now()))
}

func queuedJob(priority int) *model.Job {
	return &model.Job{
		JobTypeName:    "alg",
		JobTypeVersion: "1.0",
		Status:         model.JobQueued,
		NumExes:        1,
		Priority:       priority,
		Timeout:        time.Hour,
	}
}

// queue stores the jobs, assigning their ids.
func (e *testEnv) queue(jobs ...*model.Job) {
	for _, job := range jobs {
		job.Queued = e.clock.Now()
	}
	require.NoError(e.t, e.store.Atomic(e.ctx, func(tx store.Tx) error {
		return tx.InsertJobs(jobs)
	}))
}

func (e *testEnv) schedule() int {
	launched, err := e.scheduling.PerformScheduling(e.ctx)
	require.NoError(e.t, err)
	return launched
}

func (e *testEnv) update(task *schedulerobjects.Task, status schedulerobjects.TaskStatus) {
	require.NoError(e.t, e.scheduler.HandleTaskUpdate(e.ctx, &schedulerobjects.TaskUpdate{
		TaskID: task.ID,
		Status: status,
		When:   e.clock.Now(),
	}))
}

func (e *testEnv) lastLaunched() *schedulerobjects.Task {
	require.NotEmpty(e.t, e.launcher.launched)
	return e.launcher.launched[len(e.launcher.launched)-1]
}

func (e *testEnv) declinedOffers() []*ResourceOffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*ResourceOffer(nil), e.declined...)
}
