package scheduler

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/catalog"
	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messages"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
	"github.com/ngageoint/scale/internal/store"
)

// SchedulingManager places queued jobs, and the next tasks of running job executions, onto the resources offered by
// the nodes. Placement is greedy: jobs are taken in queue order and each goes to the node it fits best right now.
// Nothing already placed is ever displaced. A job that fits nowhere reserves the node it would fit best once the
// lower priority work on it is done, so jobs further down the queue cannot keep taking that node.
type SchedulingManager struct {
	store         store.Store
	catalog       catalog.Catalog
	nodes         *NodeManager
	offers        *OfferManager
	exes          *JobExeManager
	launcher      TaskLauncher
	sender        MessageSender
	clock         clock.Clock
	queueLimit    int
	taskResources TaskResources
	metrics       *Metrics
}

func NewSchedulingManager(
	store store.Store,
	catalog catalog.Catalog,
	nodes *NodeManager,
	offers *OfferManager,
	exes *JobExeManager,
	launcher TaskLauncher,
	sender MessageSender,
	clock clock.Clock,
	queueLimit int,
	taskResources TaskResources,
	metrics *Metrics,
) *SchedulingManager {
	return &SchedulingManager{
		store:         store,
		catalog:       catalog,
		nodes:         nodes,
		offers:        offers,
		exes:          exes,
		launcher:      launcher,
		sender:        sender,
		clock:         clock,
		queueLimit:    queueLimit,
		taskResources: taskResources,
		metrics:       metrics,
	}
}

// schedulingNode is a node during a single pass: what is left of its offer and what has been placed on it.
type schedulingNode struct {
	node      *Node
	offer     *ResourceOffer
	offered   model.Resources
	remaining model.Resources
	// Running executions on the node.
	running []*RunningJobExe
	// Running executions whose next task has been placed on the node.
	waiting []*RunningJobExe
	// New executions placed on the node.
	scheduled []*RunningJobExe
	// Set when the next task of a running execution on the node could not be placed. Such a node takes no new jobs.
	unfulfilled bool
	// Set when the node is held for a queued job that fits nowhere yet.
	reserved bool
}

// acceptsNewJobs returns true if new executions may still be placed on the node during this pass.
func (n *schedulingNode) acceptsNewJobs() bool {
	return n.node.IsReadyForNewJob() && !n.unfulfilled && !n.reserved
}

// PerformScheduling runs one scheduling pass and returns the number of tasks launched. The count covers both the
// first tasks of new executions and the next tasks of executions already running, so it may exceed the number of jobs
// read from the queue. A paused scheduler launches nothing and leaves the offers untouched.
func (m *SchedulingManager) PerformScheduling(ctx *scalecontext.Context) (int, error) {
	start := m.clock.Now()
	if m.nodes.IsSchedulerPaused() {
		ctx.Log.Debug("Scheduler is paused, no tasks will be launched")
		return 0, nil
	}

	nodes, order := m.prepareNodes()
	m.scheduleWaitingTasks(ctx, nodes, start)

	queued, err := m.queuedJobs(ctx)
	if err != nil {
		return 0, err
	}
	scheduled := m.scheduleQueuedJobs(ctx, nodes, order, queued, start)

	// The jobs are only marked running once; if that fails the new executions are dropped and their jobs stay queued
	// for the next pass.
	var sendErr error
	if len(scheduled) > 0 {
		if sendErr = m.sender.SendMessages(ctx, runningMessages(scheduled, start)); sendErr != nil {
			logging.WithStacktrace(ctx.Log, sendErr).Errorf("Failed to mark %d job(s) as running", len(scheduled))
			for _, node := range nodes {
				node.scheduled = nil
			}
		} else {
			m.exes.Schedule(scheduled)
			m.metrics.reportScheduled(len(scheduled))
		}
	}

	var tasks []*schedulerobjects.Task
	for _, nodeID := range order {
		node := nodes[nodeID]
		nodeTasks := 0
		for _, exes := range [][]*RunningJobExe{node.waiting, node.scheduled} {
			for _, exe := range exes {
				if task := m.exes.StartNextTask(exe, start); task != nil {
					tasks = append(tasks, task)
					nodeTasks++
				}
			}
		}
		if nodeTasks > 0 && node.offer != nil {
			m.offers.ConsumeOffer(node.offer)
		}
	}

	var launchErr error
	if len(tasks) > 0 {
		// Tasks the agents never hear about are failed by the launch timeout.
		if launchErr = m.launcher.LaunchTasks(ctx, tasks); launchErr != nil {
			logging.WithStacktrace(ctx.Log, launchErr).Errorf("Failed to launch %d task(s)", len(tasks))
		} else {
			m.metrics.reportLaunched(tasks)
		}
	}

	taken := m.clock.Since(start)
	m.metrics.reportPass(taken.Seconds(), len(queued))
	m.metrics.reportNodes(m.nodes.Nodes())
	ctx.Log.Infof("Scheduled %d new job execution(s) and launched %d task(s) in %s", len(scheduled), len(tasks), taken)

	if sendErr != nil {
		return len(tasks), sendErr
	}
	return len(tasks), launchErr
}

// prepareNodes pairs every known node with its current offer. Offers made through an agent the node no longer has
// are declined. It returns the nodes by id and their ids in ascending order.
func (m *SchedulingManager) prepareNodes() (map[int64]*schedulingNode, []int64) {
	offers := map[int64]*ResourceOffer{}
	for _, offer := range m.offers.Offers() {
		offers[offer.NodeID] = offer
	}
	nodes := map[int64]*schedulingNode{}
	var order []int64
	for _, node := range m.nodes.Nodes() {
		sn := &schedulingNode{node: node, offered: model.Resources{}, remaining: model.Resources{}}
		if offer, ok := offers[node.NodeID]; ok {
			if offer.AgentID == node.AgentID {
				sn.offer = offer
				sn.offered = offer.Resources.DeepCopy()
				sn.remaining = offer.Resources.DeepCopy()
			} else {
				m.offers.DeclineNodeOffer(node.NodeID)
			}
		}
		nodes[node.NodeID] = sn
		order = append(order, node.NodeID)
	}
	return nodes, order
}

// scheduleWaitingTasks places the next task of every running execution that is waiting for one. Executions whose
// node has gone, changed agent, or can no longer run their next task are failed as lost. A node left with a waiting
// task it could not place is marked unfulfilled.
func (m *SchedulingManager) scheduleWaitingTasks(ctx *scalecontext.Context, nodes map[int64]*schedulingNode, when time.Time) {
	var lost []*RunningJobExe
	for _, exe := range m.exes.RunningExes() {
		node, ok := nodes[exe.NodeID]
		if ok && node.node.AgentID == exe.AgentID {
			node.running = append(node.running, exe)
		}
		task := exe.NextTask()
		if task == nil {
			continue
		}
		if !ok || node.node.AgentID != exe.AgentID || !node.node.IsReadyForNextJobTask() {
			lost = append(lost, exe)
			continue
		}
		if node.remaining.IsSufficientToMeet(task.Resources) {
			node.remaining.Sub(task.Resources)
			node.waiting = append(node.waiting, exe)
		} else {
			node.unfulfilled = true
		}
	}
	if len(lost) > 0 {
		ctx.Log.Warnf("Failing %d job execution(s) whose node was lost", len(lost))
		m.exes.FailLost(lost, when)
		m.metrics.reportFailed(model.NodeLostError.Name, len(lost))
	}
}

func (m *SchedulingManager) queuedJobs(ctx *scalecontext.Context) ([]*model.Job, error) {
	var queued []*model.Job
	err := m.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		queued, err = tx.QueuedJobs(m.queueLimit)
		return err
	})
	return queued, errors.WithMessage(err, "reading the queue")
}

// scheduleQueuedJobs walks the queue in order and places each job it can on the node that fits it best. Jobs of paused
// job types, and of job types at their limit of scheduled executions, are passed over.
func (m *SchedulingManager) scheduleQueuedJobs(
	ctx *scalecontext.Context,
	nodes map[int64]*schedulingNode,
	order []int64,
	queued []*model.Job,
	when time.Time,
) []*RunningJobExe {
	jobTypes := map[model.JobTypeKey]*model.JobType{}
	var typeResources []model.Resources
	for _, jobType := range m.catalog.JobTypes() {
		jobTypes[jobType.Key()] = jobType
		if jobType.IsActive && !jobType.IsPaused {
			typeResources = append(typeResources, jobType.Resources)
		}
	}
	limits := jobTypeLimits(jobTypes, m.exes.CountByJobType())

	var scheduled []*RunningJobExe
	for _, job := range queued {
		if m.exes.IsRunning(job.ID) {
			// Scheduled by an earlier pass, the running message has not been processed yet.
			continue
		}
		jobType, ok := jobTypes[job.Key()]
		if !ok {
			ctx.Log.Warnf("Job %d has unknown job type %s", job.ID, job.Key())
			continue
		}
		if jobType.IsPaused {
			continue
		}
		if limit, ok := limits[jobType.Key()]; ok && limit <= 0 {
			continue
		}

		required := firstTaskResources(job, jobType, m.taskResources)
		best := bestNode(nodes, order, required, typeResources)
		if best == nil {
			if reserved := reservationNode(nodes, order, job.Priority, required, typeResources); reserved != nil {
				reserved.reserved = true
				ctx.Log.Debugf("Reserved node %d for job %d", reserved.node.NodeID, job.ID)
			}
			continue
		}
		best.remaining.Sub(required)
		exe := newRunningJobExe(job, jobType, best.node, m.taskResources, when)
		best.scheduled = append(best.scheduled, exe)
		scheduled = append(scheduled, exe)
		if _, ok := limits[jobType.Key()]; ok {
			limits[jobType.Key()]--
		}
	}
	return scheduled
}

// jobTypeLimits returns how many more executions may be scheduled for each job type that has a limit.
func jobTypeLimits(jobTypes map[model.JobTypeKey]*model.JobType, running map[model.JobTypeKey]int) map[model.JobTypeKey]int {
	limits := map[model.JobTypeKey]int{}
	for key, jobType := range jobTypes {
		if jobType.MaxScheduled > 0 {
			limits[key] = jobType.MaxScheduled - running[key]
		}
	}
	return limits
}

func firstTaskResources(job *model.Job, jobType *model.JobType, extra TaskResources) model.Resources {
	resources := job.Resources
	if len(resources) == 0 {
		resources = jobType.Resources
	}
	required := resources.DeepCopy()
	if !jobType.IsSystem {
		required.Add(extra.Pre)
	}
	return required
}

// bestNode returns the node ready for new jobs that can meet required and is left with the fewest job types still able
// to fit, so that nodes are filled up before others are used. Ties go to the lowest node id.
func bestNode(
	nodes map[int64]*schedulingNode,
	order []int64,
	required model.Resources,
	typeResources []model.Resources,
) *schedulingNode {
	var best *schedulingNode
	bestScore := 0
	for _, id := range order {
		node := nodes[id]
		if !node.acceptsNewJobs() || !node.remaining.IsSufficientToMeet(required) {
			continue
		}
		score := fittingTypes(node.remaining, required, typeResources)
		if best == nil || score < bestScore {
			best = node
			bestScore = score
		}
	}
	return best
}

// reservationNode returns the node that would fit required best once the work of lower priority than priority has
// finished on it, or nil if no node could fit it even then. Running executions of the same or higher priority, and
// the new executions of such priority placed during this pass, are counted as staying.
func reservationNode(
	nodes map[int64]*schedulingNode,
	order []int64,
	priority int,
	required model.Resources,
	typeResources []model.Resources,
) *schedulingNode {
	var best *schedulingNode
	bestScore := 0
	for _, id := range order {
		node := nodes[id]
		if !node.acceptsNewJobs() {
			continue
		}
		available := model.Resources{}
		available.Add(node.offered)
		for _, exe := range node.running {
			if exe.Priority > priority {
				if task := exe.CurrentTask(); task != nil {
					available.Add(task.Resources)
				}
			} else if task := exe.NextTask(); task != nil {
				available.Sub(task.Resources)
			}
		}
		for _, exe := range node.scheduled {
			if exe.Priority <= priority {
				if task := exe.NextTask(); task != nil {
					available.Sub(task.Resources)
				}
			}
		}
		if !available.IsSufficientToMeet(required) {
			continue
		}
		score := fittingTypes(available, required, typeResources)
		if best == nil || score < bestScore {
			best = node
			bestScore = score
		}
	}
	return best
}

// fittingTypes returns how many of the job types would still fit in available once required is taken from it.
func fittingTypes(available, required model.Resources, typeResources []model.Resources) int {
	left := available.DeepCopy()
	left.Sub(required)
	score := 0
	for _, r := range typeResources {
		if left.IsSufficientToMeet(r) {
			score++
		}
	}
	return score
}

func runningMessages(exes []*RunningJobExe, started time.Time) []messaging.CommandMessage {
	byNode := map[int64][]messages.JobExe{}
	for _, exe := range exes {
		byNode[exe.NodeID] = append(byNode[exe.NodeID], messages.JobExe{ID: exe.JobID, ExeNum: exe.ExeNum})
	}
	return messages.NewRunningJobsMessages(started, byNode)
}
