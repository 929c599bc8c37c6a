package scheduler

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/common/util"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
	"github.com/ngageoint/scale/internal/store"
)

// Scheduler drives the scheduling loop. Every cycle it refreshes the nodes and their offers from the agents' latest
// snapshots, stops executions whose jobs have moved on, runs a scheduling pass and reports the executions that
// finished.
type Scheduler struct {
	store       store.Store
	source      OfferSource
	nodes       *NodeManager
	offers      *OfferManager
	exes        *JobExeManager
	scheduling  *SchedulingManager
	launcher    TaskLauncher
	sender      MessageSender
	clock       clock.WithTicker
	cyclePeriod time.Duration
	metrics     *Metrics
}

func NewScheduler(
	store store.Store,
	source OfferSource,
	nodes *NodeManager,
	offers *OfferManager,
	exes *JobExeManager,
	scheduling *SchedulingManager,
	launcher TaskLauncher,
	sender MessageSender,
	clock clock.WithTicker,
	cyclePeriod time.Duration,
	metrics *Metrics,
) *Scheduler {
	return &Scheduler{
		store:       store,
		source:      source,
		nodes:       nodes,
		offers:      offers,
		exes:        exes,
		scheduling:  scheduling,
		launcher:    launcher,
		sender:      sender,
		clock:       clock,
		cyclePeriod: cyclePeriod,
		metrics:     metrics,
	}
}

// Run performs a scheduling cycle every cycle period until ctx is cancelled.
func (s *Scheduler) Run(ctx *scalecontext.Context) error {
	ticker := s.clock.NewTicker(s.cyclePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			start := s.clock.Now()
			if err := s.Cycle(ctx); err != nil {
				logging.WithStacktrace(ctx.Log, err).Error("Error in scheduling cycle")
			}
			ctx.Log.Debugf("Completed scheduling cycle in %s", s.clock.Since(start))
		}
	}
}

// Cycle performs a single scheduling cycle.
func (s *Scheduler) Cycle(ctx *scalecontext.Context) error {
	now := s.clock.Now()
	if err := s.syncNodes(ctx, now); err != nil {
		return err
	}
	if err := s.syncJobs(ctx, now); err != nil {
		return err
	}
	if _, err := s.scheduling.PerformScheduling(ctx); err != nil {
		return err
	}
	_, err := s.exes.ReportFinished(ctx, s.sender, s.clock.Now())
	return errors.WithMessage(err, "reporting finished job executions")
}

// syncNodes reads the latest node snapshots, handles the nodes that lost their agent, and stores the new offers.
func (s *Scheduler) syncNodes(ctx *scalecontext.Context, now time.Time) error {
	snapshots, err := s.source.Snapshots(ctx)
	if err != nil {
		return errors.WithMessage(err, "reading node snapshots")
	}
	statuses := make([]schedulerobjects.NodeStatus, len(snapshots))
	var offers []*ResourceOffer
	for i, snapshot := range snapshots {
		statuses[i] = snapshot.NodeStatus
		if !snapshot.IsOnline || snapshot.Available.IsZero() {
			continue
		}
		received := snapshot.Reported
		if received.IsZero() {
			received = now
		}
		offers = append(offers, &ResourceOffer{
			ID:        util.NewULID(),
			NodeID:    snapshot.NodeID,
			AgentID:   snapshot.AgentID,
			Resources: snapshot.Available.DeepCopy(),
			Received:  received,
		})
	}
	for _, node := range s.nodes.SyncNodes(statuses) {
		s.lostNode(ctx, node, now)
	}
	s.offers.AddOffers(offers)
	s.offers.ExpireOffers()
	return nil
}

// syncJobs stops the executions whose job is no longer waiting on them, for example because it was canceled.
func (s *Scheduler) syncJobs(ctx *scalecontext.Context, now time.Time) error {
	running := s.exes.RunningExes()
	if len(running) == 0 {
		return nil
	}
	ids := make([]int64, len(running))
	for i, exe := range running {
		ids[i] = exe.JobID
	}
	var jobs []*model.Job
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		jobs, err = tx.GetJobs(ids)
		return err
	})
	if err != nil {
		return errors.WithMessage(err, "reading jobs of running executions")
	}
	if kill := s.exes.SyncWithJobs(jobs, now); len(kill) > 0 {
		ctx.Log.Infof("Killing %d task(s) of job executions that are no longer needed", len(kill))
		if err := s.launcher.KillTasks(ctx, kill); err != nil {
			logging.WithStacktrace(ctx.Log, err).Errorf("Failed to kill %d task(s)", len(kill))
		}
	}
	return nil
}

// LostAgent handles an agent reported gone between snapshots: its node goes offline, its offer is discarded and the
// executions running through it fail.
func (s *Scheduler) LostAgent(ctx *scalecontext.Context, agentID string) error {
	node := s.nodes.LostNode(agentID)
	if node == nil {
		return nil
	}
	now := s.clock.Now()
	s.lostNode(ctx, node, now)
	_, err := s.exes.ReportFinished(ctx, s.sender, now)
	return err
}

func (s *Scheduler) lostNode(ctx *scalecontext.Context, node *Node, when time.Time) {
	s.offers.DeclineNodeOffer(node.NodeID)
	if lost := s.exes.LostNode(node.NodeID, node.AgentID, when); lost > 0 {
		ctx.Log.Warnf("Node %d (%s) lost agent %s, failed %d job execution(s)", node.NodeID, node.Hostname, node.AgentID, lost)
		s.metrics.reportFailed(model.NodeLostError.Name, lost)
	}
}

// HandleTaskUpdate applies a task status update and reports the execution if it finished.
func (s *Scheduler) HandleTaskUpdate(ctx *scalecontext.Context, update *schedulerobjects.TaskUpdate) error {
	if !s.exes.HandleTaskUpdate(update) {
		ctx.Log.Debugf("Ignoring %s update of unknown task %s", update.Status, update.TaskID)
		return nil
	}
	if !update.Status.IsTerminal() {
		return nil
	}
	_, err := s.exes.ReportFinished(ctx, s.sender, s.clock.Now())
	return err
}

// SetPaused pauses or resumes scheduling.
func (s *Scheduler) SetPaused(paused bool) {
	s.nodes.SetSchedulerPaused(paused)
}
