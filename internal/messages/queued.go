package messages

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

// JobExe identifies one execution of a job. ExeNum is the number of executions the job had when the message was
// created; a job whose count has since moved on is left alone.
type JobExe struct {
	ID     int64 `json:"id" validate:"required"`
	ExeNum int   `json:"exe_num" validate:"gte=0"`
}

func jobExeIDs(exes []JobExe) []int64 {
	ids := make([]int64, len(exes))
	for i, exe := range exes {
		ids[i] = exe.ID
	}
	return ids
}

// QueuedJobs puts jobs on the queue, starting a new execution of each.
type QueuedJobs struct {
	base
	Jobs []JobExe `json:"jobs" validate:"required,max=100,dive"`
	// Requeue allows jobs that have already been queued before to be queued again.
	Requeue bool `json:"requeue"`
	// Priority, when set, replaces the priority of every queued job.
	Priority *int `json:"priority,omitempty"`
}

func NewQueuedJobsMessages(jobs []JobExe, requeue bool, priority *int) []messaging.CommandMessage {
	return chunk(jobs, func(items []JobExe) messaging.CommandMessage {
		return &QueuedJobs{Jobs: items, Requeue: requeue, Priority: priority}
	})
}

func (m *QueuedJobs) Type() string { return QueuedJobsType }

func (m *QueuedJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *QueuedJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		exeNums := map[int64]int{}
		for _, exe := range m.Jobs {
			exeNums[exe.ID] = exe.ExeNum
		}
		jobs, err := tx.LockJobs(jobExeIDs(m.Jobs))
		if err != nil {
			return err
		}
		now := m.env.Clock.Now()
		var updates []store.JobUpdate
		var attempted []int64
		for _, job := range jobs {
			if job.NumExes != exeNums[job.ID] {
				outcome.Skip(entityJob, job.ID, "execution changed")
				continue
			}
			allowed := job.CanBeQueued()
			if m.Requeue {
				allowed = job.CanBeRequeued()
			}
			if !allowed {
				outcome.Skip(entityJob, job.ID, "cannot be queued")
				continue
			}
			update, queued := store.NewJobUpdate(job)
			queued.Status = model.JobQueued
			queued.NumExes++
			queued.Queued = now
			queued.LastStatusChange = now
			queued.NodeID = 0
			queued.ErrorName = ""
			queued.Started = time.Time{}
			queued.Ended = time.Time{}
			if m.Priority != nil {
				queued.Priority = *m.Priority
			}
			updates = append(updates, update)
			attempted = append(attempted, job.ID)
		}
		if len(updates) == 0 {
			return nil
		}
		changed, err := tx.UpdateJobs(updates)
		if err != nil {
			return err
		}
		recordUpdates(outcome, entityJob, attempted, changed)
		metrics, err := recipeMetricsMessagesForJobs(tx, changed)
		if err != nil {
			return err
		}
		outcome.Send(metrics...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ctx.Log.Debugf("Queued %d job(s)", len(outcome.AppliedIDs(entityJob)))
	return outcome, nil
}

// RequeueJobs gives failed or canceled jobs a fresh set of tries and queues them again. Canceled jobs that were never
// queued are uncanceled instead.
type RequeueJobs struct {
	base
	Jobs     []JobExe `json:"jobs" validate:"required,max=100,dive"`
	Priority *int     `json:"priority,omitempty"`
}

func NewRequeueJobsMessages(jobs []JobExe, priority *int) []messaging.CommandMessage {
	return chunk(jobs, func(items []JobExe) messaging.CommandMessage {
		return &RequeueJobs{Jobs: items, Priority: priority}
	})
}

func (m *RequeueJobs) Type() string { return RequeueJobsType }

func (m *RequeueJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *RequeueJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		exeNums := map[int64]int{}
		for _, exe := range m.Jobs {
			exeNums[exe.ID] = exe.ExeNum
		}
		jobs, err := tx.LockJobs(jobExeIDs(m.Jobs))
		if err != nil {
			return err
		}
		var updates []store.JobUpdate
		var attempted []int64
		var toQueue []JobExe
		var toUncancel []int64
		for _, job := range jobs {
			switch {
			case job.CanBeRequeued() && job.NumExes == exeNums[job.ID]:
				jobType, err := m.env.Catalog.JobType(job.Key())
				if err != nil {
					return errors.WithMessagef(err, "requeueing job %d", job.ID)
				}
				update, requeued := store.NewJobUpdate(job)
				requeued.IncrementMaxTries(jobType.MaxTries)
				updates = append(updates, update)
				attempted = append(attempted, job.ID)
				toQueue = append(toQueue, JobExe{ID: job.ID, ExeNum: job.NumExes})
			case job.CanBeUncanceled():
				outcome.Skip(entityJob, job.ID, "uncanceled instead")
				toUncancel = append(toUncancel, job.ID)
			default:
				outcome.Skip(entityJob, job.ID, "cannot be requeued")
			}
		}
		if len(updates) > 0 {
			changed, err := tx.UpdateJobs(updates)
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityJob, attempted, changed)
		}
		outcome.Send(NewQueuedJobsMessages(toQueue, true, m.Priority)...)
		outcome.Send(NewUncancelJobsMessages(toUncancel, m.env.Clock.Now())...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
