package messages

import (
	"time"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

// BlockedJobs moves jobs that have never been queued to BLOCKED because a job they depend on failed or was canceled.
type BlockedJobs struct {
	base
	JobIDs       []int64   `json:"job_ids" validate:"required,max=100"`
	StatusChange time.Time `json:"status_change" validate:"required"`
}

func NewBlockedJobsMessages(jobIDs []int64, when time.Time) []messaging.CommandMessage {
	return chunk(jobIDs, func(ids []int64) messaging.CommandMessage {
		return &BlockedJobs{JobIDs: ids, StatusChange: when}
	})
}

func (m *BlockedJobs) Type() string { return BlockedJobsType }

func (m *BlockedJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *BlockedJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	return changeWaitingStatus(ctx, m.env, m.JobIDs, m.StatusChange, model.JobBlocked, (*model.Job).CanBeBlocked)
}

// PendingJobs moves jobs that have never been queued back to PENDING once nothing they depend on blocks them.
type PendingJobs struct {
	base
	JobIDs       []int64   `json:"job_ids" validate:"required,max=100"`
	StatusChange time.Time `json:"status_change" validate:"required"`
}

func NewPendingJobsMessages(jobIDs []int64, when time.Time) []messaging.CommandMessage {
	return chunk(jobIDs, func(ids []int64) messaging.CommandMessage {
		return &PendingJobs{JobIDs: ids, StatusChange: when}
	})
}

func (m *PendingJobs) Type() string { return PendingJobsType }

func (m *PendingJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *PendingJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	return changeWaitingStatus(ctx, m.env, m.JobIDs, m.StatusChange, model.JobPending, (*model.Job).CanBePending)
}

// changeWaitingStatus moves every job that allows it to status, unless the job's status changed at or after when.
func changeWaitingStatus(
	ctx *scalecontext.Context, env *Env, jobIDs []int64, when time.Time, status model.JobStatus, allowed func(*model.Job) bool,
) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		jobs, err := tx.LockJobs(jobIDs)
		if err != nil {
			return err
		}
		var updates []store.JobUpdate
		var attempted []int64
		for _, job := range jobs {
			if !allowed(job) {
				outcome.Skip(entityJob, job.ID, "status "+string(job.Status))
				continue
			}
			if !job.LastStatusChange.IsZero() && !job.LastStatusChange.Before(when) {
				outcome.Skip(entityJob, job.ID, "newer status change")
				continue
			}
			update, changed := store.NewJobUpdate(job)
			changed.Status = status
			changed.LastStatusChange = when
			updates = append(updates, update)
			attempted = append(attempted, job.ID)
		}
		if len(updates) == 0 {
			return nil
		}
		changedIDs, err := tx.UpdateJobs(updates)
		if err != nil {
			return err
		}
		recordUpdates(outcome, entityJob, attempted, changedIDs)
		metrics, err := recipeMetricsMessagesForJobs(tx, changedIDs)
		if err != nil {
			return err
		}
		outcome.Send(metrics...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ctx.Log.Debugf("Moved %d job(s) to %s", len(outcome.AppliedIDs(entityJob)), status)
	return outcome, nil
}
