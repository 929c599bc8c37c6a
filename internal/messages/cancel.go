package messages

import (
	"time"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

// CancelJobs moves jobs that have not completed to CANCELED. Jobs depending on them become BLOCKED through their
// recipes.
type CancelJobs struct {
	base
	JobIDs []int64   `json:"job_ids" validate:"required,max=100"`
	When   time.Time `json:"when" validate:"required"`
}

func NewCancelJobsMessages(jobIDs []int64, when time.Time) []messaging.CommandMessage {
	return chunk(jobIDs, func(ids []int64) messaging.CommandMessage {
		return &CancelJobs{JobIDs: ids, When: when}
	})
}

func (m *CancelJobs) Type() string { return CancelJobsType }

func (m *CancelJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *CancelJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		jobs, err := tx.LockJobs(m.JobIDs)
		if err != nil {
			return err
		}
		var updates []store.JobUpdate
		var attempted []int64
		for _, job := range jobs {
			if !job.CanBeCanceled() {
				outcome.Skip(entityJob, job.ID, "status "+string(job.Status))
				continue
			}
			update, canceled := store.NewJobUpdate(job)
			canceled.Status = model.JobCanceled
			canceled.ErrorName = ""
			canceled.NodeID = 0
			canceled.LastStatusChange = m.When
			updates = append(updates, update)
			attempted = append(attempted, job.ID)
		}
		if len(updates) > 0 {
			changed, err := tx.UpdateJobs(updates)
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityJob, attempted, changed)
			ctx.Log.Infof("Canceled %d job(s)", len(changed))
		}
		outcome.Send(updateRecipeMessagesForJobs(jobs)...)
		metrics, err := recipeMetricsMessagesForJobs(tx, m.JobIDs)
		if err != nil {
			return err
		}
		outcome.Send(metrics...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// UncancelJobs moves canceled jobs that were never queued back to PENDING.
type UncancelJobs struct {
	base
	JobIDs []int64   `json:"job_ids" validate:"required,max=100"`
	When   time.Time `json:"when" validate:"required"`
}

func NewUncancelJobsMessages(jobIDs []int64, when time.Time) []messaging.CommandMessage {
	return chunk(jobIDs, func(ids []int64) messaging.CommandMessage {
		return &UncancelJobs{JobIDs: ids, When: when}
	})
}

func (m *UncancelJobs) Type() string { return UncancelJobsType }

func (m *UncancelJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *UncancelJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		jobs, err := tx.LockJobs(m.JobIDs)
		if err != nil {
			return err
		}
		var updates []store.JobUpdate
		var attempted []int64
		byID := map[int64]*model.Job{}
		for _, job := range jobs {
			if !job.CanBeUncanceled() {
				outcome.Skip(entityJob, job.ID, "status "+string(job.Status))
				continue
			}
			update, pending := store.NewJobUpdate(job)
			pending.Status = model.JobPending
			pending.LastStatusChange = m.When
			updates = append(updates, update)
			attempted = append(attempted, job.ID)
			byID[job.ID] = job
		}
		if len(updates) == 0 {
			return nil
		}
		changed, err := tx.UpdateJobs(updates)
		if err != nil {
			return err
		}
		recordUpdates(outcome, entityJob, attempted, changed)

		// Recipe jobs are picked up again by their recipe. Other jobs with input go straight back to processing.
		var inRecipes []*model.Job
		for _, id := range changed {
			job := byID[id]
			switch {
			case job.RootRecipeID != 0:
				inRecipes = append(inRecipes, job)
			case job.HasInput():
				outcome.Send(NewProcessJobInputMessage(job.ID))
			}
		}
		outcome.Send(updateRecipeMessagesForJobs(inRecipes)...)
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
	return outcome, nil
}
