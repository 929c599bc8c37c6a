package messages

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

// NodeJobs lists the job executions started on one node.
type NodeJobs struct {
	NodeID int64    `json:"node_id" validate:"required"`
	Jobs   []JobExe `json:"jobs" validate:"required,dive"`
}

// RunningJobs records that job executions have started on their nodes.
type RunningJobs struct {
	base
	Started time.Time  `json:"started" validate:"required"`
	Nodes   []NodeJobs `json:"nodes" validate:"required,dive"`
}

// NewRunningJobsMessages groups the executions started on each node, keeping every message under MaxNum jobs.
func NewRunningJobsMessages(started time.Time, byNode map[int64][]JobExe) []messaging.CommandMessage {
	var msgs []messaging.CommandMessage
	current := &RunningJobs{Started: started}
	count := 0
	for _, nodeID := range sortedKeys(byNode) {
		jobs := byNode[nodeID]
		for len(jobs) > 0 {
			if count == MaxNum {
				msgs = append(msgs, current)
				current = &RunningJobs{Started: started}
				count = 0
			}
			n := MaxNum - count
			if len(jobs) < n {
				n = len(jobs)
			}
			current.Nodes = append(current.Nodes, NodeJobs{NodeID: nodeID, Jobs: jobs[:n]})
			count += n
			jobs = jobs[n:]
		}
	}
	if count > 0 {
		msgs = append(msgs, current)
	}
	return msgs
}

func (m *RunningJobs) Type() string { return RunningJobsType }

func (m *RunningJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *RunningJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	type started struct {
		nodeID int64
		exeNum int
	}
	byJob := map[int64]started{}
	for _, node := range m.Nodes {
		for _, exe := range node.Jobs {
			byJob[exe.ID] = started{nodeID: node.NodeID, exeNum: exe.ExeNum}
		}
	}

	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		jobs, err := tx.LockJobs(sortedKeys(byJob))
		if err != nil {
			return err
		}
		var updates []store.JobUpdate
		var attempted []int64
		for _, job := range jobs {
			s := byJob[job.ID]
			if job.NumExes != s.exeNum {
				outcome.Skip(entityJob, job.ID, "execution changed")
				continue
			}
			update, running := store.NewJobUpdate(job)
			running.NodeID = s.nodeID
			running.Started = m.Started
			// A job that already completed or failed keeps its status.
			if job.CanBeRunning() {
				running.Status = model.JobRunning
				running.LastStatusChange = m.Started
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
	return outcome, nil
}

// CompletedJob is a job execution that finished successfully, with the output it produced if that is known yet.
type CompletedJob struct {
	ID     int64      `json:"id" validate:"required"`
	ExeNum int        `json:"exe_num" validate:"gte=0"`
	Output *data.Data `json:"output,omitempty"`
}

// CompletedJobs moves jobs whose execution succeeded to COMPLETED and lets their recipes move on.
type CompletedJobs struct {
	base
	Ended time.Time      `json:"ended" validate:"required"`
	Jobs  []CompletedJob `json:"jobs" validate:"required,max=100,dive"`
}

func NewCompletedJobsMessages(ended time.Time, jobs []CompletedJob) []messaging.CommandMessage {
	return chunk(jobs, func(items []CompletedJob) messaging.CommandMessage {
		return &CompletedJobs{Ended: ended, Jobs: items}
	})
}

func (m *CompletedJobs) Type() string { return CompletedJobsType }

func (m *CompletedJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *CompletedJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	byJob := map[int64]CompletedJob{}
	for _, job := range m.Jobs {
		byJob[job.ID] = job
	}

	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		jobs, err := tx.LockJobs(sortedKeys(byJob))
		if err != nil {
			return err
		}
		var updates []store.JobUpdate
		var attempted []int64
		var current []int64
		for _, job := range jobs {
			c := byJob[job.ID]
			if job.NumExes != c.ExeNum {
				outcome.Skip(entityJob, job.ID, "execution changed")
				continue
			}
			current = append(current, job.ID)
			update, completed := store.NewJobUpdate(job)
			switch {
			case job.CanBeCompleted():
				completed.Status = model.JobCompleted
				completed.Ended = m.Ended
				completed.LastStatusChange = m.Ended
				if c.Output != nil {
					completed.Output = c.Output.Copy()
				}
			case job.Status == model.JobCompleted && !job.HasOutput() && c.Output != nil:
				completed.Output = c.Output.Copy()
			default:
				outcome.Skip(entityJob, job.ID, "status "+string(job.Status))
				continue
			}
			updates = append(updates, update)
			attempted = append(attempted, job.ID)
		}
		if len(updates) > 0 {
			changed, err := tx.UpdateJobs(updates)
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityJob, attempted, changed)
			ctx.Log.Infof("Set %d job(s) to COMPLETED", len(changed))
		}

		// Recipes only move on once a completed job has its output.
		ready, err := tx.GetJobs(current)
		if err != nil {
			return err
		}
		var withOutput []*model.Job
		for _, job := range ready {
			if job.IsReadyForChildren() && job.RootRecipeID != 0 {
				withOutput = append(withOutput, job)
			}
		}
		outcome.Send(updateRecipeMessagesForJobs(withOutput)...)

		metrics, err := recipeMetricsMessagesForJobs(tx, sortedKeys(byJob))
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

// FailedJobs lists the executions that failed with one error.
type FailedJobs struct {
	base
	Ended  time.Time    `json:"ended" validate:"required"`
	Errors []FailedWith `json:"errors" validate:"required,dive"`
}

type FailedWith struct {
	ErrorName string   `json:"error_name" validate:"required"`
	Jobs      []JobExe `json:"jobs" validate:"required,dive"`
}

// NewFailedJobsMessages groups executions by the error they failed with, keeping every message under MaxNum jobs.
func NewFailedJobsMessages(ended time.Time, byError map[string][]JobExe) []messaging.CommandMessage {
	var msgs []messaging.CommandMessage
	current := &FailedJobs{Ended: ended}
	count := 0
	for _, name := range sortedKeys(byError) {
		jobs := byError[name]
		for len(jobs) > 0 {
			if count == MaxNum {
				msgs = append(msgs, current)
				current = &FailedJobs{Ended: ended}
				count = 0
			}
			n := MaxNum - count
			if len(jobs) < n {
				n = len(jobs)
			}
			current.Errors = append(current.Errors, FailedWith{ErrorName: name, Jobs: jobs[:n]})
			count += n
			jobs = jobs[n:]
		}
	}
	if count > 0 {
		msgs = append(msgs, current)
	}
	return msgs
}

func (m *FailedJobs) Type() string { return FailedJobsType }

func (m *FailedJobs) ToJSON() ([]byte, error) { return toJSON(m) }

// Execute fails every execution that is still current, unless its error may be retried and the job has tries left, in
// which case the job is queued again. Executions of long-running job types are always retried. Superseded jobs are
// never retried.
func (m *FailedJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var jobIDs []int64
	for _, failed := range m.Errors {
		jobIDs = append(jobIDs, jobExeIDs(failed.Jobs)...)
	}
	jobIDs = uniqueSorted(jobIDs)

	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		locked, err := tx.LockJobs(jobIDs)
		if err != nil {
			return err
		}
		jobs := make(map[int64]*model.Job, len(locked))
		for _, job := range locked {
			jobs[job.ID] = job
		}

		var retries []JobExe
		var updates []store.JobUpdate
		var attempted []int64
		for _, failed := range m.Errors {
			scaleErr := model.GetError(failed.ErrorName)
			for _, exe := range failed.Jobs {
				job, ok := jobs[exe.ID]
				if !ok {
					continue
				}
				if !job.CanBeFailed() || job.NumExes != exe.ExeNum {
					outcome.Skip(entityJob, job.ID, "execution changed")
					continue
				}
				jobType, err := m.env.Catalog.JobType(job.Key())
				if err != nil {
					return errors.WithMessagef(err, "failing job %d", job.ID)
				}
				retry := scaleErr.ShouldBeRetried && job.HasTriesLeft()
				retry = retry || jobType.IsLongRunning
				retry = retry && !job.IsSuperseded
				if retry {
					retries = append(retries, JobExe{ID: job.ID, ExeNum: job.NumExes})
					outcome.Skip(entityJob, job.ID, "queued for retry")
					continue
				}
				update, f := store.NewJobUpdate(job)
				f.Status = model.JobFailed
				f.ErrorName = failed.ErrorName
				f.Ended = m.Ended
				f.LastStatusChange = m.Ended
				updates = append(updates, update)
				attempted = append(attempted, job.ID)
			}
		}
		if len(updates) > 0 {
			changed, err := tx.UpdateJobs(updates)
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityJob, attempted, changed)
			ctx.Log.Infof("Set %d job(s) to FAILED", len(changed))
		}

		// Jobs that depend on a failed job must become BLOCKED.
		outcome.Send(updateRecipeMessagesForJobs(locked)...)
		outcome.Send(NewQueuedJobsMessages(retries, true, nil)...)
		metrics, err := recipeMetricsMessagesForJobs(tx, jobIDs)
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
