package model

import (
	"time"

	"github.com/ngageoint/scale/internal/data"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobBlocked   JobStatus = "BLOCKED"
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobFailed    JobStatus = "FAILED"
	JobCompleted JobStatus = "COMPLETED"
	JobCanceled  JobStatus = "CANCELED"
)

var JobStatuses = []JobStatus{JobPending, JobBlocked, JobQueued, JobRunning, JobFailed, JobCompleted, JobCanceled}

// Job is the persisted record of a single job. Zero IDs and zero times mean "not set".
type Job struct {
	ID              int64
	JobTypeName     string
	JobTypeVersion  string
	JobTypeRevision int
	EventID         int64
	// RootRecipeID is the first recipe in the supersede chain of the recipe containing this job.
	RootRecipeID    int64
	RecipeID        int64
	BatchID         int64
	IsSuperseded    bool
	SupersededJobID int64
	Status          JobStatus
	ErrorName       string
	MaxTries        int
	// NumExes is incremented every time the job is queued.
	NumExes       int
	Priority      int
	Timeout       time.Duration
	InputFileSize float64
	Input         *data.Data
	Output        *data.Data
	Resources     Resources
	NodeID        int64

	Created          time.Time
	Queued           time.Time
	Started          time.Time
	Ended            time.Time
	LastStatusChange time.Time
	Superseded       time.Time
	LastModified     time.Time
}

func (j *Job) Key() JobTypeKey {
	return JobTypeKey{Name: j.JobTypeName, Version: j.JobTypeVersion}
}

func (j *Job) HasInput() bool {
	return j.Input != nil
}

func (j *Job) HasOutput() bool {
	return j.Output != nil
}

// HasBeenQueued returns true if the job has been placed on the queue at least once.
func (j *Job) HasBeenQueued() bool {
	return j.NumExes > 0
}

func (j *Job) CanBeBlocked() bool {
	return j.Status != JobBlocked && !j.HasBeenQueued()
}

func (j *Job) CanBePending() bool {
	return j.Status != JobPending && !j.HasBeenQueued()
}

func (j *Job) CanBeQueued() bool {
	if j.Status != JobPending && j.Status != JobBlocked {
		return false
	}
	return j.HasInput() && !j.HasBeenQueued() && !j.IsSuperseded
}

func (j *Job) CanBeRequeued() bool {
	return j.Status != JobCompleted && j.HasInput() && j.HasBeenQueued() && !j.IsSuperseded
}

func (j *Job) CanBeRunning() bool {
	return j.Status == JobQueued
}

func (j *Job) CanBeCompleted() bool {
	return j.Status == JobQueued || j.Status == JobRunning
}

func (j *Job) CanBeFailed() bool {
	return j.Status == JobQueued || j.Status == JobRunning
}

func (j *Job) CanBeCanceled() bool {
	return j.Status != JobCanceled && j.Status != JobCompleted
}

// CanBeUncanceled returns true for jobs that were canceled before ever being queued.
func (j *Job) CanBeUncanceled() bool {
	return j.Status == JobCanceled && !j.HasBeenQueued()
}

// IsReadyForChildren returns true once the job has completed and its output is stored.
func (j *Job) IsReadyForChildren() bool {
	return j.Status == JobCompleted && j.HasOutput()
}

// IncrementMaxTries gives the job a fresh set of tries on top of the executions it already has.
func (j *Job) IncrementMaxTries(jobTypeMaxTries int) {
	j.MaxTries = j.NumExes + jobTypeMaxTries
}

// HasTriesLeft returns true if the job may be queued again after a failure.
func (j *Job) HasTriesLeft() bool {
	return j.NumExes < j.MaxTries
}

func (j *Job) DeepCopy() *Job {
	c := *j
	if j.Input != nil {
		c.Input = j.Input.Copy()
	}
	if j.Output != nil {
		c.Output = j.Output.Copy()
	}
	c.Resources = j.Resources.DeepCopy()
	return &c
}
