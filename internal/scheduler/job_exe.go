package scheduler

import (
	"sync"
	"time"

	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

// TaskResources are the resources requested by the tasks on either side of a job's main task, on top of what the
// job itself needs.
type TaskResources struct {
	Pre  model.Resources
	Post model.Resources
}

// RunningJobExe is a job execution scheduled on a node. It runs as a sequence of tasks, pre, main and post, one at a
// time. System jobs only have a main task. It is safe for concurrent use.
type RunningJobExe struct {
	JobID     int64
	ExeNum    int
	JobType   model.JobTypeKey
	Priority  int
	NodeID    int64
	AgentID   string
	Timeout   time.Duration
	Scheduled time.Time

	mu sync.Mutex
	// Tasks still to be launched, in order.
	remaining []*schedulerobjects.Task
	// The launched task that has not yet reached a terminal status.
	current *schedulerobjects.Task
	// Number of times the current part of the execution was relaunched after its task was lost.
	attempts  int
	status    model.JobStatus
	errorName string
	output    *data.Data
	ended     time.Time
}

func newRunningJobExe(job *model.Job, jobType *model.JobType, node *Node, extra TaskResources, when time.Time) *RunningJobExe {
	exe := &RunningJobExe{
		JobID:     job.ID,
		ExeNum:    job.NumExes,
		JobType:   job.Key(),
		Priority:  job.Priority,
		NodeID:    node.NodeID,
		AgentID:   node.AgentID,
		Timeout:   job.Timeout,
		Scheduled: when,
		status:    model.JobRunning,
	}
	resources := job.Resources
	if len(resources) == 0 {
		resources = jobType.Resources
	}
	newTask := func(taskType schedulerobjects.TaskType, r model.Resources) *schedulerobjects.Task {
		return &schedulerobjects.Task{
			ID:          schedulerobjects.TaskID(job.ID, job.NumExes, taskType, 0),
			Type:        taskType,
			JobID:       job.ID,
			ExeNum:      job.NumExes,
			JobType:     job.Key().String(),
			NodeID:      node.NodeID,
			AgentID:     node.AgentID,
			DockerImage: jobType.DockerImage,
			Input:       job.Input,
			Resources:   r,
		}
	}

	// Input files are removed from the node once the main task has read them.
	withoutInput := resources.DeepCopy()
	if withoutInput[model.Disk] > 0 {
		withoutInput[model.Disk] -= job.InputFileSize
		if withoutInput[model.Disk] < 0 {
			withoutInput[model.Disk] = 0
		}
	}
	if jobType.IsSystem {
		exe.remaining = []*schedulerobjects.Task{newTask(schedulerobjects.MainTask, resources.DeepCopy())}
		return exe
	}
	pre := resources.DeepCopy()
	pre.Add(extra.Pre)
	post := withoutInput.DeepCopy()
	post.Add(extra.Post)
	exe.remaining = []*schedulerobjects.Task{
		newTask(schedulerobjects.PreTask, pre),
		newTask(schedulerobjects.MainTask, withoutInput),
		newTask(schedulerobjects.PostTask, post),
	}
	return exe
}

// NextTask returns the task the execution is waiting to launch, or nil if it is finished or a task is in progress.
func (e *RunningJobExe) NextTask() *schedulerobjects.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != model.JobRunning || e.current != nil || len(e.remaining) == 0 {
		return nil
	}
	return e.remaining[0].DeepCopy()
}

// StartNextTask marks the next task as launched and returns it, or returns nil if there is no task to launch.
func (e *RunningJobExe) StartNextTask(when time.Time) *schedulerobjects.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != model.JobRunning || e.current != nil || len(e.remaining) == 0 {
		return nil
	}
	e.current = e.remaining[0]
	e.remaining = e.remaining[1:]
	e.current.Launched = when
	return e.current.DeepCopy()
}

// CurrentTask returns the launched task still in progress, if any.
func (e *RunningJobExe) CurrentTask() *schedulerobjects.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	return e.current.DeepCopy()
}

func (e *RunningJobExe) Status() model.JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// ErrorName is the error the execution failed with, if it failed.
func (e *RunningJobExe) ErrorName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorName
}

func (e *RunningJobExe) Output() *data.Data {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.output
}

func (e *RunningJobExe) IsFinished() bool {
	return e.Status() != model.JobRunning
}

// TaskUpdate applies a status update of the current task. It returns false if the update is not for the current
// task.
func (e *RunningJobExe) TaskUpdate(update *schedulerobjects.TaskUpdate) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != model.JobRunning || e.current == nil || e.current.ID != update.TaskID {
		return false
	}
	task := e.current
	switch update.Status {
	case schedulerobjects.TaskRunning:
		if task.Started.IsZero() {
			task.Started = update.When
		}
	case schedulerobjects.TaskFinished:
		if task.Type == schedulerobjects.MainTask {
			e.output = update.Output
			if e.output == nil {
				e.output = data.NewData()
			}
		}
		e.current = nil
		e.attempts = 0
		if len(e.remaining) == 0 {
			e.status = model.JobCompleted
			e.ended = update.When
		}
	case schedulerobjects.TaskFailed:
		e.current = nil
		e.fail(failureError(task, update), update.When)
	case schedulerobjects.TaskKilled:
		e.current = nil
		e.fail(model.UnknownError.Name, update.When)
	case schedulerobjects.TaskLost:
		// The task is launched again under a new id.
		e.current = nil
		e.attempts++
		task.ID = schedulerobjects.TaskID(e.JobID, e.ExeNum, task.Type, e.attempts)
		task.Launched = time.Time{}
		task.Started = time.Time{}
		e.remaining = append([]*schedulerobjects.Task{task}, e.remaining...)
	}
	return true
}

func failureError(task *schedulerobjects.Task, update *schedulerobjects.TaskUpdate) string {
	switch {
	case update.ErrorName != "":
		return model.GetError(update.ErrorName).Name
	case task.Started.IsZero():
		return model.TaskLaunchError.Name
	case task.Type == schedulerobjects.MainTask:
		return model.AlgorithmUnknownError.Name
	default:
		return model.UnknownError.Name
	}
}

// ExecutionLost fails the execution because its node or agent went away. It returns the task that was in progress.
func (e *RunningJobExe) ExecutionLost(when time.Time) *schedulerobjects.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != model.JobRunning {
		return nil
	}
	task := e.current
	e.fail(model.NodeLostError.Name, when)
	if task == nil {
		return nil
	}
	return task.DeepCopy()
}

// CheckTimeout fails the execution if its current task has not started within launchTimeout of being launched, or
// has run longer than the execution's timeout. It returns the task that needs to be killed, or nil, and the error the
// execution failed with.
func (e *RunningJobExe) CheckTimeout(when time.Time, launchTimeout time.Duration) (*schedulerobjects.Task, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != model.JobRunning || e.current == nil {
		return nil, ""
	}
	task := e.current
	switch {
	case task.Started.IsZero():
		if launchTimeout <= 0 || when.Sub(task.Launched) <= launchTimeout {
			return nil, ""
		}
		e.fail(model.TaskLaunchError.Name, when)
	case e.Timeout > 0 && when.Sub(task.Started) > e.Timeout:
		e.fail(model.TimeoutError.Name, when)
	default:
		return nil, ""
	}
	return task.DeepCopy(), e.errorName
}

// Cancel stops the execution without reporting a result, as its job has moved on without it. It returns the task that
// needs to be killed, or nil.
func (e *RunningJobExe) Cancel(when time.Time) *schedulerobjects.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != model.JobRunning {
		return nil
	}
	task := e.current
	e.status = model.JobCanceled
	e.ended = when
	e.remaining = nil
	e.current = nil
	if task == nil {
		return nil
	}
	return task.DeepCopy()
}

func (e *RunningJobExe) fail(errorName string, when time.Time) {
	e.status = model.JobFailed
	e.errorName = errorName
	e.ended = when
	e.remaining = nil
	e.current = nil
}
