// Package schedulerobjects holds the types exchanged between the scheduler and the agents running tasks on nodes.
package schedulerobjects

import (
	"fmt"
	"time"

	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
)

// NodeStatus is what a node's agent last reported about the node.
type NodeStatus struct {
	NodeID   int64  `json:"node_id"`
	Hostname string `json:"hostname"`
	// AgentID changes whenever the agent on the node restarts. Tasks launched through an older agent are gone.
	AgentID  string `json:"agent_id"`
	IsActive bool   `json:"is_active"`
	IsOnline bool   `json:"is_online"`
	IsPaused bool   `json:"is_paused"`
	// IsCleanedUp is false until the agent has removed whatever previous runs left on the node.
	IsCleanedUp   bool `json:"is_cleaned_up"`
	IsImagePulled bool `json:"is_image_pulled"`
	// Errors currently active on the node, e.g. a full disk.
	Errors []string `json:"errors,omitempty"`
}

// NodeSnapshot is a node's status together with the resources it currently offers to the scheduler.
type NodeSnapshot struct {
	NodeStatus
	Available model.Resources `json:"available"`
	Reported  time.Time       `json:"reported"`
}

type TaskType string

const (
	// PreTask prepares a job's input on the node.
	PreTask TaskType = "pre"
	// MainTask runs the job's algorithm.
	MainTask TaskType = "main"
	// PostTask stores the job's output.
	PostTask TaskType = "post"
)

type TaskStatus string

const (
	TaskStaging  TaskStatus = "STAGING"
	TaskRunning  TaskStatus = "RUNNING"
	TaskFinished TaskStatus = "FINISHED"
	TaskFailed   TaskStatus = "FAILED"
	TaskKilled   TaskStatus = "KILLED"
	TaskLost     TaskStatus = "LOST"
)

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskLost:
		return true
	default:
		return false
	}
}

// Task is a single container launched on a node for one part of a job execution.
type Task struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	JobID       int64           `json:"job_id"`
	ExeNum      int             `json:"exe_num"`
	JobType     string          `json:"job_type"`
	NodeID      int64           `json:"node_id"`
	AgentID     string          `json:"agent_id"`
	DockerImage string          `json:"docker_image,omitempty"`
	Input       *data.Data      `json:"input,omitempty"`
	Resources   model.Resources `json:"resources"`
	Launched    time.Time       `json:"launched"`
	// Started is zero until the agent reports the task running.
	Started time.Time `json:"started"`
}

func (t *Task) DeepCopy() *Task {
	c := *t
	if t.Input != nil {
		c.Input = t.Input.Copy()
	}
	c.Resources = t.Resources.DeepCopy()
	return &c
}

// TaskID returns the id of a task. Every relaunch of the same task after it was lost gets a new attempt number, and so
// a new id.
func TaskID(jobID int64, exeNum int, taskType TaskType, attempt int) string {
	id := fmt.Sprintf("scale_job_%d_%d_%s", jobID, exeNum, taskType)
	if attempt > 0 {
		id = fmt.Sprintf("%s_%d", id, attempt)
	}
	return id
}

// TaskUpdate is a status change of a task reported by an agent.
type TaskUpdate struct {
	TaskID   string     `json:"task_id"`
	Status   TaskStatus `json:"status"`
	ExitCode int        `json:"exit_code"`
	// ErrorName optionally classifies a failure. Unknown names are treated as the unknown error.
	ErrorName string `json:"error_name,omitempty"`
	// Output is set by the main task when it finishes.
	Output *data.Data `json:"output,omitempty"`
	When   time.Time  `json:"when"`
}
