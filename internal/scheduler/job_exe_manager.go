package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messages"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

// JobExeManager tracks the job executions running on the cluster. Executions that finish are held until their results
// are collected as command messages. It is safe for concurrent use.
type JobExeManager struct {
	mu      sync.Mutex
	running map[int64]*RunningJobExe
	byTask  map[string]*RunningJobExe
	// Executions that completed or failed and have not been reported yet.
	finished []*RunningJobExe
}

func NewJobExeManager() *JobExeManager {
	return &JobExeManager{
		running: map[int64]*RunningJobExe{},
		byTask:  map[string]*RunningJobExe{},
	}
}

// Schedule starts tracking newly scheduled executions.
func (m *JobExeManager) Schedule(exes []*RunningJobExe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exe := range exes {
		m.running[exe.JobID] = exe
	}
}

// IsRunning returns true if an execution of the given job is being tracked.
func (m *JobExeManager) IsRunning(jobID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[jobID]
	return ok
}

// RunningExes returns the executions that have not finished, sorted by job id.
func (m *JobExeManager) RunningExes() []*RunningJobExe {
	m.mu.Lock()
	defer m.mu.Unlock()
	exes := make([]*RunningJobExe, 0, len(m.running))
	for _, exe := range m.running {
		exes = append(exes, exe)
	}
	sort.Slice(exes, func(i, j int) bool { return exes[i].JobID < exes[j].JobID })
	return exes
}

// CountByJobType returns the number of running executions of each job type.
func (m *JobExeManager) CountByJobType() map[model.JobTypeKey]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.JobTypeKey]int{}
	for _, exe := range m.running {
		counts[exe.JobType]++
	}
	return counts
}

// StartNextTask launches the next task of exe and indexes it so that its status updates can be matched.
func (m *JobExeManager) StartNextTask(exe *RunningJobExe, when time.Time) *schedulerobjects.Task {
	task := exe.StartNextTask(when)
	if task == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTask[task.ID] = exe
	return task
}

// HandleTaskUpdate applies a task status update to the execution the task belongs to. It returns false if the task is
// not known.
func (m *JobExeManager) HandleTaskUpdate(update *schedulerobjects.TaskUpdate) bool {
	m.mu.Lock()
	exe, ok := m.byTask[update.TaskID]
	m.mu.Unlock()
	if !ok || !exe.TaskUpdate(update) {
		return false
	}
	if update.Status.IsTerminal() {
		m.mu.Lock()
		delete(m.byTask, update.TaskID)
		m.mu.Unlock()
	}
	m.collect(exe)
	return true
}

// LostNode fails every execution that was running on the node through the given agent. It returns the number of
// executions failed.
func (m *JobExeManager) LostNode(nodeID int64, agentID string, when time.Time) int {
	lost := 0
	for _, exe := range m.RunningExes() {
		if exe.NodeID != nodeID || exe.AgentID != agentID {
			continue
		}
		exe.ExecutionLost(when)
		m.collect(exe)
		lost++
	}
	return lost
}

// FailLost fails the given executions as lost without killing anything.
func (m *JobExeManager) FailLost(exes []*RunningJobExe, when time.Time) {
	for _, exe := range exes {
		exe.ExecutionLost(when)
		m.collect(exe)
	}
}

// CheckTimeouts fails every execution whose current task has timed out. It returns the tasks that need to be killed
// and the number of executions failed with each error.
func (m *JobExeManager) CheckTimeouts(when time.Time, launchTimeout time.Duration) ([]*schedulerobjects.Task, map[string]int) {
	var kill []*schedulerobjects.Task
	failed := map[string]int{}
	for _, exe := range m.RunningExes() {
		if task, errorName := exe.CheckTimeout(when, launchTimeout); task != nil {
			kill = append(kill, task)
			failed[errorName]++
			m.collect(exe)
		}
	}
	return kill, failed
}

// SyncWithJobs stops the executions whose job has moved on: it has been canceled, re-queued under a new execution
// number, or finished through some other path. jobs holds the stored state of every job with a running execution;
// executions of jobs missing from it are stopped as well. It returns the tasks that need to be killed.
func (m *JobExeManager) SyncWithJobs(jobs []*model.Job, when time.Time) []*schedulerobjects.Task {
	byID := make(map[int64]*model.Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}
	var kill []*schedulerobjects.Task
	for _, exe := range m.RunningExes() {
		job, ok := byID[exe.JobID]
		if ok && job.NumExes == exe.ExeNum && (job.Status == model.JobQueued || job.Status == model.JobRunning) {
			continue
		}
		if task := exe.Cancel(when); task != nil {
			kill = append(kill, task)
		}
		m.collect(exe)
	}
	return kill
}

// collect moves exe out of the running executions once it has finished.
func (m *JobExeManager) collect(exe *RunningJobExe) {
	status := exe.Status()
	if status == model.JobRunning {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[exe.JobID] != exe {
		return
	}
	delete(m.running, exe.JobID)
	for id, indexed := range m.byTask {
		if indexed == exe {
			delete(m.byTask, id)
		}
	}
	if status == model.JobCompleted || status == model.JobFailed {
		m.finished = append(m.finished, exe)
	}
}

// ReportFinished sends the messages reporting every execution that finished since the last report. If sending fails
// the executions are reported again next time. It returns the number of executions reported.
func (m *JobExeManager) ReportFinished(ctx *scalecontext.Context, sender MessageSender, when time.Time) (int, error) {
	m.mu.Lock()
	finished := m.finished
	m.finished = nil
	m.mu.Unlock()
	if len(finished) == 0 {
		return 0, nil
	}

	if err := sender.SendMessages(ctx, finishedMessages(finished, when)); err != nil {
		m.mu.Lock()
		m.finished = append(finished, m.finished...)
		m.mu.Unlock()
		return 0, err
	}
	return len(finished), nil
}

func finishedMessages(finished []*RunningJobExe, when time.Time) []messaging.CommandMessage {
	var completed []messages.CompletedJob
	failed := map[string][]messages.JobExe{}
	for _, exe := range finished {
		switch exe.Status() {
		case model.JobCompleted:
			completed = append(completed, messages.CompletedJob{ID: exe.JobID, ExeNum: exe.ExeNum, Output: exe.Output()})
		case model.JobFailed:
			name := exe.ErrorName()
			failed[name] = append(failed[name], messages.JobExe{ID: exe.JobID, ExeNum: exe.ExeNum})
		}
	}
	var msgs []messaging.CommandMessage
	if len(completed) > 0 {
		msgs = append(msgs, messages.NewCompletedJobsMessages(when, completed)...)
	}
	if len(failed) > 0 {
		msgs = append(msgs, messages.NewFailedJobsMessages(when, failed)...)
	}
	return msgs
}
