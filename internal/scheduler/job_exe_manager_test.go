package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messages"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

// startedExe returns a manager tracking one execution of job 42 whose pre task has been launched.
func startedExe() (*JobExeManager, *RunningJobExe, *schedulerobjects.Task) {
	m := NewJobExeManager()
	exe := testExe(queuedJob(100), algType(0), TaskResources{})
	m.Schedule([]*RunningJobExe{exe})
	task := m.StartNextTask(exe, baseTime)
	return m, exe, task
}

func TestJobExeManager_SyncWithJobs(t *testing.T) {
	tests := map[string]struct {
		job          *model.Job
		expectCancel bool
	}{
		"still queued": {
			job: &model.Job{ID: 42, Status: model.JobQueued, NumExes: 1},
		},
		"running": {
			job: &model.Job{ID: 42, Status: model.JobRunning, NumExes: 1},
		},
		"canceled": {
			job:          &model.Job{ID: 42, Status: model.JobCanceled, NumExes: 1},
			expectCancel: true,
		},
		"queued again": {
			job:          &model.Job{ID: 42, Status: model.JobQueued, NumExes: 2},
			expectCancel: true,
		},
		"completed elsewhere": {
			job:          &model.Job{ID: 42, Status: model.JobCompleted, NumExes: 1},
			expectCancel: true,
		},
		"missing": {
			expectCancel: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m, exe, task := startedExe()
			var jobs []*model.Job
			if tc.job != nil {
				jobs = append(jobs, tc.job)
			}

			kill := m.SyncWithJobs(jobs, baseTime)

			if !tc.expectCancel {
				assert.Empty(t, kill)
				assert.True(t, m.IsRunning(42))
				return
			}
			require.Len(t, kill, 1)
			assert.Equal(t, task.ID, kill[0].ID)
			assert.Equal(t, model.JobCanceled, exe.Status())
			assert.False(t, m.IsRunning(42))
			// Canceled executions are not reported.
			sender := &fakeSender{}
			reported, err := m.ReportFinished(scalecontext.Background(), sender, baseTime)
			require.NoError(t, err)
			assert.Equal(t, 0, reported)
		})
	}
}

func TestJobExeManager_HandleTaskUpdate(t *testing.T) {
	m, _, task := startedExe()

	assert.False(t, m.HandleTaskUpdate(&schedulerobjects.TaskUpdate{TaskID: "unknown", Status: schedulerobjects.TaskRunning}))
	assert.True(t, m.HandleTaskUpdate(&schedulerobjects.TaskUpdate{TaskID: task.ID, Status: schedulerobjects.TaskRunning, When: baseTime}))
	assert.True(t, m.HandleTaskUpdate(&schedulerobjects.TaskUpdate{TaskID: task.ID, Status: schedulerobjects.TaskFailed, When: baseTime}))
	assert.False(t, m.IsRunning(42))
	// Updates after the task finished are ignored.
	assert.False(t, m.HandleTaskUpdate(&schedulerobjects.TaskUpdate{TaskID: task.ID, Status: schedulerobjects.TaskFinished}))

	sender := &fakeSender{}
	reported, err := m.ReportFinished(scalecontext.Background(), sender, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 1, reported)
	assert.Equal(t, map[string][]messages.JobExe{model.UnknownError.Name: {{ID: 42, ExeNum: 1}}}, sender.failed())
}

func TestJobExeManager_LostNode(t *testing.T) {
	m, _, _ := startedExe()

	assert.Equal(t, 0, m.LostNode(1, "agent-other", baseTime))
	assert.Equal(t, 0, m.LostNode(2, "agent-1", baseTime))
	assert.True(t, m.IsRunning(42))

	assert.Equal(t, 1, m.LostNode(1, "agent-1", baseTime))
	assert.False(t, m.IsRunning(42))
}

func TestJobExeManager_ReportFinishedRetries(t *testing.T) {
	m, _, task := startedExe()
	m.HandleTaskUpdate(&schedulerobjects.TaskUpdate{TaskID: task.ID, Status: schedulerobjects.TaskFailed, When: baseTime})

	sender := &fakeSender{err: assert.AnError}
	_, err := m.ReportFinished(scalecontext.Background(), sender, baseTime)
	assert.Error(t, err)

	sender.err = nil
	reported, err := m.ReportFinished(scalecontext.Background(), sender, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 1, reported)

	reported, err = m.ReportFinished(scalecontext.Background(), sender, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 0, reported)
	assert.Len(t, sender.sent, 1)
}
