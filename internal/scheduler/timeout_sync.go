package scheduler

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
)

// TimeoutSync periodically fails the job executions whose current task has timed out, kills those tasks, and reports
// the failures.
type TimeoutSync struct {
	exes          *JobExeManager
	launcher      TaskLauncher
	sender        MessageSender
	clock         clock.WithTicker
	period        time.Duration
	launchTimeout time.Duration
	metrics       *Metrics
}

func NewTimeoutSync(
	exes *JobExeManager,
	launcher TaskLauncher,
	sender MessageSender,
	clock clock.WithTicker,
	period time.Duration,
	launchTimeout time.Duration,
	metrics *Metrics,
) *TimeoutSync {
	return &TimeoutSync{
		exes:          exes,
		launcher:      launcher,
		sender:        sender,
		clock:         clock,
		period:        period,
		launchTimeout: launchTimeout,
		metrics:       metrics,
	}
}

// Run checks for timeouts every period until ctx is cancelled.
func (s *TimeoutSync) Run(ctx *scalecontext.Context) error {
	ticker := s.clock.NewTicker(s.period)
	defer ticker.Stop()
	ctx.Log.Infof("Will check for timed out tasks every %s", s.period)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := s.Sync(ctx); err != nil {
				logging.WithStacktrace(ctx.Log, err).Warn("Error checking for timed out tasks")
			}
		}
	}
}

// Sync fails and kills whatever has timed out now.
func (s *TimeoutSync) Sync(ctx *scalecontext.Context) error {
	now := s.clock.Now()
	tasks, failed := s.exes.CheckTimeouts(now, s.launchTimeout)
	for errorName, count := range failed {
		s.metrics.reportFailed(errorName, count)
	}
	if len(tasks) > 0 {
		ctx.Log.Warnf("Killing %d timed out task(s)", len(tasks))
		if err := s.launcher.KillTasks(ctx, tasks); err != nil {
			logging.WithStacktrace(ctx.Log, err).Errorf("Failed to kill %d timed out task(s)", len(tasks))
		}
	}
	_, err := s.exes.ReportFinished(ctx, s.sender, now)
	return err
}
