package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

func TestDeriveState(t *testing.T) {
	tests := map[string]struct {
		modify          func(status *schedulerobjects.NodeStatus)
		schedulerPaused bool
		expected        NodeState
		readyForNext    bool
	}{
		"ready": {
			modify:       func(status *schedulerobjects.NodeStatus) {},
			expected:     NodeReady,
			readyForNext: true,
		},
		"deprecated wins over everything": {
			modify: func(status *schedulerobjects.NodeStatus) {
				status.IsActive = false
				status.IsOnline = false
				status.IsPaused = true
			},
			schedulerPaused: true,
			expected:        NodeDeprecated,
		},
		"offline wins over paused": {
			modify: func(status *schedulerobjects.NodeStatus) {
				status.IsOnline = false
				status.IsPaused = true
			},
			expected: NodeOffline,
		},
		"paused wins over scheduler stopped": {
			modify:          func(status *schedulerobjects.NodeStatus) { status.IsPaused = true },
			schedulerPaused: true,
			expected:        NodePaused,
			readyForNext:    true,
		},
		"scheduler stopped wins over degraded": {
			modify:          func(status *schedulerobjects.NodeStatus) { status.Errors = []string{"disk full"} },
			schedulerPaused: true,
			expected:        NodeSchedulerStopped,
			readyForNext:    true,
		},
		"degraded wins over cleanup": {
			modify: func(status *schedulerobjects.NodeStatus) {
				status.Errors = []string{"disk full"}
				status.IsCleanedUp = false
			},
			expected:     NodeDegraded,
			readyForNext: true,
		},
		"cleanup wins over image pull": {
			modify: func(status *schedulerobjects.NodeStatus) {
				status.IsCleanedUp = false
				status.IsImagePulled = false
			},
			expected: NodeInitialCleanup,
		},
		"image pull": {
			modify:   func(status *schedulerobjects.NodeStatus) { status.IsImagePulled = false },
			expected: NodeImagePull,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			status := readyStatus(1, "agent-1")
			tc.modify(&status)
			node := newNode(status, tc.schedulerPaused)
			assert.Equal(t, tc.expected, node.State)
			assert.Equal(t, tc.expected == NodeReady, node.IsReadyForNewJob())
			assert.Equal(t, tc.readyForNext, node.IsReadyForNextJobTask())
		})
	}
}
