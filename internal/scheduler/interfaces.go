package scheduler

import (
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

// MessageSender sends command messages. It is satisfied by *messaging.Manager.
type MessageSender interface {
	SendMessages(ctx *scalecontext.Context, msgs []messaging.CommandMessage) error
}

// TaskLauncher asks the agents to start and stop tasks. Neither call waits for the agents to act: the outcome arrives
// later as task updates.
type TaskLauncher interface {
	LaunchTasks(ctx *scalecontext.Context, tasks []*schedulerobjects.Task) error
	KillTasks(ctx *scalecontext.Context, tasks []*schedulerobjects.Task) error
}

// OfferSource returns the latest snapshot reported for every node.
type OfferSource interface {
	Snapshots(ctx *scalecontext.Context) ([]*schedulerobjects.NodeSnapshot, error)
}
