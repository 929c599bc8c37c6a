package scheduler

import (
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

type NodeState string

// Node states, from the one that takes precedence to the one that takes it least.
const (
	// The node has been removed from the cluster.
	NodeDeprecated NodeState = "DEPRECATED"
	// The node's agent is not reachable.
	NodeOffline NodeState = "OFFLINE"
	// The node has been paused by an operator.
	NodePaused NodeState = "PAUSED"
	// The scheduler itself is paused.
	NodeSchedulerStopped NodeState = "SCHEDULER_STOPPED"
	// The node has active errors.
	NodeDegraded NodeState = "DEGRADED"
	// The node is cleaning up after previous runs.
	NodeInitialCleanup NodeState = "INITIAL_CLEANUP"
	// The node is pulling the task image.
	NodeImagePull NodeState = "IMAGE_PULL"
	NodeReady     NodeState = "READY"
)

// Node is the scheduler's view of a node: the last status its agent reported and the state derived from it.
type Node struct {
	schedulerobjects.NodeStatus
	State NodeState
}

func newNode(status schedulerobjects.NodeStatus, schedulerPaused bool) *Node {
	node := &Node{NodeStatus: status}
	node.State = deriveState(status, schedulerPaused)
	return node
}

func deriveState(status schedulerobjects.NodeStatus, schedulerPaused bool) NodeState {
	switch {
	case !status.IsActive:
		return NodeDeprecated
	case !status.IsOnline:
		return NodeOffline
	case status.IsPaused:
		return NodePaused
	case schedulerPaused:
		return NodeSchedulerStopped
	case len(status.Errors) > 0:
		return NodeDegraded
	case !status.IsCleanedUp:
		return NodeInitialCleanup
	case !status.IsImagePulled:
		return NodeImagePull
	default:
		return NodeReady
	}
}

// IsReadyForNewJob returns true if new job executions may be placed on the node.
func (n *Node) IsReadyForNewJob() bool {
	return n.State == NodeReady
}

// IsReadyForNextJobTask returns true if job executions already on the node may launch their next task. Paused and
// degraded nodes still let running executions finish.
func (n *Node) IsReadyForNextJobTask() bool {
	return n.State != NodeDeprecated && n.State != NodeOffline && n.IsImagePulled
}

func (n *Node) DeepCopy() *Node {
	c := *n
	c.Errors = append([]string(nil), n.Errors...)
	return &c
}
