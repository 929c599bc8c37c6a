package scheduler

import (
	"sort"
	"sync"

	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

// NodeManager tracks the nodes reported by the agents and derives their state. It is safe for concurrent use.
type NodeManager struct {
	mu              sync.Mutex
	nodes           map[int64]*Node
	schedulerPaused bool
}

func NewNodeManager() *NodeManager {
	return &NodeManager{nodes: map[int64]*Node{}}
}

// SetSchedulerPaused pauses or resumes the scheduler, which moves every otherwise healthy node to SCHEDULER_STOPPED.
func (m *NodeManager) SetSchedulerPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedulerPaused = paused
	for _, node := range m.nodes {
		node.State = deriveState(node.NodeStatus, paused)
	}
}

func (m *NodeManager) IsSchedulerPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedulerPaused
}

// SyncNodes replaces the known node statuses with the latest ones reported. A node that was online and is now either
// offline, no longer reported, or reported by a different agent has lost its agent. The node as it was before the
// change is returned for each of these, so that whatever ran through the old agent can be failed.
func (m *NodeManager) SyncNodes(statuses []schedulerobjects.NodeStatus) []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lost []*Node
	reported := make(map[int64]bool, len(statuses))
	for _, status := range statuses {
		reported[status.NodeID] = true
		if old, ok := m.nodes[status.NodeID]; ok && old.IsOnline {
			if !status.IsOnline || old.AgentID != status.AgentID {
				lost = append(lost, old.DeepCopy())
			}
		}
		m.nodes[status.NodeID] = newNode(status, m.schedulerPaused)
	}
	for id, node := range m.nodes {
		if reported[id] || !node.IsOnline {
			continue
		}
		lost = append(lost, node.DeepCopy())
		m.setOffline(node)
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i].NodeID < lost[j].NodeID })
	return lost
}

// LostNode marks the node whose agent is agentID as offline. It returns the node as it was before, or nil if no
// online node has that agent.
func (m *NodeManager) LostNode(agentID string) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, node := range m.nodes {
		if node.AgentID == agentID && node.IsOnline {
			lost := node.DeepCopy()
			m.setOffline(node)
			return lost
		}
	}
	return nil
}

func (m *NodeManager) setOffline(node *Node) {
	node.IsOnline = false
	node.State = deriveState(node.NodeStatus, m.schedulerPaused)
}

// Node returns a copy of the node with the given id.
func (m *NodeManager) Node(id int64) (*Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, false
	}
	return node.DeepCopy(), true
}

// Nodes returns copies of all known nodes sorted by id.
func (m *NodeManager) Nodes() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		nodes = append(nodes, node.DeepCopy())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes
}
