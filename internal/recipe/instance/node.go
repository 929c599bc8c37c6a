package instance

import (
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
)

// Node pairs a node of the recipe definition with the record backing it. At most one of Job, SubRecipe and Condition
// is set, matching the kind of the definition node. A node without a record is a placeholder for a node that has
// not been created yet.
type Node struct {
	Definition *definition.Node
	IsOriginal bool
	Job        *model.Job
	SubRecipe  *model.Recipe
	Condition  *model.Condition

	// placeholder is true when the recipe has no record for this node yet
	placeholder bool
	// missing is true when the recipe has a record for this node but the job, sub-recipe or condition it points at
	// could not be found
	missing bool

	parents  []parentEdge
	children []*Node

	childrenCanBeCreated bool
	blocksChildNodes     bool
}

type parentEdge struct {
	node       *Node
	acceptance bool
}

func (n *Node) Name() string {
	return n.Definition.Name
}

func (n *Node) Kind() string {
	return n.Definition.Kind()
}

// IsPlaceholder returns true if no record exists for this node yet.
func (n *Node) IsPlaceholder() bool {
	return n.placeholder
}

// IsMissing returns true if the node has a record whose job, sub-recipe or condition is missing.
func (n *Node) IsMissing() bool {
	return n.missing
}

func (n *Node) ParentNames() []string {
	names := make([]string, len(n.parents))
	for i, p := range n.parents {
		names[i] = p.node.Name()
	}
	return names
}

func (n *Node) ChildNames() []string {
	names := make([]string, len(n.children))
	for i, c := range n.children {
		names[i] = c.Name()
	}
	return names
}

// Output returns the data this node makes available to its children, or nil if it has none yet.
func (n *Node) Output() *data.Data {
	switch {
	case n.Job != nil:
		return n.Job.Output
	case n.Condition != nil && n.Condition.IsProcessed:
		return n.Condition.Data
	}
	return nil
}

func (n *Node) isCompleted() bool {
	switch {
	case n.placeholder:
		return true
	case n.missing:
		return false
	case n.Job != nil:
		return n.Job.IsReadyForChildren()
	case n.SubRecipe != nil:
		return n.SubRecipe.IsCompleted
	case n.Condition != nil:
		return n.Condition.IsProcessed
	}
	return false
}

// isAccepted is only meaningful for conditions; every other node counts as accepted.
func (n *Node) isAccepted() bool {
	if n.Condition != nil {
		return n.Condition.IsAccepted
	}
	return true
}

// isReadyFor returns true if the child reached through edge may process its input.
func (n *Node) isReadyFor(edge parentEdge) bool {
	switch {
	case n.placeholder, n.missing:
		return false
	case n.Condition != nil:
		return n.Condition.IsProcessed && n.Condition.IsAccepted == edge.acceptance
	}
	return n.isCompleted()
}

// needsToBeCreated must be called on parents before children.
func (n *Node) needsToBeCreated() bool {
	needsToBeCreated := n.placeholder
	n.childrenCanBeCreated = true

	if needsToBeCreated {
		for _, p := range n.parents {
			if !p.node.childrenCanBeCreated || !p.node.accepts(p.acceptance) {
				needsToBeCreated = false
				n.childrenCanBeCreated = false
				break
			}
		}
	}

	if n.Kind() == definition.ConditionNodeKind {
		// Children of a condition wait until it has been evaluated
		n.childrenCanBeCreated = n.Condition != nil && n.Condition.IsProcessed
	}
	return needsToBeCreated
}

// accepts returns true if a child declaring the given acceptance may run after this node.
func (n *Node) accepts(acceptance bool) bool {
	if n.Kind() != definition.ConditionNodeKind {
		return true
	}
	return n.isAccepted() == acceptance
}

func (n *Node) needsToProcessInput() bool {
	if n.missing {
		return false
	}
	if n.Job != nil && n.Job.Status != model.JobPending && n.Job.Status != model.JobBlocked {
		return false
	}
	for _, p := range n.parents {
		if !p.node.isReadyFor(p) {
			return false
		}
	}
	switch {
	case n.Job != nil:
		return !n.Job.HasInput()
	case n.SubRecipe != nil:
		return !n.SubRecipe.HasInput()
	case n.Condition != nil:
		return !n.Condition.IsProcessed
	}
	return true
}

// updateBlocking must be called on parents before children. It returns the job ID of this node when its job should
// move to BLOCKED or PENDING.
func (n *Node) updateBlocking() (blocked int64, pending int64) {
	n.blocksChildNodes = false
	for _, p := range n.parents {
		n.blocksChildNodes = n.blocksChildNodes || p.node.blocksChildNodes
	}

	switch {
	case n.Job != nil:
		if n.Job.Status == model.JobCanceled || n.Job.Status == model.JobFailed {
			n.blocksChildNodes = true
		}
		if n.Job.Status == model.JobBlocked && !n.blocksChildNodes {
			pending = n.Job.ID
		}
		if n.Job.Status == model.JobPending && n.blocksChildNodes {
			blocked = n.Job.ID
		}
	case n.SubRecipe != nil:
		if n.SubRecipe.BlockingJobs() > 0 {
			n.blocksChildNodes = true
		}
	}
	return blocked, pending
}
