package diff

import (
	"github.com/ngageoint/scale/internal/recipe/definition"
)

// Reason why a recipe cannot be reprocessed
const InputChangeReason = "INPUT_CHANGE"

type Reason struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RecipeDiff compares two revisions of a recipe definition node by node so that reprocessing a recipe only replaces
// the nodes that changed, directly or through their parents.
type RecipeDiff struct {
	CanBeReprocessed bool
	Reasons          []Reason
	ForcedNodes      *ForcedNodes

	nodes map[string]*NodeDiff
	// order lists the new nodes in the new topological order followed by the deleted nodes.
	order []string
}

// NewRecipeDiff builds the diff between prev and current. Both definitions must have a valid topological order.
func NewRecipeDiff(prev, current *definition.RecipeDefinition) (*RecipeDiff, error) {
	d := &RecipeDiff{CanBeReprocessed: true, nodes: map[string]*NodeDiff{}}

	if _, err := current.InputInterface.ValidateConnection(prev.InputInterface); err != nil {
		d.CanBeReprocessed = false
		d.Reasons = append(d.Reasons, Reason{
			Name:        InputChangeReason,
			Description: "Input interface has changed: " + err.Error(),
		})
	}

	order, err := current.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		node, _ := current.Node(name)
		nodeDiff := newNodeDiff(node, New)
		d.add(nodeDiff)
		for _, parent := range current.Parents(name) {
			nodeDiff.addDependency(d.nodes[parent], node.ParentalAcceptance[parent])
		}
		if prevNode, ok := prev.Node(name); ok {
			nodeDiff.compareToPrevious(prevNode, prev)
		}
	}

	prevOrder, err := prev.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	for _, name := range prevOrder {
		if _, ok := d.nodes[name]; ok {
			continue
		}
		node, _ := prev.Node(name)
		nodeDiff := newNodeDiff(node, Deleted)
		nodeDiff.PrevNode = node
		d.add(nodeDiff)
		for _, parent := range prev.Parents(name) {
			nodeDiff.addDependency(d.nodes[parent], node.ParentalAcceptance[parent])
		}
	}
	return d, nil
}

func (d *RecipeDiff) add(n *NodeDiff) {
	d.nodes[n.Name] = n
	d.order = append(d.order, n.Name)
}

func (d *RecipeDiff) Node(name string) (*NodeDiff, bool) {
	n, ok := d.nodes[name]
	return n, ok
}

// Nodes returns every node diff, new nodes in topological order first.
func (d *RecipeDiff) Nodes() []*NodeDiff {
	result := make([]*NodeDiff, len(d.order))
	for i, name := range d.order {
		result[i] = d.nodes[name]
	}
	return result
}

func (d *RecipeDiff) filter(keep func(*NodeDiff) bool) map[string]*NodeDiff {
	result := map[string]*NodeDiff{}
	if !d.CanBeReprocessed {
		return result
	}
	for _, n := range d.nodes {
		if keep(n) {
			result[n.Name] = n
		}
	}
	return result
}

func (d *RecipeDiff) NodesToCopy() map[string]*NodeDiff {
	return d.filter((*NodeDiff).ShouldBeCopied)
}

func (d *RecipeDiff) NodesToSupersede() map[string]*NodeDiff {
	return d.filter((*NodeDiff).ShouldBeSuperseded)
}

func (d *RecipeDiff) NodesToRecursivelySupersede() map[string]*NodeDiff {
	return d.filter((*NodeDiff).ShouldBeRecursivelySuperseded)
}

func (d *RecipeDiff) NodesToUnpublish() map[string]*NodeDiff {
	return d.filter((*NodeDiff).ShouldBeUnpublished)
}

// NewNodes returns the nodes for which reprocessing creates a new instance.
func (d *RecipeDiff) NewNodes() map[string]*NodeDiff {
	return d.filter(func(n *NodeDiff) bool { return n.ReprocessNewNode })
}

// SetForceReprocess forces the named nodes, and everything downstream of them, to reprocess. Forcing wins over
// parental acceptance: a node below a condition is reprocessed whatever branch it sits on, and acceptance is applied
// again when the new recipe runs.
func (d *RecipeDiff) SetForceReprocess(forced *ForcedNodes) {
	d.ForcedNodes = forced
	for _, name := range d.order {
		if forced.IsNodeForcedToReprocess(name) {
			d.nodes[name].setForceReprocess(forced.SubRecipe(name))
		}
	}
}
