package diff

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/recipe/definition"
)

type Status string

const (
	New       Status = "NEW"
	Deleted   Status = "DELETED"
	Unchanged Status = "UNCHANGED"
	Changed   Status = "CHANGED"
)

// Change reasons
const (
	NodeTypeChange           = "NODE_TYPE_CHANGE"
	JobTypeChange            = "JOB_TYPE_CHANGE"
	JobTypeVersionChange     = "JOB_TYPE_VERSION_CHANGE"
	JobTypeRevisionChange    = "JOB_TYPE_REVISION_CHANGE"
	RecipeTypeChange         = "RECIPE_TYPE_CHANGE"
	RecipeTypeRevisionChange = "RECIPE_TYPE_REVISION_CHANGE"
	ParentChanged            = "PARENT_CHANGED"
	ParentNew                = "PARENT_NEW"
	ParentRemoved            = "PARENT_REMOVED"
	ParentAcceptanceChanged  = "PARENT_ACCEPTANCE_CHANGED"
	InputNew                 = "INPUT_NEW"
	InputChange              = "INPUT_CHANGE"
	InputRemoved             = "INPUT_REMOVED"
	FilterChange             = "FILTER_CHANGE"
)

// Change describes one difference between a node and its previous revision.
type Change struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NodeDiff is the comparison of one node between two revisions of a recipe definition.
type NodeDiff struct {
	Name   string
	Status Status
	// Node is the node in the newer definition, or in the previous one when the node was deleted.
	Node *definition.Node
	// PrevNode is the node of the same name in the previous definition, if any.
	PrevNode *definition.Node
	Changes  []Change
	// ReprocessNewNode is set when reprocessing creates a new instance of this node.
	ReprocessNewNode bool
	ForceReprocess   bool
	// ForcedNodes holds the nodes forced to reprocess inside the sub-recipe of a recipe node.
	ForcedNodes *ForcedNodes

	parents    []*NodeDiff
	acceptance map[string]bool
	children   []*NodeDiff
}

func newNodeDiff(node *definition.Node, status Status) *NodeDiff {
	n := &NodeDiff{Name: node.Name, Status: status, Node: node, acceptance: map[string]bool{}}
	n.calculateReprocessNewNode()
	return n
}

func (n *NodeDiff) Kind() string {
	return n.Node.Kind()
}

// PrevKind returns the kind of the previous node when it differs from the current kind, otherwise "".
func (n *NodeDiff) PrevKind() string {
	if n.PrevNode == nil || n.PrevNode.Kind() == n.Node.Kind() {
		return ""
	}
	return n.PrevNode.Kind()
}

// Parents returns the parent names with their acceptance flags.
func (n *NodeDiff) Parents() map[string]bool {
	result := make(map[string]bool, len(n.acceptance))
	for name, acceptance := range n.acceptance {
		result[name] = acceptance
	}
	return result
}

func (n *NodeDiff) ParentNames() []string {
	names := make([]string, len(n.parents))
	for i, p := range n.parents {
		names[i] = p.Name
	}
	return names
}

func (n *NodeDiff) ChildNames() []string {
	names := make([]string, len(n.children))
	for i, c := range n.children {
		names[i] = c.Name
	}
	return names
}

func (n *NodeDiff) HasChange(name string) bool {
	return slices.IndexFunc(n.Changes, func(c Change) bool { return c.Name == name }) >= 0
}

func (n *NodeDiff) addDependency(parent *NodeDiff, acceptance bool) {
	n.parents = append(n.parents, parent)
	n.acceptance[parent.Name] = acceptance
	parent.children = append(parent.children, n)
}

// ShouldBeCopied reports whether the node of the previous recipe is reused as is.
func (n *NodeDiff) ShouldBeCopied() bool {
	return n.Status != Deleted && !n.ReprocessNewNode
}

// ShouldBeSuperseded reports whether the node of the previous recipe is replaced or removed.
func (n *NodeDiff) ShouldBeSuperseded() bool {
	return n.Status == Deleted || n.Status == Changed || (n.Status == Unchanged && n.ForceReprocess)
}

// ShouldBeRecursivelySuperseded reports whether a previous sub-recipe must be superseded together with everything
// inside it, which happens when it is removed or replaced by something that is not the same recipe type.
func (n *NodeDiff) ShouldBeRecursivelySuperseded() bool {
	prevIsRecipe := n.Kind() == definition.RecipeNodeKind
	if n.PrevNode != nil {
		prevIsRecipe = n.PrevNode.Kind() == definition.RecipeNodeKind
	}
	if !prevIsRecipe {
		return false
	}
	if n.Status == Deleted {
		return true
	}
	return n.Status == Changed && (n.HasChange(NodeTypeChange) || n.HasChange(RecipeTypeChange))
}

// ShouldBeUnpublished reports whether the products of the previous node must be unpublished. Superseded nodes are
// unpublished once their replacements complete, so only deleted nodes qualify.
func (n *NodeDiff) ShouldBeUnpublished() bool {
	return n.Status == Deleted
}

func (n *NodeDiff) calculateReprocessNewNode() {
	n.ReprocessNewNode = n.Status == New || n.Status == Changed || (n.ForceReprocess && n.Status != Deleted)
}

// setForceReprocess forces this node and every descendant to reprocess. Descendants reached through the graph
// reprocess all of their sub-recipe nodes since their input may change.
func (n *NodeDiff) setForceReprocess(forced *ForcedNodes) {
	alreadyForced := n.ForceReprocess
	n.ForceReprocess = true
	n.calculateReprocessNewNode()
	if n.Kind() == definition.RecipeNodeKind && forced != nil && (n.ForcedNodes == nil || !n.ForcedNodes.All) {
		n.ForcedNodes = forced
	}
	if alreadyForced {
		return
	}
	for _, child := range n.children {
		child.setForceReprocess(AllForcedNodes())
	}
}

func (n *NodeDiff) compareToPrevious(prev *definition.Node, prevDef *definition.RecipeDefinition) {
	n.PrevNode = prev
	n.Changes = nil
	if prev.Kind() == n.Kind() {
		n.compareNodeType(prev)
	} else {
		n.addChange(NodeTypeChange, "Node type changed from %s to %s", prev.Kind(), n.Kind())
	}
	n.compareDependencies(prev, prevDef)
	n.compareConnections(prev)
	if len(n.Changes) > 0 {
		n.Status = Changed
	} else {
		n.Status = Unchanged
	}
	n.calculateReprocessNewNode()
}

func (n *NodeDiff) compareNodeType(prev *definition.Node) {
	switch t := n.Node.Type.(type) {
	case *definition.JobNodeType:
		p := prev.Type.(*definition.JobNodeType)
		if t.JobTypeName != p.JobTypeName {
			n.addChange(JobTypeChange, "Job type changed from %s to %s", p.JobTypeName, t.JobTypeName)
		}
		if t.JobTypeVersion != p.JobTypeVersion {
			n.addChange(JobTypeVersionChange, "Job type version changed from %s to %s", p.JobTypeVersion,
				t.JobTypeVersion)
		}
		if t.JobTypeRevision != p.JobTypeRevision {
			n.addChange(JobTypeRevisionChange, "Job type revision changed from %d to %d", p.JobTypeRevision,
				t.JobTypeRevision)
		}
	case *definition.RecipeNodeType:
		p := prev.Type.(*definition.RecipeNodeType)
		if t.RecipeTypeName != p.RecipeTypeName {
			n.addChange(RecipeTypeChange, "Recipe type changed from %s to %s", p.RecipeTypeName, t.RecipeTypeName)
		}
		if t.RecipeTypeRevision != p.RecipeTypeRevision {
			n.addChange(RecipeTypeRevisionChange, "Recipe type revision changed from %d to %d",
				p.RecipeTypeRevision, t.RecipeTypeRevision)
		}
	case *definition.ConditionNodeType:
		p := prev.Type.(*definition.ConditionNodeType)
		if !jsonEqual(t.InputInterface, p.InputInterface) || !jsonEqual(t.DataFilter, p.DataFilter) {
			n.addChange(FilterChange, "Condition interface or data filter changed")
		}
	}
}

func (n *NodeDiff) compareDependencies(prev *definition.Node, prevDef *definition.RecipeDefinition) {
	for _, parent := range n.parents {
		switch {
		case parent.Status == New:
			n.addChange(ParentNew, "New parent node %s added", parent.Name)
		case parent.ReprocessNewNode:
			n.addChange(ParentChanged, "Parent node %s changed", parent.Name)
		}
		if prevAcceptance, ok := prev.ParentalAcceptance[parent.Name]; ok && prevAcceptance != n.acceptance[parent.Name] {
			n.addChange(ParentAcceptanceChanged, "Acceptance of parent node %s changed to %t", parent.Name,
				n.acceptance[parent.Name])
		}
	}
	for _, prevParent := range prevDef.Parents(prev.Name) {
		if _, ok := n.acceptance[prevParent]; !ok {
			n.addChange(ParentRemoved, "Previous parent node %s removed", prevParent)
		}
	}
}

func (n *NodeDiff) compareConnections(prev *definition.Node) {
	for _, inputName := range n.Node.ConnectionNames() {
		prevConnection, ok := prev.Connections[inputName]
		if !ok {
			n.addChange(InputNew, "New input %s added", inputName)
			continue
		}
		if !n.Node.Connections[inputName].Equal(prevConnection) {
			n.addChange(InputChange, "Input %s changed", inputName)
		}
	}
	for _, prevInputName := range prev.ConnectionNames() {
		if _, ok := n.Node.Connections[prevInputName]; !ok {
			n.addChange(InputRemoved, "Previous input %s removed", prevInputName)
		}
	}
}

func (n *NodeDiff) addChange(name, format string, args ...interface{}) {
	n.Changes = append(n.Changes, Change{Name: name, Description: fmt.Sprintf(format, args...)})
}

func jsonEqual(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(aj, bj)
}
