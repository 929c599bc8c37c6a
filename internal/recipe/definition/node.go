package definition

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/data"
)

// Node kinds
const (
	JobNodeKind       = "job"
	RecipeNodeKind    = "recipe"
	ConditionNodeKind = "condition"
)

// NodeType holds the kind-specific part of a node. It is implemented by *JobNodeType, *RecipeNodeType and
// *ConditionNodeType only.
type NodeType interface {
	Kind() string
	copyType() NodeType
}

type JobNodeType struct {
	JobTypeName     string
	JobTypeVersion  string
	JobTypeRevision int
}

func (t *JobNodeType) Kind() string { return JobNodeKind }

func (t *JobNodeType) copyType() NodeType {
	c := *t
	return &c
}

type RecipeNodeType struct {
	RecipeTypeName     string
	RecipeTypeRevision int
}

func (t *RecipeNodeType) Kind() string { return RecipeNodeKind }

func (t *RecipeNodeType) copyType() NodeType {
	c := *t
	return &c
}

// ConditionNodeType evaluates its data filter against its input. Its output interface is derived from the input
// interface and the filter.
type ConditionNodeType struct {
	InputInterface  *data.Interface
	OutputInterface *data.Interface
	DataFilter      *data.DataFilter
}

func NewConditionNodeType(inputInterface *data.Interface, filter *data.DataFilter) *ConditionNodeType {
	return &ConditionNodeType{
		InputInterface:  inputInterface,
		OutputInterface: filter.AdjustOutputInterface(inputInterface),
		DataFilter:      filter,
	}
}

func (t *ConditionNodeType) Kind() string { return ConditionNodeKind }

func (t *ConditionNodeType) copyType() NodeType {
	filter := &data.DataFilter{All: t.DataFilter.All, Filters: slices.Clone(t.DataFilter.Filters)}
	return NewConditionNodeType(t.InputInterface.Copy(), filter)
}

// Node is a named vertex in the recipe graph. Parents and children are indexes into the owning definition.
type Node struct {
	Name string
	Type NodeType
	// Connections maps each input name to its source.
	Connections map[string]InputConnection
	// ParentalAcceptance records, per parent name, whether this node runs when that parent is accepted (true) or
	// when it is not accepted (false).
	ParentalAcceptance map[string]bool

	index    int
	parents  []int
	children []int
}

func newNode(name string, nodeType NodeType) *Node {
	return &Node{
		Name:               name,
		Type:               nodeType,
		Connections:        map[string]InputConnection{},
		ParentalAcceptance: map[string]bool{},
	}
}

func (n *Node) Kind() string {
	return n.Type.Kind()
}

// ConnectionNames returns the connected input names in sorted order.
func (n *Node) ConnectionNames() []string {
	names := maps.Keys(n.Connections)
	slices.Sort(names)
	return names
}

func (n *Node) addConnection(connection InputConnection) error {
	name := connection.GetInputName()
	if _, ok := n.Connections[name]; ok {
		return definitionError(DuplicateInput, "Node '%s' input '%s' has more than one parameter connected to it",
			n.Name, name)
	}
	n.Connections[name] = connection
	return nil
}
