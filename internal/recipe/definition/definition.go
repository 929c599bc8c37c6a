package definition

import (
	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/data"
)

// JobTypeKey is the natural key of a job type.
type JobTypeKey struct {
	Name    string
	Version string
}

// RecipeDefinition is a recipe input interface plus a directed acyclic graph of nodes.
//
// Nodes live in an arena and refer to each other by index. Every structural mutation bumps version; the cached
// topological order is valid only for the version it was computed at.
type RecipeDefinition struct {
	InputInterface *data.Interface

	nodes   []*Node
	byName  map[string]int
	roots   map[int]bool
	version int

	topoOrder   []string
	topoVersion int
}

func NewRecipeDefinition(inputInterface *data.Interface) *RecipeDefinition {
	if inputInterface == nil {
		inputInterface = data.NewInterface()
	}
	return &RecipeDefinition{
		InputInterface: inputInterface,
		byName:         map[string]int{},
		roots:          map[int]bool{},
		topoVersion:    -1,
	}
}

func (d *RecipeDefinition) AddJobNode(name, jobTypeName, jobTypeVersion string, revision int) error {
	return d.addNode(newNode(name, &JobNodeType{
		JobTypeName: jobTypeName, JobTypeVersion: jobTypeVersion, JobTypeRevision: revision,
	}))
}

func (d *RecipeDefinition) AddRecipeNode(name, recipeTypeName string, revision int) error {
	return d.addNode(newNode(name, &RecipeNodeType{RecipeTypeName: recipeTypeName, RecipeTypeRevision: revision}))
}

func (d *RecipeDefinition) AddConditionNode(name string, inputInterface *data.Interface, filter *data.DataFilter) error {
	return d.addNode(newNode(name, NewConditionNodeType(inputInterface, filter)))
}

func (d *RecipeDefinition) addNode(node *Node) error {
	if _, ok := d.byName[node.Name]; ok {
		return definitionError(DuplicateNode, "Node '%s' is already defined", node.Name)
	}
	node.index = len(d.nodes)
	d.nodes = append(d.nodes, node)
	d.byName[node.Name] = node.index
	d.roots[node.index] = true
	d.version++
	return nil
}

// AddDependency makes child depend on parent. acceptance states whether the child runs when the parent is accepted
// or when it is not accepted.
func (d *RecipeDefinition) AddDependency(parentName, childName string, acceptance bool) error {
	child, ok := d.Node(childName)
	if !ok {
		return definitionError(UnknownNode, "Node '%s' is not defined", childName)
	}
	parent, ok := d.Node(parentName)
	if !ok {
		return definitionError(UnknownNode, "Node '%s' is not defined", parentName)
	}
	child.ParentalAcceptance[parentName] = acceptance
	if !slices.Contains(child.parents, parent.index) {
		child.parents = append(child.parents, parent.index)
		parent.children = append(parent.children, child.index)
	}
	delete(d.roots, child.index)
	d.version++
	return nil
}

// AddRecipeInputConnection connects a recipe input to a node input.
func (d *RecipeDefinition) AddRecipeInputConnection(nodeName, inputName, recipeInputName string) error {
	if _, ok := d.InputInterface.Parameter(recipeInputName); !ok {
		return definitionError(UnknownInput, "Recipe input '%s' is not defined", recipeInputName)
	}
	return d.addConnection(nodeName, &RecipeInputConnection{InputName: inputName, RecipeInputName: recipeInputName})
}

// AddDependencyInputConnection connects an output of a dependency node to a node input. Recipe nodes do not expose
// outputs so they cannot be the source of a connection.
func (d *RecipeDefinition) AddDependencyInputConnection(nodeName, inputName, dependencyName, outputName string) error {
	dependency, ok := d.Node(dependencyName)
	if !ok {
		return definitionError(UnknownNode, "Node '%s' is not defined", dependencyName)
	}
	if dependency.Kind() == RecipeNodeKind {
		return definitionError(ConnectionInvalidNode, "Node '%s' cannot have a connection to recipe node '%s'",
			nodeName, dependencyName)
	}
	return d.addConnection(nodeName, &DependencyInputConnection{
		InputName: inputName, NodeName: dependencyName, OutputName: outputName,
	})
}

func (d *RecipeDefinition) addConnection(nodeName string, connection InputConnection) error {
	node, ok := d.Node(nodeName)
	if !ok {
		return definitionError(UnknownNode, "Node '%s' is not defined", nodeName)
	}
	if err := node.addConnection(connection); err != nil {
		return err
	}
	d.version++
	return nil
}

func (d *RecipeDefinition) Node(name string) (*Node, bool) {
	i, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return d.nodes[i], true
}

// Nodes returns every node in insertion order.
func (d *RecipeDefinition) Nodes() []*Node {
	return slices.Clone(d.nodes)
}

func (d *RecipeDefinition) Len() int {
	return len(d.nodes)
}

// Parents returns the names of the direct parents of a node in the order the dependencies were added.
func (d *RecipeDefinition) Parents(name string) []string {
	node, ok := d.Node(name)
	if !ok {
		return nil
	}
	return d.names(node.parents)
}

// Children returns the names of the direct children of a node in the order the dependencies were added.
func (d *RecipeDefinition) Children(name string) []string {
	node, ok := d.Node(name)
	if !ok {
		return nil
	}
	return d.names(node.children)
}

// Roots returns the names of nodes without parents in insertion order.
func (d *RecipeDefinition) Roots() []string {
	var names []string
	for _, node := range d.nodes {
		if d.roots[node.index] {
			names = append(names, node.Name)
		}
	}
	return names
}

func (d *RecipeDefinition) names(indexes []int) []string {
	names := make([]string, len(indexes))
	for i, idx := range indexes {
		names[i] = d.nodes[idx].Name
	}
	return names
}

// TopologicalOrder returns the node names so that every parent precedes its children. Nodes are visited in insertion
// order and children in dependency order, so the result is deterministic. A cycle fails with CIRCULAR_DEPENDENCY.
func (d *RecipeDefinition) TopologicalOrder() ([]string, error) {
	if d.topoVersion == d.version {
		return slices.Clone(d.topoOrder), nil
	}

	const (
		unmarked = iota
		temporary
		permanent
	)
	type frame struct {
		node int
		next int
	}

	marks := make([]int, len(d.nodes))
	reversed := make([]string, 0, len(d.nodes))
	for start := range d.nodes {
		if marks[start] != unmarked {
			continue
		}
		marks[start] = temporary
		stack := []frame{{node: start}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := d.nodes[top.node].children
			if top.next < len(children) {
				child := children[top.next]
				top.next++
				switch marks[child] {
				case temporary:
					return nil, definitionError(CircularDependency, "Recipe node '%s' has a circular dependency on itself",
						d.nodes[child].Name)
				case unmarked:
					marks[child] = temporary
					stack = append(stack, frame{node: child})
				}
				continue
			}
			marks[top.node] = permanent
			reversed = append(reversed, d.nodes[top.node].Name)
			stack = stack[:len(stack)-1]
		}
	}

	order := make([]string, len(reversed))
	for i, name := range reversed {
		order[len(reversed)-1-i] = name
	}
	d.topoOrder = order
	d.topoVersion = d.version
	return slices.Clone(order), nil
}

// Ancestors returns the names of every transitive parent of a node.
func (d *RecipeDefinition) Ancestors(name string) map[string]bool {
	ancestors := map[string]bool{}
	node, ok := d.Node(name)
	if !ok {
		return ancestors
	}
	pending := slices.Clone(node.parents)
	for len(pending) > 0 {
		idx := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		parent := d.nodes[idx]
		if ancestors[parent.Name] {
			continue
		}
		ancestors[parent.Name] = true
		pending = append(pending, parent.parents...)
	}
	return ancestors
}

// HasAncestor reports whether ancestor is a transitive parent of child.
func (d *RecipeDefinition) HasAncestor(child, ancestor string) bool {
	return d.Ancestors(child)[ancestor]
}

// HasDescendant reports whether descendant is a transitive child of parent.
func (d *RecipeDefinition) HasDescendant(parent, descendant string) bool {
	return d.HasAncestor(descendant, parent)
}

// JobTypeKeys returns the distinct job types used by job nodes.
func (d *RecipeDefinition) JobTypeKeys() []JobTypeKey {
	seen := map[JobTypeKey]bool{}
	var keys []JobTypeKey
	for _, node := range d.nodes {
		if t, ok := node.Type.(*JobNodeType); ok {
			key := JobTypeKey{Name: t.JobTypeName, Version: t.JobTypeVersion}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// RecipeTypeNames returns the distinct recipe types used by recipe nodes.
func (d *RecipeDefinition) RecipeTypeNames() []string {
	var names []string
	for _, node := range d.nodes {
		if t, ok := node.Type.(*RecipeNodeType); ok && !slices.Contains(names, t.RecipeTypeName) {
			names = append(names, t.RecipeTypeName)
		}
	}
	return names
}

// JobNodes returns the job nodes of the given job type.
func (d *RecipeDefinition) JobNodes(jobTypeName, jobTypeVersion string) []*Node {
	var nodes []*Node
	for _, node := range d.nodes {
		if t, ok := node.Type.(*JobNodeType); ok && t.JobTypeName == jobTypeName && t.JobTypeVersion == jobTypeVersion {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// RecipeNodes returns the recipe nodes of the given recipe type.
func (d *RecipeDefinition) RecipeNodes(recipeTypeName string) []*Node {
	var nodes []*Node
	for _, node := range d.nodes {
		if t, ok := node.Type.(*RecipeNodeType); ok && t.RecipeTypeName == recipeTypeName {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// UpdateJobNodes moves job nodes of the given job type to a newer revision. It reports whether any node changed.
func (d *RecipeDefinition) UpdateJobNodes(jobTypeName, jobTypeVersion string, revision int) bool {
	updated := false
	for _, node := range d.JobNodes(jobTypeName, jobTypeVersion) {
		t := node.Type.(*JobNodeType)
		if t.JobTypeRevision < revision {
			t.JobTypeRevision = revision
			updated = true
		}
	}
	return updated
}

// UpdateRecipeNodes moves recipe nodes of the given recipe type to a newer revision. It reports whether any node
// changed.
func (d *RecipeDefinition) UpdateRecipeNodes(recipeTypeName string, revision int) bool {
	updated := false
	for _, node := range d.RecipeNodes(recipeTypeName) {
		t := node.Type.(*RecipeNodeType)
		if t.RecipeTypeRevision < revision {
			t.RecipeTypeRevision = revision
			updated = true
		}
	}
	return updated
}

// GenerateNodeInputData builds the input of a node from the recipe input and the output data of its dependencies,
// keyed by node name. Outputs that were never produced are skipped; if the result is missing a required value the
// node's own input validation reports it.
func (d *RecipeDefinition) GenerateNodeInputData(
	nodeName string, recipeInput *data.Data, nodeOutputs map[string]*data.Data,
) (*data.Data, error) {
	node, ok := d.Node(nodeName)
	if !ok {
		return nil, definitionError(UnknownNode, "Node '%s' is not defined", nodeName)
	}
	input := data.NewData()
	for _, name := range node.ConnectionNames() {
		if err := node.Connections[name].addValueToData(input, recipeInput, nodeOutputs); err != nil {
			return nil, err
		}
	}
	return input, nil
}

// Copy returns a deep copy of the definition.
func (d *RecipeDefinition) Copy() *RecipeDefinition {
	c := NewRecipeDefinition(d.InputInterface.Copy())
	for _, node := range d.nodes {
		n := newNode(node.Name, node.Type.copyType())
		n.index = node.index
		n.parents = slices.Clone(node.parents)
		n.children = slices.Clone(node.children)
		for name, connection := range node.Connections {
			n.Connections[name] = connection
		}
		for name, acceptance := range node.ParentalAcceptance {
			n.ParentalAcceptance[name] = acceptance
		}
		c.nodes = append(c.nodes, n)
		c.byName[n.Name] = n.index
	}
	for idx := range d.roots {
		c.roots[idx] = true
	}
	c.version = d.version
	return c
}
