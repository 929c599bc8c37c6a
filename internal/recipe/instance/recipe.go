// Package instance evaluates an executing recipe: given its definition and the persisted records of its nodes, it
// works out which nodes should be created next, which may have their input processed, which jobs should move
// between BLOCKED and PENDING and whether the recipe has completed.
//
// A RecipeInstance is a read-time view. It is rebuilt from the store every time it is needed and never persisted.
package instance

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
)

// Records holds the persisted records of a recipe's nodes.
type Records struct {
	Nodes      []*model.RecipeNode
	Jobs       map[int64]*model.Job
	SubRecipes map[int64]*model.Recipe
	Conditions map[int64]*model.Condition
}

type RecipeInstance struct {
	Recipe     *model.Recipe
	definition *definition.RecipeDefinition
	order      []string
	nodes      map[string]*Node
}

// NewRecipeInstance builds the instance graph for recipe. Record nodes that are not part of the definition are
// ignored.
func NewRecipeInstance(def *definition.RecipeDefinition, recipe *model.Recipe, records Records) (*RecipeInstance, error) {
	order, err := def.TopologicalOrder()
	if err != nil {
		return nil, errors.WithMessagef(err, "recipe %d", recipe.ID)
	}

	byName := make(map[string]*model.RecipeNode, len(records.Nodes))
	for _, rn := range records.Nodes {
		byName[rn.NodeName] = rn
	}

	r := &RecipeInstance{
		Recipe:     recipe,
		definition: def,
		order:      order,
		nodes:      make(map[string]*Node, len(order)),
	}
	for _, name := range order {
		nodeDef, _ := def.Node(name)
		node := &Node{Definition: nodeDef, IsOriginal: true}
		if rn, ok := byName[name]; ok {
			node.IsOriginal = rn.IsOriginal
			switch nodeDef.Kind() {
			case definition.JobNodeKind:
				node.Job = records.Jobs[rn.JobID]
				node.missing = node.Job == nil
			case definition.RecipeNodeKind:
				node.SubRecipe = records.SubRecipes[rn.SubRecipeID]
				node.missing = node.SubRecipe == nil
			case definition.ConditionNodeKind:
				node.Condition = records.Conditions[rn.ConditionID]
				node.missing = node.Condition == nil
			}
		} else {
			node.placeholder = true
		}
		for _, parentName := range def.Parents(name) {
			parent := r.nodes[parentName]
			node.parents = append(node.parents, parentEdge{node: parent, acceptance: nodeDef.ParentalAcceptance[parentName]})
			parent.children = append(parent.children, node)
		}
		r.nodes[name] = node
	}
	return r, nil
}

func (r *RecipeInstance) Definition() *definition.RecipeDefinition {
	return r.definition
}

func (r *RecipeInstance) Node(name string) (*Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// Nodes returns every node in topological order.
func (r *RecipeInstance) Nodes() []*Node {
	nodes := make([]*Node, len(r.order))
	for i, name := range r.order {
		nodes[i] = r.nodes[name]
	}
	return nodes
}

// JobsToUpdate returns the IDs of jobs that should move to BLOCKED and of jobs that should move back to PENDING. A
// job is blocked when a job before it failed or was canceled, or a sub-recipe before it contains such a job.
func (r *RecipeInstance) JobsToUpdate() (blocked []int64, pending []int64) {
	for _, name := range r.order {
		b, p := r.nodes[name].updateBlocking()
		if b != 0 {
			blocked = append(blocked, b)
		}
		if p != 0 {
			pending = append(pending, p)
		}
	}
	return blocked, pending
}

// NodesToCreate returns, in topological order, the definitions of nodes without a record whose parents allow them to
// be created.
func (r *RecipeInstance) NodesToCreate() []*definition.Node {
	var nodes []*definition.Node
	for _, name := range r.order {
		node := r.nodes[name]
		if node.needsToBeCreated() {
			nodes = append(nodes, node.Definition)
		}
	}
	return nodes
}

// NodesToProcessInput returns the nodes, keyed by name, whose parents are all ready and whose input has not been
// processed. Placeholders are included so that newly created nodes know whether to process their input
// straight away. Nothing is returned until the recipe itself has input.
func (r *RecipeInstance) NodesToProcessInput() map[string]*Node {
	nodes := map[string]*Node{}
	if !r.Recipe.HasInput() {
		return nodes
	}
	for _, name := range r.order {
		node := r.nodes[name]
		if node.needsToProcessInput() {
			nodes[name] = node
		}
	}
	return nodes
}

// OriginalLeafNodes returns the nodes without children that have a record created for this recipe, i.e. not copied
// from a superseded recipe, sorted by name.
func (r *RecipeInstance) OriginalLeafNodes() []*Node {
	var leaves []*Node
	for _, node := range r.nodes {
		if node.IsOriginal && !node.placeholder && len(node.children) == 0 {
			leaves = append(leaves, node)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Name() < leaves[j].Name() })
	return leaves
}

// HasCompleted returns true when there is nothing left to create and every node has completed. A node whose record
// is missing keeps the recipe from completing and is logged.
func (r *RecipeInstance) HasCompleted(ctx *scalecontext.Context) bool {
	if len(r.NodesToCreate()) > 0 {
		return false
	}
	for _, name := range r.order {
		node := r.nodes[name]
		if node.missing {
			ctx.Log.Errorf("Recipe %d is missing the record for node '%s'", r.Recipe.ID, name)
			return false
		}
		if !node.isCompleted() {
			return false
		}
	}
	return true
}

// NodeOutputs returns the output data of every node that has produced some, keyed by node name.
func (r *RecipeInstance) NodeOutputs() map[string]*data.Data {
	outputs := map[string]*data.Data{}
	for name, node := range r.nodes {
		if output := node.Output(); output != nil {
			outputs[name] = output
		}
	}
	return outputs
}

// JobIDs returns the job ID of every job node, keyed by node name.
func (r *RecipeInstance) JobIDs() map[string]int64 {
	ids := map[string]int64{}
	for name, node := range r.nodes {
		if node.Job != nil {
			ids[name] = node.Job.ID
		}
	}
	return ids
}

// SubRecipeIDs returns the recipe ID of every sub-recipe node, keyed by node name.
func (r *RecipeInstance) SubRecipeIDs() map[string]int64 {
	ids := map[string]int64{}
	for name, node := range r.nodes {
		if node.SubRecipe != nil {
			ids[name] = node.SubRecipe.ID
		}
	}
	return ids
}

// ConditionIDs returns the condition ID of every condition node, keyed by node name.
func (r *RecipeInstance) ConditionIDs() map[string]int64 {
	ids := map[string]int64{}
	for name, node := range r.nodes {
		if node.Condition != nil {
			ids[name] = node.Condition.ID
		}
	}
	return ids
}
