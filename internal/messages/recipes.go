package messages

import (
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
	"github.com/ngageoint/scale/internal/recipe/diff"
	"github.com/ngageoint/scale/internal/recipe/instance"
	"github.com/ngageoint/scale/internal/store"
)

func (e *Env) recipeDefinition(recipe *model.Recipe) (*definition.RecipeDefinition, error) {
	rev, err := e.Catalog.RecipeTypeRevision(recipe.RecipeTypeName, recipe.RecipeTypeRevision)
	if err != nil {
		return nil, errors.WithMessagef(err, "recipe %d", recipe.ID)
	}
	return rev.Definition, nil
}

// recipeInstance loads the definition of recipe and the records of all of its nodes.
func (e *Env) recipeInstance(tx store.Tx, recipe *model.Recipe) (*instance.RecipeInstance, error) {
	def, err := e.recipeDefinition(recipe)
	if err != nil {
		return nil, err
	}
	nodes, err := tx.GetRecipeNodes([]int64{recipe.ID})
	if err != nil {
		return nil, err
	}
	var jobIDs, subRecipeIDs, conditionIDs []int64
	for _, node := range nodes {
		switch {
		case node.JobID != 0:
			jobIDs = append(jobIDs, node.JobID)
		case node.SubRecipeID != 0:
			subRecipeIDs = append(subRecipeIDs, node.SubRecipeID)
		case node.ConditionID != 0:
			conditionIDs = append(conditionIDs, node.ConditionID)
		}
	}

	records := instance.Records{
		Nodes:      nodes,
		Jobs:       map[int64]*model.Job{},
		SubRecipes: map[int64]*model.Recipe{},
		Conditions: map[int64]*model.Condition{},
	}
	jobs, err := tx.GetJobs(jobIDs)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		records.Jobs[job.ID] = job
	}
	subRecipes, err := tx.GetRecipes(subRecipeIDs)
	if err != nil {
		return nil, err
	}
	for _, sub := range subRecipes {
		records.SubRecipes[sub.ID] = sub
	}
	conditions, err := tx.GetConditions(conditionIDs)
	if err != nil {
		return nil, err
	}
	for _, condition := range conditions {
		records.Conditions[condition.ID] = condition
	}
	return instance.NewRecipeInstance(def, recipe, records)
}

// nodeInput generates the input of the named node of recipe from the recipe input and the outputs of the other nodes.
func nodeInput(inst *instance.RecipeInstance, nodeName string) (*data.Data, error) {
	return inst.Definition().GenerateNodeInputData(nodeName, inst.Recipe.Input, inst.NodeOutputs())
}

// nodeNameOf returns the name under which ids holds id.
func nodeNameOf(ids map[string]int64, id int64) (string, bool) {
	for name, nodeID := range ids {
		if nodeID == id {
			return name, true
		}
	}
	return "", false
}

// recipeMetricsMessagesForJobs returns messages updating the metrics of every recipe containing one of the given jobs,
// including recipes the jobs were copied into.
func recipeMetricsMessagesForJobs(tx store.Tx, jobIDs []int64) ([]messaging.CommandMessage, error) {
	nodes, err := tx.GetRecipeNodesForJobs(jobIDs)
	if err != nil {
		return nil, err
	}
	recipeIDs := make([]int64, len(nodes))
	for i, node := range nodes {
		recipeIDs[i] = node.RecipeID
	}
	return NewUpdateRecipeMetricsMessages(recipeIDs), nil
}

// updateRecipeMessagesForJobs returns messages updating the recipes containing the given jobs.
func updateRecipeMessagesForJobs(jobs []*model.Job) []messaging.CommandMessage {
	rootIDs := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		rootIDs = append(rootIDs, job.RootRecipeID)
	}
	return NewUpdateRecipeMessages(uniqueSorted(rootIDs), nil)
}

// recipeDiff compares the definition of a superseded recipe with the definition of the recipe replacing it.
func (e *Env) recipeDiff(superseded, replacement *model.Recipe, forced *diff.ForcedNodes) (*diff.RecipeDiff, error) {
	prevDef, err := e.recipeDefinition(superseded)
	if err != nil {
		return nil, err
	}
	def, err := e.recipeDefinition(replacement)
	if err != nil {
		return nil, err
	}
	d, err := diff.NewRecipeDiff(prevDef, def)
	if err != nil {
		return nil, err
	}
	if forced != nil {
		d.SetForceReprocess(forced)
	}
	return d, nil
}

// copyRecipeNodes points the nodes the diff keeps unchanged in replacement at the records of superseded.
func copyRecipeNodes(tx store.Tx, d *diff.RecipeDiff, superseded, replacement *model.Recipe) error {
	toCopy := d.NodesToCopy()
	if len(toCopy) == 0 {
		return nil
	}
	nodes, err := tx.GetRecipeNodes([]int64{superseded.ID})
	if err != nil {
		return err
	}
	var copies []*model.RecipeNode
	for _, node := range nodes {
		if _, ok := toCopy[node.NodeName]; !ok {
			continue
		}
		copies = append(copies, &model.RecipeNode{
			RecipeID:    replacement.ID,
			NodeName:    node.NodeName,
			IsOriginal:  false,
			JobID:       node.JobID,
			ConditionID: node.ConditionID,
			SubRecipeID: node.SubRecipeID,
		})
	}
	return tx.InsertRecipeNodes(copies)
}
