package messages

import (
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

// UpdateRecipeMetrics recounts the jobs and sub-recipes of recipes. Sub-recipe counts roll up into the recipes
// containing them, and top-level recipe counts roll up into their batches.
type UpdateRecipeMetrics struct {
	base
	RecipeIDs []int64 `json:"recipe_ids" validate:"required,max=100"`
}

func NewUpdateRecipeMetricsMessages(recipeIDs []int64) []messaging.CommandMessage {
	return chunk(uniqueSorted(recipeIDs), func(ids []int64) messaging.CommandMessage {
		return &UpdateRecipeMetrics{RecipeIDs: ids}
	})
}

func (m *UpdateRecipeMetrics) Type() string { return UpdateRecipeMetricsType }

func (m *UpdateRecipeMetrics) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *UpdateRecipeMetrics) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		recipes, err := tx.LockRecipes(m.RecipeIDs)
		if err != nil {
			return err
		}
		nodes, err := tx.GetRecipeNodes(store.RecipeIDs(recipes))
		if err != nil {
			return err
		}
		var jobIDs, subRecipeIDs []int64
		for _, node := range nodes {
			if node.JobID != 0 {
				jobIDs = append(jobIDs, node.JobID)
			}
			if node.SubRecipeID != 0 {
				subRecipeIDs = append(subRecipeIDs, node.SubRecipeID)
			}
		}
		jobs, err := tx.GetJobs(jobIDs)
		if err != nil {
			return err
		}
		jobsByID := make(map[int64]*model.Job, len(jobs))
		for _, job := range jobs {
			jobsByID[job.ID] = job
		}
		subRecipes, err := tx.GetRecipes(subRecipeIDs)
		if err != nil {
			return err
		}
		subRecipesByID := make(map[int64]*model.Recipe, len(subRecipes))
		for _, sub := range subRecipes {
			subRecipesByID[sub.ID] = sub
		}

		metrics := map[int64]*model.RecipeMetrics{}
		for _, recipe := range recipes {
			metrics[recipe.ID] = &model.RecipeMetrics{}
		}
		for _, node := range nodes {
			counts := metrics[node.RecipeID]
			if job, ok := jobsByID[node.JobID]; ok {
				counts.CountJob(job.Status)
			}
			if sub, ok := subRecipesByID[node.SubRecipeID]; ok {
				counts.SubRecipesTotal++
				if sub.IsCompleted {
					counts.SubRecipesCompleted++
				}
				counts.Add(sub.RecipeMetrics)
			}
		}

		var updates []store.RecipeUpdate
		var batchIDs []int64
		for _, recipe := range recipes {
			updated := recipe.DeepCopy()
			updated.RecipeMetrics = *metrics[recipe.ID]
			updates = append(updates, store.RecipeUpdate{Recipe: updated, FromSuperseded: recipe.IsSuperseded})
			if !recipe.IsSubRecipe() && recipe.BatchID != 0 {
				batchIDs = append(batchIDs, recipe.BatchID)
			}
		}
		changed, err := tx.UpdateRecipes(updates)
		if err != nil {
			return err
		}
		recordUpdates(outcome, entityRecipe, store.RecipeIDs(recipes), changed)

		// Recipes containing these as sub-recipes need their counts and their progress updated.
		parentNodes, err := tx.GetRecipeNodesForSubRecipes(store.RecipeIDs(recipes))
		if err != nil {
			return err
		}
		var parentIDs []int64
		for _, node := range parentNodes {
			parentIDs = append(parentIDs, node.RecipeID)
		}
		parentIDs = uniqueSorted(parentIDs)
		if len(parentIDs) > 0 {
			outcome.Send(NewUpdateRecipeMetricsMessages(parentIDs)...)
			parents, err := tx.GetRecipes(parentIDs)
			if err != nil {
				return err
			}
			rootIDs := make([]int64, len(parents))
			for i, parent := range parents {
				rootIDs[i] = parent.RootID()
			}
			outcome.Send(NewUpdateRecipeMessages(uniqueSorted(rootIDs), nil)...)
		}
		outcome.Send(NewUpdateBatchMetricsMessages(batchIDs)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// UpdateBatchMetrics recounts the recipes of batches and sums their job and sub-recipe counts.
type UpdateBatchMetrics struct {
	base
	BatchIDs []int64 `json:"batch_ids" validate:"required,max=100"`
}

func NewUpdateBatchMetricsMessages(batchIDs []int64) []messaging.CommandMessage {
	return chunk(uniqueSorted(batchIDs), func(ids []int64) messaging.CommandMessage {
		return &UpdateBatchMetrics{BatchIDs: ids}
	})
}

func (m *UpdateBatchMetrics) Type() string { return UpdateBatchMetricsType }

func (m *UpdateBatchMetrics) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *UpdateBatchMetrics) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		batches, err := tx.LockBatches(m.BatchIDs)
		if err != nil {
			return err
		}
		for _, batch := range batches {
			recipes, err := tx.GetRecipesInBatch(batch.ID)
			if err != nil {
				return err
			}
			updated := batch.DeepCopy()
			updated.RecipeMetrics = model.RecipeMetrics{}
			updated.RecipesTotal = 0
			updated.RecipesCompleted = 0
			for _, recipe := range recipes {
				if recipe.IsSubRecipe() || recipe.IsSuperseded {
					continue
				}
				updated.RecipesTotal++
				if recipe.IsCompleted {
					updated.RecipesCompleted++
				}
				updated.RecipeMetrics.Add(recipe.RecipeMetrics)
			}
			if err := tx.SaveBatch(updated); err != nil {
				return err
			}
			outcome.Apply(entityBatch, batch.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
