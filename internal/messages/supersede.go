package messages

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/store"
)

// SupersedeRecipeNodes marks the jobs and sub-recipes of superseded recipes as superseded and cancels the superseded
// jobs. Sub-recipes named in SupersedeRecursive, or all of them with SupersedeRecursiveAll, have everything inside
// them superseded as well.
type SupersedeRecipeNodes struct {
	base
	RecipeIDs             []int64   `json:"recipe_ids" validate:"required,max=100"`
	When                  time.Time `json:"when" validate:"required"`
	SupersedeAll          bool      `json:"supersede_all"`
	SupersedeJobs         []string  `json:"supersede_jobs,omitempty"`
	SupersedeSubRecipes   []string  `json:"supersede_subrecipes,omitempty"`
	SupersedeRecursiveAll bool      `json:"supersede_recursive_all"`
	SupersedeRecursive    []string  `json:"supersede_recursive,omitempty"`
}

// NewSupersedeAllMessages creates messages that supersede every node inside the given recipes, recursively.
func NewSupersedeAllMessages(recipeIDs []int64, when time.Time) []messaging.CommandMessage {
	return chunk(recipeIDs, func(ids []int64) messaging.CommandMessage {
		return &SupersedeRecipeNodes{RecipeIDs: ids, When: when, SupersedeAll: true, SupersedeRecursiveAll: true}
	})
}

func (m *SupersedeRecipeNodes) Type() string { return SupersedeRecipeNodesType }

func (m *SupersedeRecipeNodes) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *SupersedeRecipeNodes) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		nodes, err := tx.GetRecipeNodes(m.RecipeIDs)
		if err != nil {
			return err
		}
		var jobIDs, subRecipeIDs, recursiveIDs []int64
		for _, node := range nodes {
			switch {
			case node.JobID != 0:
				if m.SupersedeAll || slices.Contains(m.SupersedeJobs, node.NodeName) {
					jobIDs = append(jobIDs, node.JobID)
				}
			case node.SubRecipeID != 0:
				if m.SupersedeAll || slices.Contains(m.SupersedeSubRecipes, node.NodeName) {
					subRecipeIDs = append(subRecipeIDs, node.SubRecipeID)
				}
				if m.SupersedeRecursiveAll || slices.Contains(m.SupersedeRecursive, node.NodeName) {
					recursiveIDs = append(recursiveIDs, node.SubRecipeID)
				}
			}
		}
		jobIDs = uniqueSorted(jobIDs)
		subRecipeIDs = uniqueSorted(subRecipeIDs)

		jobs, err := tx.LockJobs(jobIDs)
		if err != nil {
			return err
		}
		var jobUpdates []store.JobUpdate
		var attemptedJobs []int64
		for _, job := range jobs {
			if job.IsSuperseded {
				outcome.Skip(entityJob, job.ID, "already superseded")
				continue
			}
			update, superseded := store.NewJobUpdate(job)
			superseded.IsSuperseded = true
			superseded.Superseded = m.When
			jobUpdates = append(jobUpdates, update)
			attemptedJobs = append(attemptedJobs, job.ID)
		}
		if len(jobUpdates) > 0 {
			changed, err := tx.UpdateJobs(jobUpdates)
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityJob, attemptedJobs, changed)
		}

		recipes, err := tx.LockRecipes(subRecipeIDs)
		if err != nil {
			return err
		}
		var recipeUpdates []store.RecipeUpdate
		var attemptedRecipes []int64
		for _, recipe := range recipes {
			if recipe.IsSuperseded {
				outcome.Skip(entityRecipe, recipe.ID, "already superseded")
				continue
			}
			superseded := recipe.DeepCopy()
			superseded.IsSuperseded = true
			superseded.Superseded = m.When
			recipeUpdates = append(recipeUpdates, store.RecipeUpdate{Recipe: superseded, FromSuperseded: false})
			attemptedRecipes = append(attemptedRecipes, recipe.ID)
		}
		if len(recipeUpdates) > 0 {
			changed, err := tx.UpdateRecipes(recipeUpdates)
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityRecipe, attemptedRecipes, changed)
		}

		ctx.Log.Infof("Superseded %d job(s) and %d sub-recipe(s) of %d recipe(s)", len(jobUpdates), len(recipeUpdates), len(m.RecipeIDs))
		outcome.Send(NewCancelJobsMessages(jobIDs, m.When)...)
		outcome.Send(NewSupersedeAllMessages(uniqueSorted(recursiveIDs), m.When)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
