// Package store defines the transactional persistence contract used by command messages and the scheduler.
//
// Every state change happens inside Store.Atomic. Rows are locked in ascending id order before being read and
// changed, and every job update is a compare-and-set on the status and execution number the caller last saw, so
// that a message delivered twice, or delivered after a newer one, degrades to a no-op.
package store

import (
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/model"
)

type Store interface {
	// Atomic runs fn in a single transaction. If fn returns an error, nothing it did through tx is kept.
	Atomic(ctx *scalecontext.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction. Lookups of many ids silently skip ids that do not exist
// and return results sorted by id.
type Tx interface {
	// LockJobs locks the given jobs until the end of the transaction and returns them.
	LockJobs(ids []int64) ([]*model.Job, error)
	LockRecipes(ids []int64) ([]*model.Recipe, error)
	LockConditions(ids []int64) ([]*model.Condition, error)
	LockBatches(ids []int64) ([]*model.Batch, error)

	GetJobs(ids []int64) ([]*model.Job, error)
	// GetJobsForEvent returns the jobs created directly, outside any recipe, for the given event.
	GetJobsForEvent(eventID int64) ([]*model.Job, error)
	// QueuedJobs returns up to limit queued jobs ordered by priority (lowest first), then by the time they were queued.
	QueuedJobs(limit int) ([]*model.Job, error)
	RunningJobs() ([]*model.Job, error)

	// GetRecipe fails with *scaleerrors.ErrNotFound if the recipe does not exist.
	GetRecipe(id int64) (*model.Recipe, error)
	GetRecipes(ids []int64) ([]*model.Recipe, error)
	// GetLatestRecipes returns, for each root id, the newest recipe of its supersede chain that has not been
	// superseded. Chains whose recipes have all been superseded are skipped.
	GetLatestRecipes(rootIDs []int64) ([]*model.Recipe, error)
	// GetRecipesForEvent returns the top-level recipes created for the given event.
	GetRecipesForEvent(eventID int64) ([]*model.Recipe, error)
	GetRecipesInBatch(batchID int64) ([]*model.Recipe, error)

	// GetRecipeNodes returns the nodes of the given recipes, sorted by recipe id and node name.
	GetRecipeNodes(recipeIDs []int64) ([]*model.RecipeNode, error)
	// GetRecipeNodesForJobs returns the recipe nodes that point at the given jobs, both original and copied.
	GetRecipeNodesForJobs(jobIDs []int64) ([]*model.RecipeNode, error)
	// GetRecipeNodesForSubRecipes returns the recipe nodes that point at the given sub-recipes.
	GetRecipeNodesForSubRecipes(recipeIDs []int64) ([]*model.RecipeNode, error)

	GetConditions(ids []int64) ([]*model.Condition, error)

	// UpdateJobs applies each update whose job still has the expected status and execution number. It returns the ids
	// of the jobs actually changed.
	UpdateJobs(updates []JobUpdate) ([]int64, error)
	// UpdateRecipes applies each update whose recipe still has the expected superseded flag. It returns the ids of the
	// recipes actually changed.
	UpdateRecipes(updates []RecipeUpdate) ([]int64, error)
	// UpdateConditions applies each update whose condition still has the expected processed flag. It returns the ids
	// of the conditions actually changed.
	UpdateConditions(updates []ConditionUpdate) ([]int64, error)

	// InsertJobs, InsertRecipes and InsertConditions assign ids to the records they are given.
	InsertJobs(jobs []*model.Job) error
	InsertRecipes(recipes []*model.Recipe) error
	InsertConditions(conditions []*model.Condition) error
	// InsertRecipeNodes fails with *scaleerrors.ErrAlreadyExists if a recipe already has a node of the same name.
	InsertRecipeNodes(nodes []*model.RecipeNode) error
	// SaveBatch inserts the batch when its id is zero, assigning one, and replaces it otherwise.
	SaveBatch(batch *model.Batch) error
}

// JobUpdate replaces a job provided it is still in FromStatus with FromNumExes executions.
type JobUpdate struct {
	Job         *model.Job
	FromStatus  model.JobStatus
	FromNumExes int
}

// NewJobUpdate returns an update guarded on the current state of job, which the caller then modifies.
func NewJobUpdate(job *model.Job) (JobUpdate, *model.Job) {
	updated := job.DeepCopy()
	return JobUpdate{Job: updated, FromStatus: job.Status, FromNumExes: job.NumExes}, updated
}

// RecipeUpdate replaces a recipe provided its IsSuperseded flag still equals FromSuperseded.
type RecipeUpdate struct {
	Recipe         *model.Recipe
	FromSuperseded bool
}

// ConditionUpdate replaces a condition provided its IsProcessed flag still equals FromProcessed.
type ConditionUpdate struct {
	Condition     *model.Condition
	FromProcessed bool
}

// JobIDs returns the ids of the given jobs.
func JobIDs(jobs []*model.Job) []int64 {
	ids := make([]int64, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids
}

func RecipeIDs(recipes []*model.Recipe) []int64 {
	ids := make([]int64, len(recipes))
	for i, recipe := range recipes {
		ids[i] = recipe.ID
	}
	return ids
}
