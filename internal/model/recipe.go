package model

import (
	"time"

	"github.com/ngageoint/scale/internal/data"
)

// RecipeMetrics counts the jobs and sub-recipes within a recipe, including those of its sub-recipes.
type RecipeMetrics struct {
	JobsTotal           int
	JobsPending         int
	JobsBlocked         int
	JobsQueued          int
	JobsRunning         int
	JobsFailed          int
	JobsCompleted       int
	JobsCanceled        int
	SubRecipesTotal     int
	SubRecipesCompleted int
}

// CountJob adds a job in the given status.
func (m *RecipeMetrics) CountJob(status JobStatus) {
	m.JobsTotal++
	switch status {
	case JobPending:
		m.JobsPending++
	case JobBlocked:
		m.JobsBlocked++
	case JobQueued:
		m.JobsQueued++
	case JobRunning:
		m.JobsRunning++
	case JobFailed:
		m.JobsFailed++
	case JobCompleted:
		m.JobsCompleted++
	case JobCanceled:
		m.JobsCanceled++
	}
}

// Add adds the counts of a contained recipe.
func (m *RecipeMetrics) Add(o RecipeMetrics) {
	m.JobsTotal += o.JobsTotal
	m.JobsPending += o.JobsPending
	m.JobsBlocked += o.JobsBlocked
	m.JobsQueued += o.JobsQueued
	m.JobsRunning += o.JobsRunning
	m.JobsFailed += o.JobsFailed
	m.JobsCompleted += o.JobsCompleted
	m.JobsCanceled += o.JobsCanceled
	m.SubRecipesTotal += o.SubRecipesTotal
	m.SubRecipesCompleted += o.SubRecipesCompleted
}

// BlockingJobs is the number of jobs that stop nodes after this recipe from running.
func (m *RecipeMetrics) BlockingJobs() int {
	return m.JobsBlocked + m.JobsCanceled + m.JobsFailed
}

type Recipe struct {
	ID                 int64
	RecipeTypeName     string
	RecipeTypeRevision int
	EventID            int64
	// RecipeID is the recipe containing this one when it is a sub-recipe.
	RecipeID     int64
	BatchID      int64
	IsSuperseded bool
	// SupersededRecipeID is the recipe this one replaced, RootSupersededRecipeID the first recipe in that chain.
	SupersededRecipeID     int64
	RootSupersededRecipeID int64
	Input                  *data.Data
	InputFileSize          float64
	RecipeMetrics
	IsCompleted bool

	Created      time.Time
	Completed    time.Time
	Superseded   time.Time
	LastModified time.Time
}

// RootID returns the first recipe ID in this recipe's supersede chain. Messages that update a recipe are keyed on it so
// that they always find the newest recipe of the chain.
func (r *Recipe) RootID() int64 {
	if r.RootSupersededRecipeID != 0 {
		return r.RootSupersededRecipeID
	}
	return r.ID
}

func (r *Recipe) HasInput() bool {
	return r.Input != nil
}

func (r *Recipe) IsSubRecipe() bool {
	return r.RecipeID != 0
}

func (r *Recipe) DeepCopy() *Recipe {
	c := *r
	if r.Input != nil {
		c.Input = r.Input.Copy()
	}
	return &c
}

// RecipeNode links a recipe to the job, condition or sub-recipe backing one of its nodes. Exactly one of JobID,
// ConditionID and SubRecipeID is set.
type RecipeNode struct {
	RecipeID    int64
	NodeName    string
	IsOriginal  bool
	JobID       int64
	ConditionID int64
	SubRecipeID int64
}

// Condition is the persisted record of a condition node.
type Condition struct {
	ID           int64
	RootRecipeID int64
	RecipeID     int64
	BatchID      int64
	// Data is the input the condition was evaluated against. It is also the condition's output.
	Data        *data.Data
	IsProcessed bool
	IsAccepted  bool

	Created      time.Time
	Processed    time.Time
	LastModified time.Time
}

func (c *Condition) DeepCopy() *Condition {
	cp := *c
	if c.Data != nil {
		cp.Data = c.Data.Copy()
	}
	return &cp
}
