// Package storetest holds the behaviour every store.Store implementation must share. Implementations run it from
// their own tests.
package storetest

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

var baseTime = time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)

// Run runs the shared tests. withStore must call action with a new, empty store.
func Run(t *testing.T, withStore func(t *testing.T, action func(s store.Store))) {
	tests := map[string]func(t *testing.T, s store.Store){
		"InsertAndGetJobs":       testInsertAndGetJobs,
		"UpdateJobsIsGuarded":    testUpdateJobsIsGuarded,
		"QueuedJobsOrder":        testQueuedJobsOrder,
		"LatestRecipes":          testLatestRecipes,
		"RecipeNodes":            testRecipeNodes,
		"DuplicateRecipeNode":    testDuplicateRecipeNode,
		"ConditionUpdateGuarded": testConditionUpdateGuarded,
		"EventLookups":           testEventLookups,
		"SaveBatch":              testSaveBatch,
		"RollbackOnError":        testRollbackOnError,
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			withStore(t, func(s store.Store) {
				test(t, s)
			})
		})
	}
}

func atomic(t *testing.T, s store.Store, fn func(tx store.Tx) error) {
	require.NoError(t, s.Atomic(scalecontext.Background(), fn))
}

func newJob(status model.JobStatus) *model.Job {
	return &model.Job{
		JobTypeName:     "ingest",
		JobTypeVersion:  "1.0",
		JobTypeRevision: 1,
		Status:          status,
		MaxTries:        3,
		Priority:        100,
	}
}

func testInsertAndGetJobs(t *testing.T, s store.Store) {
	input := data.NewData()
	require.NoError(t, input.AddValue(data.NewFileValue("files", 1, 2)))
	jobs := []*model.Job{newJob(model.JobPending), newJob(model.JobBlocked)}
	jobs[0].Input = input
	jobs[0].Timeout = 90 * time.Second
	jobs[0].Resources = model.Resources{model.CPUs: 2}

	atomic(t, s, func(tx store.Tx) error {
		return tx.InsertJobs(jobs)
	})
	require.NotZero(t, jobs[0].ID)
	require.NotEqual(t, jobs[0].ID, jobs[1].ID)

	atomic(t, s, func(tx store.Tx) error {
		got, err := tx.GetJobs([]int64{jobs[1].ID, jobs[0].ID, 999999})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, jobs[0].ID, got[0].ID)
		assert.Equal(t, model.JobPending, got[0].Status)
		assert.Equal(t, 90*time.Second, got[0].Timeout)
		assert.Equal(t, 2.0, got[0].Resources[model.CPUs])
		require.True(t, got[0].HasInput())
		assert.Equal(t, []int64{1, 2}, got[0].Input.FileIDs())
		assert.False(t, got[0].HasOutput())
		assert.True(t, got[0].Queued.IsZero())
		assert.False(t, got[0].Created.IsZero())
		assert.Equal(t, model.JobBlocked, got[1].Status)
		return nil
	})
}

func testUpdateJobsIsGuarded(t *testing.T, s store.Store) {
	jobs := []*model.Job{newJob(model.JobPending), newJob(model.JobPending)}
	atomic(t, s, func(tx store.Tx) error {
		return tx.InsertJobs(jobs)
	})

	atomic(t, s, func(tx store.Tx) error {
		locked, err := tx.LockJobs(store.JobIDs(jobs))
		require.NoError(t, err)
		require.Len(t, locked, 2)

		fresh, queued := store.NewJobUpdate(locked[0])
		queued.Status = model.JobQueued
		queued.NumExes = 1
		queued.Queued = baseTime

		stale, other := store.NewJobUpdate(locked[1])
		stale.FromStatus = model.JobBlocked
		other.Status = model.JobQueued

		updated, err := tx.UpdateJobs([]store.JobUpdate{fresh, stale})
		require.NoError(t, err)
		assert.Equal(t, []int64{jobs[0].ID}, updated)
		return nil
	})

	atomic(t, s, func(tx store.Tx) error {
		got, err := tx.GetJobs(store.JobIDs(jobs))
		require.NoError(t, err)
		assert.Equal(t, model.JobQueued, got[0].Status)
		assert.Equal(t, 1, got[0].NumExes)
		assert.False(t, got[0].Queued.IsZero())
		assert.Equal(t, model.JobPending, got[1].Status)

		// The same update again finds the job already queued
		replay, _ := store.NewJobUpdate(jobs[0])
		replay.Job.Status = model.JobQueued
		updated, err := tx.UpdateJobs([]store.JobUpdate{replay})
		require.NoError(t, err)
		assert.Empty(t, updated)
		return nil
	})
}

func testQueuedJobsOrder(t *testing.T, s store.Store) {
	queue := func(priority int, queued time.Time) *model.Job {
		job := newJob(model.JobQueued)
		job.Priority = priority
		job.Queued = queued
		job.NumExes = 1
		return job
	}
	jobs := []*model.Job{
		queue(200, baseTime),
		queue(100, baseTime.Add(time.Minute)),
		queue(100, baseTime),
		queue(300, baseTime),
		newJob(model.JobPending),
	}
	atomic(t, s, func(tx store.Tx) error {
		return tx.InsertJobs(jobs)
	})

	atomic(t, s, func(tx store.Tx) error {
		got, err := tx.QueuedJobs(0)
		require.NoError(t, err)
		assert.Equal(t, []int64{jobs[2].ID, jobs[1].ID, jobs[0].ID, jobs[3].ID}, store.JobIDs(got))

		limited, err := tx.QueuedJobs(2)
		require.NoError(t, err)
		assert.Equal(t, []int64{jobs[2].ID, jobs[1].ID}, store.JobIDs(limited))

		running, err := tx.RunningJobs()
		require.NoError(t, err)
		assert.Empty(t, running)
		return nil
	})
}

func testLatestRecipes(t *testing.T, s store.Store) {
	first := &model.Recipe{RecipeTypeName: "r", RecipeTypeRevision: 1}
	lone := &model.Recipe{RecipeTypeName: "r", RecipeTypeRevision: 1}
	atomic(t, s, func(tx store.Tx) error {
		return tx.InsertRecipes([]*model.Recipe{first, lone})
	})

	second := &model.Recipe{
		RecipeTypeName:         "r",
		RecipeTypeRevision:     2,
		SupersededRecipeID:     first.ID,
		RootSupersededRecipeID: first.ID,
	}
	atomic(t, s, func(tx store.Tx) error {
		if err := tx.InsertRecipes([]*model.Recipe{second}); err != nil {
			return err
		}
		superseded := first.DeepCopy()
		superseded.IsSuperseded = true
		superseded.Superseded = baseTime
		updated, err := tx.UpdateRecipes([]store.RecipeUpdate{{Recipe: superseded, FromSuperseded: false}})
		require.NoError(t, err)
		assert.Equal(t, []int64{first.ID}, updated)
		return nil
	})

	atomic(t, s, func(tx store.Tx) error {
		latest, err := tx.GetLatestRecipes([]int64{first.ID, lone.ID})
		require.NoError(t, err)
		assert.Equal(t, []int64{lone.ID, second.ID}, store.RecipeIDs(latest))
		assert.Equal(t, first.ID, latest[1].RootID())

		// Superseding again from a stale view is skipped
		again := first.DeepCopy()
		again.IsSuperseded = true
		updated, err := tx.UpdateRecipes([]store.RecipeUpdate{{Recipe: again, FromSuperseded: false}})
		require.NoError(t, err)
		assert.Empty(t, updated)

		_, err = tx.GetRecipe(999999)
		var notFound *scaleerrors.ErrNotFound
		assert.True(t, errors.As(err, &notFound))
		return nil
	})
}

func testRecipeNodes(t *testing.T, s store.Store) {
	parent := &model.Recipe{RecipeTypeName: "r", RecipeTypeRevision: 1}
	job := newJob(model.JobPending)
	atomic(t, s, func(tx store.Tx) error {
		if err := tx.InsertRecipes([]*model.Recipe{parent}); err != nil {
			return err
		}
		return tx.InsertJobs([]*model.Job{job})
	})
	sub := &model.Recipe{RecipeTypeName: "s", RecipeTypeRevision: 1, RecipeID: parent.ID}
	atomic(t, s, func(tx store.Tx) error {
		if err := tx.InsertRecipes([]*model.Recipe{sub}); err != nil {
			return err
		}
		return tx.InsertRecipeNodes([]*model.RecipeNode{
			{RecipeID: parent.ID, NodeName: "b", IsOriginal: true, SubRecipeID: sub.ID},
			{RecipeID: parent.ID, NodeName: "a", IsOriginal: true, JobID: job.ID},
		})
	})

	atomic(t, s, func(tx store.Tx) error {
		nodes, err := tx.GetRecipeNodes([]int64{parent.ID})
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		assert.Equal(t, "a", nodes[0].NodeName)
		assert.Equal(t, "b", nodes[1].NodeName)

		forJobs, err := tx.GetRecipeNodesForJobs([]int64{job.ID})
		require.NoError(t, err)
		require.Len(t, forJobs, 1)
		assert.Equal(t, "a", forJobs[0].NodeName)

		forSubRecipes, err := tx.GetRecipeNodesForSubRecipes([]int64{sub.ID})
		require.NoError(t, err)
		require.Len(t, forSubRecipes, 1)
		assert.Equal(t, parent.ID, forSubRecipes[0].RecipeID)
		return nil
	})
}

func testDuplicateRecipeNode(t *testing.T, s store.Store) {
	recipe := &model.Recipe{RecipeTypeName: "r", RecipeTypeRevision: 1}
	atomic(t, s, func(tx store.Tx) error {
		if err := tx.InsertRecipes([]*model.Recipe{recipe}); err != nil {
			return err
		}
		return tx.InsertRecipeNodes([]*model.RecipeNode{{RecipeID: recipe.ID, NodeName: "a", IsOriginal: true}})
	})

	err := s.Atomic(scalecontext.Background(), func(tx store.Tx) error {
		return tx.InsertRecipeNodes([]*model.RecipeNode{{RecipeID: recipe.ID, NodeName: "a", IsOriginal: true}})
	})
	var exists *scaleerrors.ErrAlreadyExists
	assert.True(t, errors.As(err, &exists))
}

func testConditionUpdateGuarded(t *testing.T, s store.Store) {
	condition := &model.Condition{RootRecipeID: 1, RecipeID: 1}
	atomic(t, s, func(tx store.Tx) error {
		return tx.InsertConditions([]*model.Condition{condition})
	})

	process := func(tx store.Tx) []int64 {
		locked, err := tx.LockConditions([]int64{condition.ID})
		require.NoError(t, err)
		require.Len(t, locked, 1)
		processed := condition.DeepCopy()
		processed.IsProcessed = true
		processed.IsAccepted = true
		processed.Processed = baseTime
		updated, err := tx.UpdateConditions([]store.ConditionUpdate{{Condition: processed, FromProcessed: false}})
		require.NoError(t, err)
		return updated
	}
	atomic(t, s, func(tx store.Tx) error {
		assert.Equal(t, []int64{condition.ID}, process(tx))
		return nil
	})
	atomic(t, s, func(tx store.Tx) error {
		assert.Empty(t, process(tx))
		got, err := tx.GetConditions([]int64{condition.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].IsAccepted)
		return nil
	})
}

func testEventLookups(t *testing.T, s store.Store) {
	topLevel := &model.Recipe{RecipeTypeName: "r", RecipeTypeRevision: 1, EventID: 7}
	standalone := newJob(model.JobPending)
	standalone.EventID = 7
	atomic(t, s, func(tx store.Tx) error {
		if err := tx.InsertRecipes([]*model.Recipe{topLevel}); err != nil {
			return err
		}
		return tx.InsertJobs([]*model.Job{standalone})
	})
	sub := &model.Recipe{RecipeTypeName: "s", RecipeTypeRevision: 1, EventID: 7, RecipeID: topLevel.ID}
	inRecipe := newJob(model.JobPending)
	inRecipe.EventID = 7
	inRecipe.RecipeID = topLevel.ID
	atomic(t, s, func(tx store.Tx) error {
		if err := tx.InsertRecipes([]*model.Recipe{sub}); err != nil {
			return err
		}
		return tx.InsertJobs([]*model.Job{inRecipe})
	})

	atomic(t, s, func(tx store.Tx) error {
		recipes, err := tx.GetRecipesForEvent(7)
		require.NoError(t, err)
		assert.Equal(t, []int64{topLevel.ID}, store.RecipeIDs(recipes))

		jobs, err := tx.GetJobsForEvent(7)
		require.NoError(t, err)
		assert.Equal(t, []int64{standalone.ID}, store.JobIDs(jobs))
		return nil
	})
}

func testSaveBatch(t *testing.T, s store.Store) {
	batch := &model.Batch{Title: "nightly", RecipeTypeName: "r", RecipeTypeRevision: 1, Status: model.BatchSubmitted}
	atomic(t, s, func(tx store.Tx) error {
		return tx.SaveBatch(batch)
	})
	require.NotZero(t, batch.ID)

	recipe := &model.Recipe{RecipeTypeName: "r", RecipeTypeRevision: 1, BatchID: batch.ID}
	atomic(t, s, func(tx store.Tx) error {
		if err := tx.InsertRecipes([]*model.Recipe{recipe}); err != nil {
			return err
		}
		batch.Status = model.BatchCreated
		batch.RecipesTotal = 1
		batch.JobsTotal = 4
		return tx.SaveBatch(batch)
	})

	atomic(t, s, func(tx store.Tx) error {
		batches, err := tx.LockBatches([]int64{batch.ID})
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, model.BatchCreated, batches[0].Status)
		assert.Equal(t, 1, batches[0].RecipesTotal)
		assert.Equal(t, 4, batches[0].JobsTotal)

		recipes, err := tx.GetRecipesInBatch(batch.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{recipe.ID}, store.RecipeIDs(recipes))
		return nil
	})
}

func testRollbackOnError(t *testing.T, s store.Store) {
	failure := errors.New("boom")
	var inserted int64
	err := s.Atomic(scalecontext.Background(), func(tx store.Tx) error {
		job := newJob(model.JobPending)
		if err := tx.InsertJobs([]*model.Job{job}); err != nil {
			return err
		}
		inserted = job.ID
		return failure
	})
	assert.ErrorIs(t, err, failure)

	atomic(t, s, func(tx store.Tx) error {
		jobs, err := tx.GetJobs([]int64{inserted})
		require.NoError(t, err)
		assert.Empty(t, jobs)
		return nil
	})
}
