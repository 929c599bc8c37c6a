// Package memory implements store.Store on top of go-memdb.
//
// go-memdb allows a single write transaction at a time. Atomic always opens a write transaction, so holding it is
// equivalent to holding a lock on every row, and Lock* calls are plain reads. Records are copied on the way in and
// on the way out: objects stored in memdb must never be modified in place.
package memory

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

const (
	jobsTable        = "jobs"
	recipesTable     = "recipes"
	recipeNodesTable = "recipe_nodes"
	conditionsTable  = "conditions"
	batchesTable     = "batches"

	idIndex        = "id"
	statusIndex    = "status"
	eventIndex     = "event"
	rootIndex      = "root"
	batchIndex     = "batch"
	recipeIndex    = "recipe"
	jobIndex       = "job"
	subRecipeIndex = "sub_recipe"
)

type Store struct {
	db    *memdb.MemDB
	clock clock.Clock
	// last assigned id per table; only touched while holding the memdb write transaction
	lastIDs map[string]int64
}

func New(clock clock.Clock) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Store{
		db:      db,
		clock:   clock,
		lastIDs: map[string]int64{},
	}, nil
}

func (s *Store) Atomic(ctx *scalecontext.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	lastIDs := make(map[string]int64, len(s.lastIDs))
	for table, id := range s.lastIDs {
		lastIDs[table] = id
	}
	t := &tx{txn: txn, clock: s.clock, lastIDs: lastIDs}
	if err := fn(t); err != nil {
		return err
	}
	txn.Commit()
	s.lastIDs = lastIDs
	return nil
}

type tx struct {
	txn     *memdb.Txn
	clock   clock.Clock
	lastIDs map[string]int64
}

func (t *tx) nextID(table string) int64 {
	t.lastIDs[table]++
	return t.lastIDs[table]
}

func (t *tx) LockJobs(ids []int64) ([]*model.Job, error) {
	return t.GetJobs(ids)
}

func (t *tx) LockRecipes(ids []int64) ([]*model.Recipe, error) {
	return t.GetRecipes(ids)
}

func (t *tx) LockConditions(ids []int64) ([]*model.Condition, error) {
	return t.GetConditions(ids)
}

func (t *tx) LockBatches(ids []int64) ([]*model.Batch, error) {
	var result []*model.Batch
	for _, id := range uniqueSorted(ids) {
		obj, err := t.txn.First(batchesTable, idIndex, id)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if obj != nil {
			result = append(result, obj.(*model.Batch).DeepCopy())
		}
	}
	return result, nil
}

func (t *tx) GetJobs(ids []int64) ([]*model.Job, error) {
	var result []*model.Job
	for _, id := range uniqueSorted(ids) {
		job, err := t.job(id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			result = append(result, job.DeepCopy())
		}
	}
	return result, nil
}

func (t *tx) job(id int64) (*model.Job, error) {
	obj, err := t.txn.First(jobsTable, idIndex, id)
	if err != nil || obj == nil {
		return nil, errors.WithStack(err)
	}
	return obj.(*model.Job), nil
}

func (t *tx) GetJobsForEvent(eventID int64) ([]*model.Job, error) {
	jobs, err := t.jobsWhere(eventIndex, eventID)
	if err != nil {
		return nil, err
	}
	var result []*model.Job
	for _, job := range jobs {
		if job.RecipeID == 0 {
			result = append(result, job)
		}
	}
	return result, nil
}

func (t *tx) QueuedJobs(limit int) ([]*model.Job, error) {
	jobs, err := t.jobsWhere(statusIndex, string(model.JobQueued))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.Queued.Equal(b.Queued) {
			return a.Queued.Before(b.Queued)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (t *tx) RunningJobs() ([]*model.Job, error) {
	return t.jobsWhere(statusIndex, string(model.JobRunning))
}

// jobsWhere returns copies of the jobs matching an index lookup, sorted by id.
func (t *tx) jobsWhere(index string, args ...interface{}) ([]*model.Job, error) {
	it, err := t.txn.Get(jobsTable, index, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var result []*model.Job
	for obj := it.Next(); obj != nil; obj = it.Next() {
		result = append(result, obj.(*model.Job).DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) GetRecipe(id int64) (*model.Recipe, error) {
	recipe, err := t.recipe(id)
	if err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, errors.WithStack(&scaleerrors.ErrNotFound{Type: "recipe", Value: strconv.FormatInt(id, 10)})
	}
	return recipe.DeepCopy(), nil
}

func (t *tx) recipe(id int64) (*model.Recipe, error) {
	obj, err := t.txn.First(recipesTable, idIndex, id)
	if err != nil || obj == nil {
		return nil, errors.WithStack(err)
	}
	return obj.(*model.Recipe), nil
}

func (t *tx) GetRecipes(ids []int64) ([]*model.Recipe, error) {
	var result []*model.Recipe
	for _, id := range uniqueSorted(ids) {
		recipe, err := t.recipe(id)
		if err != nil {
			return nil, err
		}
		if recipe != nil {
			result = append(result, recipe.DeepCopy())
		}
	}
	return result, nil
}

func (t *tx) GetLatestRecipes(rootIDs []int64) ([]*model.Recipe, error) {
	var result []*model.Recipe
	for _, rootID := range uniqueSorted(rootIDs) {
		var latest *model.Recipe
		root, err := t.recipe(rootID)
		if err != nil {
			return nil, err
		}
		if root != nil && !root.IsSuperseded {
			latest = root
		}
		chain, err := t.recipesWhere(rootIndex, rootID)
		if err != nil {
			return nil, err
		}
		for _, recipe := range chain {
			if !recipe.IsSuperseded && (latest == nil || recipe.ID > latest.ID) {
				latest = recipe
			}
		}
		if latest != nil {
			result = append(result, latest.DeepCopy())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) GetRecipesForEvent(eventID int64) ([]*model.Recipe, error) {
	recipes, err := t.recipesWhere(eventIndex, eventID)
	if err != nil {
		return nil, err
	}
	var result []*model.Recipe
	for _, recipe := range recipes {
		if !recipe.IsSubRecipe() {
			result = append(result, recipe)
		}
	}
	return result, nil
}

func (t *tx) GetRecipesInBatch(batchID int64) ([]*model.Recipe, error) {
	return t.recipesWhere(batchIndex, batchID)
}

func (t *tx) recipesWhere(index string, args ...interface{}) ([]*model.Recipe, error) {
	it, err := t.txn.Get(recipesTable, index, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var result []*model.Recipe
	for obj := it.Next(); obj != nil; obj = it.Next() {
		result = append(result, obj.(*model.Recipe).DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) GetRecipeNodes(recipeIDs []int64) ([]*model.RecipeNode, error) {
	var result []*model.RecipeNode
	for _, id := range uniqueSorted(recipeIDs) {
		nodes, err := t.recipeNodesWhere(recipeIndex, id)
		if err != nil {
			return nil, err
		}
		result = append(result, nodes...)
	}
	return result, nil
}

func (t *tx) GetRecipeNodesForJobs(jobIDs []int64) ([]*model.RecipeNode, error) {
	var result []*model.RecipeNode
	for _, id := range uniqueSorted(jobIDs) {
		if id == 0 {
			continue
		}
		nodes, err := t.recipeNodesWhere(jobIndex, id)
		if err != nil {
			return nil, err
		}
		result = append(result, nodes...)
	}
	sortRecipeNodes(result)
	return result, nil
}

func (t *tx) GetRecipeNodesForSubRecipes(recipeIDs []int64) ([]*model.RecipeNode, error) {
	var result []*model.RecipeNode
	for _, id := range uniqueSorted(recipeIDs) {
		if id == 0 {
			continue
		}
		nodes, err := t.recipeNodesWhere(subRecipeIndex, id)
		if err != nil {
			return nil, err
		}
		result = append(result, nodes...)
	}
	sortRecipeNodes(result)
	return result, nil
}

func (t *tx) recipeNodesWhere(index string, args ...interface{}) ([]*model.RecipeNode, error) {
	it, err := t.txn.Get(recipeNodesTable, index, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var result []*model.RecipeNode
	for obj := it.Next(); obj != nil; obj = it.Next() {
		node := *obj.(*model.RecipeNode)
		result = append(result, &node)
	}
	sortRecipeNodes(result)
	return result, nil
}

func (t *tx) GetConditions(ids []int64) ([]*model.Condition, error) {
	var result []*model.Condition
	for _, id := range uniqueSorted(ids) {
		obj, err := t.txn.First(conditionsTable, idIndex, id)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if obj != nil {
			result = append(result, obj.(*model.Condition).DeepCopy())
		}
	}
	return result, nil
}

func (t *tx) UpdateJobs(updates []store.JobUpdate) ([]int64, error) {
	now := t.clock.Now()
	var updated []int64
	for _, u := range updates {
		current, err := t.job(u.Job.ID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Status != u.FromStatus || current.NumExes != u.FromNumExes {
			continue
		}
		job := u.Job.DeepCopy()
		job.LastModified = now
		if err := t.txn.Insert(jobsTable, job); err != nil {
			return nil, errors.WithStack(err)
		}
		updated = append(updated, job.ID)
	}
	return updated, nil
}

func (t *tx) UpdateRecipes(updates []store.RecipeUpdate) ([]int64, error) {
	now := t.clock.Now()
	var updated []int64
	for _, u := range updates {
		current, err := t.recipe(u.Recipe.ID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.IsSuperseded != u.FromSuperseded {
			continue
		}
		recipe := u.Recipe.DeepCopy()
		recipe.LastModified = now
		if err := t.txn.Insert(recipesTable, recipe); err != nil {
			return nil, errors.WithStack(err)
		}
		updated = append(updated, recipe.ID)
	}
	return updated, nil
}

func (t *tx) UpdateConditions(updates []store.ConditionUpdate) ([]int64, error) {
	now := t.clock.Now()
	var updated []int64
	for _, u := range updates {
		obj, err := t.txn.First(conditionsTable, idIndex, u.Condition.ID)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if obj == nil || obj.(*model.Condition).IsProcessed != u.FromProcessed {
			continue
		}
		condition := u.Condition.DeepCopy()
		condition.LastModified = now
		if err := t.txn.Insert(conditionsTable, condition); err != nil {
			return nil, errors.WithStack(err)
		}
		updated = append(updated, condition.ID)
	}
	return updated, nil
}

func (t *tx) InsertJobs(jobs []*model.Job) error {
	now := t.clock.Now()
	for _, job := range jobs {
		job.ID = t.nextID(jobsTable)
		if job.Created.IsZero() {
			job.Created = now
		}
		if job.LastStatusChange.IsZero() {
			job.LastStatusChange = job.Created
		}
		job.LastModified = now
		if err := t.txn.Insert(jobsTable, job.DeepCopy()); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (t *tx) InsertRecipes(recipes []*model.Recipe) error {
	now := t.clock.Now()
	for _, recipe := range recipes {
		recipe.ID = t.nextID(recipesTable)
		if recipe.Created.IsZero() {
			recipe.Created = now
		}
		recipe.LastModified = now
		if err := t.txn.Insert(recipesTable, recipe.DeepCopy()); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (t *tx) InsertConditions(conditions []*model.Condition) error {
	now := t.clock.Now()
	for _, condition := range conditions {
		condition.ID = t.nextID(conditionsTable)
		if condition.Created.IsZero() {
			condition.Created = now
		}
		condition.LastModified = now
		if err := t.txn.Insert(conditionsTable, condition.DeepCopy()); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (t *tx) InsertRecipeNodes(nodes []*model.RecipeNode) error {
	for _, node := range nodes {
		existing, err := t.txn.First(recipeNodesTable, idIndex, node.RecipeID, node.NodeName)
		if err != nil {
			return errors.WithStack(err)
		}
		if existing != nil {
			return errors.WithStack(&scaleerrors.ErrAlreadyExists{
				Type:  "recipe node",
				Value: fmt.Sprintf("%d/%s", node.RecipeID, node.NodeName),
			})
		}
		copied := *node
		if err := t.txn.Insert(recipeNodesTable, &copied); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (t *tx) SaveBatch(batch *model.Batch) error {
	now := t.clock.Now()
	if batch.ID == 0 {
		batch.ID = t.nextID(batchesTable)
		batch.Created = now
	}
	batch.LastModified = now
	return errors.WithStack(t.txn.Insert(batchesTable, batch.DeepCopy()))
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func sortRecipeNodes(nodes []*model.RecipeNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].RecipeID != nodes[j].RecipeID {
			return nodes[i].RecipeID < nodes[j].RecipeID
		}
		return nodes[i].NodeName < nodes[j].NodeName
	})
}

// schema creates the database schema. memdb's integer indexes are not order preserving, so every ordered read sorts
// its results.
func schema() *memdb.DBSchema {
	int64Index := func(name, field string, unique bool) *memdb.IndexSchema {
		return &memdb.IndexSchema{Name: name, Unique: unique, Indexer: &memdb.IntFieldIndex{Field: field}}
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			jobsTable: {
				Name: jobsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex:     int64Index(idIndex, "ID", true),
					eventIndex:  int64Index(eventIndex, "EventID", false),
					recipeIndex: int64Index(recipeIndex, "RecipeID", false),
					statusIndex: {Name: statusIndex, Indexer: &memdb.StringFieldIndex{Field: "Status"}},
				},
			},
			recipesTable: {
				Name: recipesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex:     int64Index(idIndex, "ID", true),
					eventIndex:  int64Index(eventIndex, "EventID", false),
					rootIndex:   int64Index(rootIndex, "RootSupersededRecipeID", false),
					recipeIndex: int64Index(recipeIndex, "RecipeID", false),
					batchIndex:  int64Index(batchIndex, "BatchID", false),
				},
			},
			recipeNodesTable: {
				Name: recipeNodesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:   idIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.IntFieldIndex{Field: "RecipeID"},
								&memdb.StringFieldIndex{Field: "NodeName"},
							},
						},
					},
					recipeIndex:    int64Index(recipeIndex, "RecipeID", false),
					jobIndex:       int64Index(jobIndex, "JobID", false),
					subRecipeIndex: int64Index(subRecipeIndex, "SubRecipeID", false),
				},
			},
			conditionsTable: {
				Name: conditionsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: int64Index(idIndex, "ID", true),
				},
			},
			batchesTable: {
				Name: batchesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: int64Index(idIndex, "ID", true),
				},
			},
		},
	}
}
