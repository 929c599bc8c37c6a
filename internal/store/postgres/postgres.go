// Package postgres implements store.Store on top of postgres. Queries are built with goqu and run through a pgx
// transaction; row locks are taken with SELECT ... FOR UPDATE in ascending id order.
package postgres

import (
	"embed"
	"fmt"
	"sort"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common/database"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the schema migrations of the store, in order.
func Migrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationsFS, "migrations")
}

var dialect = goqu.Dialect("postgres")

var (
	jobTable        = goqu.T("job")
	recipeTable     = goqu.T("recipe")
	recipeNodeTable = goqu.T("recipe_node")
	conditionTable  = goqu.T("recipe_condition")
	batchTable      = goqu.T("batch")

	idColumn = goqu.C("id")
)

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

type Store struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

func New(db *pgxpool.Pool, clock clock.Clock) *Store {
	return &Store{db: db, clock: clock}
}

func (s *Store) Atomic(ctx *scalecontext.Context, fn func(tx store.Tx) error) error {
	return s.db.BeginTxFunc(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(pgTx pgx.Tx) error {
		return fn(&tx{ctx: ctx, tx: pgTx, clock: s.clock})
	})
}

type tx struct {
	ctx   *scalecontext.Context
	tx    pgx.Tx
	clock clock.Clock
}

func (t *tx) query(ds sqlBuilder, scan func(rows pgx.Rows) error) error {
	sql, args, err := ds.ToSQL()
	if err != nil {
		return errors.WithStack(err)
	}
	rows, err := t.tx.Query(t.ctx, sql, args...)
	if err != nil {
		return errors.WithStack(err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return errors.WithStack(rows.Err())
}

// returningIDs runs a statement ending in RETURNING id.
func (t *tx) returningIDs(ds sqlBuilder) ([]int64, error) {
	var ids []int64
	err := t.query(ds, func(rows pgx.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return errors.WithStack(err)
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// conditionalUpdates sends every statement in a single batch. Each statement must update at most one row and end in
// RETURNING id; the ids of the rows that matched are returned.
func (t *tx) conditionalUpdates(statements []sqlBuilder) ([]int64, error) {
	if len(statements) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, statement := range statements {
		sql, args, err := statement.ToSQL()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		batch.Queue(sql, args...)
	}
	results := t.tx.SendBatch(t.ctx, batch)
	var updated []int64
	for range statements {
		var id int64
		err := results.QueryRow().Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			_ = results.Close()
			return nil, errors.WithStack(err)
		}
		updated = append(updated, id)
	}
	return updated, errors.WithStack(results.Close())
}

func (t *tx) selectJobs(where ...exp.Expression) *goqu.SelectDataset {
	return dialect.From(jobTable).Prepared(true).Select(jobColumns...).Where(where...).Order(idColumn.Asc())
}

func (t *tx) jobs(ds sqlBuilder) ([]*model.Job, error) {
	var jobs []*model.Job
	err := t.query(ds, func(rows pgx.Rows) error {
		job, err := scanJob(rows)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	})
	return jobs, err
}

func (t *tx) LockJobs(ids []int64) ([]*model.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.jobs(t.selectJobs(idColumn.In(ids)).ForUpdate(exp.Wait))
}

func (t *tx) GetJobs(ids []int64) ([]*model.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.jobs(t.selectJobs(idColumn.In(ids)))
}

func (t *tx) GetJobsForEvent(eventID int64) ([]*model.Job, error) {
	return t.jobs(t.selectJobs(goqu.C("event_id").Eq(eventID), goqu.C("recipe_id").Eq(0)))
}

func (t *tx) QueuedJobs(limit int) ([]*model.Job, error) {
	ds := dialect.From(jobTable).Prepared(true).
		Select(jobColumns...).
		Where(goqu.C("status").Eq(string(model.JobQueued))).
		Order(goqu.C("priority").Asc(), goqu.C("queued").Asc(), idColumn.Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return t.jobs(ds)
}

func (t *tx) RunningJobs() ([]*model.Job, error) {
	return t.jobs(t.selectJobs(goqu.C("status").Eq(string(model.JobRunning))))
}

func (t *tx) selectRecipes(where ...exp.Expression) *goqu.SelectDataset {
	return dialect.From(recipeTable).Prepared(true).Select(recipeColumns...).Where(where...).Order(idColumn.Asc())
}

func (t *tx) recipes(ds sqlBuilder) ([]*model.Recipe, error) {
	var recipes []*model.Recipe
	err := t.query(ds, func(rows pgx.Rows) error {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return err
		}
		recipes = append(recipes, recipe)
		return nil
	})
	return recipes, err
}

func (t *tx) LockRecipes(ids []int64) ([]*model.Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.recipes(t.selectRecipes(idColumn.In(ids)).ForUpdate(exp.Wait))
}

func (t *tx) GetRecipe(id int64) (*model.Recipe, error) {
	recipes, err := t.GetRecipes([]int64{id})
	if err != nil {
		return nil, err
	}
	if len(recipes) == 0 {
		return nil, errors.WithStack(&scaleerrors.ErrNotFound{Type: "recipe", Value: strconv.FormatInt(id, 10)})
	}
	return recipes[0], nil
}

func (t *tx) GetRecipes(ids []int64) ([]*model.Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.recipes(t.selectRecipes(idColumn.In(ids)))
}

func (t *tx) GetLatestRecipes(rootIDs []int64) ([]*model.Recipe, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	candidates, err := t.recipes(t.selectRecipes(
		goqu.Or(idColumn.In(rootIDs), goqu.C("root_superseded_recipe_id").In(rootIDs)),
		goqu.C("is_superseded").IsFalse(),
	))
	if err != nil {
		return nil, err
	}
	latest := map[int64]*model.Recipe{}
	for _, recipe := range candidates {
		root := recipe.RootID()
		if current, ok := latest[root]; !ok || recipe.ID > current.ID {
			latest[root] = recipe
		}
	}
	result := make([]*model.Recipe, 0, len(latest))
	for _, recipe := range latest {
		result = append(result, recipe)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) GetRecipesForEvent(eventID int64) ([]*model.Recipe, error) {
	return t.recipes(t.selectRecipes(goqu.C("event_id").Eq(eventID), goqu.C("recipe_id").Eq(0)))
}

func (t *tx) GetRecipesInBatch(batchID int64) ([]*model.Recipe, error) {
	return t.recipes(t.selectRecipes(goqu.C("batch_id").Eq(batchID)))
}

func (t *tx) recipeNodes(where exp.Expression) ([]*model.RecipeNode, error) {
	ds := dialect.From(recipeNodeTable).Prepared(true).
		Select(recipeNodeColumns...).
		Where(where).
		Order(goqu.C("recipe_id").Asc(), goqu.C("node_name").Asc())
	var nodes []*model.RecipeNode
	err := t.query(ds, func(rows pgx.Rows) error {
		var node model.RecipeNode
		err := rows.Scan(&node.RecipeID, &node.NodeName, &node.IsOriginal, &node.JobID, &node.ConditionID, &node.SubRecipeID)
		if err != nil {
			return errors.WithStack(err)
		}
		nodes = append(nodes, &node)
		return nil
	})
	return nodes, err
}

func (t *tx) GetRecipeNodes(recipeIDs []int64) ([]*model.RecipeNode, error) {
	if len(recipeIDs) == 0 {
		return nil, nil
	}
	return t.recipeNodes(goqu.C("recipe_id").In(recipeIDs))
}

func (t *tx) GetRecipeNodesForJobs(jobIDs []int64) ([]*model.RecipeNode, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	return t.recipeNodes(goqu.And(goqu.C("job_id").In(jobIDs), goqu.C("job_id").Neq(0)))
}

func (t *tx) GetRecipeNodesForSubRecipes(recipeIDs []int64) ([]*model.RecipeNode, error) {
	if len(recipeIDs) == 0 {
		return nil, nil
	}
	return t.recipeNodes(goqu.And(goqu.C("sub_recipe_id").In(recipeIDs), goqu.C("sub_recipe_id").Neq(0)))
}

func (t *tx) conditions(ds sqlBuilder) ([]*model.Condition, error) {
	var conditions []*model.Condition
	err := t.query(ds, func(rows pgx.Rows) error {
		condition, err := scanCondition(rows)
		if err != nil {
			return err
		}
		conditions = append(conditions, condition)
		return nil
	})
	return conditions, err
}

func (t *tx) selectConditions(ids []int64) *goqu.SelectDataset {
	return dialect.From(conditionTable).Prepared(true).
		Select(conditionColumns...).
		Where(idColumn.In(ids)).
		Order(idColumn.Asc())
}

func (t *tx) LockConditions(ids []int64) ([]*model.Condition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.conditions(t.selectConditions(ids).ForUpdate(exp.Wait))
}

func (t *tx) GetConditions(ids []int64) ([]*model.Condition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.conditions(t.selectConditions(ids))
}

func (t *tx) LockBatches(ids []int64) ([]*model.Batch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ds := dialect.From(batchTable).Prepared(true).
		Select(batchColumns...).
		Where(idColumn.In(ids)).
		Order(idColumn.Asc()).
		ForUpdate(exp.Wait)
	var batches []*model.Batch
	err := t.query(ds, func(rows pgx.Rows) error {
		batch, err := scanBatch(rows)
		if err != nil {
			return err
		}
		batches = append(batches, batch)
		return nil
	})
	return batches, err
}

func (t *tx) UpdateJobs(updates []store.JobUpdate) ([]int64, error) {
	now := t.clock.Now()
	statements := make([]sqlBuilder, 0, len(updates))
	for _, u := range updates {
		job := u.Job.DeepCopy()
		job.LastModified = now
		record, err := jobRecord(job)
		if err != nil {
			return nil, err
		}
		statements = append(statements, dialect.Update(jobTable).Prepared(true).
			Set(record).
			Where(
				idColumn.Eq(job.ID),
				goqu.C("status").Eq(string(u.FromStatus)),
				goqu.C("num_exes").Eq(u.FromNumExes),
			).
			Returning("id"))
	}
	return t.conditionalUpdates(statements)
}

func (t *tx) UpdateRecipes(updates []store.RecipeUpdate) ([]int64, error) {
	now := t.clock.Now()
	statements := make([]sqlBuilder, 0, len(updates))
	for _, u := range updates {
		recipe := u.Recipe.DeepCopy()
		recipe.LastModified = now
		record, err := recipeRecord(recipe)
		if err != nil {
			return nil, err
		}
		statements = append(statements, dialect.Update(recipeTable).Prepared(true).
			Set(record).
			Where(idColumn.Eq(recipe.ID), goqu.C("is_superseded").Eq(u.FromSuperseded)).
			Returning("id"))
	}
	return t.conditionalUpdates(statements)
}

func (t *tx) UpdateConditions(updates []store.ConditionUpdate) ([]int64, error) {
	now := t.clock.Now()
	statements := make([]sqlBuilder, 0, len(updates))
	for _, u := range updates {
		condition := u.Condition.DeepCopy()
		condition.LastModified = now
		record, err := conditionRecord(condition)
		if err != nil {
			return nil, err
		}
		statements = append(statements, dialect.Update(conditionTable).Prepared(true).
			Set(record).
			Where(idColumn.Eq(condition.ID), goqu.C("is_processed").Eq(u.FromProcessed)).
			Returning("id"))
	}
	return t.conditionalUpdates(statements)
}

// insert adds one row per record and returns the generated ids in the same order.
func (t *tx) insert(table exp.IdentifierExpression, records []interface{}) ([]int64, error) {
	ids, err := t.returningIDs(dialect.Insert(table).Prepared(true).Rows(records...).Returning("id"))
	if err != nil {
		return nil, err
	}
	if len(ids) != len(records) {
		return nil, errors.Errorf("inserted %d rows into %s but got %d ids back", len(records), table.GetTable(), len(ids))
	}
	return ids, nil
}

func (t *tx) InsertJobs(jobs []*model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	now := t.clock.Now()
	records := make([]interface{}, len(jobs))
	for i, job := range jobs {
		if job.Created.IsZero() {
			job.Created = now
		}
		if job.LastStatusChange.IsZero() {
			job.LastStatusChange = job.Created
		}
		job.LastModified = now
		record, err := jobRecord(job)
		if err != nil {
			return err
		}
		records[i] = record
	}
	ids, err := t.insert(jobTable, records)
	if err != nil {
		return err
	}
	for i, id := range ids {
		jobs[i].ID = id
	}
	return nil
}

func (t *tx) InsertRecipes(recipes []*model.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	now := t.clock.Now()
	records := make([]interface{}, len(recipes))
	for i, recipe := range recipes {
		if recipe.Created.IsZero() {
			recipe.Created = now
		}
		recipe.LastModified = now
		record, err := recipeRecord(recipe)
		if err != nil {
			return err
		}
		records[i] = record
	}
	ids, err := t.insert(recipeTable, records)
	if err != nil {
		return err
	}
	for i, id := range ids {
		recipes[i].ID = id
	}
	return nil
}

func (t *tx) InsertConditions(conditions []*model.Condition) error {
	if len(conditions) == 0 {
		return nil
	}
	now := t.clock.Now()
	records := make([]interface{}, len(conditions))
	for i, condition := range conditions {
		if condition.Created.IsZero() {
			condition.Created = now
		}
		condition.LastModified = now
		record, err := conditionRecord(condition)
		if err != nil {
			return err
		}
		records[i] = record
	}
	ids, err := t.insert(conditionTable, records)
	if err != nil {
		return err
	}
	for i, id := range ids {
		conditions[i].ID = id
	}
	return nil
}

func (t *tx) InsertRecipeNodes(nodes []*model.RecipeNode) error {
	if len(nodes) == 0 {
		return nil
	}
	records := make([]interface{}, len(nodes))
	for i, node := range nodes {
		records[i] = goqu.Record{
			"recipe_id":     node.RecipeID,
			"node_name":     node.NodeName,
			"is_original":   node.IsOriginal,
			"job_id":        node.JobID,
			"condition_id":  node.ConditionID,
			"sub_recipe_id": node.SubRecipeID,
		}
	}
	sql, args, err := dialect.Insert(recipeNodeTable).Prepared(true).Rows(records...).ToSQL()
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = t.tx.Exec(t.ctx, sql, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return errors.WithStack(&scaleerrors.ErrAlreadyExists{
			Type:    "recipe node",
			Value:   fmt.Sprintf("%d/%s", nodes[0].RecipeID, nodes[0].NodeName),
			Message: pgErr.Detail,
		})
	}
	return errors.WithStack(err)
}

func (t *tx) SaveBatch(batch *model.Batch) error {
	now := t.clock.Now()
	if batch.ID == 0 {
		batch.Created = now
	}
	batch.LastModified = now
	record := batchRecord(batch)
	if batch.ID != 0 {
		sql, args, err := dialect.Update(batchTable).Prepared(true).Set(record).Where(idColumn.Eq(batch.ID)).ToSQL()
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = t.tx.Exec(t.ctx, sql, args...)
		return errors.WithStack(err)
	}
	ids, err := t.insert(batchTable, []interface{}{record})
	if err != nil {
		return err
	}
	batch.ID = ids[0]
	return nil
}
