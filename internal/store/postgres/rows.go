package postgres

import (
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
)

var metricsColumns = []string{
	"jobs_total",
	"jobs_pending",
	"jobs_blocked",
	"jobs_queued",
	"jobs_running",
	"jobs_failed",
	"jobs_completed",
	"jobs_canceled",
	"sub_recipes_total",
	"sub_recipes_completed",
}

var (
	jobColumns = columns([]string{
		"id", "job_type_name", "job_type_version", "job_type_revision", "event_id", "root_recipe_id", "recipe_id",
		"batch_id", "is_superseded", "superseded_job_id", "status", "error_name", "max_tries", "num_exes", "priority",
		"timeout_seconds", "input_file_size", "input", "output", "resources", "node_id", "created", "queued", "started",
		"ended", "last_status_change", "superseded", "last_modified",
	})
	recipeColumns = columns(
		[]string{
			"id", "recipe_type_name", "recipe_type_revision", "event_id", "recipe_id", "batch_id", "is_superseded",
			"superseded_recipe_id", "root_superseded_recipe_id", "input", "input_file_size",
		},
		metricsColumns,
		[]string{"is_completed", "created", "completed", "superseded", "last_modified"},
	)
	recipeNodeColumns = columns([]string{
		"recipe_id", "node_name", "is_original", "job_id", "condition_id", "sub_recipe_id",
	})
	conditionColumns = columns([]string{
		"id", "root_recipe_id", "recipe_id", "batch_id", "data", "is_processed", "is_accepted", "created", "processed",
		"last_modified",
	})
	batchColumns = columns(
		[]string{"id", "title", "recipe_type_name", "recipe_type_revision", "status"},
		metricsColumns,
		[]string{"recipes_total", "recipes_completed", "created", "last_modified"},
	)
)

func columns(groups ...[]string) []interface{} {
	var result []interface{}
	for _, group := range groups {
		for _, name := range group {
			result = append(result, name)
		}
	}
	return result
}

func metricsTargets(m *model.RecipeMetrics) []interface{} {
	return []interface{}{
		&m.JobsTotal,
		&m.JobsPending,
		&m.JobsBlocked,
		&m.JobsQueued,
		&m.JobsRunning,
		&m.JobsFailed,
		&m.JobsCompleted,
		&m.JobsCanceled,
		&m.SubRecipesTotal,
		&m.SubRecipesCompleted,
	}
}

func addMetrics(record goqu.Record, m model.RecipeMetrics) {
	values := []int{
		m.JobsTotal,
		m.JobsPending,
		m.JobsBlocked,
		m.JobsQueued,
		m.JobsRunning,
		m.JobsFailed,
		m.JobsCompleted,
		m.JobsCanceled,
		m.SubRecipesTotal,
		m.SubRecipesCompleted,
	}
	for i, name := range metricsColumns {
		record[name] = values[i]
	}
}

func scanJob(rows pgx.Rows) (*model.Job, error) {
	var job model.Job
	var status string
	var timeoutSeconds int64
	var input, output, resources []byte
	var queued, started, ended, superseded *time.Time
	err := rows.Scan(
		&job.ID, &job.JobTypeName, &job.JobTypeVersion, &job.JobTypeRevision, &job.EventID, &job.RootRecipeID,
		&job.RecipeID, &job.BatchID, &job.IsSuperseded, &job.SupersededJobID, &status, &job.ErrorName,
		&job.MaxTries, &job.NumExes, &job.Priority, &timeoutSeconds, &job.InputFileSize, &input, &output,
		&resources, &job.NodeID, &job.Created, &queued, &started, &ended, &job.LastStatusChange, &superseded,
		&job.LastModified,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	job.Status = model.JobStatus(status)
	job.Timeout = time.Duration(timeoutSeconds) * time.Second
	if job.Input, err = decodeData(input); err != nil {
		return nil, err
	}
	if job.Output, err = decodeData(output); err != nil {
		return nil, err
	}
	if len(resources) > 0 {
		if err := json.Unmarshal(resources, &job.Resources); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	job.Queued = timeOf(queued)
	job.Started = timeOf(started)
	job.Ended = timeOf(ended)
	job.Superseded = timeOf(superseded)
	return &job, nil
}

func jobRecord(job *model.Job) (goqu.Record, error) {
	input, err := encodeData(job.Input)
	if err != nil {
		return nil, err
	}
	output, err := encodeData(job.Output)
	if err != nil {
		return nil, err
	}
	var resources interface{}
	if job.Resources != nil {
		b, err := json.Marshal(job.Resources)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		resources = string(b)
	}
	return goqu.Record{
		"job_type_name":      job.JobTypeName,
		"job_type_version":   job.JobTypeVersion,
		"job_type_revision":  job.JobTypeRevision,
		"event_id":           job.EventID,
		"root_recipe_id":     job.RootRecipeID,
		"recipe_id":          job.RecipeID,
		"batch_id":           job.BatchID,
		"is_superseded":      job.IsSuperseded,
		"superseded_job_id":  job.SupersededJobID,
		"status":             string(job.Status),
		"error_name":         job.ErrorName,
		"max_tries":          job.MaxTries,
		"num_exes":           job.NumExes,
		"priority":           job.Priority,
		"timeout_seconds":    int64(job.Timeout / time.Second),
		"input_file_size":    job.InputFileSize,
		"input":              input,
		"output":             output,
		"resources":          resources,
		"node_id":            job.NodeID,
		"created":            job.Created,
		"queued":             nullTime(job.Queued),
		"started":            nullTime(job.Started),
		"ended":              nullTime(job.Ended),
		"last_status_change": job.LastStatusChange,
		"superseded":         nullTime(job.Superseded),
		"last_modified":      job.LastModified,
	}, nil
}

func scanRecipe(rows pgx.Rows) (*model.Recipe, error) {
	var recipe model.Recipe
	var input []byte
	var completed, superseded *time.Time
	targets := []interface{}{
		&recipe.ID, &recipe.RecipeTypeName, &recipe.RecipeTypeRevision, &recipe.EventID, &recipe.RecipeID,
		&recipe.BatchID, &recipe.IsSuperseded, &recipe.SupersededRecipeID, &recipe.RootSupersededRecipeID, &input,
		&recipe.InputFileSize,
	}
	targets = append(targets, metricsTargets(&recipe.RecipeMetrics)...)
	targets = append(targets, &recipe.IsCompleted, &recipe.Created, &completed, &superseded, &recipe.LastModified)
	if err := rows.Scan(targets...); err != nil {
		return nil, errors.WithStack(err)
	}
	var err error
	if recipe.Input, err = decodeData(input); err != nil {
		return nil, err
	}
	recipe.Completed = timeOf(completed)
	recipe.Superseded = timeOf(superseded)
	return &recipe, nil
}

func recipeRecord(recipe *model.Recipe) (goqu.Record, error) {
	input, err := encodeData(recipe.Input)
	if err != nil {
		return nil, err
	}
	record := goqu.Record{
		"recipe_type_name":          recipe.RecipeTypeName,
		"recipe_type_revision":      recipe.RecipeTypeRevision,
		"event_id":                  recipe.EventID,
		"recipe_id":                 recipe.RecipeID,
		"batch_id":                  recipe.BatchID,
		"is_superseded":             recipe.IsSuperseded,
		"superseded_recipe_id":      recipe.SupersededRecipeID,
		"root_superseded_recipe_id": recipe.RootSupersededRecipeID,
		"input":                     input,
		"input_file_size":           recipe.InputFileSize,
		"is_completed":              recipe.IsCompleted,
		"created":                   recipe.Created,
		"completed":                 nullTime(recipe.Completed),
		"superseded":                nullTime(recipe.Superseded),
		"last_modified":             recipe.LastModified,
	}
	addMetrics(record, recipe.RecipeMetrics)
	return record, nil
}

func scanCondition(rows pgx.Rows) (*model.Condition, error) {
	var condition model.Condition
	var conditionData []byte
	var processed *time.Time
	err := rows.Scan(
		&condition.ID, &condition.RootRecipeID, &condition.RecipeID, &condition.BatchID, &conditionData,
		&condition.IsProcessed, &condition.IsAccepted, &condition.Created, &processed, &condition.LastModified,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if condition.Data, err = decodeData(conditionData); err != nil {
		return nil, err
	}
	condition.Processed = timeOf(processed)
	return &condition, nil
}

func conditionRecord(condition *model.Condition) (goqu.Record, error) {
	conditionData, err := encodeData(condition.Data)
	if err != nil {
		return nil, err
	}
	return goqu.Record{
		"root_recipe_id": condition.RootRecipeID,
		"recipe_id":      condition.RecipeID,
		"batch_id":       condition.BatchID,
		"data":           conditionData,
		"is_processed":   condition.IsProcessed,
		"is_accepted":    condition.IsAccepted,
		"created":        condition.Created,
		"processed":      nullTime(condition.Processed),
		"last_modified":  condition.LastModified,
	}, nil
}

func scanBatch(rows pgx.Rows) (*model.Batch, error) {
	var batch model.Batch
	var status string
	targets := []interface{}{&batch.ID, &batch.Title, &batch.RecipeTypeName, &batch.RecipeTypeRevision, &status}
	targets = append(targets, metricsTargets(&batch.RecipeMetrics)...)
	targets = append(targets, &batch.RecipesTotal, &batch.RecipesCompleted, &batch.Created, &batch.LastModified)
	if err := rows.Scan(targets...); err != nil {
		return nil, errors.WithStack(err)
	}
	batch.Status = model.BatchStatus(status)
	return &batch, nil
}

func batchRecord(batch *model.Batch) goqu.Record {
	record := goqu.Record{
		"title":                batch.Title,
		"recipe_type_name":     batch.RecipeTypeName,
		"recipe_type_revision": batch.RecipeTypeRevision,
		"status":               string(batch.Status),
		"recipes_total":        batch.RecipesTotal,
		"recipes_completed":    batch.RecipesCompleted,
		"created":              batch.Created,
		"last_modified":        batch.LastModified,
	}
	addMetrics(record, batch.RecipeMetrics)
	return record
}

// encodeData returns the JSON text of d, or nil so that the column is written as NULL.
func encodeData(d *data.Data) (interface{}, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return string(b), nil
}

func decodeData(b []byte) (*data.Data, error) {
	if len(b) == 0 {
		return nil, nil
	}
	d := data.NewData()
	if err := json.Unmarshal(b, d); err != nil {
		return nil, errors.WithStack(err)
	}
	return d, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
