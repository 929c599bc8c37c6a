package messages

import (
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/store"
)

// Kinds of CreateJobs message
const (
	CreateJobsFromInput = "input-data"
	CreateJobsForRecipe = "recipe"
)

// RecipeJob is a job node of a recipe that needs a job.
type RecipeJob struct {
	JobTypeName     string `json:"job_type_name" validate:"required"`
	JobTypeVersion  string `json:"job_type_version" validate:"required"`
	JobTypeRevision int    `json:"job_type_revision" validate:"required"`
	NodeName        string `json:"node_name" validate:"required"`
	// ProcessInput is set when the node's dependencies are ready, so that the new job can get its input straight away.
	ProcessInput bool `json:"process_input"`
}

// CreateJobs creates either a single job from the given input or the jobs of a recipe's job nodes. Executing it again
// finds the jobs it already created instead of creating more.
type CreateJobs struct {
	base
	Kind    string `json:"kind" validate:"oneof=input-data recipe"`
	EventID int64  `json:"event_id"`

	JobTypeName     string     `json:"job_type_name,omitempty" validate:"required_if=Kind input-data"`
	JobTypeVersion  string     `json:"job_type_version,omitempty" validate:"required_if=Kind input-data"`
	JobTypeRevision int        `json:"job_type_revision,omitempty"`
	Input           *data.Data `json:"input,omitempty"`

	RecipeID           int64       `json:"recipe_id,omitempty" validate:"required_if=Kind recipe"`
	RootRecipeID       int64       `json:"root_recipe_id,omitempty"`
	SupersededRecipeID int64       `json:"superseded_recipe_id,omitempty"`
	BatchID            int64       `json:"batch_id,omitempty"`
	RecipeJobs         []RecipeJob `json:"recipe_jobs,omitempty" validate:"required_if=Kind recipe,max=100,dive"`
}

// NewCreateJobsMessage creates a message that creates a job of the given type revision from input.
func NewCreateJobsMessage(name, version string, revision int, eventID int64, input *data.Data) messaging.CommandMessage {
	return &CreateJobs{
		Kind:            CreateJobsFromInput,
		EventID:         eventID,
		JobTypeName:     name,
		JobTypeVersion:  version,
		JobTypeRevision: revision,
		Input:           input,
	}
}

// NewCreateRecipeJobsMessages creates messages that create jobs for the given job nodes of a recipe.
func NewCreateRecipeJobsMessages(recipe *model.Recipe, jobs []RecipeJob) []messaging.CommandMessage {
	return chunk(jobs, func(items []RecipeJob) messaging.CommandMessage {
		return &CreateJobs{
			Kind:               CreateJobsForRecipe,
			EventID:            recipe.EventID,
			RecipeID:           recipe.ID,
			RootRecipeID:       recipe.RootID(),
			SupersededRecipeID: recipe.SupersededRecipeID,
			BatchID:            recipe.BatchID,
			RecipeJobs:         items,
		}
	})
}

func (m *CreateJobs) Type() string { return CreateJobsType }

func (m *CreateJobs) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *CreateJobs) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		if m.Kind == CreateJobsFromInput {
			return m.createFromInput(ctx, tx, outcome)
		}
		return m.createForRecipe(ctx, tx, outcome)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (m *CreateJobs) createFromInput(ctx *scalecontext.Context, tx store.Tx, outcome *messaging.Outcome) error {
	existing, err := tx.GetJobsForEvent(m.EventID)
	if err != nil {
		return err
	}
	for _, job := range existing {
		if job.JobTypeName == m.JobTypeName && job.JobTypeVersion == m.JobTypeVersion &&
			job.JobTypeRevision == m.JobTypeRevision && dataEqual(job.Input, m.Input) {
			outcome.Skip(entityJob, job.ID, "already exists")
			outcome.Send(NewProcessJobInputMessage(job.ID))
			return nil
		}
	}

	jobType, err := m.env.Catalog.JobType(model.JobTypeKey{Name: m.JobTypeName, Version: m.JobTypeVersion})
	if err != nil {
		return err
	}
	if !jobType.IsActive {
		ctx.Log.Errorf("Job type %s is not active, no job will be created", jobType.Key())
		return nil
	}
	input, _, err := m.env.Catalog.JobInterfaces(m.JobTypeName, m.JobTypeVersion, m.JobTypeRevision)
	if err != nil {
		return err
	}
	if m.Input == nil {
		ctx.Log.Errorf("Job of type %s revision %d was given no input, no job will be created", jobType.Key(), m.JobTypeRevision)
		return nil
	}
	if _, err := m.Input.Copy().Validate(input); err != nil {
		logging.WithStacktrace(ctx.Log, err).Errorf(
			"Job of type %s revision %d was given invalid input, no job will be created", jobType.Key(), m.JobTypeRevision)
		return nil
	}

	job := m.newJob(jobType, m.JobTypeRevision)
	job.Input = m.Input.Copy()
	if err := tx.InsertJobs([]*model.Job{job}); err != nil {
		return err
	}
	outcome.Apply(entityJob, job.ID)
	outcome.Send(NewProcessJobInputMessage(job.ID))
	return nil
}

func (m *CreateJobs) createForRecipe(ctx *scalecontext.Context, tx store.Tx, outcome *messaging.Outcome) error {
	if _, err := tx.LockRecipes([]int64{m.RecipeID}); err != nil {
		return err
	}
	nodes, err := tx.GetRecipeNodes([]int64{m.RecipeID})
	if err != nil {
		return err
	}
	processInput := map[string]bool{}
	for _, recipeJob := range m.RecipeJobs {
		processInput[recipeJob.NodeName] = recipeJob.ProcessInput
	}
	existingByNode := map[string]int64{}
	for _, node := range nodes {
		if node.JobID != 0 {
			existingByNode[node.NodeName] = node.JobID
		}
	}

	supersededByNode := map[string]int64{}
	if m.SupersededRecipeID != 0 {
		prevNodes, err := tx.GetRecipeNodes([]int64{m.SupersededRecipeID})
		if err != nil {
			return err
		}
		for _, node := range prevNodes {
			if node.JobID != 0 {
				supersededByNode[node.NodeName] = node.JobID
			}
		}
	}

	var toProcess []int64
	var jobs []*model.Job
	var names []string
	for _, recipeJob := range m.RecipeJobs {
		if id, ok := existingByNode[recipeJob.NodeName]; ok {
			outcome.Skip(entityJob, id, "already exists")
			if recipeJob.ProcessInput {
				toProcess = append(toProcess, id)
			}
			continue
		}
		jobType, err := m.env.Catalog.JobType(model.JobTypeKey{Name: recipeJob.JobTypeName, Version: recipeJob.JobTypeVersion})
		if err != nil {
			return err
		}
		if !jobType.IsActive {
			ctx.Log.Errorf("Job type %s of node '%s' in recipe %d is not active, no jobs will be created",
				jobType.Key(), recipeJob.NodeName, m.RecipeID)
			return nil
		}
		job := m.newJob(jobType, recipeJob.JobTypeRevision)
		job.RecipeID = m.RecipeID
		job.RootRecipeID = m.RootRecipeID
		job.BatchID = m.BatchID
		job.SupersededJobID = supersededByNode[recipeJob.NodeName]
		jobs = append(jobs, job)
		names = append(names, recipeJob.NodeName)
	}

	if len(jobs) > 0 {
		if err := tx.InsertJobs(jobs); err != nil {
			return err
		}
		recipeNodes := make([]*model.RecipeNode, len(jobs))
		for i, job := range jobs {
			recipeNodes[i] = &model.RecipeNode{RecipeID: m.RecipeID, NodeName: names[i], IsOriginal: true, JobID: job.ID}
			outcome.Apply(entityJob, job.ID)
			if processInput[names[i]] {
				toProcess = append(toProcess, job.ID)
			}
		}
		if err := tx.InsertRecipeNodes(recipeNodes); err != nil {
			return errors.WithMessagef(err, "creating jobs for recipe %d", m.RecipeID)
		}
		ctx.Log.Infof("Created %d job(s) for recipe %d", len(jobs), m.RecipeID)
	}

	for _, id := range toProcess {
		outcome.Send(NewProcessJobInputMessage(id))
	}
	outcome.Send(NewUpdateRecipeMetricsMessages([]int64{m.RecipeID})...)
	return nil
}

func (m *CreateJobs) newJob(jobType *model.JobType, revision int) *model.Job {
	return &model.Job{
		JobTypeName:     jobType.Name,
		JobTypeVersion:  jobType.Version,
		JobTypeRevision: revision,
		EventID:         m.EventID,
		Status:          model.JobPending,
		MaxTries:        jobType.MaxTries,
		Priority:        jobType.Priority,
		Timeout:         jobType.Timeout,
		Resources:       jobType.Resources.DeepCopy(),
		Created:         m.env.Clock.Now(),
	}
}
