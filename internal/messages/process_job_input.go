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

// ProcessJobInput gives a job its input, generating it from its recipe when needed, and queues the job.
type ProcessJobInput struct {
	base
	JobID int64 `json:"job_id" validate:"required"`
}

func NewProcessJobInputMessage(jobID int64) messaging.CommandMessage {
	return &ProcessJobInput{JobID: jobID}
}

func NewProcessJobInputMessages(jobIDs []int64) []messaging.CommandMessage {
	msgs := make([]messaging.CommandMessage, len(jobIDs))
	for i, id := range jobIDs {
		msgs[i] = NewProcessJobInputMessage(id)
	}
	return msgs
}

func (m *ProcessJobInput) Type() string { return ProcessJobInputType }

func (m *ProcessJobInput) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *ProcessJobInput) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		jobs, err := tx.LockJobs([]int64{m.JobID})
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			ctx.Log.Errorf("Job %d does not exist", m.JobID)
			outcome.Skip(entityJob, m.JobID, "not found")
			return nil
		}
		job := jobs[0]
		if job.Status != model.JobPending && job.Status != model.JobBlocked {
			ctx.Log.Warnf("Input of job %d has already been processed", job.ID)
			outcome.Skip(entityJob, job.ID, "status "+string(job.Status))
			return nil
		}

		update, processed := store.NewJobUpdate(job)
		if !job.HasInput() {
			if job.RecipeID == 0 {
				ctx.Log.Errorf("Job %d has no input and is not in a recipe", job.ID)
				outcome.Skip(entityJob, job.ID, "no input")
				return nil
			}
			input, err := m.inputFromRecipe(tx, job)
			if err != nil {
				logging.WithStacktrace(ctx.Log, err).Errorf("Recipe created invalid input for job %d, canceling it", job.ID)
				outcome.Skip(entityJob, job.ID, "invalid input")
				outcome.Send(NewCancelJobsMessages([]int64{job.ID}, m.env.Clock.Now())...)
				return nil
			}
			processed.Input = input
		}
		processed.InputFileSize = m.env.fileSize(processed.Input)
		changed, err := tx.UpdateJobs([]store.JobUpdate{update})
		if err != nil {
			return err
		}
		recordUpdates(outcome, entityJob, []int64{job.ID}, changed)

		if len(changed) > 0 && job.NumExes == 0 {
			ctx.Log.Infof("Processed input of job %d, queueing it", job.ID)
			outcome.Send(NewQueuedJobsMessages([]JobExe{{ID: job.ID, ExeNum: 0}}, false, nil)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// inputFromRecipe generates the input of a recipe job from the recipe input and the outputs of the job's
// dependencies, and validates it against the job's input interface.
func (m *ProcessJobInput) inputFromRecipe(tx store.Tx, job *model.Job) (*data.Data, error) {
	recipe, err := tx.GetRecipe(job.RecipeID)
	if err != nil {
		return nil, err
	}
	inst, err := m.env.recipeInstance(tx, recipe)
	if err != nil {
		return nil, err
	}
	nodeName, ok := nodeNameOf(inst.JobIDs(), job.ID)
	if !ok {
		return nil, errors.Errorf("job %d is not a node of recipe %d", job.ID, recipe.ID)
	}
	input, err := nodeInput(inst, nodeName)
	if err != nil {
		return nil, err
	}
	iface, _, err := m.env.Catalog.JobInterfaces(job.JobTypeName, job.JobTypeVersion, job.JobTypeRevision)
	if err != nil {
		return nil, err
	}
	if _, err := input.Copy().Validate(iface); err != nil {
		return nil, err
	}
	return input, nil
}
