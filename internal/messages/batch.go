package messages

import (
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/diff"
	"github.com/ngageoint/scale/internal/store"
)

// CreateBatchRecipes reprocesses the given recipe chains as part of a submitted batch, using the batch's recipe type
// revision, and marks the batch as created.
type CreateBatchRecipes struct {
	base
	BatchID       int64             `json:"batch_id" validate:"required"`
	EventID       int64             `json:"event_id"`
	RootRecipeIDs []int64           `json:"root_recipe_ids"`
	ForcedNodes   *diff.ForcedNodes `json:"forced_nodes,omitempty"`
}

func NewCreateBatchRecipesMessage(
	batchID, eventID int64, rootRecipeIDs []int64, forced *diff.ForcedNodes,
) messaging.CommandMessage {
	return &CreateBatchRecipes{BatchID: batchID, EventID: eventID, RootRecipeIDs: rootRecipeIDs, ForcedNodes: forced}
}

func (m *CreateBatchRecipes) Type() string { return CreateBatchRecipesType }

func (m *CreateBatchRecipes) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *CreateBatchRecipes) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		batches, err := tx.LockBatches([]int64{m.BatchID})
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			ctx.Log.Errorf("Batch %d does not exist", m.BatchID)
			outcome.Skip(entityBatch, m.BatchID, "not found")
			return nil
		}
		batch := batches[0]
		if batch.Status != model.BatchSubmitted {
			outcome.Skip(entityBatch, batch.ID, "recipes already created")
			return nil
		}

		ctx.Log.Infof("Reprocessing %d recipe(s) for batch %d", len(m.RootRecipeIDs), batch.ID)
		outcome.Send(NewReprocessRecipesMessages(
			batch.RecipeTypeName, batch.RecipeTypeRevision, uniqueSorted(m.RootRecipeIDs), m.EventID, batch.ID, m.ForcedNodes,
		)...)

		created := batch.DeepCopy()
		created.Status = model.BatchCreated
		if err := tx.SaveBatch(created); err != nil {
			return err
		}
		outcome.Apply(entityBatch, batch.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
