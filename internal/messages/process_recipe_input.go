package messages

import (
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/diff"
	"github.com/ngageoint/scale/internal/store"
)

// ProcessRecipeInput gives a recipe its input, generating it from the parent recipe for sub-recipes, and updates the
// recipe so that its first nodes are created.
type ProcessRecipeInput struct {
	base
	RecipeID    int64             `json:"recipe_id" validate:"required"`
	ForcedNodes *diff.ForcedNodes `json:"forced_nodes,omitempty"`
}

func NewProcessRecipeInputMessage(recipeID int64, forced *diff.ForcedNodes) messaging.CommandMessage {
	return &ProcessRecipeInput{RecipeID: recipeID, ForcedNodes: forced}
}

func (m *ProcessRecipeInput) Type() string { return ProcessRecipeInputType }

func (m *ProcessRecipeInput) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *ProcessRecipeInput) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		recipes, err := tx.LockRecipes([]int64{m.RecipeID})
		if err != nil {
			return err
		}
		if len(recipes) == 0 {
			ctx.Log.Errorf("Recipe %d does not exist", m.RecipeID)
			outcome.Skip(entityRecipe, m.RecipeID, "not found")
			return nil
		}
		recipe := recipes[0]

		if recipe.HasInput() {
			outcome.Skip(entityRecipe, recipe.ID, "input already processed")
		} else {
			if !recipe.IsSubRecipe() {
				ctx.Log.Errorf("Recipe %d has no input and is not in a recipe", recipe.ID)
				outcome.Skip(entityRecipe, recipe.ID, "no input")
				return nil
			}
			input, err := m.inputFromParent(tx, recipe)
			if err != nil {
				logging.WithStacktrace(ctx.Log, err).Errorf("Recipe created invalid input for sub-recipe %d", recipe.ID)
				outcome.Skip(entityRecipe, recipe.ID, "invalid input")
				return nil
			}
			processed := recipe.DeepCopy()
			processed.Input = input
			processed.InputFileSize = m.env.fileSize(input)
			changed, err := tx.UpdateRecipes([]store.RecipeUpdate{{Recipe: processed, FromSuperseded: recipe.IsSuperseded}})
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityRecipe, []int64{recipe.ID}, changed)
		}

		ctx.Log.Infof("Processed input of recipe %d, updating it", recipe.ID)
		outcome.Send(NewUpdateRecipeMessage(recipe.RootID(), m.ForcedNodes))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// inputFromParent generates the input of a sub-recipe from its parent recipe and validates it against the
// sub-recipe's input interface.
func (m *ProcessRecipeInput) inputFromParent(tx store.Tx, recipe *model.Recipe) (*data.Data, error) {
	parent, err := tx.GetRecipe(recipe.RecipeID)
	if err != nil {
		return nil, err
	}
	inst, err := m.env.recipeInstance(tx, parent)
	if err != nil {
		return nil, err
	}
	nodeName, ok := nodeNameOf(inst.SubRecipeIDs(), recipe.ID)
	if !ok {
		return nil, errors.Errorf("recipe %d is not a node of recipe %d", recipe.ID, parent.ID)
	}
	input, err := nodeInput(inst, nodeName)
	if err != nil {
		return nil, err
	}
	iface, err := m.env.Catalog.RecipeInputInterface(recipe.RecipeTypeName, recipe.RecipeTypeRevision)
	if err != nil {
		return nil, err
	}
	if _, err := input.Copy().Validate(iface); err != nil {
		return nil, err
	}
	return input, nil
}
