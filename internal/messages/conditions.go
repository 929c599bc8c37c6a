package messages

import (
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
	"github.com/ngageoint/scale/internal/store"
)

// RecipeCondition is a condition node of a recipe that needs a condition.
type RecipeCondition struct {
	NodeName     string `json:"node_name" validate:"required"`
	ProcessInput bool   `json:"process_input"`
}

// CreateConditions creates the conditions of a recipe's condition nodes.
type CreateConditions struct {
	base
	RecipeID     int64             `json:"recipe_id" validate:"required"`
	RootRecipeID int64             `json:"root_recipe_id"`
	BatchID      int64             `json:"batch_id,omitempty"`
	Conditions   []RecipeCondition `json:"conditions" validate:"required,max=100,dive"`
}

func NewCreateConditionsMessages(recipe *model.Recipe, conditions []RecipeCondition) []messaging.CommandMessage {
	return chunk(conditions, func(items []RecipeCondition) messaging.CommandMessage {
		return &CreateConditions{
			RecipeID:     recipe.ID,
			RootRecipeID: recipe.RootID(),
			BatchID:      recipe.BatchID,
			Conditions:   items,
		}
	})
}

func (m *CreateConditions) Type() string { return CreateConditionsType }

func (m *CreateConditions) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *CreateConditions) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		if _, err := tx.LockRecipes([]int64{m.RecipeID}); err != nil {
			return err
		}
		nodes, err := tx.GetRecipeNodes([]int64{m.RecipeID})
		if err != nil {
			return err
		}
		existing := map[string]int64{}
		for _, node := range nodes {
			if node.ConditionID != 0 {
				existing[node.NodeName] = node.ConditionID
			}
		}

		var toProcess []int64
		var conditions []*model.Condition
		var created []RecipeCondition
		now := m.env.Clock.Now()
		for _, c := range m.Conditions {
			if id, ok := existing[c.NodeName]; ok {
				outcome.Skip(entityCondition, id, "already exists")
				if c.ProcessInput {
					toProcess = append(toProcess, id)
				}
				continue
			}
			conditions = append(conditions, &model.Condition{
				RootRecipeID: m.RootRecipeID,
				RecipeID:     m.RecipeID,
				BatchID:      m.BatchID,
				Created:      now,
			})
			created = append(created, c)
		}
		if len(conditions) > 0 {
			if err := tx.InsertConditions(conditions); err != nil {
				return err
			}
			recipeNodes := make([]*model.RecipeNode, len(conditions))
			for i, condition := range conditions {
				recipeNodes[i] = &model.RecipeNode{
					RecipeID:    m.RecipeID,
					NodeName:    created[i].NodeName,
					IsOriginal:  true,
					ConditionID: condition.ID,
				}
				outcome.Apply(entityCondition, condition.ID)
				if created[i].ProcessInput {
					toProcess = append(toProcess, condition.ID)
				}
			}
			if err := tx.InsertRecipeNodes(recipeNodes); err != nil {
				return errors.WithMessagef(err, "creating conditions for recipe %d", m.RecipeID)
			}
			ctx.Log.Infof("Created %d condition(s) for recipe %d", len(conditions), m.RecipeID)
		}
		for _, id := range toProcess {
			outcome.Send(NewProcessConditionMessage(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ProcessCondition gives a condition its data, evaluates the condition's filter against it and updates its recipe.
type ProcessCondition struct {
	base
	ConditionID int64 `json:"condition_id" validate:"required"`
}

func NewProcessConditionMessage(conditionID int64) messaging.CommandMessage {
	return &ProcessCondition{ConditionID: conditionID}
}

func (m *ProcessCondition) Type() string { return ProcessConditionType }

func (m *ProcessCondition) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *ProcessCondition) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		conditions, err := tx.LockConditions([]int64{m.ConditionID})
		if err != nil {
			return err
		}
		if len(conditions) == 0 {
			ctx.Log.Errorf("Condition %d does not exist", m.ConditionID)
			outcome.Skip(entityCondition, m.ConditionID, "not found")
			return nil
		}
		condition := conditions[0]
		recipe, err := tx.GetRecipe(condition.RecipeID)
		if err != nil {
			return err
		}

		if condition.IsProcessed {
			outcome.Skip(entityCondition, condition.ID, "already processed")
		} else {
			inst, err := m.env.recipeInstance(tx, recipe)
			if err != nil {
				return err
			}
			nodeName, ok := nodeNameOf(inst.ConditionIDs(), condition.ID)
			if !ok {
				return errors.Errorf("condition %d is not a node of recipe %d", condition.ID, recipe.ID)
			}
			input, err := nodeInput(inst, nodeName)
			if err != nil {
				logging.WithStacktrace(ctx.Log, err).Errorf(
					"Recipe %d created invalid data for condition %d", recipe.ID, condition.ID)
				outcome.Skip(entityCondition, condition.ID, "invalid data")
				return nil
			}
			node, _ := inst.Definition().Node(nodeName)
			conditionType := node.Type.(*definition.ConditionNodeType)
			accepted := conditionType.DataFilter.IsDataAccepted(input, m.env.Files)

			processed := condition.DeepCopy()
			processed.Data = input
			processed.IsProcessed = true
			processed.IsAccepted = accepted
			processed.Processed = m.env.Clock.Now()
			changed, err := tx.UpdateConditions([]store.ConditionUpdate{{Condition: processed, FromProcessed: false}})
			if err != nil {
				return err
			}
			recordUpdates(outcome, entityCondition, []int64{condition.ID}, changed)
			ctx.Log.Infof("Condition %d (recipe %d at '%s') evaluated to %t", condition.ID, recipe.ID, nodeName, accepted)
		}

		outcome.Send(NewUpdateRecipeMessage(recipe.RootID(), nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
