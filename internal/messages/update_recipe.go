package messages

import (
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
	"github.com/ngageoint/scale/internal/recipe/diff"
	"github.com/ngageoint/scale/internal/recipe/instance"
	"github.com/ngageoint/scale/internal/store"
)

// UpdateRecipe evaluates the newest recipe of a supersede chain and sends the messages that move it forward: blocking
// and unblocking jobs, creating nodes whose parents allow it, processing the input of nodes whose parents are ready
// and completing the recipe once every node has completed.
type UpdateRecipe struct {
	base
	RootRecipeID int64             `json:"root_recipe_id" validate:"required"`
	ForcedNodes  *diff.ForcedNodes `json:"forced_nodes,omitempty"`
}

func NewUpdateRecipeMessage(rootRecipeID int64, forced *diff.ForcedNodes) messaging.CommandMessage {
	return &UpdateRecipe{RootRecipeID: rootRecipeID, ForcedNodes: forced}
}

func NewUpdateRecipeMessages(rootRecipeIDs []int64, forced *diff.ForcedNodes) []messaging.CommandMessage {
	msgs := make([]messaging.CommandMessage, len(rootRecipeIDs))
	for i, id := range rootRecipeIDs {
		msgs[i] = NewUpdateRecipeMessage(id, forced)
	}
	return msgs
}

func (m *UpdateRecipe) Type() string { return UpdateRecipeType }

func (m *UpdateRecipe) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *UpdateRecipe) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		latest, err := tx.GetLatestRecipes([]int64{m.RootRecipeID})
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			outcome.Skip(entityRecipe, m.RootRecipeID, "superseded")
			return nil
		}
		recipes, err := tx.LockRecipes([]int64{latest[0].ID})
		if err != nil {
			return err
		}
		if len(recipes) == 0 {
			outcome.Skip(entityRecipe, latest[0].ID, "not found")
			return nil
		}
		recipe := recipes[0]
		inst, err := m.env.recipeInstance(tx, recipe)
		if err != nil {
			return err
		}
		now := m.env.Clock.Now()

		blocked, pending := inst.JobsToUpdate()
		if len(blocked) > 0 {
			ctx.Log.Infof("Found %d job(s) in recipe %d that should be BLOCKED", len(blocked), recipe.ID)
			outcome.Send(NewBlockedJobsMessages(blocked, now)...)
		}
		if len(pending) > 0 {
			ctx.Log.Infof("Found %d job(s) in recipe %d that should be PENDING", len(pending), recipe.ID)
			outcome.Send(NewPendingJobsMessages(pending, now)...)
		}

		if !recipe.IsCompleted && inst.HasCompleted(ctx) {
			completed := recipe.DeepCopy()
			completed.IsCompleted = true
			completed.Completed = now
			changed, err := tx.UpdateRecipes([]store.RecipeUpdate{{Recipe: completed, FromSuperseded: recipe.IsSuperseded}})
			if err != nil {
				return err
			}
			if len(changed) > 0 {
				ctx.Log.Infof("Recipe %d has completed", recipe.ID)
				outcome.Send(NewUpdateRecipeMetricsMessages([]int64{recipe.ID})...)
			}
		}
		outcome.Apply(entityRecipe, recipe.ID)

		toProcess := inst.NodesToProcessInput()
		m.createNodes(ctx, outcome, recipe, inst.NodesToCreate(), toProcess)
		m.processNodes(ctx, outcome, toProcess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// createNodes sends the messages creating the given nodes. Nodes that are also in toProcess are created with their
// input processed straight away and are removed from toProcess.
func (m *UpdateRecipe) createNodes(
	ctx *scalecontext.Context, outcome *messaging.Outcome, recipe *model.Recipe, nodes []*definition.Node,
	toProcess map[string]*instance.Node,
) {
	var conditions []RecipeCondition
	var jobs []RecipeJob
	var subRecipes []SubRecipe
	for _, node := range nodes {
		_, processInput := toProcess[node.Name]
		delete(toProcess, node.Name)
		switch t := node.Type.(type) {
		case *definition.ConditionNodeType:
			conditions = append(conditions, RecipeCondition{NodeName: node.Name, ProcessInput: processInput})
		case *definition.JobNodeType:
			jobs = append(jobs, RecipeJob{
				JobTypeName:     t.JobTypeName,
				JobTypeVersion:  t.JobTypeVersion,
				JobTypeRevision: t.JobTypeRevision,
				NodeName:        node.Name,
				ProcessInput:    processInput,
			})
		case *definition.RecipeNodeType:
			subRecipes = append(subRecipes, SubRecipe{
				RecipeTypeName:     t.RecipeTypeName,
				RecipeTypeRevision: t.RecipeTypeRevision,
				NodeName:           node.Name,
				ProcessInput:       processInput,
			})
		}
	}
	if len(conditions) > 0 {
		ctx.Log.Infof("Found %d condition(s) to create for recipe %d", len(conditions), recipe.ID)
		outcome.Send(NewCreateConditionsMessages(recipe, conditions)...)
	}
	if len(jobs) > 0 {
		ctx.Log.Infof("Found %d job(s) to create for recipe %d", len(jobs), recipe.ID)
		outcome.Send(NewCreateRecipeJobsMessages(recipe, jobs)...)
	}
	if len(subRecipes) > 0 {
		ctx.Log.Infof("Found %d sub-recipe(s) to create for recipe %d", len(subRecipes), recipe.ID)
		outcome.Send(NewCreateSubRecipesMessages(recipe, subRecipes, m.ForcedNodes)...)
	}
}

// processNodes sends the messages processing the input of existing nodes, in node name order.
func (m *UpdateRecipe) processNodes(ctx *scalecontext.Context, outcome *messaging.Outcome, toProcess map[string]*instance.Node) {
	var conditions, jobs, subRecipes int
	for _, name := range sortedKeys(toProcess) {
		node := toProcess[name]
		switch {
		case node.Condition != nil:
			conditions++
			outcome.Send(NewProcessConditionMessage(node.Condition.ID))
		case node.Job != nil:
			jobs++
			outcome.Send(NewProcessJobInputMessage(node.Job.ID))
		case node.SubRecipe != nil:
			subRecipes++
			var forced *diff.ForcedNodes
			if m.ForcedNodes != nil {
				forced = m.ForcedNodes.SubRecipe(name)
			}
			outcome.Send(NewProcessRecipeInputMessage(node.SubRecipe.ID, forced))
		}
	}
	if conditions+jobs+subRecipes > 0 {
		ctx.Log.Infof("Processing the input of %d condition(s), %d job(s) and %d sub-recipe(s)", conditions, jobs, subRecipes)
	}
}
