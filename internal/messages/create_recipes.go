package messages

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
	"github.com/ngageoint/scale/internal/recipe/diff"
	"github.com/ngageoint/scale/internal/store"
)

// Kinds of CreateRecipes message
const (
	CreateNewRecipe       = "new"
	CreateReprocessRecipe = "reprocess"
	CreateSubRecipes      = "sub-recipes"
)

// SubRecipe is a recipe node of a recipe that needs a sub-recipe.
type SubRecipe struct {
	RecipeTypeName     string `json:"recipe_type_name" validate:"required"`
	RecipeTypeRevision int    `json:"recipe_type_revision" validate:"required"`
	NodeName           string `json:"node_name" validate:"required"`
	ProcessInput       bool   `json:"process_input"`
}

// CreateRecipes creates a new top-level recipe, new recipes superseding existing ones for a reprocess, or the
// sub-recipes of a recipe's recipe nodes. Executing it again finds the recipes it already created.
type CreateRecipes struct {
	base
	Kind        string            `json:"kind" validate:"oneof=new reprocess sub-recipes"`
	EventID     int64             `json:"event_id"`
	BatchID     int64             `json:"batch_id,omitempty"`
	ForcedNodes *diff.ForcedNodes `json:"forced_nodes,omitempty"`

	// RecipeTypeName and RecipeTypeRevision name the revision new and reprocessed recipes are created with.
	RecipeTypeName     string     `json:"recipe_type_name,omitempty" validate:"required_unless=Kind sub-recipes"`
	RecipeTypeRevision int        `json:"recipe_type_revision,omitempty" validate:"required_unless=Kind sub-recipes"`
	Input              *data.Data `json:"input,omitempty"`

	RootRecipeIDs []int64 `json:"root_recipe_ids,omitempty" validate:"required_if=Kind reprocess,max=100"`

	RecipeID           int64       `json:"recipe_id,omitempty" validate:"required_if=Kind sub-recipes"`
	SupersededRecipeID int64       `json:"superseded_recipe_id,omitempty"`
	SubRecipes         []SubRecipe `json:"sub_recipes,omitempty" validate:"required_if=Kind sub-recipes,max=100,dive"`
}

func NewCreateRecipeMessage(
	recipeTypeName string, revision int, eventID, batchID int64, input *data.Data,
) messaging.CommandMessage {
	return &CreateRecipes{
		Kind:               CreateNewRecipe,
		EventID:            eventID,
		BatchID:            batchID,
		RecipeTypeName:     recipeTypeName,
		RecipeTypeRevision: revision,
		Input:              input,
	}
}

// NewReprocessRecipesMessages creates messages that supersede the newest recipe of each given chain with a recipe of
// the given revision.
func NewReprocessRecipesMessages(
	recipeTypeName string, revision int, rootRecipeIDs []int64, eventID, batchID int64, forced *diff.ForcedNodes,
) []messaging.CommandMessage {
	return chunk(rootRecipeIDs, func(ids []int64) messaging.CommandMessage {
		return &CreateRecipes{
			Kind:               CreateReprocessRecipe,
			EventID:            eventID,
			BatchID:            batchID,
			ForcedNodes:        forced,
			RecipeTypeName:     recipeTypeName,
			RecipeTypeRevision: revision,
			RootRecipeIDs:      ids,
		}
	})
}

func NewCreateSubRecipesMessages(
	recipe *model.Recipe, subRecipes []SubRecipe, forced *diff.ForcedNodes,
) []messaging.CommandMessage {
	return chunk(subRecipes, func(items []SubRecipe) messaging.CommandMessage {
		return &CreateRecipes{
			Kind:               CreateSubRecipes,
			EventID:            recipe.EventID,
			BatchID:            recipe.BatchID,
			ForcedNodes:        forced,
			RecipeID:           recipe.ID,
			SupersededRecipeID: recipe.SupersededRecipeID,
			SubRecipes:         items,
		}
	})
}

func (m *CreateRecipes) Type() string { return CreateRecipesType }

func (m *CreateRecipes) ToJSON() ([]byte, error) { return toJSON(m) }

func (m *CreateRecipes) Execute(ctx *scalecontext.Context) (*messaging.Outcome, error) {
	var outcome *messaging.Outcome
	err := m.env.Store.Atomic(ctx, func(tx store.Tx) error {
		outcome = &messaging.Outcome{}
		switch m.Kind {
		case CreateNewRecipe:
			return m.createNew(ctx, tx, outcome)
		case CreateReprocessRecipe:
			return m.createReprocess(ctx, tx, outcome)
		default:
			return m.createSubRecipes(ctx, tx, outcome)
		}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (m *CreateRecipes) isActive(ctx *scalecontext.Context, name string) (bool, error) {
	recipeType, err := m.env.Catalog.RecipeType(name)
	if err != nil {
		return false, err
	}
	if !recipeType.IsActive {
		ctx.Log.Errorf("Recipe type %s is not active, no recipes will be created", name)
	}
	return recipeType.IsActive, nil
}

func (m *CreateRecipes) createNew(ctx *scalecontext.Context, tx store.Tx, outcome *messaging.Outcome) error {
	existing, err := tx.GetRecipesForEvent(m.EventID)
	if err != nil {
		return err
	}
	for _, recipe := range existing {
		if recipe.RecipeTypeName == m.RecipeTypeName && recipe.RecipeTypeRevision == m.RecipeTypeRevision &&
			recipe.BatchID == m.BatchID && recipe.SupersededRecipeID == 0 && dataEqual(recipe.Input, m.Input) {
			outcome.Skip(entityRecipe, recipe.ID, "already exists")
			outcome.Send(NewProcessRecipeInputMessage(recipe.ID, m.ForcedNodes))
			return nil
		}
	}

	if active, err := m.isActive(ctx, m.RecipeTypeName); err != nil || !active {
		return err
	}
	iface, err := m.env.Catalog.RecipeInputInterface(m.RecipeTypeName, m.RecipeTypeRevision)
	if err != nil {
		return err
	}
	if m.Input == nil {
		ctx.Log.Errorf("Recipe of type %s revision %d was given no input", m.RecipeTypeName, m.RecipeTypeRevision)
		return nil
	}
	if _, err := m.Input.Copy().Validate(iface); err != nil {
		logging.WithStacktrace(ctx.Log, err).Errorf(
			"Recipe of type %s revision %d was given invalid input", m.RecipeTypeName, m.RecipeTypeRevision)
		return nil
	}

	recipe := &model.Recipe{
		RecipeTypeName:     m.RecipeTypeName,
		RecipeTypeRevision: m.RecipeTypeRevision,
		EventID:            m.EventID,
		BatchID:            m.BatchID,
		Input:              m.Input.Copy(),
		InputFileSize:      m.env.fileSize(m.Input),
		Created:            m.env.Clock.Now(),
	}
	if err := tx.InsertRecipes([]*model.Recipe{recipe}); err != nil {
		return err
	}
	ctx.Log.Infof("Created recipe %d of type %s", recipe.ID, m.RecipeTypeName)
	outcome.Apply(entityRecipe, recipe.ID)
	outcome.Send(NewProcessRecipeInputMessage(recipe.ID, m.ForcedNodes))
	return nil
}

// recipePair is a new recipe and the recipe it supersedes.
type recipePair struct {
	superseded  *model.Recipe
	replacement *model.Recipe
}

func (m *CreateRecipes) createReprocess(ctx *scalecontext.Context, tx store.Tx, outcome *messaging.Outcome) error {
	latest, err := tx.GetLatestRecipes(m.RootRecipeIDs)
	if err != nil {
		return err
	}
	var pairs []recipePair
	var toSupersede []*model.Recipe
	for _, recipe := range latest {
		if recipe.SupersededRecipeID != 0 && recipe.EventID == m.EventID && recipe.BatchID == m.BatchID {
			// Created by an earlier execution of this message.
			superseded, err := tx.GetRecipe(recipe.SupersededRecipeID)
			if err != nil {
				return err
			}
			outcome.Skip(entityRecipe, recipe.ID, "already exists")
			pairs = append(pairs, recipePair{superseded: superseded, replacement: recipe})
			continue
		}
		toSupersede = append(toSupersede, recipe)
	}

	if len(toSupersede) > 0 {
		if active, err := m.isActive(ctx, m.RecipeTypeName); err != nil || !active {
			return err
		}
		created, err := m.supersedeRecipes(ctx, tx, toSupersede)
		if err != nil {
			return err
		}
		for _, pair := range created {
			outcome.Apply(entityRecipe, pair.replacement.ID)
		}
		pairs = append(pairs, created...)
	}

	for _, pair := range pairs {
		d, err := m.env.recipeDiff(pair.superseded, pair.replacement, m.ForcedNodes)
		if err != nil {
			return err
		}
		forced := supersedeMessages(outcome, d, pair.superseded, m.ForcedNodes, m.env.Clock.Now())
		outcome.Send(NewProcessRecipeInputMessage(pair.replacement.ID, forced))
	}
	return nil
}

// supersedeRecipes marks recipes as superseded and creates their replacements, copying over the nodes that do not
// need to be reprocessed. Sub-recipes and recipes whose diff forbids reprocessing are left alone.
func (m *CreateRecipes) supersedeRecipes(ctx *scalecontext.Context, tx store.Tx, recipes []*model.Recipe) ([]recipePair, error) {
	now := m.env.Clock.Now()
	var pairs []recipePair
	var updates []store.RecipeUpdate
	diffs := map[int64]*diff.RecipeDiff{}
	for _, recipe := range recipes {
		replacement := &model.Recipe{
			RecipeTypeName:         m.RecipeTypeName,
			RecipeTypeRevision:     m.RecipeTypeRevision,
			EventID:                m.EventID,
			BatchID:                m.BatchID,
			SupersededRecipeID:     recipe.ID,
			RootSupersededRecipeID: recipe.RootID(),
			InputFileSize:          recipe.InputFileSize,
			Created:                now,
		}
		if recipe.Input != nil {
			replacement.Input = recipe.Input.Copy()
		}
		d, err := m.env.recipeDiff(recipe, replacement, m.ForcedNodes)
		if err != nil {
			return nil, err
		}
		if !d.CanBeReprocessed || recipe.IsSubRecipe() {
			ctx.Log.Errorf("Recipe %d cannot be reprocessed: %v", recipe.ID, d.Reasons)
			continue
		}
		superseded := recipe.DeepCopy()
		superseded.IsSuperseded = true
		superseded.Superseded = now
		updates = append(updates, store.RecipeUpdate{Recipe: superseded, FromSuperseded: false})
		pairs = append(pairs, recipePair{superseded: recipe, replacement: replacement})
		diffs[recipe.ID] = d
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	changed, err := tx.UpdateRecipes(updates)
	if err != nil {
		return nil, err
	}
	var kept []recipePair
	var replacements []*model.Recipe
	for _, pair := range pairs {
		if slices.Contains(changed, pair.superseded.ID) {
			kept = append(kept, pair)
			replacements = append(replacements, pair.replacement)
		}
	}
	if len(replacements) == 0 {
		return nil, nil
	}
	if err := tx.InsertRecipes(replacements); err != nil {
		return nil, err
	}
	for _, pair := range kept {
		if err := copyRecipeNodes(tx, diffs[pair.superseded.ID], pair.superseded, pair.replacement); err != nil {
			return nil, err
		}
	}
	ctx.Log.Infof("Created %d recipe(s) to reprocess", len(replacements))
	return kept, nil
}

func (m *CreateRecipes) createSubRecipes(ctx *scalecontext.Context, tx store.Tx, outcome *messaging.Outcome) error {
	if _, err := tx.LockRecipes([]int64{m.RecipeID}); err != nil {
		return err
	}
	parent, err := tx.GetRecipe(m.RecipeID)
	if err != nil {
		return err
	}
	nodes, err := tx.GetRecipeNodes([]int64{m.RecipeID})
	if err != nil {
		return err
	}
	existingByNode := map[string]int64{}
	for _, node := range nodes {
		if node.SubRecipeID != 0 {
			existingByNode[node.NodeName] = node.SubRecipeID
		}
	}
	supersededByNode, err := m.supersededSubRecipes(tx)
	if err != nil {
		return err
	}

	now := m.env.Clock.Now()
	byNode := map[string]*model.Recipe{}
	var created []*model.Recipe
	var createdNames []string
	for _, sub := range m.SubRecipes {
		if id, ok := existingByNode[sub.NodeName]; ok {
			recipe, err := tx.GetRecipe(id)
			if err != nil {
				return err
			}
			outcome.Skip(entityRecipe, id, "already exists")
			byNode[sub.NodeName] = recipe
			continue
		}
		if active, err := m.isActive(ctx, sub.RecipeTypeName); err != nil || !active {
			return err
		}
		recipe := &model.Recipe{
			RecipeTypeName:     sub.RecipeTypeName,
			RecipeTypeRevision: sub.RecipeTypeRevision,
			EventID:            parent.EventID,
			RecipeID:           m.RecipeID,
			BatchID:            m.BatchID,
			Created:            now,
		}
		if superseded, ok := supersededByNode[sub.NodeName]; ok && superseded.RecipeTypeName == sub.RecipeTypeName {
			recipe.SupersededRecipeID = superseded.ID
			recipe.RootSupersededRecipeID = superseded.RootID()
		}
		created = append(created, recipe)
		createdNames = append(createdNames, sub.NodeName)
		byNode[sub.NodeName] = recipe
	}

	if len(created) > 0 {
		if err := tx.InsertRecipes(created); err != nil {
			return err
		}
		recipeNodes := make([]*model.RecipeNode, len(created))
		for i, recipe := range created {
			recipeNodes[i] = &model.RecipeNode{
				RecipeID:    m.RecipeID,
				NodeName:    createdNames[i],
				IsOriginal:  true,
				SubRecipeID: recipe.ID,
			}
			outcome.Apply(entityRecipe, recipe.ID)
		}
		if err := tx.InsertRecipeNodes(recipeNodes); err != nil {
			return errors.WithMessagef(err, "creating sub-recipes for recipe %d", m.RecipeID)
		}
		ctx.Log.Infof("Created %d sub-recipe(s) for recipe %d", len(created), m.RecipeID)
	}

	for _, sub := range m.SubRecipes {
		recipe := byNode[sub.NodeName]
		var forced *diff.ForcedNodes
		if m.ForcedNodes != nil {
			forced = m.ForcedNodes.SubRecipe(sub.NodeName)
		}
		if superseded, ok := supersededByNode[sub.NodeName]; ok && recipe.SupersededRecipeID == superseded.ID {
			d, err := m.env.recipeDiff(superseded, recipe, forced)
			if err != nil {
				return err
			}
			if slices.Contains(created, recipe) {
				if err := copyRecipeNodes(tx, d, superseded, recipe); err != nil {
					return err
				}
			}
			forced = supersedeMessages(outcome, d, superseded, forced, now)
		}
		if recipe.HasInput() || sub.ProcessInput {
			outcome.Send(NewProcessRecipeInputMessage(recipe.ID, forced))
		} else {
			// Nodes that need no input from the parent can be created already.
			outcome.Send(NewUpdateRecipeMessage(recipe.RootID(), forced))
		}
	}
	outcome.Send(NewUpdateRecipeMetricsMessages([]int64{m.RecipeID})...)
	return nil
}

// supersededSubRecipes returns the sub-recipes of the superseded parent recipe keyed by node name.
func (m *CreateRecipes) supersededSubRecipes(tx store.Tx) (map[string]*model.Recipe, error) {
	result := map[string]*model.Recipe{}
	if m.SupersededRecipeID == 0 {
		return result, nil
	}
	nodes, err := tx.GetRecipeNodes([]int64{m.SupersededRecipeID})
	if err != nil {
		return nil, err
	}
	ids := map[int64]string{}
	var subIDs []int64
	for _, node := range nodes {
		if node.SubRecipeID != 0 {
			ids[node.SubRecipeID] = node.NodeName
			subIDs = append(subIDs, node.SubRecipeID)
		}
	}
	subs, err := tx.GetRecipes(subIDs)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		result[ids[sub.ID]] = sub
	}
	return result, nil
}

// supersedeMessages sends the messages superseding the nodes of superseded that the diff replaces. It returns the
// forced nodes the replacement recipe must be processed with: sub-recipes superseded recursively are recreated with
// every node forced.
func supersedeMessages(
	outcome *messaging.Outcome, d *diff.RecipeDiff, superseded *model.Recipe, forced *diff.ForcedNodes, when time.Time,
) *diff.ForcedNodes {
	var jobs, subRecipes, recursive []string
	for name, node := range d.NodesToSupersede() {
		switch previousKind(node) {
		case definition.JobNodeKind:
			jobs = append(jobs, name)
		case definition.RecipeNodeKind:
			subRecipes = append(subRecipes, name)
		}
	}
	for name, node := range d.NodesToRecursivelySupersede() {
		if previousKind(node) == definition.RecipeNodeKind {
			recursive = append(recursive, name)
		}
	}
	if len(recursive) > 0 {
		forced = cloneForcedNodes(forced)
		for _, name := range recursive {
			forced.AddSubRecipe(name, diff.AllForcedNodes())
		}
	}
	if len(jobs)+len(subRecipes)+len(recursive) > 0 {
		outcome.Send(&SupersedeRecipeNodes{
			RecipeIDs:           []int64{superseded.ID},
			When:                when,
			SupersedeJobs:       sortedNames(jobs),
			SupersedeSubRecipes: sortedNames(subRecipes),
			SupersedeRecursive:  sortedNames(recursive),
		})
	}
	return forced
}

func previousKind(node *diff.NodeDiff) string {
	if node.PrevNode != nil {
		return node.PrevNode.Kind()
	}
	return node.Kind()
}

// cloneForcedNodes returns a copy of forced that can be changed without affecting the original, or an empty
// ForcedNodes when forced is nil.
func cloneForcedNodes(forced *diff.ForcedNodes) *diff.ForcedNodes {
	if forced == nil {
		return diff.NewForcedNodes()
	}
	b, err := json.Marshal(forced)
	if err != nil {
		return forced
	}
	clone := diff.NewForcedNodes()
	if err := json.Unmarshal(b, clone); err != nil {
		return forced
	}
	return clone
}

func sortedNames(names []string) []string {
	slices.Sort(names)
	return names
}
