package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
)

// testDefinition builds
//
//	a -> b -> sub
//	a -> check -> c   (runs when check accepts)
//	        \-> d     (runs when check rejects)
func testDefinition(t *testing.T) *definition.RecipeDefinition {
	def := definition.NewRecipeDefinition(nil)
	require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
	require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))
	require.NoError(t, def.AddRecipeNode("sub", "recipe-sub", 1))
	require.NoError(t, def.AddConditionNode("check", data.NewInterface(), data.NewDataFilter(true)))
	require.NoError(t, def.AddJobNode("c", "job-c", "1.0", 1))
	require.NoError(t, def.AddJobNode("d", "job-d", "1.0", 1))
	require.NoError(t, def.AddDependency("a", "b", true))
	require.NoError(t, def.AddDependency("b", "sub", true))
	require.NoError(t, def.AddDependency("a", "check", true))
	require.NoError(t, def.AddDependency("check", "c", true))
	require.NoError(t, def.AddDependency("check", "d", false))
	return def
}

type recordsBuilder struct {
	records Records
	nextID  int64
}

func newRecords() *recordsBuilder {
	return &recordsBuilder{
		records: Records{
			Jobs:       map[int64]*model.Job{},
			SubRecipes: map[int64]*model.Recipe{},
			Conditions: map[int64]*model.Condition{},
		},
		nextID: 100,
	}
}

func (b *recordsBuilder) job(node string, status model.JobStatus, withOutput bool) *recordsBuilder {
	b.nextID++
	job := &model.Job{ID: b.nextID, Status: status}
	if withOutput {
		job.Output = data.NewData()
	}
	b.records.Jobs[job.ID] = job
	b.records.Nodes = append(b.records.Nodes, &model.RecipeNode{NodeName: node, IsOriginal: true, JobID: job.ID})
	return b
}

func (b *recordsBuilder) condition(node string, processed, accepted bool) *recordsBuilder {
	b.nextID++
	cond := &model.Condition{ID: b.nextID, IsProcessed: processed, IsAccepted: accepted, Data: data.NewData()}
	b.records.Conditions[cond.ID] = cond
	b.records.Nodes = append(b.records.Nodes, &model.RecipeNode{NodeName: node, IsOriginal: true, ConditionID: cond.ID})
	return b
}

func (b *recordsBuilder) subRecipe(node string, sub *model.Recipe) *recordsBuilder {
	b.nextID++
	sub.ID = b.nextID
	b.records.SubRecipes[sub.ID] = sub
	b.records.Nodes = append(b.records.Nodes, &model.RecipeNode{NodeName: node, IsOriginal: true, SubRecipeID: sub.ID})
	return b
}

func (b *recordsBuilder) copied(node string) *recordsBuilder {
	for _, rn := range b.records.Nodes {
		if rn.NodeName == node {
			rn.IsOriginal = false
		}
	}
	return b
}

func newInstance(t *testing.T, records Records, withInput bool) *RecipeInstance {
	recipe := &model.Recipe{ID: 1}
	if withInput {
		recipe.Input = data.NewData()
	}
	r, err := NewRecipeInstance(testDefinition(t), recipe, records)
	require.NoError(t, err)
	return r
}

func nodeNames(nodes []*definition.Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

func TestRecipeInstance_NodesToCreate(t *testing.T) {
	tests := map[string]struct {
		records  Records
		expected []string
	}{
		"new recipe": {
			records:  newRecords().records,
			expected: []string{"a", "b", "sub", "check"},
		},
		"condition not processed": {
			records: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobPending, false).
				subRecipe("sub", &model.Recipe{}).
				condition("check", false, false).records,
			expected: nil,
		},
		"condition accepted": {
			records: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobPending, false).
				subRecipe("sub", &model.Recipe{}).
				condition("check", true, true).records,
			expected: []string{"c"},
		},
		"condition rejected": {
			records: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobPending, false).
				subRecipe("sub", &model.Recipe{}).
				condition("check", true, false).records,
			expected: []string{"d"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newInstance(t, tc.records, true)
			assert.ElementsMatch(t, tc.expected, nodeNames(r.NodesToCreate()))
		})
	}
}

func TestRecipeInstance_NodesToCreate_TopologicalOrder(t *testing.T) {
	r := newInstance(t, newRecords().records, false)
	names := nodeNames(r.NodesToCreate())
	require.Len(t, names, 4)
	assert.Equal(t, "a", names[0])
	assert.Less(t, indexOf(names, "b"), indexOf(names, "sub"))
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestRecipeInstance_NodesToProcessInput(t *testing.T) {
	tests := map[string]struct {
		records   Records
		withInput bool
		expected  []string
	}{
		"recipe without input": {
			records:   newRecords().records,
			withInput: false,
			expected:  []string{},
		},
		"new recipe": {
			records:   newRecords().records,
			withInput: true,
			expected:  []string{"a"},
		},
		"parent completed": {
			records: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobPending, false).records,
			withInput: true,
			expected:  []string{"b", "check"},
		},
		"parent completed without output": {
			records: newRecords().
				job("a", model.JobCompleted, false).
				job("b", model.JobBlocked, false).records,
			withInput: true,
			expected:  []string{},
		},
		"job already queued": {
			records: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobQueued, false).
				condition("check", true, true).records,
			withInput: true,
			expected:  []string{"c"},
		},
		"condition rejected": {
			records: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobRunning, false).
				condition("check", true, false).records,
			withInput: true,
			expected:  []string{"d"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newInstance(t, tc.records, tc.withInput)
			assert.ElementsMatch(t, tc.expected, maps.Keys(r.NodesToProcessInput()))
		})
	}
}

func TestRecipeInstance_JobsToUpdate(t *testing.T) {
	tests := map[string]struct {
		builder         *recordsBuilder
		expectedBlocked []string
		expectedPending []string
	}{
		"parent failed": {
			builder: newRecords().
				job("a", model.JobFailed, false).
				job("b", model.JobPending, false),
			expectedBlocked: []string{"b"},
		},
		"parent canceled blocks grandchildren": {
			builder: newRecords().
				job("a", model.JobCanceled, false).
				job("b", model.JobBlocked, false).
				condition("check", true, true).
				job("c", model.JobPending, false),
			expectedBlocked: []string{"c"},
		},
		"parent recovered": {
			builder: newRecords().
				job("a", model.JobQueued, false).
				job("b", model.JobBlocked, false),
			expectedPending: []string{"b"},
		},
		"queued job untouched": {
			builder: newRecords().
				job("a", model.JobFailed, false).
				job("b", model.JobQueued, false),
		},
		"sub-recipe with failed jobs": {
			builder: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobCompleted, true).
				subRecipe("sub", &model.Recipe{RecipeMetrics: model.RecipeMetrics{JobsFailed: 1}}).
				condition("check", true, true).
				job("c", model.JobPending, false),
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newInstance(t, tc.builder.records, true)
			ids := r.JobIDs()
			blocked, pending := r.JobsToUpdate()
			assert.ElementsMatch(t, jobIDs(ids, tc.expectedBlocked), blocked)
			assert.ElementsMatch(t, jobIDs(ids, tc.expectedPending), pending)
		})
	}
}

func jobIDs(ids map[string]int64, names []string) []int64 {
	result := []int64{}
	for _, name := range names {
		result = append(result, ids[name])
	}
	return result
}

func TestRecipeInstance_HasCompleted(t *testing.T) {
	ctx := scalecontext.Background()
	tests := map[string]struct {
		builder  *recordsBuilder
		expected bool
	}{
		"nothing created": {
			builder:  newRecords(),
			expected: false,
		},
		"accepted branch completed": {
			builder: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobCompleted, true).
				subRecipe("sub", &model.Recipe{IsCompleted: true}).
				condition("check", true, true).
				job("c", model.JobCompleted, true),
			expected: true,
		},
		"job still running": {
			builder: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobRunning, false).
				subRecipe("sub", &model.Recipe{}).
				condition("check", true, true).
				job("c", model.JobCompleted, true),
			expected: false,
		},
		"rejected branch left to create": {
			builder: newRecords().
				job("a", model.JobCompleted, true).
				job("b", model.JobCompleted, true).
				subRecipe("sub", &model.Recipe{IsCompleted: true}).
				condition("check", true, false),
			expected: false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newInstance(t, tc.builder.records, true)
			assert.Equal(t, tc.expected, r.HasCompleted(ctx))
		})
	}
}

func TestRecipeInstance_HasCompleted_MissingRecord(t *testing.T) {
	b := newRecords().
		job("a", model.JobCompleted, true).
		job("b", model.JobCompleted, true).
		subRecipe("sub", &model.Recipe{IsCompleted: true}).
		condition("check", true, true).
		job("c", model.JobCompleted, true)
	delete(b.records.Jobs, b.records.Nodes[0].JobID)

	r := newInstance(t, b.records, true)
	node, ok := r.Node("a")
	require.True(t, ok)
	assert.True(t, node.IsMissing())
	assert.False(t, r.HasCompleted(scalecontext.Background()))
}

func TestRecipeInstance_OriginalLeafNodes(t *testing.T) {
	b := newRecords().
		job("a", model.JobCompleted, true).
		job("b", model.JobCompleted, true).
		subRecipe("sub", &model.Recipe{IsCompleted: true}).
		condition("check", true, true).
		job("c", model.JobCompleted, true).
		copied("sub")

	r := newInstance(t, b.records, true)
	var names []string
	for _, n := range r.OriginalLeafNodes() {
		names = append(names, n.Name())
	}
	assert.Equal(t, []string{"c"}, names)
}

func TestRecipeInstance_NodeOutputs(t *testing.T) {
	b := newRecords().
		job("a", model.JobCompleted, true).
		job("b", model.JobRunning, false).
		condition("check", true, true)

	r := newInstance(t, b.records, true)
	assert.ElementsMatch(t, []string{"a", "check"}, maps.Keys(r.NodeOutputs()))
	assert.Len(t, r.ConditionIDs(), 1)
	assert.Len(t, r.SubRecipeIDs(), 0)
}
