package definition

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/data"
)

func TestRecipeDefinition_AddNode_Duplicate(t *testing.T) {
	def := NewRecipeDefinition(nil)
	require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
	err := def.AddRecipeNode("a", "recipe-a", 1)
	assert.Equal(t, DuplicateNode, scaleerrors.CodeOf(err))
}

func TestRecipeDefinition_AddDependency(t *testing.T) {
	def := NewRecipeDefinition(nil)
	require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
	require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))

	assert.Equal(t, UnknownNode, scaleerrors.CodeOf(def.AddDependency("a", "missing", true)))
	assert.Equal(t, UnknownNode, scaleerrors.CodeOf(def.AddDependency("missing", "b", true)))

	require.NoError(t, def.AddDependency("a", "b", false))
	assert.Equal(t, []string{"a"}, def.Roots())
	assert.Equal(t, []string{"a"}, def.Parents("b"))
	assert.Equal(t, []string{"b"}, def.Children("a"))
	b, _ := def.Node("b")
	assert.Equal(t, map[string]bool{"a": false}, b.ParentalAcceptance)
}

func TestRecipeDefinition_Connections(t *testing.T) {
	input := data.NewInterface().MustAddParameters(data.NewFileParameter("foo", nil, true, false))
	def := NewRecipeDefinition(input)
	require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
	require.NoError(t, def.AddRecipeNode("r", "recipe-r", 1))
	require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))

	tests := map[string]struct {
		connect      func() error
		expectedCode string
	}{
		"recipe input": {
			connect: func() error { return def.AddRecipeInputConnection("a", "in", "foo") },
		},
		"duplicate input": {
			connect:      func() error { return def.AddRecipeInputConnection("a", "in", "foo") },
			expectedCode: DuplicateInput,
		},
		"unknown recipe input": {
			connect:      func() error { return def.AddRecipeInputConnection("a", "other", "bar") },
			expectedCode: UnknownInput,
		},
		"unknown node": {
			connect:      func() error { return def.AddRecipeInputConnection("zzz", "in", "foo") },
			expectedCode: UnknownNode,
		},
		"unknown dependency": {
			connect:      func() error { return def.AddDependencyInputConnection("b", "in", "zzz", "out") },
			expectedCode: UnknownNode,
		},
		"dependency on recipe node": {
			connect:      func() error { return def.AddDependencyInputConnection("b", "in", "r", "out") },
			expectedCode: ConnectionInvalidNode,
		},
		"dependency output": {
			connect: func() error { return def.AddDependencyInputConnection("b", "in", "a", "out") },
		},
	}
	// Cases depend on each other so run them in a fixed order.
	for _, name := range []string{
		"recipe input", "duplicate input", "unknown recipe input", "unknown node", "unknown dependency",
		"dependency on recipe node", "dependency output",
	} {
		tc := tests[name]
		t.Run(name, func(t *testing.T) {
			err := tc.connect()
			if tc.expectedCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tc.expectedCode, scaleerrors.CodeOf(err))
			}
		})
	}
}

func TestRecipeDefinition_TopologicalOrder_Empty(t *testing.T) {
	order, err := NewRecipeDefinition(nil).TopologicalOrder()
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestRecipeDefinition_TopologicalOrder_Diamond(t *testing.T) {
	def := NewRecipeDefinition(nil)
	for _, name := range []string{"d", "c", "b", "a"} {
		require.NoError(t, def.AddJobNode(name, "job", "1.0", 1))
	}
	require.NoError(t, def.AddDependency("a", "b", true))
	require.NoError(t, def.AddDependency("a", "c", true))
	require.NoError(t, def.AddDependency("b", "d", true))
	require.NoError(t, def.AddDependency("c", "d", true))

	order, err := def.TopologicalOrder()
	require.NoError(t, err)
	assertValidOrder(t, def, order)

	again, err := def.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, order, again)
}

func TestRecipeDefinition_TopologicalOrder_CacheInvalidated(t *testing.T) {
	def := NewRecipeDefinition(nil)
	require.NoError(t, def.AddJobNode("b", "job", "1.0", 1))
	require.NoError(t, def.AddJobNode("a", "job", "1.0", 1))
	order, err := def.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)

	require.NoError(t, def.AddDependency("b", "a", true))
	order, err = def.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestRecipeDefinition_TopologicalOrder_Random(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		def := NewRecipeDefinition(nil)
		size := 2 + r.Intn(20)
		perm := r.Perm(size)
		for i := 0; i < size; i++ {
			require.NoError(t, def.AddJobNode(fmt.Sprintf("n%d", perm[i]), "job", "1.0", 1))
		}
		// Edges only go from lower to higher numbers so the graph is acyclic.
		for i := 0; i < size*2; i++ {
			from, to := r.Intn(size), r.Intn(size)
			if from < to {
				require.NoError(t, def.AddDependency(fmt.Sprintf("n%d", from), fmt.Sprintf("n%d", to), true))
			}
		}
		order, err := def.TopologicalOrder()
		require.NoError(t, err)
		require.Len(t, order, size)
		assertValidOrder(t, def, order)
	}
}

func TestRecipeDefinition_TopologicalOrder_Cycle(t *testing.T) {
	tests := map[string][][2]string{
		"three node cycle": {{"a", "b"}, {"b", "c"}, {"c", "a"}},
		"self loop":        {{"a", "a"}},
		"cycle below root": {{"a", "b"}, {"b", "c"}, {"c", "b"}},
	}
	for name, edges := range tests {
		t.Run(name, func(t *testing.T) {
			def := NewRecipeDefinition(nil)
			for _, n := range []string{"a", "b", "c"} {
				require.NoError(t, def.AddJobNode(n, "job", "1.0", 1))
			}
			for _, e := range edges {
				require.NoError(t, def.AddDependency(e[0], e[1], true))
			}
			order, err := def.TopologicalOrder()
			assert.Nil(t, order)
			assert.Equal(t, CircularDependency, scaleerrors.CodeOf(err))
		})
	}
}

func TestRecipeDefinition_AncestorsAndDescendants(t *testing.T) {
	def := chain(t, "a", "b", "c")
	require.NoError(t, def.AddJobNode("x", "job", "1.0", 1))

	assert.Equal(t, map[string]bool{"a": true, "b": true}, def.Ancestors("c"))
	assert.True(t, def.HasAncestor("c", "a"))
	assert.False(t, def.HasAncestor("a", "c"))
	assert.True(t, def.HasDescendant("a", "c"))
	assert.False(t, def.HasDescendant("a", "x"))
}

func TestRecipeDefinition_UpdateNodes(t *testing.T) {
	def := NewRecipeDefinition(nil)
	require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 2))
	require.NoError(t, def.AddJobNode("b", "job-a", "2.0", 2))
	require.NoError(t, def.AddRecipeNode("r", "recipe-r", 3))

	assert.False(t, def.UpdateJobNodes("job-a", "1.0", 2))
	assert.True(t, def.UpdateJobNodes("job-a", "1.0", 5))
	a, _ := def.Node("a")
	b, _ := def.Node("b")
	assert.Equal(t, 5, a.Type.(*JobNodeType).JobTypeRevision)
	assert.Equal(t, 2, b.Type.(*JobNodeType).JobTypeRevision)

	assert.False(t, def.UpdateRecipeNodes("recipe-r", 1))
	assert.True(t, def.UpdateRecipeNodes("recipe-r", 4))

	assert.Equal(t, []JobTypeKey{{Name: "job-a", Version: "1.0"}, {Name: "job-a", Version: "2.0"}}, def.JobTypeKeys())
	assert.Equal(t, []string{"recipe-r"}, def.RecipeTypeNames())
}

func TestRecipeDefinition_GenerateNodeInputData(t *testing.T) {
	input := data.NewInterface().MustAddParameters(data.NewFileParameter("foo", nil, true, false))
	def := NewRecipeDefinition(input)
	require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
	require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))
	require.NoError(t, def.AddDependency("a", "b", true))
	require.NoError(t, def.AddRecipeInputConnection("b", "in_file", "foo"))
	require.NoError(t, def.AddDependencyInputConnection("b", "in_json", "a", "out_json"))
	require.NoError(t, def.AddDependencyInputConnection("b", "in_optional", "a", "never_written"))

	recipeInput := data.NewData()
	require.NoError(t, recipeInput.AddValue(data.NewFileValue("foo", 7)))
	aOutput := data.NewData()
	require.NoError(t, aOutput.AddValue(data.NewJSONValue("out_json", "hello")))

	generated, err := def.GenerateNodeInputData("b", recipeInput, map[string]*data.Data{"a": aOutput})
	require.NoError(t, err)
	assert.Equal(t, []string{"in_file", "in_json"}, generated.Names())
	assert.Equal(t, []int64{7}, generated.FileIDs())
}

func TestRecipeDefinition_Copy(t *testing.T) {
	def := chain(t, "a", "b")
	c := def.Copy()
	require.NoError(t, c.AddJobNode("c", "job", "1.0", 1))
	require.NoError(t, c.AddDependency("b", "c", true))
	c.UpdateJobNodes("job", "1.0", 9)

	assert.Equal(t, 2, def.Len())
	assert.Equal(t, []string{}, def.Children("b"))
	a, _ := def.Node("a")
	assert.Equal(t, 1, a.Type.(*JobNodeType).JobTypeRevision)
}

func chain(t *testing.T, names ...string) *RecipeDefinition {
	def := NewRecipeDefinition(nil)
	for i, name := range names {
		require.NoError(t, def.AddJobNode(name, "job", "1.0", 1))
		if i > 0 {
			require.NoError(t, def.AddDependency(names[i-1], name, true))
		}
	}
	return def
}

func assertValidOrder(t *testing.T, def *RecipeDefinition, order []string) {
	position := map[string]int{}
	for i, name := range order {
		position[name] = i
	}
	for _, node := range def.Nodes() {
		for _, child := range def.Children(node.Name) {
			assert.Less(t, position[node.Name], position[child], "%s must precede %s", node.Name, child)
		}
	}
}
