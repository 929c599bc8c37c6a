package definition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/data"
)

type fakeLookup struct {
	jobInputs   map[string]*data.Interface
	jobOutputs  map[string]*data.Interface
	recipeInput map[string]*data.Interface
}

func (f *fakeLookup) JobInterfaces(name, version string, revision int) (*data.Interface, *data.Interface, error) {
	input, ok := f.jobInputs[name]
	if !ok {
		return nil, nil, &scaleerrors.ErrNotFound{Type: "job type", Value: name}
	}
	output, ok := f.jobOutputs[name]
	if !ok {
		output = data.NewInterface()
	}
	return input, output, nil
}

func (f *fakeLookup) RecipeInputInterface(name string, revision int) (*data.Interface, error) {
	input, ok := f.recipeInput[name]
	if !ok {
		return nil, fmt.Errorf("recipe type %s not found", name)
	}
	return input, nil
}

func TestRecipeDefinition_Validate(t *testing.T) {
	lookup := &fakeLookup{
		jobInputs: map[string]*data.Interface{
			"job-a": data.NewInterface().MustAddParameters(data.NewFileParameter("in_a", []string{"image/png"}, true, false)),
			"job-b": data.NewInterface().MustAddParameters(data.NewJSONParameter("in_b", data.JSONString, true)),
		},
		jobOutputs: map[string]*data.Interface{
			"job-a": data.NewInterface().MustAddParameters(data.NewJSONParameter("out_a", data.JSONString, true)),
		},
		recipeInput: map[string]*data.Interface{
			"recipe-r": data.NewInterface(),
		},
	}
	recipeInput := func() *data.Interface {
		return data.NewInterface().MustAddParameters(data.NewFileParameter("foo", []string{"image/png", "image/tiff"}, true, false))
	}

	tests := map[string]struct {
		build            func(def *RecipeDefinition)
		expectedCode     string
		expectedWarnings []string
	}{
		"valid chain": {
			build: func(def *RecipeDefinition) {
				require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
				require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))
				require.NoError(t, def.AddRecipeNode("r", "recipe-r", 1))
				require.NoError(t, def.AddDependency("a", "b", true))
				require.NoError(t, def.AddDependency("b", "r", true))
				require.NoError(t, def.AddRecipeInputConnection("a", "in_a", "foo"))
				require.NoError(t, def.AddDependencyInputConnection("b", "in_b", "a", "out_a"))
			},
			expectedWarnings: []string{data.MismatchedMediaTypes},
		},
		"missing dependency": {
			build: func(def *RecipeDefinition) {
				require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
				require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))
				require.NoError(t, def.AddRecipeInputConnection("a", "in_a", "foo"))
				require.NoError(t, def.AddDependencyInputConnection("b", "in_b", "a", "out_a"))
			},
			expectedCode: MissingDependency,
		},
		"required input not connected": {
			build: func(def *RecipeDefinition) {
				require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
			},
			expectedCode: NodeInterface,
		},
		"unknown output": {
			build: func(def *RecipeDefinition) {
				require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
				require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))
				require.NoError(t, def.AddDependency("a", "b", true))
				require.NoError(t, def.AddRecipeInputConnection("a", "in_a", "foo"))
				require.NoError(t, def.AddDependencyInputConnection("b", "in_b", "a", "nope"))
			},
			expectedCode: NodeInterface,
		},
		"circular": {
			build: func(def *RecipeDefinition) {
				require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
				require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))
				require.NoError(t, def.AddDependency("a", "b", true))
				require.NoError(t, def.AddDependency("b", "a", true))
			},
			expectedCode: CircularDependency,
		},
		"condition passes through": {
			build: func(def *RecipeDefinition) {
				condInput := data.NewInterface().MustAddParameters(data.NewJSONParameter("in_b", data.JSONString, false))
				filter := data.NewDataFilter(true)
				require.NoError(t, filter.AddFilter(data.Filter{
					Name: "in_b", Type: data.FilterString, Condition: data.Equal, Values: []interface{}{"x"},
				}))
				require.NoError(t, def.AddJobNode("a", "job-a", "1.0", 1))
				require.NoError(t, def.AddConditionNode("c", condInput, filter))
				require.NoError(t, def.AddJobNode("b", "job-b", "1.0", 1))
				require.NoError(t, def.AddDependency("a", "c", true))
				require.NoError(t, def.AddDependency("c", "b", true))
				require.NoError(t, def.AddRecipeInputConnection("a", "in_a", "foo"))
				require.NoError(t, def.AddDependencyInputConnection("c", "in_b", "a", "out_a"))
				require.NoError(t, def.AddDependencyInputConnection("b", "in_b", "c", "in_b"))
			},
			expectedWarnings: []string{data.MismatchedMediaTypes},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			def := NewRecipeDefinition(recipeInput())
			tc.build(def)
			warnings, err := def.Validate(lookup)
			if tc.expectedCode != "" {
				assert.Equal(t, tc.expectedCode, scaleerrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			var codes []string
			for _, w := range warnings {
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tc.expectedWarnings, codes)
		})
	}
}

func TestRecipeDefinition_Validate_UnknownJobType(t *testing.T) {
	def := NewRecipeDefinition(nil)
	require.NoError(t, def.AddJobNode("a", "missing", "1.0", 1))
	_, err := def.Validate(&fakeLookup{})

	var notFound *scaleerrors.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}
