package data

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

func TestInterface_AddParameter_Duplicate(t *testing.T) {
	iface := NewInterface()
	require.NoError(t, iface.AddParameter(NewFileParameter("a", nil, true, false)))
	err := iface.AddParameter(NewJSONParameter("a", JSONString, true))
	assert.Equal(t, DuplicateInterface, scaleerrors.CodeOf(err))
	assert.Equal(t, 1, iface.Len())
}

func TestInterface_AddParameterFromOutputInterface(t *testing.T) {
	output := NewInterface().MustAddParameters(
		NewFileParameter("out_file", []string{"text/plain"}, true, true),
	)
	input := NewInterface()

	require.NoError(t, input.AddParameterFromOutputInterface("in_file", "out_file", output))
	p, ok := input.Parameter("in_file")
	require.True(t, ok)
	assert.Equal(t, &FileParameter{Name: "in_file", Required: true, MediaTypes: []string{"text/plain"}, Multiple: true}, p)

	err := input.AddParameterFromOutputInterface("in_file", "out_file", output)
	assert.Equal(t, DuplicateInput, scaleerrors.CodeOf(err))

	err = input.AddParameterFromOutputInterface("other", "missing", output)
	assert.Equal(t, MissingOutput, scaleerrors.CodeOf(err))
}

func TestInterface_ValidateConnection(t *testing.T) {
	receiving := NewInterface().MustAddParameters(
		NewFileParameter("image", []string{"image/png"}, true, false),
		NewJSONParameter("threshold", JSONNumber, false),
	)

	connecting := NewInterface().MustAddParameters(NewFileParameter("image", []string{"image/png"}, true, false))
	warnings, err := receiving.ValidateConnection(connecting)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, err = receiving.ValidateConnection(NewInterface())
	assert.Equal(t, ParamRequired, scaleerrors.CodeOf(err))
}

func TestInterface_Copy(t *testing.T) {
	original := NewInterface().MustAddParameters(NewFileParameter("a", []string{"x/y"}, true, false))
	c := original.Copy()
	p, _ := c.Parameter("a")
	p.(*FileParameter).Required = false

	op, _ := original.Parameter("a")
	assert.True(t, op.IsRequired())
}

func TestInterface_JSON(t *testing.T) {
	doc := `{"files":[{"name":"input_a","media_types":["image/png"]}],"json":[{"name":"count","type":"integer","required":false}]}`
	var iface Interface
	require.NoError(t, json.Unmarshal([]byte(doc), &iface))

	assert.Equal(t, []string{"input_a", "count"}, iface.ParameterNames())
	a, _ := iface.Parameter("input_a")
	assert.True(t, a.IsRequired())
	count, _ := iface.Parameter("count")
	assert.False(t, count.IsRequired())

	err := json.Unmarshal([]byte(`{"json":[{"name":"x","type":"nope"}]}`), &iface)
	assert.Equal(t, InvalidJSONParamType, scaleerrors.CodeOf(err))
}
