package definition

import (
	"github.com/ngageoint/scale/internal/data"
)

// InputConnection feeds one node input from either the recipe input or the output of a dependency. It is implemented
// by *RecipeInputConnection and *DependencyInputConnection only.
type InputConnection interface {
	GetInputName() string
	// Equal reports whether the connection has the same kind and wiring as other.
	Equal(other InputConnection) bool
	validate(ancestors map[string]bool) error
	addParameterToInterface(iface *data.Interface, recipeInput *data.Interface, outputs map[string]*data.Interface) error
	addValueToData(d *data.Data, recipeInput *data.Data, outputs map[string]*data.Data) error
}

type RecipeInputConnection struct {
	InputName       string
	RecipeInputName string
}

func (c *RecipeInputConnection) GetInputName() string { return c.InputName }

func (c *RecipeInputConnection) Equal(other InputConnection) bool {
	o, ok := other.(*RecipeInputConnection)
	return ok && *c == *o
}

func (c *RecipeInputConnection) validate(map[string]bool) error {
	return nil
}

func (c *RecipeInputConnection) addParameterToInterface(
	iface *data.Interface, recipeInput *data.Interface, _ map[string]*data.Interface,
) error {
	return iface.AddParameterFromOutputInterface(c.InputName, c.RecipeInputName, recipeInput)
}

func (c *RecipeInputConnection) addValueToData(d *data.Data, recipeInput *data.Data, _ map[string]*data.Data) error {
	return d.AddValueFromOutputData(c.InputName, c.RecipeInputName, recipeInput)
}

type DependencyInputConnection struct {
	InputName  string
	NodeName   string
	OutputName string
}

func (c *DependencyInputConnection) GetInputName() string { return c.InputName }

func (c *DependencyInputConnection) Equal(other InputConnection) bool {
	o, ok := other.(*DependencyInputConnection)
	return ok && *c == *o
}

func (c *DependencyInputConnection) validate(ancestors map[string]bool) error {
	if !ancestors[c.NodeName] {
		return definitionError(MissingDependency, "Cannot get output '%s' without dependency on node '%s'",
			c.OutputName, c.NodeName)
	}
	return nil
}

func (c *DependencyInputConnection) addParameterToInterface(
	iface *data.Interface, _ *data.Interface, outputs map[string]*data.Interface,
) error {
	output, ok := outputs[c.NodeName]
	if !ok {
		output = data.NewInterface()
	}
	return iface.AddParameterFromOutputInterface(c.InputName, c.OutputName, output)
}

func (c *DependencyInputConnection) addValueToData(d *data.Data, _ *data.Data, outputs map[string]*data.Data) error {
	return d.AddValueFromOutputData(c.InputName, c.OutputName, outputs[c.NodeName])
}
