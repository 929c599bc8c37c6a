package definition

import (
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/data"
)

// InterfaceLookup resolves the interfaces of the job and recipe types referenced by a definition.
type InterfaceLookup interface {
	JobInterfaces(jobTypeName, jobTypeVersion string, revision int) (input *data.Interface, output *data.Interface, err error)
	RecipeInputInterface(recipeTypeName string, revision int) (*data.Interface, error)
}

// Validate checks every node in topological order: each dependency connection must come from an ancestor, and the
// interface composed from a node's connections must satisfy the node's own input interface. Connection warnings are
// returned prefixed with the node name.
func (d *RecipeDefinition) Validate(lookup InterfaceLookup) ([]scaleerrors.Warning, error) {
	if err := d.InputInterface.Validate(); err != nil {
		return nil, definitionError(InputInterface, "Recipe input interface is invalid: %s", describe(err))
	}
	order, err := d.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	var warnings []scaleerrors.Warning
	outputs := map[string]*data.Interface{}
	for _, name := range order {
		node, _ := d.Node(name)
		input, output, err := nodeInterfaces(node, lookup)
		if err != nil {
			return nil, err
		}
		outputs[name] = output

		ancestors := d.Ancestors(name)
		connecting := data.NewInterface()
		for _, inputName := range node.ConnectionNames() {
			connection := node.Connections[inputName]
			if err := connection.validate(ancestors); err != nil {
				return nil, err
			}
			if err := connection.addParameterToInterface(connecting, d.InputInterface, outputs); err != nil {
				return nil, definitionError(NodeInterface, "Node '%s' interface error: %s", name, describe(err))
			}
		}
		nodeWarnings, err := input.ValidateConnection(connecting)
		if err != nil {
			return nil, definitionError(NodeInterface, "Node '%s' interface error: %s", name, describe(err))
		}
		for _, w := range nodeWarnings {
			warnings = append(warnings, scaleerrors.NewWarning(w.Code, "Node '%s': %s", name, w.Message))
		}
	}
	return warnings, nil
}

func nodeInterfaces(node *Node, lookup InterfaceLookup) (*data.Interface, *data.Interface, error) {
	switch t := node.Type.(type) {
	case *ConditionNodeType:
		return t.InputInterface, t.OutputInterface, nil
	case *JobNodeType:
		input, output, err := lookup.JobInterfaces(t.JobTypeName, t.JobTypeVersion, t.JobTypeRevision)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "node %s", node.Name)
		}
		return input, output, nil
	case *RecipeNodeType:
		input, err := lookup.RecipeInputInterface(t.RecipeTypeName, t.RecipeTypeRevision)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "node %s", node.Name)
		}
		return input, data.NewInterface(), nil
	}
	return nil, nil, errors.Errorf("node %s has unknown type %T", node.Name, node.Type)
}

// describe renders a nested validation error as "CODE: message" so the outer error keeps the reason.
func describe(err error) string {
	var e *scaleerrors.ErrValidation
	if errors.As(err, &e) {
		return e.Code + ": " + e.Message
	}
	return err.Error()
}
