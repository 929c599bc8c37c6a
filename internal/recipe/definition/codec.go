package definition

import (
	"bytes"
	_ "embed"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"sigs.k8s.io/yaml"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/data"
)

// SchemaVersion is the version written into definition documents. Version "6" documents are read unchanged.
const SchemaVersion = "7"

//go:embed schema/definition.schema.json
var definitionSchemaText string

var definitionSchema = jsonschema.MustCompileString("definition.schema.json", definitionSchemaText)

type definitionJSON struct {
	Version string              `json:"version"`
	Input   *data.Interface     `json:"input"`
	Nodes   map[string]nodeJSON `json:"nodes"`
}

type nodeJSON struct {
	Dependencies []dependencyJSON          `json:"dependencies"`
	Input        map[string]connectionJSON `json:"input"`
	NodeType     nodeTypeJSON              `json:"node_type"`
}

type dependencyJSON struct {
	Name       string `json:"name"`
	Acceptance *bool  `json:"acceptance,omitempty"`
}

type connectionJSON struct {
	Type   string `json:"type"`
	Input  string `json:"input,omitempty"`
	Node   string `json:"node,omitempty"`
	Output string `json:"output,omitempty"`
}

type nodeTypeJSON struct {
	NodeType           string           `json:"node_type"`
	JobTypeName        string           `json:"job_type_name,omitempty"`
	JobTypeVersion     string           `json:"job_type_version,omitempty"`
	JobTypeRevision    *int             `json:"job_type_revision,omitempty"`
	RecipeTypeName     string           `json:"recipe_type_name,omitempty"`
	RecipeTypeRevision *int             `json:"recipe_type_revision,omitempty"`
	Interface          *data.Interface  `json:"interface,omitempty"`
	DataFilter         *data.DataFilter `json:"data_filter,omitempty"`
}

// ParseJSON validates a definition document against the definition schema and builds the definition. Nodes are
// added in name order and dependencies in document order, so equal documents give equal topological orders.
func ParseJSON(b []byte) (*RecipeDefinition, error) {
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, invalidDocument(err)
	}
	if err := definitionSchema.Validate(raw); err != nil {
		return nil, invalidDocument(err)
	}

	var doc definitionJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	def := NewRecipeDefinition(doc.Input)

	names := maps.Keys(doc.Nodes)
	slices.Sort(names)
	for _, name := range names {
		t := doc.Nodes[name].NodeType
		var err error
		switch t.NodeType {
		case JobNodeKind:
			err = def.AddJobNode(name, t.JobTypeName, t.JobTypeVersion, *t.JobTypeRevision)
		case RecipeNodeKind:
			err = def.AddRecipeNode(name, t.RecipeTypeName, *t.RecipeTypeRevision)
		case ConditionNodeKind:
			iface := t.Interface
			if iface == nil {
				iface = data.NewInterface()
			}
			filter := t.DataFilter
			if filter == nil {
				filter = data.NewDataFilter(false)
			}
			err = def.AddConditionNode(name, iface, filter)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		node := doc.Nodes[name]
		for _, dep := range node.Dependencies {
			if err := def.AddDependency(dep.Name, name, dep.Acceptance == nil || *dep.Acceptance); err != nil {
				return nil, err
			}
		}
		inputs := maps.Keys(node.Input)
		slices.Sort(inputs)
		for _, inputName := range inputs {
			conn := node.Input[inputName]
			var err error
			if conn.Type == "recipe" {
				err = def.AddRecipeInputConnection(name, inputName, conn.Input)
			} else {
				err = def.AddDependencyInputConnection(name, inputName, conn.Node, conn.Output)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return def, nil
}

// ParseYAML converts a YAML definition document to JSON and parses it.
func ParseYAML(b []byte) (*RecipeDefinition, error) {
	j, err := yaml.YAMLToJSON(b)
	if err != nil {
		return nil, invalidDocument(err)
	}
	return ParseJSON(j)
}

func (d *RecipeDefinition) MarshalJSON() ([]byte, error) {
	doc := definitionJSON{Version: SchemaVersion, Input: d.InputInterface, Nodes: map[string]nodeJSON{}}
	for _, node := range d.nodes {
		n := nodeJSON{Dependencies: []dependencyJSON{}, Input: map[string]connectionJSON{}}
		for _, parent := range d.names(node.parents) {
			acceptance := node.ParentalAcceptance[parent]
			n.Dependencies = append(n.Dependencies, dependencyJSON{Name: parent, Acceptance: &acceptance})
		}
		for name, connection := range node.Connections {
			switch c := connection.(type) {
			case *RecipeInputConnection:
				n.Input[name] = connectionJSON{Type: "recipe", Input: c.RecipeInputName}
			case *DependencyInputConnection:
				n.Input[name] = connectionJSON{Type: "dependency", Node: c.NodeName, Output: c.OutputName}
			}
		}
		n.NodeType.NodeType = node.Kind()
		switch t := node.Type.(type) {
		case *JobNodeType:
			revision := t.JobTypeRevision
			n.NodeType.JobTypeName = t.JobTypeName
			n.NodeType.JobTypeVersion = t.JobTypeVersion
			n.NodeType.JobTypeRevision = &revision
		case *RecipeNodeType:
			revision := t.RecipeTypeRevision
			n.NodeType.RecipeTypeName = t.RecipeTypeName
			n.NodeType.RecipeTypeRevision = &revision
		case *ConditionNodeType:
			filters := t.DataFilter.Filters
			if filters == nil {
				filters = []data.Filter{}
			}
			n.NodeType.Interface = t.InputInterface
			n.NodeType.DataFilter = &data.DataFilter{All: t.DataFilter.All, Filters: filters}
		}
		doc.Nodes[node.Name] = n
	}
	return json.Marshal(doc)
}

func (d *RecipeDefinition) UnmarshalJSON(b []byte) error {
	parsed, err := ParseJSON(b)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

func invalidDocument(err error) error {
	return errors.WithStack(&scaleerrors.ErrValidation{
		Kind: scaleerrors.KindDefinition, Code: InvalidDefinitionJSON, Message: err.Error(),
	})
}
