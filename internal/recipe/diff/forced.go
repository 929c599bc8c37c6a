package diff

import (
	"bytes"
	_ "embed"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

// SchemaVersion is the version written into forced-nodes and diff documents.
const SchemaVersion = "7"

const InvalidForcedNodes = "INVALID_FORCED_NODES"

//go:embed schema/forced_nodes.schema.json
var forcedNodesSchemaText string

var forcedNodesSchema = jsonschema.MustCompileString("forced_nodes.schema.json", forcedNodesSchemaText)

// ForcedNodes names the nodes of a recipe that must be reprocessed even when the diff would copy them, recursively
// for sub-recipes.
type ForcedNodes struct {
	All        bool
	nodes      []string
	subRecipes map[string]*ForcedNodes
}

func NewForcedNodes() *ForcedNodes {
	return &ForcedNodes{subRecipes: map[string]*ForcedNodes{}}
}

// AllForcedNodes returns a ForcedNodes that forces every node.
func AllForcedNodes() *ForcedNodes {
	f := NewForcedNodes()
	f.All = true
	return f
}

func (f *ForcedNodes) AddNode(name string) {
	if !slices.Contains(f.nodes, name) {
		f.nodes = append(f.nodes, name)
	}
}

// AddSubRecipe forces the recipe node name and, inside its sub-recipe, the nodes described by sub.
func (f *ForcedNodes) AddSubRecipe(name string, sub *ForcedNodes) {
	f.AddNode(name)
	if f.subRecipes == nil {
		f.subRecipes = map[string]*ForcedNodes{}
	}
	f.subRecipes[name] = sub
}

func (f *ForcedNodes) IsNodeForcedToReprocess(name string) bool {
	return f.All || slices.Contains(f.nodes, name)
}

func (f *ForcedNodes) ForcedNodeNames() []string {
	return slices.Clone(f.nodes)
}

// SubRecipe returns the forced nodes inside the sub-recipe of the named node, or nil when none are forced.
func (f *ForcedNodes) SubRecipe(name string) *ForcedNodes {
	if f.All {
		return AllForcedNodes()
	}
	return f.subRecipes[name]
}

type forcedNodesJSON struct {
	Version    string                      `json:"version,omitempty"`
	All        bool                        `json:"all"`
	Nodes      []string                    `json:"nodes,omitempty"`
	SubRecipes map[string]*forcedNodesJSON `json:"sub_recipes,omitempty"`
}

func (f *ForcedNodes) toJSON(version string) *forcedNodesJSON {
	doc := &forcedNodesJSON{Version: version, All: f.All}
	if f.All {
		return doc
	}
	doc.Nodes = slices.Clone(f.nodes)
	for name, sub := range f.subRecipes {
		if doc.SubRecipes == nil {
			doc.SubRecipes = map[string]*forcedNodesJSON{}
		}
		doc.SubRecipes[name] = sub.toJSON("")
	}
	return doc
}

func (f *ForcedNodes) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.toJSON(SchemaVersion))
}

func (f *ForcedNodes) UnmarshalJSON(b []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return invalidForcedNodes(err)
	}
	if err := forcedNodesSchema.Validate(raw); err != nil {
		return invalidForcedNodes(err)
	}
	var doc forcedNodesJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return invalidForcedNodes(err)
	}
	*f = *fromJSON(&doc)
	return nil
}

func fromJSON(doc *forcedNodesJSON) *ForcedNodes {
	f := NewForcedNodes()
	if doc.All {
		f.All = true
		return f
	}
	for _, name := range doc.Nodes {
		f.AddNode(name)
	}
	for name, sub := range doc.SubRecipes {
		f.AddSubRecipe(name, fromJSON(sub))
	}
	return f
}

func invalidForcedNodes(err error) error {
	return errors.WithStack(&scaleerrors.ErrValidation{
		Kind: scaleerrors.KindForced, Code: InvalidForcedNodes, Message: err.Error(),
	})
}
