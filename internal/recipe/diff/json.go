package diff

import (
	"encoding/json"

	"github.com/ngageoint/scale/internal/recipe/definition"
)

type diffJSON struct {
	Version          string                  `json:"version"`
	CanBeReprocessed bool                    `json:"can_be_reprocessed"`
	Reasons          []Reason                `json:"reasons"`
	Nodes            map[string]nodeDiffJSON `json:"nodes"`
}

type nodeDiffJSON struct {
	Status           Status           `json:"status"`
	Changes          []Change         `json:"changes"`
	ReprocessNewNode bool             `json:"reprocess_new_node"`
	ForceReprocess   bool             `json:"force_reprocess"`
	Dependencies     []dependencyJSON `json:"dependencies"`
	PrevNodeType     string           `json:"prev_node_type,omitempty"`
	NodeType         nodeTypeDiffJSON `json:"node_type"`
	ForcedNodes      *forcedNodesJSON `json:"forced_nodes,omitempty"`
}

type dependencyJSON struct {
	Name       string `json:"name"`
	Acceptance bool   `json:"acceptance"`
}

type nodeTypeDiffJSON struct {
	NodeType               string `json:"node_type"`
	JobTypeName            string `json:"job_type_name,omitempty"`
	JobTypeVersion         string `json:"job_type_version,omitempty"`
	JobTypeRevision        int    `json:"job_type_revision,omitempty"`
	PrevJobTypeName        string `json:"prev_job_type_name,omitempty"`
	PrevJobTypeVersion     string `json:"prev_job_type_version,omitempty"`
	PrevJobTypeRevision    int    `json:"prev_job_type_revision,omitempty"`
	RecipeTypeName         string `json:"recipe_type_name,omitempty"`
	RecipeTypeRevision     int    `json:"recipe_type_revision,omitempty"`
	PrevRecipeTypeName     string `json:"prev_recipe_type_name,omitempty"`
	PrevRecipeTypeRevision int    `json:"prev_recipe_type_revision,omitempty"`
}

// MarshalJSON exports the diff in the form shown to operators before a reprocess.
func (d *RecipeDiff) MarshalJSON() ([]byte, error) {
	doc := diffJSON{
		Version:          SchemaVersion,
		CanBeReprocessed: d.CanBeReprocessed,
		Reasons:          d.Reasons,
		Nodes:            map[string]nodeDiffJSON{},
	}
	if doc.Reasons == nil {
		doc.Reasons = []Reason{}
	}
	for _, n := range d.Nodes() {
		node := nodeDiffJSON{
			Status:           n.Status,
			Changes:          n.Changes,
			ReprocessNewNode: n.ReprocessNewNode,
			ForceReprocess:   n.ForceReprocess,
			Dependencies:     []dependencyJSON{},
			PrevNodeType:     n.PrevKind(),
			NodeType:         nodeTypeDiff(n),
		}
		if node.Changes == nil {
			node.Changes = []Change{}
		}
		for _, parent := range n.ParentNames() {
			node.Dependencies = append(node.Dependencies, dependencyJSON{Name: parent, Acceptance: n.acceptance[parent]})
		}
		if n.ForcedNodes != nil {
			node.ForcedNodes = n.ForcedNodes.toJSON("")
		}
		doc.Nodes[n.Name] = node
	}
	return json.Marshal(doc)
}

func nodeTypeDiff(n *NodeDiff) nodeTypeDiffJSON {
	result := nodeTypeDiffJSON{NodeType: n.Kind()}
	switch t := n.Node.Type.(type) {
	case *definition.JobNodeType:
		result.JobTypeName = t.JobTypeName
		result.JobTypeVersion = t.JobTypeVersion
		result.JobTypeRevision = t.JobTypeRevision
		if n.PrevNode != nil && n.Status != Deleted {
			if p, ok := n.PrevNode.Type.(*definition.JobNodeType); ok {
				if p.JobTypeName != t.JobTypeName {
					result.PrevJobTypeName = p.JobTypeName
				}
				if p.JobTypeVersion != t.JobTypeVersion {
					result.PrevJobTypeVersion = p.JobTypeVersion
				}
				if p.JobTypeRevision != t.JobTypeRevision {
					result.PrevJobTypeRevision = p.JobTypeRevision
				}
			}
		}
	case *definition.RecipeNodeType:
		result.RecipeTypeName = t.RecipeTypeName
		result.RecipeTypeRevision = t.RecipeTypeRevision
		if n.PrevNode != nil && n.Status != Deleted {
			if p, ok := n.PrevNode.Type.(*definition.RecipeNodeType); ok {
				if p.RecipeTypeName != t.RecipeTypeName {
					result.PrevRecipeTypeName = p.RecipeTypeName
				}
				if p.RecipeTypeRevision != t.RecipeTypeRevision {
					result.PrevRecipeTypeRevision = p.RecipeTypeRevision
				}
			}
		}
	}
	return result
}
