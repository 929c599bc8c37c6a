package catalog

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"sigs.k8s.io/yaml"

	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
)

type catalogDocument struct {
	JobTypes    []jobTypeDocument    `json:"jobTypes"`
	RecipeTypes []recipeTypeDocument `json:"recipeTypes"`
}

type jobTypeDocument struct {
	Name         string                       `json:"name"`
	Version      string                       `json:"version"`
	Revision     int                          `json:"revision"`
	Paused       bool                         `json:"paused"`
	System       bool                         `json:"system"`
	LongRunning  bool                         `json:"longRunning"`
	MaxScheduled int                          `json:"maxScheduled"`
	MaxTries     int                          `json:"maxTries"`
	Priority     int                          `json:"priority"`
	Timeout      string                       `json:"timeout"`
	DockerImage  string                       `json:"dockerImage"`
	Resources    map[string]resource.Quantity `json:"resources"`
	Input        *data.Interface              `json:"input"`
	Output       *data.Interface              `json:"output"`
}

type recipeTypeDocument struct {
	Name       string                       `json:"name"`
	Revision   int                          `json:"revision"`
	System     bool                         `json:"system"`
	Definition *definition.RecipeDefinition `json:"definition"`
}

// LoadFile reads a YAML catalog document from path.
func LoadFile(path string) (*InMemoryCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c, err := Parse(b)
	return c, errors.WithMessagef(err, "catalog %s", path)
}

// Parse builds a catalog from a YAML document listing job types, each with the interfaces of its current revision,
// and recipe types, each with the definition of its current revision. A recipe type must be listed after every recipe
// type it contains.
func Parse(b []byte) (*InMemoryCatalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.WithStack(err)
	}

	c := NewInMemoryCatalog()
	for _, jt := range doc.JobTypes {
		revision := jt.Revision
		if revision == 0 {
			revision = 1
		}
		var timeout time.Duration
		if jt.Timeout != "" {
			var err error
			if timeout, err = time.ParseDuration(jt.Timeout); err != nil {
				return nil, errors.Wrapf(err, "job type %s:%s", jt.Name, jt.Version)
			}
		}
		c.PutJobType(&model.JobType{
			Name:          jt.Name,
			Version:       jt.Version,
			RevisionNum:   revision,
			IsActive:      true,
			IsPaused:      jt.Paused,
			IsSystem:      jt.System,
			IsLongRunning: jt.LongRunning,
			MaxScheduled:  jt.MaxScheduled,
			MaxTries:      jt.MaxTries,
			Priority:      jt.Priority,
			Timeout:       timeout,
			DockerImage:   jt.DockerImage,
			Resources:     model.FromQuantities(jt.Resources),
		})
		rev := &model.JobTypeRevision{
			Name:            jt.Name,
			Version:         jt.Version,
			RevisionNum:     revision,
			InputInterface:  orEmpty(jt.Input),
			OutputInterface: orEmpty(jt.Output),
		}
		if err := c.PublishJobTypeRevision(rev); err != nil {
			return nil, err
		}
	}

	for _, rt := range doc.RecipeTypes {
		if rt.Definition == nil {
			return nil, errors.Errorf("recipe type %s has no definition", rt.Name)
		}
		revision := rt.Revision
		if revision == 0 {
			revision = 1
		}
		if _, err := rt.Definition.Validate(c); err != nil {
			return nil, errors.WithMessagef(err, "recipe type %s", rt.Name)
		}
		c.PutRecipeType(&model.RecipeType{Name: rt.Name, RevisionNum: revision, IsActive: true, IsSystem: rt.System})
		rev := &model.RecipeTypeRevision{Name: rt.Name, RevisionNum: revision, Definition: rt.Definition}
		if err := c.PublishRecipeTypeRevision(rev); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func orEmpty(iface *data.Interface) *data.Interface {
	if iface == nil {
		return data.NewInterface()
	}
	return iface
}
