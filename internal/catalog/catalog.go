// Package catalog provides read access to published job types, recipe types and their revisions.
//
// Revisions are immutable once published: new behaviour always means a new revision number. Job type settings such as
// IsPaused or MaxScheduled may change at any time and are never cached.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/recipe/definition"
)

type Catalog interface {
	definition.InterfaceLookup
	JobType(key model.JobTypeKey) (*model.JobType, error)
	// JobTypes returns every job type sorted by key.
	JobTypes() []*model.JobType
	JobTypeRevision(name, version string, revision int) (*model.JobTypeRevision, error)
	RecipeType(name string) (*model.RecipeType, error)
	RecipeTypeRevision(name string, revision int) (*model.RecipeTypeRevision, error)
}

type jobTypeRevisionKey struct {
	model.JobTypeKey
	revision int
}

type recipeTypeRevisionKey struct {
	name     string
	revision int
}

// InMemoryCatalog is a Catalog held entirely in memory. It is safe for concurrent use.
type InMemoryCatalog struct {
	mu                  sync.RWMutex
	jobTypes            map[model.JobTypeKey]*model.JobType
	jobTypeRevisions    map[jobTypeRevisionKey]*model.JobTypeRevision
	recipeTypes         map[string]*model.RecipeType
	recipeTypeRevisions map[recipeTypeRevisionKey]*model.RecipeTypeRevision
}

func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{
		jobTypes:            map[model.JobTypeKey]*model.JobType{},
		jobTypeRevisions:    map[jobTypeRevisionKey]*model.JobTypeRevision{},
		recipeTypes:         map[string]*model.RecipeType{},
		recipeTypeRevisions: map[recipeTypeRevisionKey]*model.RecipeTypeRevision{},
	}
}

// PutJobType adds or replaces a job type.
func (c *InMemoryCatalog) PutJobType(jt *model.JobType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *jt
	copied.Resources = jt.Resources.DeepCopy()
	c.jobTypes[jt.Key()] = &copied
}

// PublishJobTypeRevision adds a revision. Publishing an existing revision fails with *scaleerrors.ErrAlreadyExists.
func (c *InMemoryCatalog) PublishJobTypeRevision(rev *model.JobTypeRevision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := jobTypeRevisionKey{JobTypeKey: model.JobTypeKey{Name: rev.Name, Version: rev.Version}, revision: rev.RevisionNum}
	if _, ok := c.jobTypeRevisions[key]; ok {
		return errors.WithStack(&scaleerrors.ErrAlreadyExists{Type: "job type revision", Value: describeJobTypeRevision(key)})
	}
	c.jobTypeRevisions[key] = rev
	return nil
}

func (c *InMemoryCatalog) PutRecipeType(rt *model.RecipeType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *rt
	c.recipeTypes[rt.Name] = &copied
}

// PublishRecipeTypeRevision adds a revision. Publishing an existing revision fails with *scaleerrors.ErrAlreadyExists.
func (c *InMemoryCatalog) PublishRecipeTypeRevision(rev *model.RecipeTypeRevision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := recipeTypeRevisionKey{name: rev.Name, revision: rev.RevisionNum}
	if _, ok := c.recipeTypeRevisions[key]; ok {
		return errors.WithStack(&scaleerrors.ErrAlreadyExists{
			Type:  "recipe type revision",
			Value: fmt.Sprintf("%s/%d", rev.Name, rev.RevisionNum),
		})
	}
	c.recipeTypeRevisions[key] = rev
	return nil
}

func (c *InMemoryCatalog) JobType(key model.JobTypeKey) (*model.JobType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	jt, ok := c.jobTypes[key]
	if !ok {
		return nil, errors.WithStack(&scaleerrors.ErrNotFound{Type: "job type", Value: key.String()})
	}
	copied := *jt
	copied.Resources = jt.Resources.DeepCopy()
	return &copied, nil
}

func (c *InMemoryCatalog) JobTypes() []*model.JobType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]*model.JobType, 0, len(c.jobTypes))
	for _, jt := range c.jobTypes {
		copied := *jt
		copied.Resources = jt.Resources.DeepCopy()
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Version < result[j].Version
	})
	return result
}

func (c *InMemoryCatalog) JobTypeRevision(name, version string, revision int) (*model.JobTypeRevision, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := jobTypeRevisionKey{JobTypeKey: model.JobTypeKey{Name: name, Version: version}, revision: revision}
	rev, ok := c.jobTypeRevisions[key]
	if !ok {
		return nil, errors.WithStack(&scaleerrors.ErrNotFound{Type: "job type revision", Value: describeJobTypeRevision(key)})
	}
	return rev, nil
}

func (c *InMemoryCatalog) RecipeType(name string) (*model.RecipeType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rt, ok := c.recipeTypes[name]
	if !ok {
		return nil, errors.WithStack(&scaleerrors.ErrNotFound{Type: "recipe type", Value: name})
	}
	copied := *rt
	return &copied, nil
}

func (c *InMemoryCatalog) RecipeTypeRevision(name string, revision int) (*model.RecipeTypeRevision, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rev, ok := c.recipeTypeRevisions[recipeTypeRevisionKey{name: name, revision: revision}]
	if !ok {
		return nil, errors.WithStack(&scaleerrors.ErrNotFound{
			Type:  "recipe type revision",
			Value: fmt.Sprintf("%s/%d", name, revision),
		})
	}
	return rev, nil
}

func (c *InMemoryCatalog) JobInterfaces(jobTypeName, jobTypeVersion string, revision int) (*data.Interface, *data.Interface, error) {
	return jobInterfaces(c, jobTypeName, jobTypeVersion, revision)
}

func (c *InMemoryCatalog) RecipeInputInterface(recipeTypeName string, revision int) (*data.Interface, error) {
	return recipeInputInterface(c, recipeTypeName, revision)
}

func jobInterfaces(c Catalog, name, version string, revision int) (*data.Interface, *data.Interface, error) {
	rev, err := c.JobTypeRevision(name, version, revision)
	if err != nil {
		return nil, nil, err
	}
	return rev.InputInterface, rev.OutputInterface, nil
}

func recipeInputInterface(c Catalog, name string, revision int) (*data.Interface, error) {
	rev, err := c.RecipeTypeRevision(name, revision)
	if err != nil {
		return nil, err
	}
	return rev.Definition.InputInterface, nil
}

func describeJobTypeRevision(key jobTypeRevisionKey) string {
	return fmt.Sprintf("%s/%d", key.JobTypeKey, key.revision)
}
