package catalog

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/model"
)

// CachingCatalog keeps recently used revisions of an underlying Catalog in an LRU cache. Revisions never change once
// published, so cached entries never go stale. Everything else is passed straight through.
type CachingCatalog struct {
	Catalog
	jobTypeRevisions    *lru.Cache
	recipeTypeRevisions *lru.Cache
}

func NewCachingCatalog(underlying Catalog, size int) (*CachingCatalog, error) {
	jobTypeRevisions, err := lru.New(size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	recipeTypeRevisions, err := lru.New(size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &CachingCatalog{
		Catalog:             underlying,
		jobTypeRevisions:    jobTypeRevisions,
		recipeTypeRevisions: recipeTypeRevisions,
	}, nil
}

func (c *CachingCatalog) JobTypeRevision(name, version string, revision int) (*model.JobTypeRevision, error) {
	key := jobTypeRevisionKey{JobTypeKey: model.JobTypeKey{Name: name, Version: version}, revision: revision}
	if cached, ok := c.jobTypeRevisions.Get(key); ok {
		return cached.(*model.JobTypeRevision), nil
	}
	rev, err := c.Catalog.JobTypeRevision(name, version, revision)
	if err != nil {
		return nil, err
	}
	c.jobTypeRevisions.Add(key, rev)
	return rev, nil
}

func (c *CachingCatalog) RecipeTypeRevision(name string, revision int) (*model.RecipeTypeRevision, error) {
	key := recipeTypeRevisionKey{name: name, revision: revision}
	if cached, ok := c.recipeTypeRevisions.Get(key); ok {
		return cached.(*model.RecipeTypeRevision), nil
	}
	rev, err := c.Catalog.RecipeTypeRevision(name, revision)
	if err != nil {
		return nil, err
	}
	c.recipeTypeRevisions.Add(key, rev)
	return rev, nil
}

func (c *CachingCatalog) JobInterfaces(jobTypeName, jobTypeVersion string, revision int) (*data.Interface, *data.Interface, error) {
	return jobInterfaces(c, jobTypeName, jobTypeVersion, revision)
}

func (c *CachingCatalog) RecipeInputInterface(recipeTypeName string, revision int) (*data.Interface, error) {
	return recipeInputInterface(c, recipeTypeName, revision)
}
