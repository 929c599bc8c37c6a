package catalog

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/model"
)

const testCatalog = `
jobTypes:
  - name: ingest
    version: "1.0"
    revision: 2
    maxScheduled: 3
    maxTries: 3
    priority: 100
    timeout: 30m
    resources: {cpus: 500m, mem: 1Gi, disk: 64Mi}
    input:
      json: [{name: count, type: integer}]
    output:
      files: [{name: product}]
  - name: cleanup
    version: "2.0"
    paused: true
    system: true
recipeTypes:
  - name: ingest-recipe
    definition:
      version: "7"
      input:
        json: [{name: count, type: integer}]
      nodes:
        ingest:
          dependencies: []
          input:
            count: {type: recipe, input: count}
          node_type: {node_type: job, job_type_name: ingest, job_type_version: "1.0", job_type_revision: 2}
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	jt, err := c.JobType(model.JobTypeKey{Name: "ingest", Version: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, 2, jt.RevisionNum)
	assert.Equal(t, 3, jt.MaxScheduled)
	assert.Equal(t, 30*time.Minute, jt.Timeout)
	assert.InDelta(t, 0.5, jt.Resources[model.CPUs], 1e-9)
	assert.InDelta(t, 1024, jt.Resources[model.Mem], 1e-9)
	assert.InDelta(t, 64, jt.Resources[model.Disk], 1e-9)

	input, output, err := c.JobInterfaces("ingest", "1.0", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, input.ParameterNames())
	assert.Equal(t, []string{"product"}, output.ParameterNames())

	jobTypes := c.JobTypes()
	require.Len(t, jobTypes, 2)
	assert.Equal(t, "cleanup", jobTypes[0].Name)
	assert.True(t, jobTypes[0].IsPaused)
	assert.Equal(t, 1, jobTypes[0].RevisionNum)

	rev, err := c.RecipeTypeRevision("ingest-recipe", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rev.Definition.Len())

	recipeInput, err := c.RecipeInputInterface("ingest-recipe", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, recipeInput.ParameterNames())
}

func TestParse_InvalidDefinition(t *testing.T) {
	doc := `
recipeTypes:
  - name: broken
    definition:
      version: "7"
      input: {}
      nodes:
        a:
          dependencies: []
          input: {}
          node_type: {node_type: job, job_type_name: missing, job_type_version: "1.0", job_type_revision: 1}
`
	_, err := Parse([]byte(doc))
	var notFound *scaleerrors.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestInMemoryCatalog_NotFound(t *testing.T) {
	c := NewInMemoryCatalog()
	tests := map[string]func() error{
		"job type": func() error {
			_, err := c.JobType(model.JobTypeKey{Name: "a", Version: "1"})
			return err
		},
		"job type revision": func() error {
			_, err := c.JobTypeRevision("a", "1", 1)
			return err
		},
		"recipe type": func() error {
			_, err := c.RecipeType("r")
			return err
		},
		"recipe type revision": func() error {
			_, err := c.RecipeTypeRevision("r", 1)
			return err
		},
	}
	for name, lookup := range tests {
		t.Run(name, func(t *testing.T) {
			var notFound *scaleerrors.ErrNotFound
			assert.True(t, errors.As(lookup(), &notFound))
		})
	}
}

func TestInMemoryCatalog_PublishTwice(t *testing.T) {
	c := NewInMemoryCatalog()
	rev := &model.JobTypeRevision{Name: "a", Version: "1", RevisionNum: 1}
	require.NoError(t, c.PublishJobTypeRevision(rev))

	var exists *scaleerrors.ErrAlreadyExists
	assert.True(t, errors.As(c.PublishJobTypeRevision(rev), &exists))
}

func TestInMemoryCatalog_JobTypeIsCopied(t *testing.T) {
	c := NewInMemoryCatalog()
	c.PutJobType(&model.JobType{Name: "a", Version: "1", Resources: model.Resources{model.CPUs: 1}})

	jt, err := c.JobType(model.JobTypeKey{Name: "a", Version: "1"})
	require.NoError(t, err)
	jt.IsPaused = true
	jt.Resources[model.CPUs] = 8

	again, err := c.JobType(model.JobTypeKey{Name: "a", Version: "1"})
	require.NoError(t, err)
	assert.False(t, again.IsPaused)
	assert.Equal(t, 1.0, again.Resources[model.CPUs])
}

type countingCatalog struct {
	Catalog
	jobTypeRevisionCalls    int
	recipeTypeRevisionCalls int
}

func (c *countingCatalog) JobTypeRevision(name, version string, revision int) (*model.JobTypeRevision, error) {
	c.jobTypeRevisionCalls++
	return c.Catalog.JobTypeRevision(name, version, revision)
}

func (c *countingCatalog) RecipeTypeRevision(name string, revision int) (*model.RecipeTypeRevision, error) {
	c.recipeTypeRevisionCalls++
	return c.Catalog.RecipeTypeRevision(name, revision)
}

func TestCachingCatalog(t *testing.T) {
	underlying, err := Parse([]byte(testCatalog))
	require.NoError(t, err)
	counting := &countingCatalog{Catalog: underlying}
	c, err := NewCachingCatalog(counting, 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := c.JobInterfaces("ingest", "1.0", 2)
		require.NoError(t, err)
		_, err = c.RecipeInputInterface("ingest-recipe", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, counting.jobTypeRevisionCalls)
	assert.Equal(t, 1, counting.recipeTypeRevisionCalls)

	// Misses are not cached
	for i := 0; i < 2; i++ {
		_, err := c.JobTypeRevision("ingest", "1.0", 7)
		assert.Error(t, err)
	}
	assert.Equal(t, 3, counting.jobTypeRevisionCalls)

	// Job types pass straight through
	jt, err := c.JobType(model.JobTypeKey{Name: "cleanup", Version: "2.0"})
	require.NoError(t, err)
	assert.True(t, jt.IsPaused)
}
