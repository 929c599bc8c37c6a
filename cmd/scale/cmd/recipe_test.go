package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
jobTypes:
  - name: ingest
    version: "1.0"
    revision: 1
    input:
      files: [{name: source_file}]
    output:
      files: [{name: ingested_file}]
  - name: tile
    version: "2.1"
    revision: 1
    input:
      files: [{name: image}]
    output:
      files: [{name: tiles, multiple: true}]
`

const ingestDefinition = `
version: "7"
input:
  files: [{name: source_file}]
nodes:
  ingest:
    dependencies: []
    input:
      source_file: {type: recipe, input: source_file}
    node_type: {node_type: job, job_type_name: ingest, job_type_version: "1.0", job_type_revision: 1}
`

const tileDefinition = ingestDefinition + `
  tile:
    dependencies: [{name: ingest}]
    input:
      image: {type: dependency, node: ingest, output: ingested_file}
    node_type: {node_type: job, job_type_name: tile, job_type_version: "2.1", job_type_revision: 1}
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	cmd := RootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateRecipe(t *testing.T) {
	catalogPath := writeFile(t, "catalog.yaml", testCatalog)
	tests := map[string]struct {
		definition string
		valid      bool
	}{
		"single node": {
			definition: ingestDefinition,
			valid:      true,
		},
		"dependency": {
			definition: tileDefinition,
			valid:      true,
		},
		"unknown job type": {
			definition: `
version: "7"
input: {}
nodes:
  missing:
    dependencies: []
    input: {}
    node_type: {node_type: job, job_type_name: missing, job_type_version: "1.0", job_type_revision: 1}
`,
			valid: false,
		},
		"not a definition": {
			definition: "nodes: 7",
			valid:      false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "definition.yaml", tc.definition)
			out, err := execute("validate-recipe", path, "--catalog", catalogPath)
			if tc.valid {
				require.NoError(t, err)
				assert.Contains(t, out, "is valid")
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateRecipe_RequiresCatalog(t *testing.T) {
	path := writeFile(t, "definition.yaml", ingestDefinition)
	_, err := execute("validate-recipe", path)
	assert.Error(t, err)
}

func TestDiffRecipe(t *testing.T) {
	prev := writeFile(t, "prev.yaml", ingestDefinition)
	current := writeFile(t, "current.yaml", tileDefinition)

	out, err := execute("diff-recipe", prev, current)
	require.NoError(t, err)
	assert.Contains(t, out, `"tile"`)
	assert.Contains(t, out, `"status": "NEW"`)
	assert.Contains(t, out, `"status": "UNCHANGED"`)
	assert.NotContains(t, out, `"force_reprocess": true`)

	out, err = execute("diff-recipe", prev, current, "--force", "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, `"force_reprocess": true`)
}

func TestDiffRecipe_MissingFile(t *testing.T) {
	prev := writeFile(t, "prev.yaml", ingestDefinition)
	_, err := execute("diff-recipe", prev, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
