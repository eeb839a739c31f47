package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/orchestra/pkg/api"
)

const shipYAML = `
name: ship
steps:
  - name: compile
    module: builder
    action: compile
    parameters:
      target: linux
  - name: upload
    module: storage
    action: put
    dependencies: [compile]
`

func TestParseWorkflowYAML(t *testing.T) {
	wf, err := ParseWorkflowYAML([]byte(shipYAML))
	require.NoError(t, err)

	assert.Equal(t, "ship", wf.Name)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, "linux", wf.Steps[0].Parameters["target"])
	assert.Equal(t, []string{"compile"}, wf.Steps[1].Dependencies)
}

func TestParseWorkflowYAML_Errors(t *testing.T) {
	_, err := ParseWorkflowYAML([]byte("   \n"))
	assert.Error(t, err)

	_, err = ParseWorkflowYAML([]byte("name: x\nbogus: 1\nsteps: []\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = ParseWorkflowYAML([]byte(`
name: loop
steps:
  - {name: a, module: m, action: a, dependencies: [b]}
  - {name: b, module: m, action: b, dependencies: [a]}
`))
	assert.ErrorIs(t, err, api.ErrCyclicDependency)
}

func TestLoadWorkflowDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_ship.yaml"), []byte(shipYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_single.yml"), []byte(`
name: single
steps:
  - {name: only, module: m, action: run}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	wfs, err := LoadWorkflowDir(dir)
	require.NoError(t, err)
	require.Len(t, wfs, 2)
	assert.Equal(t, "single", wfs[0].Name)
	assert.Equal(t, "ship", wfs[1].Name)

	missing, err := LoadWorkflowDir(filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoadWorkflowDir_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.yaml"), []byte(shipYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.yaml"), []byte(shipYAML), 0o644))

	_, err := LoadWorkflowDir(dir)
	assert.ErrorContains(t, err, "defined in both")
}
