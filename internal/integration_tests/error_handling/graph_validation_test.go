package integration_tests

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/app"
	"github.com/specialistvlad/stalegrid/internal/dag"
	"github.com/specialistvlad/stalegrid/internal/staleness"
	"github.com/specialistvlad/stalegrid/internal/workflow"
	"github.com/specialistvlad/stalegrid/modules/touch"
)

// Test for: a dependency cycle is rejected before anything runs and the
// error names only the nodes on the cycle.
func TestErrorHandling_CycleIsRejected(t *testing.T) {
	// --- Arrange ---
	src := `
artifact "ping" { path = "out/ping" }
artifact "pong" { path = "out/pong" }
artifact "tail" { path = "out/tail" }

task "ping" {
  handler = "touch"
  inputs  = { in = artifact.pong }
  outputs = { out = artifact.ping }
}

task "pong" {
  handler = "touch"
  inputs  = { in = artifact.ping }
  outputs = { out = artifact.pong }
}

task "tail" {
  handler = "touch"
  inputs  = { in = artifact.pong }
  outputs = { out = artifact.tail }
}
`

	// --- Act ---
	testApp, dir, err := runWorkflow(t, src, &touch.Module{})

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, app.ErrConfig))
	assert.True(t, errors.Is(err, dag.ErrCycleDetected))
	var graphErr *dag.GraphError
	require.True(t, errors.As(err, &graphErr))
	assert.Contains(t, graphErr.Nodes, "task://ping")
	assert.Contains(t, graphErr.Nodes, "task://pong")
	assert.NotContains(t, graphErr.Nodes, "task://tail")
	assert.Nil(t, testApp.LastReport())
	assert.NoDirExists(t, filepath.Join(dir, "out"))
}

// Test for: two tasks producing the same artifact are rejected.
func TestErrorHandling_MultipleProducers(t *testing.T) {
	// --- Arrange ---
	src := `
artifact "shared" { path = "out/shared" }

task "first" {
  handler = "touch"
  outputs = { out = artifact.shared }
}

task "second" {
  handler = "touch"
  outputs = { out = artifact.shared }
}
`

	// --- Act ---
	_, _, err := runWorkflow(t, src, &touch.Module{})

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, app.ErrConfig))
	assert.True(t, errors.Is(err, workflow.ErrMultipleProducers))
	assert.Contains(t, err.Error(), "task://first")
	assert.Contains(t, err.Error(), "task://second")
}

// Test for: a missing input nobody produces makes the target unsatisfiable.
func TestErrorHandling_UnsatisfiableInput(t *testing.T) {
	// --- Arrange ---
	src := `
artifact "ghost" { path = "ghost.txt" }
artifact "out" { path = "out/result" }

task "needs_ghost" {
  handler = "touch"
  inputs  = { in = artifact.ghost }
  outputs = { out = artifact.out }
}
`

	// --- Act ---
	testApp, dir, err := runWorkflow(t, src, &touch.Module{})

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, app.ErrConfig))
	assert.True(t, errors.Is(err, staleness.ErrUnsatisfiableTarget))
	assert.Contains(t, err.Error(), "ghost.txt")
	assert.Nil(t, testApp.LastReport())
	assert.NoFileExists(t, filepath.Join(dir, "out", "result"))
}
