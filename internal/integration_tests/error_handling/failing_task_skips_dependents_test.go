package integration_tests

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/app"
	"github.com/specialistvlad/stalegrid/internal/cli"
	"github.com/specialistvlad/stalegrid/modules/concat"
)

// Test for: a failed task skips everything downstream of it while
// unrelated branches still complete.
func TestErrorHandling_FailingTaskSkipsDependents(t *testing.T) {
	// --- Arrange ---
	src := `
artifact "input" { path = "input.txt" }
artifact "broken" { path = "out/broken.txt" }
artifact "after" { path = "out/after.txt" }
artifact "final" { path = "out/final.txt" }
artifact "sibling" { path = "out/sibling.txt" }

task "broken" {
  strategy = "shell"
  inputs   = { in = artifact.input }
  outputs  = { out = artifact.broken }
  command  = "echo disk full >&2; exit 3"
}

task "after" {
  handler = "concat"
  inputs  = { in = artifact.broken }
  outputs = { out = artifact.after }
}

task "final" {
  handler = "concat"
  inputs  = { in = artifact.after }
  outputs = { out = artifact.final }
}

task "sibling" {
  handler = "concat"
  inputs  = { in = artifact.input }
  outputs = { out = artifact.sibling }
}
`

	// --- Act ---
	testApp, dir, err := runWorkflow(t, src, &concat.Module{})

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, app.ErrRunFailed))
	assert.Equal(t, cli.ExitRunFailed, cli.ExitCode(err))
	assert.Contains(t, err.Error(), "task://broken: command exited with status 3: disk full")

	report := testApp.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, []string{"task://broken"}, report.Failed())
	assert.ElementsMatch(t, []string{"task://after", "task://final"}, report.Skipped())
	assert.Equal(t, []string{"task://sibling"}, report.Done())
	for _, id := range []string{"task://after", "task://final"} {
		o, ok := report.Outcome(id)
		require.True(t, ok)
		assert.Equal(t, "task://broken", o.SkippedBecause)
	}
	assert.FileExists(t, filepath.Join(dir, "out", "sibling.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "out", "after.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "out", "final.txt"))
}
