package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/app"
	"github.com/specialistvlad/stalegrid/internal/registry"
)

// runWorkflow writes src as the only workflow file next to an old
// "input.txt" and refreshes it.
func runWorkflow(t *testing.T, src string, modules ...registry.Module) (*app.App, string, error) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(src), 0600))
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("data"), 0600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(input, past, past))

	cfg, err := app.NewConfig(app.Config{WorkflowPaths: []string{dir}})
	require.NoError(t, err)
	testApp, logs, _ := app.SetupAppTest(t, cfg, modules...)
	runErr := testApp.Run(context.Background())
	t.Logf("logs:\n%s", logs.String())
	return testApp, dir, runErr
}
