package integration_tests

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/app"
	"github.com/specialistvlad/stalegrid/internal/cli"
	"github.com/specialistvlad/stalegrid/internal/staleness"
)

// Test for: -dry-run reports stale tasks with reasons and touches nothing.
func TestCLI_DryRunListsStaleTasksWithoutRunning(t *testing.T) {
	// --- Arrange ---
	dir := writeChain(t)
	cfg, shouldExit, err := cli.Parse([]string{"-dry-run", dir}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, shouldExit)
	testApp, _, out := app.SetupAppTest(t, cfg)

	// --- Act ---
	runErr := testApp.Run(context.Background())

	// --- Assert ---
	require.NoError(t, runErr)
	want := "task://uppercase\t" + string(staleness.ReasonMissingOutput) + "\n" +
		"task://count\t" + string(staleness.ReasonUpstream) + "\n"
	assert.Equal(t, want, out.String())
	assert.NoFileExists(t, filepath.Join(dir, "build", "upper.txt"))
	assert.Nil(t, testApp.LastReport(), "a dry run must not record a report")
}

// Test for: after a real run the dry run says everything is up to date.
func TestCLI_DryRunAfterRefreshIsUpToDate(t *testing.T) {
	// --- Arrange ---
	dir := writeChain(t)
	runCfg, _, err := cli.Parse([]string{dir}, &bytes.Buffer{})
	require.NoError(t, err)
	runApp, logs, _ := app.SetupAppTest(t, runCfg)
	require.NoError(t, runApp.Run(context.Background()), "logs:\n%s", logs.String())

	planCfg, _, err := cli.Parse([]string{"-dry-run", dir}, &bytes.Buffer{})
	require.NoError(t, err)
	planApp, _, out := app.SetupAppTest(t, planCfg)

	// --- Act ---
	runErr := planApp.Run(context.Background())

	// --- Assert ---
	require.NoError(t, runErr)
	assert.Equal(t, "All targets are up to date.\n", out.String())
}
