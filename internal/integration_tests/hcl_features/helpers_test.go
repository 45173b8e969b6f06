package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/app"
)

// writeFiles creates files under dir, dated an hour ago.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		require.NoError(t, os.Chtimes(path, past, past))
	}
}

func refresh(t *testing.T, paths ...string) *app.App {
	t.Helper()
	cfg, err := app.NewConfig(app.Config{WorkflowPaths: paths})
	require.NoError(t, err)
	testApp, logs, _ := app.SetupAppTest(t, cfg)
	require.NoError(t, testApp.Run(context.Background()), "logs:\n%s", logs.String())
	return testApp
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
