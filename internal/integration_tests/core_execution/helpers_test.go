package integration_tests

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/app"
)

// workspace is a temporary workflow directory.
type workspace struct {
	t   *testing.T
	dir string
}

func newWorkspace(t *testing.T, workflowHCL string) *workspace {
	t.Helper()
	w := &workspace{t: t, dir: t.TempDir()}
	w.write("main.hcl", workflowHCL)
	return w
}

func (w *workspace) path(rel string) string {
	return filepath.Join(w.dir, rel)
}

// write creates rel with content, dated an hour ago so that anything a run
// produces is newer.
func (w *workspace) write(rel, content string) {
	w.t.Helper()
	path := w.path(rel)
	require.NoError(w.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(w.t, os.WriteFile(path, []byte(content), 0600))
	w.age(rel, -time.Hour)
}

// age moves the modification time of rel to now+offset.
func (w *workspace) age(rel string, offset time.Duration) {
	w.t.Helper()
	ts := time.Now().Add(offset)
	require.NoError(w.t, os.Chtimes(w.path(rel), ts, ts))
}

func (w *workspace) read(rel string) string {
	w.t.Helper()
	data, err := os.ReadFile(w.path(rel))
	require.NoError(w.t, err)
	return string(data)
}

// refresh runs the workflow once with the built-in modules and returns the
// app for inspecting its report.
func (w *workspace) refresh(targets ...string) (*app.App, error) {
	w.t.Helper()
	cfg, err := app.NewConfig(app.Config{WorkflowPaths: []string{w.dir}, Targets: targets})
	require.NoError(w.t, err)
	testApp, logs, _ := app.SetupAppTest(w.t, cfg)
	runErr := testApp.Run(w.t.Context())
	if runErr != nil {
		w.t.Logf("logs:\n%s", logs.String())
	}
	return testApp, runErr
}
