package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/staleness"
	"github.com/specialistvlad/stalegrid/internal/task"
)

const pipelineHCL = `
artifact "src" { path = "src.txt" }
artifact "copy" { path = "build/copy.txt" }
artifact "joined" { path = "build/joined.txt" }
artifact "stamp" { path = "build/stamp" }

task "prepare" {
  handler = "touch"
  outputs = { dir = artifact.stamp }
}

task "copy" {
  strategy = "shell"
  inputs   = { src = artifact.src, stamp = artifact.stamp }
  outputs  = { dst = artifact.copy }
  command  = "cp ${input.src} ${output.dst}"
}

task "join" {
  handler    = "concat"
  inputs     = { a = artifact.src, b = artifact.copy }
  outputs    = { out = artifact.joined }
  parameters = { separator = "|" }
}
`

func writeWorkflow(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.hcl"), []byte(src), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src.txt"), []byte("hello"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "src.txt"), past, past))
	return dir
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "minimal", cfg: Config{WorkflowPaths: []string{"w.hcl"}}},
		{name: "no paths", cfg: Config{}, wantErr: "at least one workflow path"},
		{name: "negative workers", cfg: Config{WorkflowPaths: []string{"w"}, Workers: -1}, wantErr: "workers must not be negative"},
		{name: "bad export", cfg: Config{WorkflowPaths: []string{"w"}, Export: "svg"}, wantErr: "unknown export format"},
		{name: "export and dry run", cfg: Config{WorkflowPaths: []string{"w"}, Export: "dot", DryRun: true}, wantErr: "mutually exclusive"},
		{name: "bad level", cfg: Config{WorkflowPaths: []string{"w"}, LogLevel: "loud"}, wantErr: "invalid log level"},
		{name: "bad format", cfg: Config{WorkflowPaths: []string{"w"}, LogFormat: "xml"}, wantErr: "invalid log format"},
		{name: "bad port", cfg: Config{WorkflowPaths: []string{"w"}, StatusPort: 70000}, wantErr: "invalid status port"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cfg.WorkflowPaths, cfg.WorkflowPaths)
		})
	}
}

func TestMergeSettings(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	file := config.Settings{
		Workers:             4,
		TimestampResolution: time.Millisecond,
		EqualIsFresh:        &yes,
		Cluster:             &config.ClusterSettings{SubmitCommand: "qsub"},
	}

	t.Run("unset flags keep file settings", func(t *testing.T) {
		merged, err := mergeSettings(file, &Config{})
		require.NoError(t, err)
		assert.Equal(t, file, merged)
	})

	t.Run("set flags win", func(t *testing.T) {
		merged, err := mergeSettings(file, &Config{Workers: 8, EqualIsFresh: &no})
		require.NoError(t, err)
		assert.Equal(t, 8, merged.Workers)
		assert.Equal(t, time.Millisecond, merged.TimestampResolution)
		require.NotNil(t, merged.EqualIsFresh)
		assert.False(t, *merged.EqualIsFresh)
		assert.Equal(t, "qsub", merged.Cluster.SubmitCommand)
	})

	t.Run("defaults", func(t *testing.T) {
		wf := workflowOptions(config.Settings{})
		assert.Len(t, wf, 1)
	})
}

func TestRun_RefreshThenUpToDate(t *testing.T) {
	// --- Arrange ---
	dir := writeWorkflow(t, pipelineHCL)
	cfg, err := NewConfig(Config{WorkflowPaths: []string{dir}, Workers: 2})
	require.NoError(t, err)
	testApp, logs, _ := SetupAppTest(t, cfg)

	// --- Act ---
	err = testApp.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err, logs.String())
	data, err := os.ReadFile(filepath.Join(dir, "build", "joined.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello|hello", string(data))

	report := testApp.LastReport()
	require.NotNil(t, report)
	assert.ElementsMatch(t, []string{"task://prepare", "task://copy", "task://join"}, report.Done())
	assert.Contains(t, logs.String(), "Refresh finished.")

	t.Run("second run is a no-op", func(t *testing.T) {
		require.NoError(t, testApp.Run(context.Background()))
		assert.Empty(t, testApp.LastReport().Outcomes)
	})

	t.Run("status endpoint serves the last report", func(t *testing.T) {
		srv := httptest.NewServer(testApp.StatusHandler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, testApp.LastReport().RunID, body["run_id"])

		health, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		health.Body.Close()
		assert.Equal(t, http.StatusOK, health.StatusCode)
	})
}

func TestStatusHandler_NoRunYet(t *testing.T) {
	t.Parallel()

	cfg := &Config{WorkflowPaths: []string{"unused"}}
	testApp, _, _ := SetupAppTest(t, cfg)

	rec := httptest.NewRecorder()
	testApp.StatusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_DryRunPrintsPlan(t *testing.T) {
	t.Parallel()

	dir := writeWorkflow(t, pipelineHCL)
	cfg, err := NewConfig(Config{WorkflowPaths: []string{dir}, DryRun: true, Targets: []string{"copy"}})
	require.NoError(t, err)
	testApp, _, out := SetupAppTest(t, cfg)

	require.NoError(t, testApp.Run(context.Background()))

	assert.Equal(t,
		"task://prepare\t"+string(staleness.ReasonMissingOutput)+"\n"+
			"task://copy\t"+string(staleness.ReasonUpstream)+"\n",
		out.String())
	assert.NoFileExists(t, filepath.Join(dir, "build", "copy.txt"))
}

func TestRun_Export(t *testing.T) {
	t.Parallel()

	dir := writeWorkflow(t, pipelineHCL)

	for _, format := range []string{"dot", "make", "hcl"} {
		t.Run(format, func(t *testing.T) {
			cfg, err := NewConfig(Config{WorkflowPaths: []string{filepath.Join(dir, "workflow.hcl")}, Export: format})
			require.NoError(t, err)
			testApp, _, out := SetupAppTest(t, cfg)

			require.NoError(t, testApp.Run(context.Background()))
			assert.NotEmpty(t, out.String())
			assert.Contains(t, out.String(), "copy")
		})
	}
	assert.NoDirExists(t, filepath.Join(dir, "build"))
}

func TestRun_FailedTask(t *testing.T) {
	t.Parallel()

	dir := writeWorkflow(t, `
artifact "src" { path = "src.txt" }
artifact "mid" { path = "mid.txt" }
artifact "out" { path = "out.txt" }

task "broken" {
  strategy = "shell"
  inputs   = { in = artifact.src }
  outputs  = { out = artifact.mid }
  command  = "echo boom >&2; exit 3"
}

task "after" {
  handler = "touch"
  inputs  = { in = artifact.mid }
  outputs = { out = artifact.out }
}
`)
	cfg, err := NewConfig(Config{WorkflowPaths: []string{dir}})
	require.NoError(t, err)
	testApp, _, _ := SetupAppTest(t, cfg)

	err = testApp.Run(context.Background())

	require.ErrorIs(t, err, ErrRunFailed)
	assert.NotErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "exited with status 3: boom")
	report := testApp.LastReport()
	assert.Equal(t, []string{"task://broken"}, report.Failed())
	assert.Equal(t, []string{"task://after"}, report.Skipped())
	o, _ := report.Outcome("task://after")
	assert.Equal(t, task.Skipped, o.State)
	assert.Equal(t, "task://broken", o.SkippedBecause)
}

func TestRun_ConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		src     string
		targets []string
		wantErr string
	}{
		{
			name:    "unknown handler",
			src:     `task "t" { handler = "teleport" }`,
			wantErr: `unknown handler: "teleport"`,
		},
		{
			name:    "unknown strategy",
			src:     `task "t" { strategy = "carrier-pigeon" }`,
			wantErr: `unknown strategy "carrier-pigeon"`,
		},
		{
			name: "two producers",
			src: `
artifact "a" { path = "a" }
task "one" {
  handler = "touch"
  outputs = { o = artifact.a }
}
task "two" {
  handler = "touch"
  outputs = { o = artifact.a }
}`,
			wantErr: "multiple producers",
		},
		{
			name:    "unknown target",
			src:     `task "t" { handler = "touch" }`,
			targets: []string{"nope"},
			wantErr: `target "nope"`,
		},
		{
			name:    "unsatisfiable target",
			src:     `artifact "ghost" { path = "ghost" }`,
			targets: []string{"ghost"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeWorkflow(t, tc.src)
			cfg, err := NewConfig(Config{WorkflowPaths: []string{dir}, Targets: tc.targets})
			require.NoError(t, err)
			testApp, _, _ := SetupAppTest(t, cfg)

			err = testApp.Run(context.Background())

			require.ErrorIs(t, err, ErrConfig)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
			} else {
				assert.ErrorIs(t, err, staleness.ErrUnsatisfiableTarget)
			}
		})
	}
}

type dupModule struct{}

func (dupModule) Register(r *registry.Registry) {
	r.RegisterHandler("touch", func(context.Context, *task.Task) error { return nil })
}

func TestNewApp_DuplicateHandlerPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		NewApp(&SafeBuffer{}, &Config{}, nil, dupModule{}, dupModule{})
	})
}

func TestExecutionRecord_Overlaps(t *testing.T) {
	t.Parallel()

	base := time.Now()
	a := ExecutionRecord{Start: base, End: base.Add(10 * time.Millisecond)}
	b := ExecutionRecord{Start: base.Add(5 * time.Millisecond), End: base.Add(20 * time.Millisecond)}
	c := ExecutionRecord{Start: base.Add(20 * time.Millisecond), End: base.Add(30 * time.Millisecond)}

	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))
	assert.False(t, a.Overlaps(c))
}
