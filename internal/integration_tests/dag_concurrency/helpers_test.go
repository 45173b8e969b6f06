package integration_tests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/app"
	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// mockSleeperModule is a self-contained module for concurrency tests. Its
// handler sleeps, records when it ran and then creates its outputs.
type mockSleeperModule struct {
	executionTimes map[string]*app.ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
}

func newSleeper(d time.Duration) *mockSleeperModule {
	return &mockSleeperModule{executionTimes: make(map[string]*app.ExecutionRecord), sleepDuration: d}
}

// Register registers the "sleeper" Go handler.
func (m *mockSleeperModule) Register(r *registry.Registry) {
	r.RegisterHandler("sleeper", func(ctx context.Context, t *task.Task) error {
		startTime := time.Now()
		select {
		case <-time.After(m.sleepDuration):
		case <-ctx.Done():
			return ctx.Err()
		}
		endTime := time.Now()

		for _, role := range t.OutputRoles() {
			out, _ := t.Output(role)
			if err := os.WriteFile(artifact.PathOf(out), []byte(t.Name()), 0600); err != nil {
				return err
			}
		}

		m.mu.Lock()
		m.executionTimes[t.Name()] = &app.ExecutionRecord{Start: startTime, End: endTime}
		m.mu.Unlock()
		return nil
	})
}

func (m *mockSleeperModule) record(t *testing.T, name string) app.ExecutionRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.executionTimes[name]
	require.True(t, ok, "task %s did not run", name)
	return *r
}

// sleeperHCL renders one artifact per task, named after it, and one
// sleeper task per entry of deps, reading the outputs of the tasks it
// lists.
func sleeperHCL(engine string, deps map[string][]string) string {
	var b strings.Builder
	b.WriteString(engine)
	for name := range deps {
		fmt.Fprintf(&b, "artifact %q { path = \"out/%s.txt\" }\n", name, name)
	}
	for name, inputs := range deps {
		var refs []string
		for _, in := range inputs {
			refs = append(refs, fmt.Sprintf("%s = artifact.%s", in, in))
		}
		fmt.Fprintf(&b, "task %q {\n  handler = \"sleeper\"\n  inputs = { %s }\n  outputs = { out = artifact.%s }\n}\n",
			name, strings.Join(refs, ", "), name)
	}
	return b.String()
}

// runSleepers writes the workflow and refreshes it.
func runSleepers(t *testing.T, cfg app.Config, src string, sleeper *mockSleeperModule) *app.App {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(src), 0600))

	cfg.WorkflowPaths = []string{dir}
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)
	testApp, logs, _ := app.SetupAppTest(t, appConfig, sleeper)

	runErr := testApp.Run(context.Background())
	require.NoError(t, runErr, "logs:\n%s", logs.String())
	return testApp
}
