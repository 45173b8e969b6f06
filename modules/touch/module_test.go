package touch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/runner"
	"github.com/specialistvlad/stalegrid/internal/task"
)

func TestTouch(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	fresh := artifact.NewLocalFile(filepath.Join(dir, "nested", "new.txt"))
	old := artifact.NewLocalFile(filepath.Join(dir, "old.txt"))
	require.NoError(t, os.WriteFile(old.Path(), []byte("keep"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old.Path(), past, past))

	reg := registry.New()
	(&Module{}).Register(reg)
	run, err := reg.Runner("touch")
	require.NoError(t, err)

	tk, err := task.New("touch", run, task.WithOutput("a", fresh), task.WithOutput("b", old))
	require.NoError(t, err)

	// --- Act ---
	err = run.Run(context.Background(), tk)

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, fresh.Exists())
	mod, err := old.LastModified()
	require.NoError(t, err)
	assert.True(t, mod.After(past.Add(time.Minute)))
	data, err := os.ReadFile(old.Path())
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data), "touch must not truncate")
}

type remote struct{ id string }

func (r remote) ID() string                       { return r.id }
func (r remote) Exists() bool                     { return false }
func (r remote) LastModified() (time.Time, error) { return time.Time{}, artifact.ErrNotFound }
func (r remote) Attributes() map[string]any       { return nil }

func TestTouch_NonLocalOutput(t *testing.T) {
	t.Parallel()

	tk, err := task.New("touch", runner.Func(Touch), task.WithOutput("out", remote{id: "s3://bucket/key"}))
	require.NoError(t, err)

	err = Touch(context.Background(), tk)
	assert.ErrorContains(t, err, "not a local file")
}
