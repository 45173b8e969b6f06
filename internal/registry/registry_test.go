package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/task"
)

type fakeModule struct{ names []string }

func (m *fakeModule) Register(r *Registry) {
	for _, name := range m.names {
		r.RegisterHandler(name, func(context.Context, *task.Task) error { return nil })
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	r := New()
	(&fakeModule{names: []string{"touch", "concat"}}).Register(r)

	// --- Act & Assert ---
	assert.Equal(t, []string{"concat", "touch"}, r.Names())
	assert.Equal(t, 2, r.Len())

	_, ok := r.Handler("touch")
	assert.True(t, ok)

	run, err := r.Runner("concat")
	require.NoError(t, err)
	tk, err := task.New("t", run)
	require.NoError(t, err)
	assert.NoError(t, run.Run(context.Background(), tk))

	_, err = r.Runner("missing")
	assert.ErrorIs(t, err, ErrUnknownHandler)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	t.Parallel()

	r := New()
	(&fakeModule{names: []string{"touch"}}).Register(r)

	assert.PanicsWithValue(t, "handler with name 'touch' already registered", func() {
		(&fakeModule{names: []string{"touch"}}).Register(r)
	})
}

func TestRegistry_Validate(t *testing.T) {
	t.Parallel()

	r := New()
	(&fakeModule{names: []string{"touch"}}).Register(r)

	testCases := []struct {
		name    string
		task    *config.Task
		wantErr string
	}{
		{name: "registered handler", task: &config.Task{Name: "a", Handler: "touch"}},
		{name: "shell without handler", task: &config.Task{Name: "b", Strategy: "shell", Command: "true"}},
		{name: "unknown handler", task: &config.Task{Name: "c", Handler: "nope"}, wantErr: `unknown handler: "nope"`},
		{name: "missing handler", task: &config.Task{Name: "d"}, wantErr: `does not name a handler`},
		{name: "handler on shell task", task: &config.Task{Name: "e", Strategy: "shell", Handler: "touch"}, wantErr: "only used by in-process tasks"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Validate(context.Background(), &config.Model{Tasks: []*config.Task{tc.task}})
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
