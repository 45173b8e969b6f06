package print

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/task"
)

func TestPrint(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		opts func(dir string) []task.Option
		want func(dir string) string
	}{
		{
			name: "params and inputs",
			opts: func(dir string) []task.Option {
				return []task.Option{
					task.WithParams(map[string]any{"version": int64(3), "channel": "beta"}),
					task.WithInput("bin", artifact.NewLocalFile(filepath.Join(dir, "app"))),
				}
			},
			want: func(dir string) string {
				return "task://show\n" +
					"      channel = \"beta\"\n" +
					"      version = \"3\"\n" +
					"      bin <- " + filepath.Join(dir, "app") + "\n"
			},
		},
		{
			name: "nothing to print",
			opts: func(string) []task.Option { return nil },
			want: func(string) string { return "task://show\n      (null)\n" },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			dir := t.TempDir()
			out := &bytes.Buffer{}
			reg := registry.New()
			(&Module{Out: out}).Register(reg)
			run, err := reg.Runner("print")
			require.NoError(t, err)
			tk, err := task.New("show", run, tc.opts(dir)...)
			require.NoError(t, err)

			// --- Act ---
			err = run.Run(context.Background(), tk)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, tc.want(dir), out.String())
		})
	}
}
