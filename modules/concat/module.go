package concat

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Concat writes the contents of all inputs, in role order, to every
// output. The optional "separator" parameter is written between inputs.
func Concat(ctx context.Context, t *task.Task) error {
	logger := ctxlog.FromContext(ctx)

	sep := ""
	if v, ok := t.Param("separator"); ok {
		sep = fmt.Sprint(v)
	}

	var buf bytes.Buffer
	for i, role := range t.InputRoles() {
		in, _ := t.Input(role)
		data, err := os.ReadFile(artifact.PathOf(in))
		if err != nil {
			return fmt.Errorf("reading input %q: %w", role, err)
		}
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.Write(data)
	}

	for _, role := range t.OutputRoles() {
		out, _ := t.Output(role)
		path := artifact.PathOf(out)
		if path == "" {
			return fmt.Errorf("output %q (%s) is not a local file", role, out.ID())
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing output %q: %w", role, err)
		}
	}
	logger.Debug("Concatenated inputs.", "task_id", t.ID(), "inputs", t.NumInputs(), "bytes", buf.Len())
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("concat", Concat)
}
