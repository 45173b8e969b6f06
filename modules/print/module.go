package print

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the printed text, standard output when nil.
	Out io.Writer

	mu sync.Mutex
}

// Print writes the task's parameters and the paths of its inputs, sorted
// by name. It is meant for phony tasks that report on a build.
func (m *Module) Print(ctx context.Context, t *task.Task) error {
	ctxlog.FromContext(ctx).Info("Printing input", "task_id", t.ID())

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", t.ID())
	params := t.Params()
	if len(params) == 0 && t.NumInputs() == 0 {
		b.WriteString("      (null)\n")
	}
	for _, k := range slices.Sorted(maps.Keys(params)) {
		fmt.Fprintf(&b, "      %s = %q\n", k, fmt.Sprint(params[k]))
	}
	for _, role := range t.InputRoles() {
		in, _ := t.Input(role)
		fmt.Fprintf(&b, "      %s <- %s\n", role, artifact.PathOf(in))
	}

	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := io.WriteString(out, b.String())
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("print", m.Print)
}
