package env_vars

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Snapshot writes environment variables as sorted NAME=value lines to every
// output. The "names" parameter (a list) selects variables by name and the
// "prefix" parameter by prefix; without either every variable is written.
// Selected variables that are unset are left out.
func Snapshot(_ context.Context, t *task.Task) error {
	var names []string
	if v, ok := t.Param("names"); ok {
		list, ok := v.([]any)
		if !ok {
			return fmt.Errorf("parameter \"names\" must be a list, got %T", v)
		}
		for _, n := range list {
			names = append(names, fmt.Sprint(n))
		}
	}
	prefix := ""
	if v, ok := t.Param("prefix"); ok {
		prefix = fmt.Sprint(v)
	}

	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, pair[0]) {
			continue
		}
		if !strings.HasPrefix(pair[0], prefix) {
			continue
		}
		envMap[pair[0]] = pair[1]
	}

	var b strings.Builder
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, envMap[k])
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
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("writing output %q: %w", role, err)
		}
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("env_vars", Snapshot)
}
