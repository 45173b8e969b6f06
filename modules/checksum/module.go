package checksum

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
}

// Checksum writes one "<hex digest>  <path>" line per input, in role order,
// to every output. The "algorithm" parameter selects sha256 (default) or
// sha1.
func Checksum(ctx context.Context, t *task.Task) error {
	name := "sha256"
	if v, ok := t.Param("algorithm"); ok {
		name = fmt.Sprint(v)
	}
	newHash, ok := algorithms[name]
	if !ok {
		return fmt.Errorf("unsupported checksum algorithm %q", name)
	}

	var buf bytes.Buffer
	for _, role := range t.InputRoles() {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, _ := t.Input(role)
		path := artifact.PathOf(in)
		sum, err := digest(newHash(), path)
		if err != nil {
			return fmt.Errorf("input %q: %w", role, err)
		}
		fmt.Fprintf(&buf, "%s  %s\n", sum, path)
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
	return nil
}

func digest(h hash.Hash, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("checksum", Checksum)
}
