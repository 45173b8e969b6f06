package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client performs the requests, http.DefaultClient when nil.
	Client *http.Client
}

// Fetch requests the "url" parameter and writes the response body to every
// output. The optional "method" parameter defaults to GET. Any status
// outside 2xx fails the task.
func (m *Module) Fetch(ctx context.Context, t *task.Task) error {
	logger := ctxlog.FromContext(ctx)

	rawURL, ok := t.Param("url")
	if !ok {
		return fmt.Errorf("task %s: missing parameter \"url\"", t.ID())
	}
	method := http.MethodGet
	if v, ok := t.Param("method"); ok {
		method = strings.ToUpper(fmt.Sprint(v))
	}
	if t.NumOutputs() == 0 {
		return fmt.Errorf("task %s: http_request needs at least one output", t.ID())
	}

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}

	logger.Info("Making HTTP request", "method", method, "url", rawURL)
	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprint(rawURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request to %s failed with status: %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
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
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("writing output %q: %w", role, err)
		}
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("http_request", m.Fetch)
}
