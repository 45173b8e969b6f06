package s3

import (
	"context"
	"fmt"
	"io"
	"mime"
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
type Module struct{}

// httpClient is a shared client for all S3 executions to reuse TCP connections.
var httpClient = &http.Client{}

// handleUpload PUTs the task's single input to the pre-signed "upload_url"
// and writes the response status to every output as a receipt.
func handleUpload(ctx context.Context, t *task.Task) error {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	uploadURL, ok := t.Param("upload_url")
	if !ok {
		return fmt.Errorf("s3 upload needs parameter \"upload_url\"")
	}
	roles := t.InputRoles()
	if len(roles) != 1 {
		return fmt.Errorf("s3 upload needs exactly one input, got %d", len(roles))
	}
	in, _ := t.Input(roles[0])
	sourcePath := artifact.PathOf(in)

	file, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", sourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprint(uploadURL), file)
	if err != nil {
		return fmt.Errorf("failed to create S3 upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file to S3", "source", sourcePath, "size", stat.Size(), "contentType", contentType)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute S3 upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("S3 upload failed with status: %s", resp.Status)
	}
	logger.Info("Successfully uploaded file", "status", resp.Status)

	return writeOutputs(t, []byte(resp.Status+"\n"))
}

// handleDownload GETs the pre-signed "download_url" into every output.
func handleDownload(ctx context.Context, t *task.Task) error {
	logger := ctxlog.FromContext(ctx).With("action", "download")

	downloadURL, ok := t.Param("download_url")
	if !ok {
		return fmt.Errorf("s3 download needs parameter \"download_url\"")
	}
	if t.NumOutputs() == 0 {
		return fmt.Errorf("s3 download needs at least one output")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprint(downloadURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create S3 download request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute S3 download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("S3 download failed with status: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	logger.Info("Downloaded object", "size", len(body))

	return writeOutputs(t, body)
}

func writeOutputs(t *task.Task, data []byte) error {
	for _, role := range t.OutputRoles() {
		out, _ := t.Output(role)
		path := artifact.PathOf(out)
		if path == "" {
			return fmt.Errorf("output %q (%s) is not a local file", role, out.ID())
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing output %q: %w", role, err)
		}
	}
	return nil
}

// Transfer is the handler for "s3" tasks. The "action" parameter selects
// upload or download.
func Transfer(ctx context.Context, t *task.Task) error {
	action, _ := t.Param("action")
	switch strings.ToLower(fmt.Sprint(action)) {
	case "upload":
		return handleUpload(ctx, t)
	case "download":
		return handleDownload(ctx, t)
	default:
		return fmt.Errorf("unknown s3 action: '%v'", action)
	}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("s3", Transfer)
}
