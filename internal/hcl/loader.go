package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/fsutil"
)

// Extension is the file extension of workflow files.
const Extension = ".hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// decodedFile is a parsed file with its top-level blocks decoded.
type decodedFile struct {
	path string
	root fileRoot
}

// Load reads every workflow file under paths. A path may be a single file
// or a directory, which is searched recursively for .hcl files. Artifacts
// from any file can be referenced by tasks in any other.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %v", Extension, paths)
	}
	logger.Debug("Discovered HCL files.", "files", files)

	parser := hclparse.NewParser()
	decoded := make([]*decodedFile, 0, len(files))
	for _, path := range files {
		f, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
		}
		df, err := decodeFile(path, f)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, df)
	}
	return l.translate(ctx, decoded)
}

// LoadSource loads a single workflow from memory. filename is used for
// diagnostics and to resolve relative artifact paths.
func (l *Loader) LoadSource(ctx context.Context, filename string, src []byte) (*config.Model, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	df, err := decodeFile(filename, f)
	if err != nil {
		return nil, err
	}
	return l.translate(ctx, []*decodedFile{df})
}

func decodeFile(path string, f *hcl.File) (*decodedFile, error) {
	df := &decodedFile{path: path}
	if diags := gohcl.DecodeBody(f.Body, baseEvalContext(), &df.root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return df, nil
}

// findFiles expands paths into a sorted, de-duplicated list of files.
func findFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(path))
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, Extension)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return all, nil
}
