package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	fileScheme = "file"
	localHost  = "localhost"
)

// LocalFile is an artifact stored on the local filesystem. Its timestamp is
// the file's modification time.
type LocalFile struct {
	id       string
	path     string
	readOnly bool
	attrs    map[string]any
	verify   func(path string) error
}

// Option configures a LocalFile.
type Option func(*LocalFile)

// ReadOnly marks the file as a source the workflow must never write.
func ReadOnly() Option {
	return func(f *LocalFile) { f.readOnly = true }
}

// WithAttributes attaches pass-through metadata.
func WithAttributes(attrs map[string]any) Option {
	return func(f *LocalFile) {
		for k, v := range attrs {
			f.attrs[k] = v
		}
	}
}

// WithVerify installs a content check run after the producing task succeeds.
func WithVerify(fn func(path string) error) Option {
	return func(f *LocalFile) { f.verify = fn }
}

// NewLocalFile builds a file artifact for path. Relative paths are resolved
// against the working directory; the ID is file://localhost/<abs path>.
func NewLocalFile(path string, opts ...Option) *LocalFile {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	f := &LocalFile{
		id:    fileScheme + "://" + localHost + "/" + strings.TrimPrefix(filepath.ToSlash(abs), "/"),
		path:  abs,
		attrs: make(map[string]any),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ParseLocalFile builds a file artifact from a file:// URL. Only the local
// host (or an empty host) is accepted.
func ParseLocalFile(rawURL string, opts ...Option) (*LocalFile, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing artifact url %q: %w", rawURL, err)
	}
	if u.Scheme != fileScheme {
		return nil, fmt.Errorf("artifact url %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	if u.Host != "" && u.Host != localHost {
		return nil, fmt.Errorf("artifact url %q: only host %q is supported", rawURL, localHost)
	}
	if u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("artifact url %q: empty path", rawURL)
	}
	return NewLocalFile(filepath.FromSlash(u.Path), opts...), nil
}

func (f *LocalFile) ID() string     { return f.id }
func (f *LocalFile) Path() string   { return f.path }
func (f *LocalFile) ReadOnly() bool { return f.readOnly }

// Attributes returns a copy of the file's metadata.
func (f *LocalFile) Attributes() map[string]any {
	return maps.Clone(f.attrs)
}

func (f *LocalFile) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func (f *LocalFile) LastModified() (time.Time, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%s: %w", f.id, ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("stat %s: %w", f.path, err)
	}
	return info.ModTime(), nil
}

// Verify runs the configured content check. Without one, existence is the
// only requirement.
func (f *LocalFile) Verify() error {
	if !f.Exists() {
		return fmt.Errorf("%s: %w", f.id, ErrNotFound)
	}
	if f.verify == nil {
		return nil
	}
	if err := f.verify(f.path); err != nil {
		return fmt.Errorf("verifying %s: %w", f.id, err)
	}
	return nil
}

func (f *LocalFile) String() string { return f.id }
