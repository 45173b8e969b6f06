package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/specialistvlad/stalegrid/internal/runner"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// ErrUnknownHandler is returned when a handler name was never registered.
var ErrUnknownHandler = errors.New("unknown handler")

// Handler is an in-process task body.
type Handler func(ctx context.Context, t *task.Task) error

// Module is the interface that all built-in modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the handlers registered for a single application instance.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// RegisterHandler registers h under name. Registering a name twice is a
// programming error and panics.
func (r *Registry) RegisterHandler(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler with name '%s' already registered", name))
	}
	if h == nil {
		panic(fmt.Sprintf("handler '%s' is nil", name))
	}
	slog.Debug("Registering handler.", "name", name)
	r.handlers[name] = h
}

// Handler returns the handler registered under name.
func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Runner returns the handler registered under name as a task runner.
func (r *Registry) Runner(name string) (task.Runner, error) {
	h, ok := r.Handler(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
	return runner.Func(h), nil
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
