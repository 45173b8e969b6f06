package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/scheduler"
)

var (
	// ErrConfig marks errors in the workflow definition or settings,
	// detected before any task runs.
	ErrConfig = errors.New("invalid workflow")
	// ErrRunFailed is returned when at least one task failed or was
	// skipped.
	ErrRunFailed = errors.New("run failed")
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	loader   config.Loader

	ctx        context.Context
	httpServer *http.Server

	mu         sync.RWMutex
	lastReport *scheduler.Report
}

// NewApp is the constructor for the main application. Logs go to logW;
// plans and exports go to standard output unless SetOutput says otherwise.
// Registering modules panics on duplicate handler names.
func NewApp(logW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "handlers", reg.Names())

	return &App{
		outW:     os.Stdout,
		logger:   logger,
		config:   cfg,
		registry: reg,
		loader:   loader,
		ctx:      ctxlog.WithLogger(context.Background(), logger),
	}
}

// SetOutput redirects plans and exports.
func (a *App) SetOutput(w io.Writer) {
	a.outW = w
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// LastReport returns the report of the most recent refresh, or nil.
func (a *App) LastReport() *scheduler.Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastReport
}

func (a *App) setReport(r *scheduler.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastReport = r
}
