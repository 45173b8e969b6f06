package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/stalegrid/internal/export"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkflowPaths are workflow files or directories of them.
	WorkflowPaths []string
	// Targets are artifact IDs or task names. Empty means every sink.
	Targets []string

	LogFormat  string
	LogLevel   string
	StatusPort int

	DryRun bool
	Export string

	// Engine settings. Zero values and nil pointers leave the workflow
	// file's settings in place.
	Workers             int
	TimestampResolution time.Duration
	EqualIsFresh        *bool
	VerifyOutputs       *bool
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.WorkflowPaths) == 0 {
		return nil, errors.New("at least one workflow path is required")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.TimestampResolution < 0 {
		return nil, fmt.Errorf("timestamp resolution must not be negative, got %s", cfg.TimestampResolution)
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}
	if cfg.Export != "" {
		f, err := export.ParseFormat(cfg.Export)
		if err != nil {
			return nil, err
		}
		cfg.Export = string(f)
		if cfg.DryRun {
			return nil, errors.New("dry-run and export are mutually exclusive")
		}
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	return &cfg, nil
}
