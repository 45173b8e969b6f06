package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/specialistvlad/stalegrid/internal/app"
)

// Exit codes.
const (
	ExitRunFailed = 1
	ExitUsage     = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode maps an error returned by the application to a process exit
// code: usage and workflow errors exit 2, everything else 1.
func ExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, app.ErrConfig):
		return ExitUsage
	default:
		return ExitRunFailed
	}
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// optionalBool is a boolean flag that remembers whether it was given.
type optionalBool struct{ v *bool }

func (b *optionalBool) String() string {
	if b == nil || b.v == nil {
		return ""
	}
	return strconv.FormatBool(*b.v)
}

func (b *optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.v = &v
	return nil
}

func (b *optionalBool) IsBoolFlag() bool { return true }

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("stalegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
stalegrid - Rebuild only what is stale in a workflow of file-producing tasks.

Usage:
  stalegrid [options] [WORKFLOW_PATH...]

Arguments:
  WORKFLOW_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	var workflows, targets stringList
	var equalIsFresh, verifyOutputs optionalBool
	flagSet.Var(&workflows, "workflow", "Path to a workflow file or directory. Repeatable.")
	flagSet.Var(&workflows, "w", "Path to a workflow file or directory (shorthand).")
	flagSet.Var(&targets, "target", "Artifact name, artifact path or task name to bring up to date. Repeatable; default is every final output.")
	workersFlag := flagSet.Int("workers", 0, "Number of tasks run concurrently. 0 uses the workflow's setting or 1.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the stale tasks and why, without running them.")
	exportFlag := flagSet.String("export", "", "Print the workflow instead of running it. Options: 'dot', 'make', 'hcl'.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server (/health, /status). 0 is disabled.")
	resolutionFlag := flagSet.Duration("timestamp-resolution", 0, "Granularity of timestamp comparisons, e.g. 1s or 10ms. 0 uses the workflow's setting or 1s.")
	flagSet.Var(&equalIsFresh, "equal-is-fresh", "Treat an output as fresh when its timestamp equals its newest input's (default true).")
	flagSet.Var(&verifyOutputs, "verify-outputs", "Fail tasks that succeed without producing their declared outputs.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := append([]string(workflows), flagSet.Args()...)
	slog.Debug("Workflow paths determined.", "paths", paths)

	if len(paths) == 0 {
		slog.Debug("No workflow path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	config, err := app.NewConfig(app.Config{
		WorkflowPaths:       paths,
		Targets:             targets,
		LogFormat:           strings.ToLower(*logFormatFlag),
		LogLevel:            strings.ToLower(*logLevelFlag),
		StatusPort:          *statusPortFlag,
		DryRun:              *dryRunFlag,
		Export:              *exportFlag,
		Workers:             *workersFlag,
		TimestampResolution: *resolutionFlag,
		EqualIsFresh:        equalIsFresh.v,
		VerifyOutputs:       verifyOutputs.v,
	})
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
