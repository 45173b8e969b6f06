// Package task defines the unit of work in a workflow: a body with declared
// input and output artifacts, immutable parameters and a mutable execution
// state owned by the scheduler.
package task

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/stalegrid/internal/artifact"
)

// Scheme prefixes task IDs given as bare names.
const Scheme = "task://"

// Runner is the execution strategy for a task body. Run blocks until the
// body finishes, honouring ctx cancellation where the backend can.
type Runner interface {
	Run(ctx context.Context, t *Task) error
}

// Strategy names the kind of backend a task is meant for.
type Strategy string

const (
	StrategyInProcess     Strategy = "inprocess"
	StrategyShell         Strategy = "shell"
	StrategyScript        Strategy = "script"
	StrategyCluster       Strategy = "cluster"
	StrategyDistributable Strategy = "distributable"
)

// Options are the recognized execution options of a task.
type Options struct {
	Strategy Strategy
	// Distributed selects the cluster backend for distributable tasks.
	Distributed bool
	// MaxRetries is the number of extra attempts after a failure.
	MaxRetries uint64
	// Timeout bounds a single attempt. Zero means no limit.
	Timeout time.Duration
}

// Task is a unit of work. Everything except State and Err is fixed at
// construction.
type Task struct {
	id      string
	inputs  map[string]artifact.Artifact
	outputs map[string]artifact.Artifact
	params  map[string]any
	attrs   map[string]any
	opts    Options
	command string
	runner  Runner

	// state is the task's execution state, managed atomically.
	state atomic.Int32
	mu    sync.Mutex
	err   error
}

// Option configures a Task.
type Option func(*Task)

// WithInput binds an input artifact to role.
func WithInput(role string, a artifact.Artifact) Option {
	return func(t *Task) { t.inputs[role] = a }
}

// WithOutput binds an output artifact to role.
func WithOutput(role string, a artifact.Artifact) Option {
	return func(t *Task) { t.outputs[role] = a }
}

// WithInputs binds several input artifacts.
func WithInputs(in map[string]artifact.Artifact) Option {
	return func(t *Task) { maps.Copy(t.inputs, in) }
}

// WithOutputs binds several output artifacts.
func WithOutputs(out map[string]artifact.Artifact) Option {
	return func(t *Task) { maps.Copy(t.outputs, out) }
}

// WithParams sets parameters. The map is copied.
func WithParams(params map[string]any) Option {
	return func(t *Task) { maps.Copy(t.params, params) }
}

// WithAttributes sets opaque pass-through metadata.
func WithAttributes(attrs map[string]any) Option {
	return func(t *Task) { maps.Copy(t.attrs, attrs) }
}

// WithCommand sets the command line used by subprocess and cluster backends.
func WithCommand(cmd string) Option {
	return func(t *Task) { t.command = cmd }
}

// WithOptions replaces the execution options.
func WithOptions(opts Options) Option {
	return func(t *Task) { t.opts = opts }
}

// WithRetries sets the number of extra attempts after a failure.
func WithRetries(n uint64) Option {
	return func(t *Task) { t.opts.MaxRetries = n }
}

// WithTimeout bounds a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(t *Task) { t.opts.Timeout = d }
}

// New creates a task. A name without a scheme is prefixed with task://.
func New(name string, runner Runner, opts ...Option) (*Task, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("task name must not be empty")
	}
	if runner == nil {
		return nil, fmt.Errorf("task %s: runner must not be nil", name)
	}
	t := &Task{
		id:      ID(name),
		inputs:  make(map[string]artifact.Artifact),
		outputs: make(map[string]artifact.Artifact),
		params:  make(map[string]any),
		attrs:   make(map[string]any),
		runner:  runner,
	}
	for _, opt := range opts {
		opt(t)
	}
	for role, a := range t.inputs {
		if a == nil {
			return nil, fmt.Errorf("task %s: input %q is nil", t.id, role)
		}
	}
	for role, a := range t.outputs {
		if a == nil {
			return nil, fmt.Errorf("task %s: output %q is nil", t.id, role)
		}
	}
	return t, nil
}

// ID normalizes a task name into a task ID.
func ID(name string) string {
	if strings.Contains(name, "://") {
		return name
	}
	return Scheme + name
}

// Name returns the ID without the task:// prefix.
func (t *Task) Name() string { return strings.TrimPrefix(t.id, Scheme) }

func (t *Task) ID() string       { return t.id }
func (t *Task) Runner() Runner   { return t.runner }
func (t *Task) Command() string  { return t.command }
func (t *Task) Options() Options { return t.opts }
func (t *Task) String() string   { return t.id }
func (t *Task) IsPhony() bool    { return len(t.outputs) == 0 }
func (t *Task) NumInputs() int   { return len(t.inputs) }
func (t *Task) NumOutputs() int  { return len(t.outputs) }

// Inputs returns a copy of the role -> artifact input map.
func (t *Task) Inputs() map[string]artifact.Artifact { return maps.Clone(t.inputs) }

// Outputs returns a copy of the role -> artifact output map.
func (t *Task) Outputs() map[string]artifact.Artifact { return maps.Clone(t.outputs) }

// Params returns a copy of the parameters.
func (t *Task) Params() map[string]any { return maps.Clone(t.params) }

// Attributes returns a copy of the pass-through metadata.
func (t *Task) Attributes() map[string]any { return maps.Clone(t.attrs) }

func (t *Task) Input(role string) (artifact.Artifact, bool) {
	a, ok := t.inputs[role]
	return a, ok
}

func (t *Task) Output(role string) (artifact.Artifact, bool) {
	a, ok := t.outputs[role]
	return a, ok
}

func (t *Task) Param(name string) (any, bool) {
	v, ok := t.params[name]
	return v, ok
}

// InputRoles returns the input roles, sorted.
func (t *Task) InputRoles() []string { return slices.Sorted(maps.Keys(t.inputs)) }

// OutputRoles returns the output roles, sorted.
func (t *Task) OutputRoles() []string { return slices.Sorted(maps.Keys(t.outputs)) }

// State returns the current execution state.
func (t *Task) State() State { return State(t.state.Load()) }

// Err returns the error recorded with the last Failed or Skipped transition.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Transition moves the task from one state to another. It fails if the task
// is not in from or the move is not legal. cause is recorded for Failed and
// Skipped and cleared otherwise.
func (t *Task) Transition(from, to State, cause error) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%s: %w: %s -> %s", t.id, ErrInvalidTransition, from, to)
	}
	if !t.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%s: %w: expected %s, found %s", t.id, ErrInvalidTransition, from, t.State())
	}
	t.mu.Lock()
	if to == Failed || to == Skipped {
		t.err = cause
	} else if to == Stale {
		t.err = nil
	}
	t.mu.Unlock()
	return nil
}

// Reset returns a task left Stale by an earlier evaluation to Pending.
// Terminal states are kept as the last-known outcome.
func (t *Task) Reset() {
	t.state.CompareAndSwap(int32(Stale), int32(Pending))
}
