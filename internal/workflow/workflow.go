package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/dag"
	"github.com/specialistvlad/stalegrid/internal/scheduler"
	"github.com/specialistvlad/stalegrid/internal/staleness"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// ErrMultipleProducers is returned when a task declares an output that
// another task already produces.
var ErrMultipleProducers = errors.New("artifact has multiple producers")

// Settings are the engine defaults applied to every refresh.
type Settings struct {
	Workers       int
	Policy        staleness.Policy
	VerifyOutputs bool
	RetryInterval time.Duration
}

// Option configures a Workflow.
type Option func(*Settings)

// WithWorkers sets the default number of concurrently running tasks.
func WithWorkers(n int) Option {
	return func(s *Settings) { s.Workers = n }
}

// WithPolicy sets the timestamp comparison policy.
func WithPolicy(p staleness.Policy) Option {
	return func(s *Settings) { s.Policy = p }
}

// WithVerifyOutputs makes successful tasks fail when a declared output is
// missing or fails verification.
func WithVerifyOutputs(on bool) Option {
	return func(s *Settings) { s.VerifyOutputs = on }
}

// WithRetryInterval sets the first wait between retry attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Settings) { s.RetryInterval = d }
}

// WithSettings replaces all settings at once.
func WithSettings(settings Settings) Option {
	return func(s *Settings) { *s = settings }
}

// Workflow is a registry of artifacts and tasks over one dependency graph.
// Registration and queries are safe for concurrent use; refreshes are
// serialized.
type Workflow struct {
	graph    *dag.Graph
	settings Settings

	mu        sync.RWMutex
	artifacts map[string]artifact.Artifact
	tasks     map[string]*task.Task

	runMu sync.Mutex
}

// New creates an empty workflow.
func New(opts ...Option) *Workflow {
	settings := Settings{Workers: 1, Policy: staleness.DefaultPolicy()}
	for _, opt := range opts {
		opt(&settings)
	}
	return &Workflow{
		graph:     dag.New(),
		settings:  settings,
		artifacts: make(map[string]artifact.Artifact),
		tasks:     make(map[string]*task.Task),
	}
}

// Settings returns the workflow's defaults.
func (w *Workflow) Settings() Settings { return w.settings }

// Graph exposes the dependency graph for inspection and export.
func (w *Workflow) Graph() *dag.Graph { return w.graph }

// AddArtifacts registers artifacts. It stops at the first error; IDs must
// be unique across artifacts and tasks.
func (w *Workflow) AddArtifacts(arts ...artifact.Artifact) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, a := range arts {
		if a == nil {
			return errors.New("nil artifact")
		}
		if err := w.graph.AddNode(a.ID(), dag.KindArtifact); err != nil {
			return err
		}
		w.artifacts[a.ID()] = a
	}
	return nil
}

// AddTask registers a task and its edges. Every input and output must
// already be registered, no output may have another producer and no
// artifact may be both input and output of the task.
func (w *Workflow) AddTask(t *task.Task) error {
	if t == nil {
		return errors.New("nil task")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	inputs, outputs := t.Inputs(), t.Outputs()
	inputIDs := make(map[string]bool, len(inputs))
	for role, a := range inputs {
		if _, ok := w.artifacts[a.ID()]; !ok {
			return fmt.Errorf("task %s input %q: %w: %s", t.ID(), role, dag.ErrUnknownNode, a.ID())
		}
		inputIDs[a.ID()] = true
	}
	claimed := make(map[string]bool, len(outputs))
	for role, a := range outputs {
		if _, ok := w.artifacts[a.ID()]; !ok {
			return fmt.Errorf("task %s output %q: %w: %s", t.ID(), role, dag.ErrUnknownNode, a.ID())
		}
		if inputIDs[a.ID()] {
			return fmt.Errorf("task %s both reads and writes %s: %w", t.ID(), a.ID(), dag.ErrCycleDetected)
		}
		producer, err := w.graph.Producer(a.ID())
		if err != nil {
			return err
		}
		if producer != "" {
			return fmt.Errorf("%w: %s is produced by %s and %s", ErrMultipleProducers, a.ID(), producer, t.ID())
		}
		if claimed[a.ID()] {
			return fmt.Errorf("task %s declares output %s under two roles", t.ID(), a.ID())
		}
		claimed[a.ID()] = true
	}

	if err := w.graph.AddNode(t.ID(), dag.KindTask); err != nil {
		return err
	}
	for id := range inputIDs {
		if err := w.graph.AddEdge(id, t.ID(), dag.Consumes); err != nil {
			return err
		}
	}
	for id := range claimed {
		if err := w.graph.AddEdge(t.ID(), id, dag.Produces); err != nil {
			return err
		}
	}
	w.tasks[t.ID()] = t
	return nil
}

// AddTasks registers several tasks, stopping at the first error.
func (w *Workflow) AddTasks(tasks ...*task.Task) error {
	for _, t := range tasks {
		if err := w.AddTask(t); err != nil {
			return err
		}
	}
	return nil
}

// Artifact looks up a registered artifact by ID.
func (w *Workflow) Artifact(id string) (artifact.Artifact, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.artifacts[id]
	return a, ok
}

// Task looks up a registered task by ID.
func (w *Workflow) Task(id string) (*task.Task, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.tasks[id]
	return t, ok
}

// Tasks returns every registered task sorted by ID.
func (w *Workflow) Tasks() []*task.Task {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(w.tasks))
	out := make([]*task.Task, len(ids))
	for i, id := range ids {
		out[i] = w.tasks[id]
	}
	return out
}

// Artifacts returns every registered artifact sorted by ID.
func (w *Workflow) Artifacts() []artifact.Artifact {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(w.artifacts))
	out := make([]artifact.Artifact, len(ids))
	for i, id := range ids {
		out[i] = w.artifacts[id]
	}
	return out
}

// Sinks returns the IDs of produced artifacts no task consumes, plus
// phony tasks. They are the natural "build everything" targets.
func (w *Workflow) Sinks() []string {
	var sinks []string
	for _, id := range w.graph.Nodes(dag.KindArtifact) {
		producer, _ := w.graph.Producer(id)
		consumers, _ := w.graph.Consumers(id)
		if producer != "" && len(consumers) == 0 {
			sinks = append(sinks, id)
		}
	}
	for _, t := range w.Tasks() {
		if t.IsPhony() {
			sinks = append(sinks, t.ID())
		}
	}
	return sinks
}

// Target resolves target names to graph IDs. A name is either a registered
// ID or a task name without the task:// prefix.
func (w *Workflow) Target(names ...string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		switch {
		case w.graph.Has(name):
			ids = append(ids, name)
		case w.graph.Has(task.ID(name)):
			ids = append(ids, task.ID(name))
		default:
			return nil, fmt.Errorf("target %q: %w", name, dag.ErrUnknownNode)
		}
	}
	return ids, nil
}

// Plan evaluates which tasks a refresh of targets would run, without
// running them. No targets means Sinks().
func (w *Workflow) Plan(ctx context.Context, targets ...string) (*staleness.Plan, error) {
	if len(targets) == 0 {
		targets = w.Sinks()
	}
	return staleness.New(w.graph, w, w.settings.Policy).Evaluate(ctx, targets)
}

// RunOption adjusts a single refresh.
type RunOption func(*scheduler.Options)

// WithConcurrency overrides the worker count for one refresh.
func WithConcurrency(n int) RunOption {
	return func(o *scheduler.Options) { o.Workers = n }
}

// WithRunID sets the run ID instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *scheduler.Options) { o.RunID = id }
}

// Refresh brings targets up to date by running every stale task upstream of
// them. No targets means Sinks().
//
// Configuration problems (unknown targets, cycles, unsatisfiable targets)
// are returned as errors before anything runs. Task failures do not abort
// the refresh; they are reported in the Report, whose OK method tells
// whether every selected task succeeded.
func (w *Workflow) Refresh(ctx context.Context, targets []string, opts ...RunOption) (*scheduler.Report, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	runOpts := scheduler.Options{
		Workers:       w.settings.Workers,
		RunID:         ulid.Make().String(),
		VerifyOutputs: w.settings.VerifyOutputs,
		RetryInterval: w.settings.RetryInterval,
	}
	for _, opt := range opts {
		opt(&runOpts)
	}
	logger := ctxlog.FromContext(ctx)

	for _, t := range w.Tasks() {
		t.Reset()
	}

	plan, err := w.Plan(ctx, targets...)
	if err != nil {
		return nil, err
	}
	if plan.UpToDate() {
		logger.Info("All targets are up to date.", "run_id", runOpts.RunID, "targets", len(plan.Targets))
		report := scheduler.NewReport(runOpts.RunID)
		report.UpToDate = plan.FreshIDs()
		report.Finished = report.Started
		return report, nil
	}
	logger.Debug("Stale tasks selected.", "run_id", runOpts.RunID, "stale", plan.StaleIDs())

	return scheduler.Run(ctx, w.graph, plan, runOpts)
}
