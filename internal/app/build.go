package app

import (
	"context"
	"fmt"

	"dario.cat/mergo"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/internal/runner"
	"github.com/specialistvlad/stalegrid/internal/staleness"
	"github.com/specialistvlad/stalegrid/internal/task"
	"github.com/specialistvlad/stalegrid/internal/workflow"
)

const defaultClusterWorkDir = ".stalegrid/jobs"

// mergeSettings lays the command-line settings over the ones declared in
// the workflow files. Only values that were set on the command line win.
func mergeSettings(file config.Settings, cfg *Config) (config.Settings, error) {
	cli := config.Settings{
		Workers:             cfg.Workers,
		TimestampResolution: cfg.TimestampResolution,
		EqualIsFresh:        cfg.EqualIsFresh,
		VerifyOutputs:       cfg.VerifyOutputs,
	}
	merged := file
	if err := mergo.Merge(&merged, cli, mergo.WithOverride); err != nil {
		return config.Settings{}, fmt.Errorf("merging settings: %w", err)
	}
	return merged, nil
}

// workflowOptions turns settings into workflow options, filling in the
// engine defaults.
func workflowOptions(s config.Settings) []workflow.Option {
	policy := staleness.DefaultPolicy()
	if s.TimestampResolution > 0 {
		policy.Resolution = s.TimestampResolution
	}
	if s.EqualIsFresh != nil {
		policy.EqualIsFresh = *s.EqualIsFresh
	}
	opts := []workflow.Option{workflow.WithPolicy(policy)}
	if s.Workers > 0 {
		opts = append(opts, workflow.WithWorkers(s.Workers))
	}
	if s.VerifyOutputs != nil {
		opts = append(opts, workflow.WithVerifyOutputs(*s.VerifyOutputs))
	}
	if s.RetryInterval > 0 {
		opts = append(opts, workflow.WithRetryInterval(s.RetryInterval))
	}
	return opts
}

// builder turns a model into a workflow. Backends are created once and
// shared by every task using them.
type builder struct {
	registry *registry.Registry
	settings config.Settings
	cluster  *runner.Cluster
}

// built is a workflow together with the IDs of its artifacts by declared
// name.
type built struct {
	*workflow.Workflow
	artifactIDs map[string]string
}

// build validates model against the registry and registers its artifacts
// and tasks in a new workflow.
func (a *App) build(ctx context.Context, model *config.Model) (*built, error) {
	logger := ctxlog.FromContext(ctx)

	if err := a.registry.Validate(ctx, model); err != nil {
		return nil, err
	}
	settings, err := mergeSettings(model.Settings, a.config)
	if err != nil {
		return nil, err
	}
	logger.Debug("Engine settings resolved.", "workers", settings.Workers, "timestamp_resolution", settings.TimestampResolution)

	b := &builder{registry: a.registry, settings: settings}
	wf := workflow.New(workflowOptions(settings)...)

	arts := make(map[string]artifact.Artifact, len(model.Artifacts))
	for _, def := range model.Artifacts {
		art, err := newArtifact(def)
		if err != nil {
			return nil, err
		}
		if err := wf.AddArtifacts(art); err != nil {
			return nil, fmt.Errorf("%s: artifact %q: %w", def.Source, def.Name, err)
		}
		arts[def.Name] = art
	}

	for _, def := range model.Tasks {
		t, err := b.newTask(def, arts)
		if err != nil {
			return nil, fmt.Errorf("%s: task %q: %w", def.Source, def.Name, err)
		}
		if err := wf.AddTask(t); err != nil {
			return nil, fmt.Errorf("%s: task %q: %w", def.Source, def.Name, err)
		}
	}

	if err := wf.Graph().DetectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Workflow built.", "artifacts", len(model.Artifacts), "tasks", len(model.Tasks))

	ids := make(map[string]string, len(arts))
	for name, art := range arts {
		ids[name] = art.ID()
	}
	return &built{Workflow: wf, artifactIDs: ids}, nil
}

func newArtifact(def *config.Artifact) (*artifact.LocalFile, error) {
	var opts []artifact.Option
	if def.ReadOnly {
		opts = append(opts, artifact.ReadOnly())
	}
	if len(def.Attributes) > 0 {
		opts = append(opts, artifact.WithAttributes(def.Attributes))
	}
	if def.URL != "" {
		f, err := artifact.ParseLocalFile(def.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: artifact %q: %w", def.Source, def.Name, err)
		}
		return f, nil
	}
	return artifact.NewLocalFile(def.Path, opts...), nil
}

func (b *builder) newTask(def *config.Task, arts map[string]artifact.Artifact) (*task.Task, error) {
	resolve := func(refs map[string]string) map[string]artifact.Artifact {
		out := make(map[string]artifact.Artifact, len(refs))
		for role, name := range refs {
			out[role] = arts[name]
		}
		return out
	}

	strategy := task.Strategy(def.Strategy)
	if strategy == "" {
		strategy = task.StrategyInProcess
	}
	command := def.Command

	var r task.Runner
	var err error
	switch strategy {
	case task.StrategyInProcess:
		r, err = b.registry.Runner(def.Handler)
	case task.StrategyShell:
		r = &runner.Shell{}
	case task.StrategyScript:
		r = &runner.Shell{Script: true}
		if def.Script != "" {
			command = def.Script
		}
	case task.StrategyCluster:
		r = b.clusterRunner()
	case task.StrategyDistributable:
		r = runner.NewDistributable(def.Distributed, &runner.Shell{}, b.clusterRunner())
	default:
		err = fmt.Errorf("unknown strategy %q", def.Strategy)
	}
	if err != nil {
		return nil, err
	}

	return task.New(def.Name, r,
		task.WithInputs(resolve(def.Inputs)),
		task.WithOutputs(resolve(def.Outputs)),
		task.WithParams(def.Params),
		task.WithAttributes(def.Attributes),
		task.WithCommand(command),
		task.WithOptions(task.Options{
			Strategy:    strategy,
			Distributed: def.Distributed,
			MaxRetries:  def.Retries,
			Timeout:     def.Timeout,
		}),
	)
}

// clusterRunner lazily creates the Grid Engine backend from the cluster
// settings. Stock qsub submissions are checked with qstat -j unless a
// status command is configured.
func (b *builder) clusterRunner() *runner.Cluster {
	if b.cluster != nil {
		return b.cluster
	}
	cs := config.ClusterSettings{}
	if b.settings.Cluster != nil {
		cs = *b.settings.Cluster
	}
	if cs.WorkDir == "" {
		cs.WorkDir = defaultClusterWorkDir
	}
	if cs.StatusCommand == "" && cs.SubmitCommand == "" {
		cs.StatusCommand, cs.StatusArgs = "qstat", []string{"-j"}
	}
	ge := runner.NewGridEngine(cs.WorkDir, cs.SubmitArgs...)
	ge.SubmitCommand = cs.SubmitCommand
	ge.StatusCommand = cs.StatusCommand
	ge.StatusArgs = cs.StatusArgs
	ge.LostGrace = cs.GracePeriod
	b.cluster = &runner.Cluster{
		Scheduler:       ge,
		PollInterval:    cs.PollInterval,
		MaxPollInterval: cs.MaxPollInterval,
		GracePeriod:     cs.GracePeriod,
		MaxWait:         cs.MaxWait,
	}
	return b.cluster
}

// targets resolves command-line targets. A target is a declared artifact
// name, a path of a declared artifact, a task name or a graph ID.
func (b *built) targets(names []string) ([]string, error) {
	resolved := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := b.artifactIDs[name]; ok {
			resolved = append(resolved, id)
			continue
		}
		if id := artifact.NewLocalFile(name).ID(); b.Graph().Has(id) && !b.Graph().Has(name) {
			resolved = append(resolved, id)
			continue
		}
		resolved = append(resolved, name)
	}
	return b.Target(resolved...)
}
