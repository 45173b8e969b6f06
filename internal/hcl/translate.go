package hcl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
)

// translate converts decoded files into the model. Artifacts are
// translated first so that tasks in any file can refer to them.
func (l *Loader) translate(ctx context.Context, files []*decodedFile) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	model := &config.Model{}
	engines := 0

	for _, f := range files {
		for _, eb := range f.root.Engines {
			settings, err := translateEngine(f.path, eb)
			if err != nil {
				return nil, fmt.Errorf("%s: engine: %w", f.path, err)
			}
			if engines++; engines > 1 {
				logger.Warn("Multiple engine blocks found; earlier settings win.", "file", f.path)
			}
			model.Merge(&config.Model{Settings: settings})
		}
		for _, ab := range f.root.Artifacts {
			a, err := translateArtifact(f.path, ab)
			if err != nil {
				return nil, err
			}
			model.Artifacts = append(model.Artifacts, a)
		}
	}

	artifactVars, err := artifactVariables(model.Artifacts)
	if err != nil {
		return nil, err
	}
	evalCtx := baseEvalContext()
	evalCtx.Variables = map[string]cty.Value{"artifact": artifactVars}

	for _, f := range files {
		for _, tb := range f.root.Tasks {
			t, err := translateTask(evalCtx, model, f.path, tb)
			if err != nil {
				return nil, err
			}
			model.Tasks = append(model.Tasks, t)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.", "artifacts", len(model.Artifacts), "tasks", len(model.Tasks))
	return model, nil
}

func location(r hcl.Range) string {
	return fmt.Sprintf("%s:%d", r.Filename, r.Start.Line)
}

func parseDuration(name string, s *string) (time.Duration, error) {
	if s == nil {
		return 0, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// translateEngine resolves a relative cluster work_dir like artifact paths.
func translateEngine(filename string, eb *engineBlock) (config.Settings, error) {
	var s config.Settings
	var err error
	if eb.Workers != nil {
		if *eb.Workers < 1 {
			return s, fmt.Errorf("workers must be at least 1, got %d", *eb.Workers)
		}
		s.Workers = *eb.Workers
	}
	if s.TimestampResolution, err = parseDuration("timestamp_resolution", eb.TimestampResolution); err != nil {
		return s, err
	}
	if s.RetryInterval, err = parseDuration("retry_interval", eb.RetryInterval); err != nil {
		return s, err
	}
	s.EqualIsFresh = eb.EqualIsFresh
	s.VerifyOutputs = eb.VerifyOutputs

	if cb := eb.Cluster; cb != nil {
		c := &config.ClusterSettings{SubmitArgs: cb.SubmitArgs, StatusArgs: cb.StatusArgs}
		if cb.SubmitCommand != nil {
			c.SubmitCommand = *cb.SubmitCommand
		}
		if cb.StatusCommand != nil {
			c.StatusCommand = *cb.StatusCommand
		}
		if cb.WorkDir != nil {
			c.WorkDir = *cb.WorkDir
			if !filepath.IsAbs(c.WorkDir) {
				c.WorkDir = filepath.Join(filepath.Dir(filename), c.WorkDir)
			}
		}
		if c.PollInterval, err = parseDuration("poll_interval", cb.PollInterval); err != nil {
			return s, err
		}
		if c.MaxPollInterval, err = parseDuration("max_poll_interval", cb.MaxPollInterval); err != nil {
			return s, err
		}
		if c.GracePeriod, err = parseDuration("grace_period", cb.GracePeriod); err != nil {
			return s, err
		}
		if c.MaxWait, err = parseDuration("max_wait", cb.MaxWait); err != nil {
			return s, err
		}
		s.Cluster = c
	}
	return s, nil
}

// translateArtifact resolves relative paths against the directory of the
// declaring file.
func translateArtifact(filename string, ab *artifactBlock) (*config.Artifact, error) {
	src := location(ab.DeclRange)

	a := &config.Artifact{Name: ab.Name, Source: src}
	if ab.Path != nil {
		a.Path = *ab.Path
		if !filepath.IsAbs(a.Path) {
			a.Path = filepath.Join(filepath.Dir(filename), a.Path)
		}
	}
	if ab.URL != nil {
		a.URL = *ab.URL
	}
	if ab.ReadOnly != nil {
		a.ReadOnly = *ab.ReadOnly
	}

	attrs, err := evalMap(baseEvalContext(), ab.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%s: artifact %q attributes: %w", src, ab.Name, err)
	}
	a.Attributes = attrs
	return a, nil
}

// artifactVariables builds the artifact.<name> namespace. Each artifact is
// an object with name, id, path and url.
func artifactVariables(arts []*config.Artifact) (cty.Value, error) {
	vars := make(map[string]cty.Value, len(arts))
	for _, a := range arts {
		var lf *artifact.LocalFile
		switch {
		case a.URL != "":
			var err error
			if lf, err = artifact.ParseLocalFile(a.URL); err != nil {
				return cty.NilVal, fmt.Errorf("%s: artifact %q: %w", a.Source, a.Name, err)
			}
		case a.Path != "":
			lf = artifact.NewLocalFile(a.Path)
		default:
			// reported by Validate
			continue
		}
		vars[a.Name] = cty.ObjectVal(map[string]cty.Value{
			"name": cty.StringVal(a.Name),
			"id":   cty.StringVal(lf.ID()),
			"path": cty.StringVal(lf.Path()),
			"url":  cty.StringVal(lf.ID()),
		})
	}
	return objectVal(vars), nil
}

func translateTask(evalCtx *hcl.EvalContext, model *config.Model, filename string, tb *taskBlock) (*config.Task, error) {
	src := location(tb.DeclRange)
	wrap := func(what string, err error) error {
		return fmt.Errorf("%s: task %q %s: %w", src, tb.Name, what, err)
	}

	t := &config.Task{Name: tb.Name, Source: src}
	if tb.Strategy != nil {
		t.Strategy = *tb.Strategy
	}
	if tb.Handler != nil {
		t.Handler = *tb.Handler
	}
	if tb.Distributed != nil {
		t.Distributed = *tb.Distributed
	}
	if tb.Retries != nil {
		if *tb.Retries < 0 {
			return nil, wrap("retries", errors.New("must not be negative"))
		}
		t.Retries = uint64(*tb.Retries)
	}
	var err error
	if t.Timeout, err = parseDuration("timeout", tb.Timeout); err != nil {
		return nil, wrap("timeout", err)
	}

	if t.Inputs, err = evalArtifactRefs(evalCtx, tb.Inputs); err != nil {
		return nil, wrap("inputs", err)
	}
	if t.Outputs, err = evalArtifactRefs(evalCtx, tb.Outputs); err != nil {
		return nil, wrap("outputs", err)
	}
	if t.Params, err = evalMap(evalCtx, tb.Parameters); err != nil {
		return nil, wrap("parameters", err)
	}
	if t.Attributes, err = evalMap(evalCtx, tb.Attributes); err != nil {
		return nil, wrap("attributes", err)
	}

	cmdCtx, err := commandEvalContext(evalCtx, model, t)
	if err != nil {
		return nil, wrap("command", err)
	}
	if t.Command, err = evalString(cmdCtx, tb.Command); err != nil {
		return nil, wrap("command", err)
	}
	if t.Script, err = evalString(cmdCtx, tb.Script); err != nil {
		return nil, wrap("script", err)
	}
	if t.Script != "" && !filepath.IsAbs(t.Script) {
		t.Script = filepath.Join(filepath.Dir(filename), t.Script)
	}
	return t, nil
}

// commandEvalContext exposes the task's inputs and outputs as paths and its
// parameters as values.
func commandEvalContext(parent *hcl.EvalContext, model *config.Model, t *config.Task) (*hcl.EvalContext, error) {
	paths := func(refs map[string]string) map[string]string {
		out := make(map[string]string, len(refs))
		for role, name := range refs {
			a, ok := model.Artifact(name)
			if !ok {
				continue
			}
			out[role] = a.Path
			if a.Path == "" {
				if lf, err := artifact.ParseLocalFile(a.URL); err == nil {
					out[role] = lf.Path()
				}
			}
		}
		return out
	}

	params, err := ToCtyValue(t.Params)
	if err != nil {
		return nil, err
	}
	child := parent.NewChild()
	child.Variables = map[string]cty.Value{
		"input":  stringsObject(paths(t.Inputs)),
		"output": stringsObject(paths(t.Outputs)),
		"param":  params,
	}
	return child, nil
}

// evalArtifactRefs evaluates a role map whose values are artifact.<name>
// references or plain artifact names.
func evalArtifactRefs(evalCtx *hcl.EvalContext, expr hcl.Expression) (map[string]string, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("must be a map of role to artifact, got %s", val.Type().FriendlyName())
	}

	refs := make(map[string]string, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		role := k.AsString()
		switch {
		case v.IsNull():
			return nil, fmt.Errorf("role %q is null", role)
		case v.Type() == cty.String:
			refs[role] = v.AsString()
		case v.Type().IsObjectType() && v.Type().HasAttribute("name"):
			refs[role] = v.GetAttr("name").AsString()
		default:
			return nil, fmt.Errorf("role %q must reference an artifact, got %s", role, v.Type().FriendlyName())
		}
	}
	return refs, nil
}

func evalMap(evalCtx *hcl.EvalContext, expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("must be a map, got %s", val.Type().FriendlyName())
	}
	v, err := ctyValueToInterface(val)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func evalString(evalCtx *hcl.EvalContext, expr hcl.Expression) (string, error) {
	if expr == nil {
		return "", nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("cannot convert %s to string: %w", val.Type().FriendlyName(), err)
	}
	return str.AsString(), nil
}
