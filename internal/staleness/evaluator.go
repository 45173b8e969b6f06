package staleness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/dag"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// Evaluator computes plans against one graph.
type Evaluator struct {
	graph  *dag.Graph
	lookup Lookup
	policy Policy
}

// New creates an evaluator.
func New(g *dag.Graph, lookup Lookup, policy Policy) *Evaluator {
	return &Evaluator{graph: g, lookup: lookup, policy: policy}
}

// Evaluate selects the tasks that must run so every target is up to date.
// Targets may be artifact or task IDs; a task target is always considered
// together with its own ancestors.
//
// Configuration problems are returned before any artifact is judged: an
// unknown target wraps dag.ErrUnknownNode, a cycle upstream of a target
// wraps dag.ErrCycleDetected and a missing source wraps
// ErrUnsatisfiableTarget.
func (e *Evaluator) Evaluate(ctx context.Context, targets []string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	scope := make(map[string]bool)
	for _, id := range targets {
		kind, err := e.graph.Kind(id)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", id, err)
		}
		if kind == dag.KindArtifact {
			if err := e.checkSatisfiable(id); err != nil {
				return nil, err
			}
		}
		scope[id] = true
		ancestors, err := e.graph.Ancestors(id)
		if err != nil {
			return nil, err
		}
		for _, a := range ancestors {
			scope[a] = true
		}
	}

	subset := make([]string, 0, len(scope))
	for id := range scope {
		subset = append(subset, id)
	}
	order, err := e.graph.TopologicalOrder(subset)
	if err != nil {
		return nil, fmt.Errorf("ordering tasks upstream of targets: %w", err)
	}

	plan := &Plan{
		Targets: append([]string(nil), targets...),
		Reasons: make(map[string]Reason),
	}
	for _, id := range order {
		if kind, _ := e.graph.Kind(id); kind != dag.KindTask {
			continue
		}
		t, ok := e.lookup.Task(id)
		if !ok {
			return nil, fmt.Errorf("task %s: %w", id, dag.ErrUnknownNode)
		}
		plan.Candidates = append(plan.Candidates, id)

		reason, err := e.judge(ctx, t, plan)
		if err != nil {
			return nil, err
		}
		if reason == "" {
			logger.Debug("Task is up to date.", "task_id", id)
			continue
		}
		logger.Debug("Task is stale.", "task_id", id, "reason", reason)
		plan.Reasons[id] = reason
		plan.Stale = append(plan.Stale, t)
	}
	return plan, nil
}

func (e *Evaluator) checkSatisfiable(artifactID string) error {
	producer, err := e.graph.Producer(artifactID)
	if err != nil {
		return err
	}
	if producer != "" {
		return nil
	}
	a, ok := e.lookup.Artifact(artifactID)
	if !ok {
		return fmt.Errorf("artifact %s: %w", artifactID, dag.ErrUnknownNode)
	}
	if !a.Exists() {
		return fmt.Errorf("%w: %s does not exist and no task produces it", ErrUnsatisfiableTarget, artifactID)
	}
	return nil
}

// judge returns why t is stale, or "" when it is up to date. plan holds the
// verdicts for every candidate ordered before t.
func (e *Evaluator) judge(ctx context.Context, t *task.Task, plan *Plan) (Reason, error) {
	var reason Reason
	newestInput := time.Time{}

	for _, role := range t.InputRoles() {
		in, _ := t.Input(role)
		producer, err := e.graph.Producer(in.ID())
		if err != nil {
			return "", fmt.Errorf("task %s input %q: %w", t.ID(), role, err)
		}
		if producer != "" && plan.IsStale(producer) {
			reason = firstReason(reason, ReasonUpstream)
			continue
		}
		if !in.Exists() {
			if producer == "" {
				return "", fmt.Errorf("%w: task %s reads %s which does not exist and no task produces it", ErrUnsatisfiableTarget, t.ID(), in.ID())
			}
			reason = firstReason(reason, ReasonMissingInput)
			continue
		}
		ts, err := in.LastModified()
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				reason = firstReason(reason, ReasonMissingInput)
				continue
			}
			return "", fmt.Errorf("task %s input %q: %w", t.ID(), role, err)
		}
		if ts.After(newestInput) {
			newestInput = ts
		}
	}

	if t.IsPhony() {
		return firstReason(reason, ReasonPhony), nil
	}

	for _, role := range t.OutputRoles() {
		out, _ := t.Output(role)
		if !out.Exists() {
			reason = firstReason(reason, ReasonMissingOutput)
			continue
		}
		ts, err := out.LastModified()
		if err != nil {
			if !errors.Is(err, artifact.ErrNotFound) {
				ctxlog.FromContext(ctx).Warn("Cannot read output timestamp, treating as missing.", "task_id", t.ID(), "artifact", out.ID(), "error", err)
			}
			reason = firstReason(reason, ReasonMissingOutput)
			continue
		}
		if !newestInput.IsZero() && e.policy.older(ts, newestInput) {
			reason = firstReason(reason, ReasonNewerInput)
		}
	}
	return reason, nil
}

// firstReason keeps the earliest reason found. Upstream staleness takes
// precedence.
func firstReason(cur, next Reason) Reason {
	if cur == ReasonUpstream || next == ReasonUpstream {
		return ReasonUpstream
	}
	if cur != "" {
		return cur
	}
	return next
}
