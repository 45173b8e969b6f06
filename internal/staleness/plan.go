package staleness

import (
	"errors"
	"time"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// ErrUnsatisfiableTarget is returned when a target or a source input does
// not exist and nothing in the workflow can produce it.
var ErrUnsatisfiableTarget = errors.New("unsatisfiable target")

// Reason explains why a task was selected.
type Reason string

const (
	ReasonPhony         Reason = "declares no outputs"
	ReasonMissingOutput Reason = "output missing"
	ReasonNewerInput    Reason = "input newer than output"
	ReasonMissingInput  Reason = "input will be regenerated"
	ReasonUpstream      Reason = "upstream task stale"
)

// Policy controls timestamp comparison.
type Policy struct {
	// Resolution truncates timestamps before comparison. Zero compares
	// them exactly.
	Resolution time.Duration
	// EqualIsFresh treats an output whose timestamp equals its newest
	// input as up to date.
	EqualIsFresh bool
}

// DefaultPolicy compares at one-second resolution and treats equal
// timestamps as fresh.
func DefaultPolicy() Policy {
	return Policy{Resolution: time.Second, EqualIsFresh: true}
}

func (p Policy) truncate(t time.Time) time.Time {
	if p.Resolution <= 0 {
		return t
	}
	return t.Truncate(p.Resolution)
}

// older reports whether an output stamped out is out of date relative to
// an input stamped in.
func (p Policy) older(out, in time.Time) bool {
	out, in = p.truncate(out), p.truncate(in)
	if p.EqualIsFresh {
		return out.Before(in)
	}
	return !out.After(in)
}

// Lookup resolves graph IDs to the objects they name.
type Lookup interface {
	Artifact(id string) (artifact.Artifact, bool)
	Task(id string) (*task.Task, bool)
}

// Plan is the result of an evaluation.
type Plan struct {
	Targets []string
	// Candidates are the IDs of every task upstream of a target, in
	// dependency order.
	Candidates []string
	// Stale is the subset of candidates that must run, in dependency order.
	Stale []*task.Task
	// Reasons maps each stale task ID to why it was selected.
	Reasons map[string]Reason
}

// UpToDate reports whether nothing needs to run.
func (p *Plan) UpToDate() bool { return len(p.Stale) == 0 }

// IsStale reports whether the task with the given ID was selected.
func (p *Plan) IsStale(id string) bool {
	_, ok := p.Reasons[id]
	return ok
}

// FreshIDs returns the candidates that need not run, in dependency order.
func (p *Plan) FreshIDs() []string {
	var ids []string
	for _, id := range p.Candidates {
		if !p.IsStale(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// StaleIDs returns the IDs of the stale tasks in dependency order.
func (p *Plan) StaleIDs() []string {
	ids := make([]string, len(p.Stale))
	for i, t := range p.Stale {
		ids[i] = t.ID()
	}
	return ids
}
