package runner

import (
	"context"

	"github.com/specialistvlad/stalegrid/internal/task"
)

// Distributable sends a task either to a cluster or to a local backend. The
// choice is fixed when the runner is built.
type Distributable struct {
	Distributed bool
	Local       task.Runner
	Remote      task.Runner
}

// NewDistributable picks remote when distributed is set and a remote backend
// is available, local otherwise.
func NewDistributable(distributed bool, local, remote task.Runner) *Distributable {
	return &Distributable{Distributed: distributed && remote != nil, Local: local, Remote: remote}
}

// Run implements task.Runner.
func (d *Distributable) Run(ctx context.Context, t *task.Task) error {
	if d.Distributed {
		return d.Remote.Run(ctx, t)
	}
	return d.Local.Run(ctx, t)
}
