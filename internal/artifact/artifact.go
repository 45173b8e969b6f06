// Package artifact defines the data half of a workflow graph: named pieces
// of data whose existence and modification time drive staleness decisions.
package artifact

import (
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) by LastModified when the artifact does
// not exist.
var ErrNotFound = errors.New("artifact not found")

// Artifact is anything a task can read or write. Implementations must be
// safe for concurrent calls to Exists and LastModified.
type Artifact interface {
	// ID is the artifact's URL-like identity, unique within a workflow.
	ID() string
	Exists() bool
	LastModified() (time.Time, error)
	// Attributes carries opaque metadata. The engine never interprets it.
	Attributes() map[string]any
}

// Verifier is implemented by artifacts that can check their own content
// after a producing task reports success.
type Verifier interface {
	Verify() error
}

// Pather is implemented by artifacts backed by a local filesystem path.
type Pather interface {
	Path() string
}

// PathOf returns the local path of a, or its ID when a has no path.
func PathOf(a Artifact) string {
	if p, ok := a.(Pather); ok {
		return p.Path()
	}
	return a.ID()
}
