package dag

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrUnknownNode       = errors.New("unknown node")
	ErrInvalidEdge       = errors.New("invalid edge")
	ErrCycleDetected     = errors.New("cycle detected")
)

// GraphError carries the offending node IDs alongside one of the sentinel
// errors above.
type GraphError struct {
	Kind  error
	Nodes []string
	Msg   string
}

func (e *GraphError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func newGraphError(kind error, nodes []string, format string, args ...any) *GraphError {
	return &GraphError{Kind: kind, Nodes: nodes, Msg: fmt.Sprintf(format, args...)}
}
