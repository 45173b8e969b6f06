package dag

import "sync"

// Kind tells artifacts and tasks apart.
type Kind int

const (
	KindArtifact Kind = iota + 1
	KindTask
)

func (k Kind) String() string {
	switch k {
	case KindArtifact:
		return "artifact"
	case KindTask:
		return "task"
	default:
		return "unknown"
	}
}

// EdgeKind labels an edge.
type EdgeKind int

const (
	// Produces runs from a task to one of its output artifacts.
	Produces EdgeKind = iota + 1
	// Consumes runs from an input artifact to the task reading it.
	Consumes
)

func (k EdgeKind) String() string {
	switch k {
	case Produces:
		return "produces"
	case Consumes:
		return "consumes"
	default:
		return "unknown"
	}
}

// Edge is a directed, labelled edge.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[string]*node
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using string IDs),
// not by direct struct manipulation.
type node struct {
	id   string
	kind Kind
	// deps holds the set of nodes that this node depends on (predecessors).
	deps map[string]*node
	// dependents holds the set of nodes that depend on this node (successors).
	dependents map[string]*node
}
