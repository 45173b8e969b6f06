package dag

import (
	"cmp"
	"slices"
	"strings"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode registers a node. Registering an ID twice is an error wrapping
// ErrDuplicateIdentity, whatever the kinds involved.
func (g *Graph) AddNode(id string, kind Kind) error {
	if id == "" {
		return newGraphError(ErrUnknownNode, nil, "empty node id")
	}
	if kind != KindArtifact && kind != KindTask {
		return newGraphError(ErrInvalidEdge, []string{id}, "node %s has invalid kind %d", id, kind)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if existing, ok := g.nodes[id]; ok {
		return newGraphError(ErrDuplicateIdentity, []string{id}, "%s already registered as %s", id, existing.kind)
	}

	g.nodes[id] = &node{
		id:         id,
		kind:       kind,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	return nil
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// Produces edges must run task -> artifact, Consumes edges artifact -> task.
// Adding an existing edge again is a no-op.
func (g *Graph) AddEdge(fromID, toID string, kind EdgeKind) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return newGraphError(ErrUnknownNode, []string{fromID}, "source node %s not registered", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return newGraphError(ErrUnknownNode, []string{toID}, "destination node %s not registered", toID)
	}

	switch kind {
	case Produces:
		if fromNode.kind != KindTask || toNode.kind != KindArtifact {
			return newGraphError(ErrInvalidEdge, []string{fromID, toID}, "%s edge must run task -> artifact, got %s -> %s", kind, fromNode.kind, toNode.kind)
		}
	case Consumes:
		if fromNode.kind != KindArtifact || toNode.kind != KindTask {
			return newGraphError(ErrInvalidEdge, []string{fromID, toID}, "%s edge must run artifact -> task, got %s -> %s", kind, fromNode.kind, toNode.kind)
		}
	default:
		return newGraphError(ErrInvalidEdge, []string{fromID, toID}, "unknown edge kind %d", kind)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Has reports whether id is registered.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Kind returns the kind of a registered node.
func (g *Graph) Kind(id string) (Kind, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return 0, newGraphError(ErrUnknownNode, []string{id}, "%s", id)
	}
	return n.kind, nil
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Nodes returns the IDs of all nodes of the given kind, sorted. A zero kind
// returns every node.
func (g *Graph) Nodes(kind Kind) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id, n := range g.nodes {
		if kind == 0 || n.kind == kind {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Edges returns every edge, sorted by source then destination.
func (g *Graph) Edges() []Edge {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var edges []Edge
	for _, n := range g.nodes {
		for depID := range n.dependents {
			kind := Consumes
			if n.kind == KindTask {
				kind = Produces
			}
			edges = append(edges, Edge{From: n.id, To: depID, Kind: kind})
		}
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		return cmp.Or(strings.Compare(a.From, b.From), strings.Compare(a.To, b.To))
	})
	return edges
}

// Dependencies returns the sorted IDs of the direct predecessors of id: the
// input artifacts of a task, or the producer of an artifact.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, newGraphError(ErrUnknownNode, []string{id}, "%s", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the sorted IDs of the direct successors of id: the
// outputs of a task, or the consumers of an artifact.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, newGraphError(ErrUnknownNode, []string{id}, "%s", id)
	}
	return sortedKeys(n.dependents), nil
}

// Producer returns the task producing artifactID, or "" when the artifact is
// a source.
func (g *Graph) Producer(artifactID string) (string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[artifactID]
	if !ok {
		return "", newGraphError(ErrUnknownNode, []string{artifactID}, "%s", artifactID)
	}
	if n.kind != KindArtifact {
		return "", newGraphError(ErrInvalidEdge, []string{artifactID}, "%s is a %s, not an artifact", artifactID, n.kind)
	}
	producers := sortedKeys(n.deps)
	if len(producers) == 0 {
		return "", nil
	}
	return producers[0], nil
}

// Consumers returns the sorted IDs of the tasks reading artifactID.
func (g *Graph) Consumers(artifactID string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[artifactID]
	if !ok {
		return nil, newGraphError(ErrUnknownNode, []string{artifactID}, "%s", artifactID)
	}
	if n.kind != KindArtifact {
		return nil, newGraphError(ErrInvalidEdge, []string{artifactID}, "%s is a %s, not an artifact", artifactID, n.kind)
	}
	return sortedKeys(n.dependents), nil
}

func sortedKeys(m map[string]*node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
