package dag

import (
	"slices"
	"strings"
)

// Ancestors returns every node that id transitively depends on, excluding id
// itself, sorted. Traversal is breadth-first and terminates on cyclic
// graphs.
func (g *Graph) Ancestors(id string) ([]string, error) {
	return g.closure(id, func(n *node) map[string]*node { return n.deps })
}

// Descendants returns every node that transitively depends on id, excluding
// id itself, sorted.
func (g *Graph) Descendants(id string) ([]string, error) {
	return g.closure(id, func(n *node) map[string]*node { return n.dependents })
}

func (g *Graph) closure(id string, next func(*node) map[string]*node) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil, newGraphError(ErrUnknownNode, []string{id}, "%s", id)
	}

	seen := map[string]bool{id: true}
	queue := []*node{start}
	var out []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for nid, nn := range next(n) {
			if seen[nid] {
				continue
			}
			seen[nid] = true
			out = append(out, nid)
			queue = append(queue, nn)
		}
	}
	slices.Sort(out)
	return out, nil
}

// TopologicalOrder returns the IDs in subset ordered so that every node
// comes after all of its predecessors within the subset. Edges leaving the
// subset are ignored. Ties are broken lexically so the order is stable
// across runs. A nil subset orders the whole graph.
//
// If the subset contains a cycle the error wraps ErrCycleDetected and
// names the nodes that could not be ordered.
func (g *Graph) TopologicalOrder(subset []string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	in := make(map[string]bool, len(subset))
	if subset == nil {
		for id := range g.nodes {
			in[id] = true
		}
	}
	for _, id := range subset {
		if _, ok := g.nodes[id]; !ok {
			return nil, newGraphError(ErrUnknownNode, []string{id}, "%s", id)
		}
		in[id] = true
	}

	indegree := make(map[string]int, len(in))
	var ready []string
	for id := range in {
		count := 0
		for depID := range g.nodes[id].deps {
			if in[depID] {
				count++
			}
		}
		indegree[id] = count
		if count == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(in))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := false
		for depID := range g.nodes[id].dependents {
			if !in[depID] {
				continue
			}
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = append(ready, depID)
				released = true
			}
		}
		if released {
			slices.Sort(ready)
		}
	}

	if len(order) != len(in) {
		stuck := g.cycleMembers(indegree)
		return nil, newGraphError(ErrCycleDetected, stuck, "unresolvable nodes: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

// cycleMembers narrows the nodes Kahn's algorithm could not release down to
// those on a cycle, dropping nodes that are merely downstream of one.
func (g *Graph) cycleMembers(indegree map[string]int) []string {
	left := make(map[string]bool)
	for id, count := range indegree {
		if count > 0 {
			left[id] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for id := range left {
			hasSuccessor := false
			for depID := range g.nodes[id].dependents {
				if left[depID] {
					hasSuccessor = true
					break
				}
			}
			if !hasSuccessor {
				delete(left, id)
				changed = true
			}
		}
	}
	members := make([]string, 0, len(left))
	for id := range left {
		members = append(members, id)
	}
	slices.Sort(members)
	return members
}

// DetectCycles checks the whole graph for cycles.
func (g *Graph) DetectCycles() error {
	_, err := g.TopologicalOrder(nil)
	return err
}
