// Package dag holds the bipartite dependency graph of a workflow. Nodes are
// artifacts and tasks, identified by their URL-like IDs; edges say which
// task produces an artifact and which tasks consume it.
//
// The graph only knows identities and edge kinds. It never touches the
// artifacts or tasks themselves, so the staleness evaluator and scheduler
// can query it from any goroutine.
package dag
