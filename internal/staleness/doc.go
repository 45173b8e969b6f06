// Package staleness decides which tasks must run to bring a set of target
// artifacts up to date. It compares artifact modification times along the
// dependency graph, the same way make compares file mtimes, and returns a
// Plan naming the stale tasks in dependency order together with the reason
// each one was selected.
package staleness
