// Package scheduler executes the stale tasks selected by a staleness plan.
//
// A single coordinator goroutine owns every state change. It dispatches
// ready tasks onto a bounded pool of worker slots, receives completions over
// one buffered channel and decides what becomes ready next. A failed task
// takes every not-yet-started descendant in the run down with it, while
// independent branches keep running. Cancelling the caller's context stops
// new dispatch; tasks already running see the cancelled context.
package scheduler
