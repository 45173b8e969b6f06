// Package runner provides the execution backends for task bodies: plain Go
// functions, local subprocesses, cluster jobs and a per-task choice between
// the last two. Every backend implements task.Runner and blocks until the
// body has finished.
package runner
