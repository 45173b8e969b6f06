// Package registry stores the in-process task bodies compiled into the
// binary under the names workflow files refer to them by.
//
// Modules register their handlers during application startup. The registry
// is then validated against the loaded workflow so that a task naming a
// handler that does not exist fails before anything runs.
package registry
