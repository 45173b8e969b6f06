// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle: load the
// workflow files, build the workflow, then refresh, plan or export it. It
// is decoupled from any specific entrypoint like a CLI or server.
package app
