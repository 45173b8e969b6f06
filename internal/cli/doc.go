// Package cli turns command-line arguments into an app.Config and maps the
// application's errors to process exit codes.
package cli
