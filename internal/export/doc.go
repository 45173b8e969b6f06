// Package export renders a workflow in formats meant for other tools: a
// Graphviz digraph, a Makefile that replays the workflow without the
// engine, and a re-loadable HCL workflow file.
package export
