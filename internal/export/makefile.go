package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/runner"
	"github.com/specialistvlad/stalegrid/internal/task"
	"github.com/specialistvlad/stalegrid/internal/workflow"
)

// Makefile writes one rule per task, in topological order, so the workflow
// can be replayed with make. Outputs become targets, inputs prerequisites
// and the command the recipe, run with the same STALEGRID_* variables the
// engine would set. Tasks with several outputs use grouped targets (&:)
// and phony tasks become .PHONY targets named after the task. In-process
// tasks and tasks without a command get a failing recipe.
func Makefile(w io.Writer, wf *workflow.Workflow) error {
	order, err := wf.Graph().TopologicalOrder(nil)
	if err != nil {
		return err
	}

	var tasks []*task.Task
	phony := []string{"all"}
	for _, id := range order {
		t, ok := wf.Task(id)
		if !ok {
			continue
		}
		tasks = append(tasks, t)
		if t.IsPhony() {
			phony = append(phony, t.Name())
		}
	}

	var all []string
	for _, id := range wf.Sinks() {
		if t, ok := wf.Task(id); ok {
			all = append(all, t.Name())
			continue
		}
		if a, ok := wf.Artifact(id); ok {
			all = append(all, makePath(a))
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Generated by stalegrid.")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "all: %s\n", strings.Join(all, " "))
	fmt.Fprintf(bw, ".PHONY: %s\n", strings.Join(phony, " "))

	for _, t := range tasks {
		var targets, prereqs []string
		for _, role := range t.OutputRoles() {
			a, _ := t.Output(role)
			targets = append(targets, makePath(a))
		}
		for _, role := range t.InputRoles() {
			a, _ := t.Input(role)
			prereqs = append(prereqs, makePath(a))
		}
		sep := ":"
		switch {
		case t.IsPhony():
			targets = []string{t.Name()}
		case len(targets) > 1:
			sep = " &:"
		}

		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "# %s\n", t.ID())
		fmt.Fprintf(bw, "%s%s %s\n", strings.Join(targets, " "), sep, strings.Join(prereqs, " "))
		fmt.Fprintf(bw, "\t%s\n", escapeDollars(recipe(t)))
	}
	return bw.Flush()
}

func recipe(t *task.Task) string {
	var env []string
	for _, kv := range runner.TaskEnv(t) {
		name, value, _ := strings.Cut(kv, "=")
		env = append(env, name+"="+runner.ShellQuote(value))
	}

	command := strings.TrimSpace(t.Command())
	strategy := t.Options().Strategy
	switch {
	case strategy == task.StrategyInProcess, command == "":
		return fmt.Sprintf("@echo %s >&2; exit 1", runner.ShellQuote(t.ID()+" has no command and cannot be replayed by make"))
	case strategy == task.StrategyScript:
		return "env " + strings.Join(env, " ") + " /bin/sh " + runner.ShellQuote(command)
	}

	// recipes are single lines
	var lines []string
	for line := range strings.Lines(command) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return "env " + strings.Join(env, " ") + " /bin/sh -c " + runner.ShellQuote(strings.Join(lines, "; "))
}

func makePath(a artifact.Artifact) string {
	if p := artifact.PathOf(a); p != "" {
		return strings.ReplaceAll(p, " ", `\ `)
	}
	return a.ID()
}

func escapeDollars(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
