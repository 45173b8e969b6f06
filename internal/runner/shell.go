package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/task"
)

const (
	defaultShell = "/bin/sh"
	// outputTail bounds how much captured output ends up in an error.
	outputTail = 2048
)

// Shell runs a task's command as a local subprocess. A non-zero exit status
// fails the task.
type Shell struct {
	// Shell is the interpreter, /bin/sh when empty.
	Shell string
	// Script runs the command as the path of a script file instead of a
	// command line.
	Script bool
	// Dir is the working directory, the current one when empty.
	Dir string
	// Env is appended to the inherited environment and the task variables.
	Env []string
}

// Run implements task.Runner.
func (s *Shell) Run(ctx context.Context, t *task.Task) error {
	logger := ctxlog.FromContext(ctx).With("task_id", t.ID())

	command := strings.TrimSpace(t.Command())
	if command == "" {
		return fmt.Errorf("task %s has no command", t.ID())
	}

	shell := s.Shell
	if shell == "" {
		shell = defaultShell
	}
	args := []string{"-c", command}
	if s.Script {
		args = []string{command}
	}

	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Dir = s.Dir
	cmd.Env = append(append(os.Environ(), TaskEnv(t)...), s.Env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.Debug("Starting subprocess.", "shell", shell, "args", args)
	err := cmd.Run()
	logger.Debug("Subprocess finished.", "output", out.String())
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return fmt.Errorf("command interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("command exited with status %d: %s", exitErr.ExitCode(), tail(out.String()))
	}
	return fmt.Errorf("starting command: %w", err)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= outputTail {
		return s
	}
	return "..." + s[len(s)-outputTail:]
}
