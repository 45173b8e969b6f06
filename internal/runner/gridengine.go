package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrJobLost is returned when a job has left the cluster queue without
// writing its exit marker, e.g. after qdel or a node crash.
var ErrJobLost = errors.New("job lost")

// jobIDPattern matches Grid Engine's "Your job 123 ("name") has been
// submitted" as well as the array form.
var jobIDPattern = regexp.MustCompile(`(?i)your job(?:-array)? (\d+)`)

// GridEngine submits jobs with qsub. Each job runs a generated wrapper
// script that records the command's exit status in a marker file next to
// it; completion is detected by the marker appearing. While the marker is
// missing, StatusCommand (typically qstat -j) tells a queued job from a
// lost one.
type GridEngine struct {
	// SubmitCommand is the submission program, qsub when empty.
	SubmitCommand string
	// SubmitArgs are passed to every submission, e.g. queue or resources.
	SubmitArgs []string
	// WorkDir holds wrapper scripts, markers and job logs.
	WorkDir string
	// Shell interprets the wrapper script, /bin/sh when empty.
	Shell string
	// StatusCommand is run with StatusArgs and the job ID appended. A
	// non-zero exit means the scheduler no longer knows the job. When empty
	// jobs are never considered lost.
	StatusCommand string
	StatusArgs    []string
	// LostGrace is how long a job may be gone from the queue without a
	// marker before it counts as lost. Shared filesystems may show the
	// marker late.
	LostGrace time.Duration

	mu   sync.Mutex
	jobs map[string]*gridJob
}

type gridJob struct {
	marker    string
	goneSince time.Time
}

// NewGridEngine creates a submitter writing its files under workDir.
func NewGridEngine(workDir string, submitArgs ...string) *GridEngine {
	return &GridEngine{WorkDir: workDir, SubmitArgs: submitArgs}
}

// Submit implements JobScheduler.
func (g *GridEngine) Submit(ctx context.Context, job Job) (string, error) {
	if err := os.MkdirAll(g.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}
	script := filepath.Join(g.WorkDir, job.Name+".sh")
	marker := filepath.Join(g.WorkDir, job.Name+".exit")
	if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("removing old marker: %w", err)
	}
	if err := os.WriteFile(script, []byte(g.wrapper(job, marker)), 0o755); err != nil {
		return "", fmt.Errorf("writing wrapper script: %w", err)
	}

	submit := g.SubmitCommand
	if submit == "" {
		submit = "qsub"
	}
	args := append([]string{}, g.SubmitArgs...)
	args = append(args,
		"-N", job.Name,
		"-o", filepath.Join(g.WorkDir, job.Name+".out"),
		"-e", filepath.Join(g.WorkDir, job.Name+".err"),
		script,
	)
	cmd := exec.CommandContext(ctx, submit, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", submit, err, tail(out.String()))
	}

	jobID, err := parseJobID(out.String())
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	if g.jobs == nil {
		g.jobs = make(map[string]*gridJob)
	}
	g.jobs[jobID] = &gridJob{marker: marker}
	g.mu.Unlock()
	return jobID, nil
}

// Status implements JobScheduler. A job gone from the queue for longer
// than LostGrace without a marker yields ErrJobLost.
func (g *GridEngine) Status(ctx context.Context, jobID string) (JobStatus, error) {
	g.mu.Lock()
	job, ok := g.jobs[jobID]
	g.mu.Unlock()
	if !ok {
		return JobStatus{}, fmt.Errorf("unknown job %s", jobID)
	}

	if status, done, err := g.finished(jobID, job.marker); done || err != nil {
		return status, err
	}
	queued, err := g.queued(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	if queued {
		g.mu.Lock()
		job.goneSince = time.Time{}
		g.mu.Unlock()
		return JobStatus{}, nil
	}
	// The job may have ended between reading the marker and the query.
	if status, done, err := g.finished(jobID, job.marker); done || err != nil {
		return status, err
	}

	g.mu.Lock()
	if job.goneSince.IsZero() {
		job.goneSince = time.Now()
	}
	gone := time.Since(job.goneSince)
	g.mu.Unlock()
	if gone < g.LostGrace {
		return JobStatus{}, nil
	}
	g.forget(jobID)
	return JobStatus{}, fmt.Errorf("%w: job %s left the queue without writing %s", ErrJobLost, jobID, job.marker)
}

// finished reads the exit marker of jobID, forgetting the job once it has
// one.
func (g *GridEngine) finished(jobID, marker string) (JobStatus, bool, error) {
	data, err := os.ReadFile(marker)
	if errors.Is(err, fs.ErrNotExist) {
		return JobStatus{}, false, nil
	}
	if err != nil {
		return JobStatus{}, false, fmt.Errorf("reading marker: %w", err)
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return JobStatus{}, false, fmt.Errorf("marker %s: %w", marker, err)
	}
	g.forget(jobID)
	return JobStatus{Done: true, ExitCode: code}, true, nil
}

// queued asks StatusCommand whether the scheduler still knows jobID.
func (g *GridEngine) queued(ctx context.Context, jobID string) (bool, error) {
	if g.StatusCommand == "" {
		return true, nil
	}
	args := append(append([]string{}, g.StatusArgs...), jobID)
	out, err := exec.CommandContext(ctx, g.StatusCommand, args...).CombinedOutput()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("%s failed: %w: %s", g.StatusCommand, err, tail(string(out)))
}

func (g *GridEngine) forget(jobID string) {
	g.mu.Lock()
	delete(g.jobs, jobID)
	g.mu.Unlock()
}

// wrapper renders the job script. The marker is written via a temporary
// file and a rename so a reader never sees a partial status.
func (g *GridEngine) wrapper(job Job, marker string) string {
	shell := g.Shell
	if shell == "" {
		shell = defaultShell
	}
	var b strings.Builder
	fmt.Fprintf(&b, "#!%s\n", shell)
	for _, kv := range job.Env {
		name, value, _ := strings.Cut(kv, "=")
		fmt.Fprintf(&b, "export %s=%s\n", name, ShellQuote(value))
	}
	if job.Dir != "" {
		fmt.Fprintf(&b, "cd %s || exit 1\n", ShellQuote(job.Dir))
	}
	fmt.Fprintf(&b, "(\n%s\n)\n", job.Command)
	b.WriteString("status=$?\n")
	fmt.Fprintf(&b, "echo $status > %s.tmp && mv %s.tmp %s\n", ShellQuote(marker), ShellQuote(marker), ShellQuote(marker))
	b.WriteString("exit $status\n")
	return b.String()
}

func parseJobID(output string) (string, error) {
	if m := jobIDPattern.FindStringSubmatch(output); m != nil {
		return m[1], nil
	}
	// PBS-style submitters print just the ID.
	fields := strings.Fields(output)
	if len(fields) == 1 {
		return fields[0], nil
	}
	return "", fmt.Errorf("cannot parse job id from submit output %q", strings.TrimSpace(output))
}
