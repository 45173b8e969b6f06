package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/task"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxPollInterval = 30 * time.Second
	defaultGracePeriod     = 60 * time.Second
)

// ErrJobTimeout is returned when a job is still unfinished after
// Cluster.MaxWait.
var ErrJobTimeout = errors.New("job exceeded max wait")

var (
	errJobRunning      = errors.New("job still running")
	errOutputsNotReady = errors.New("outputs not materialized")
)

// Job is one submission to a cluster scheduler.
type Job struct {
	// Name is unique per submission.
	Name    string
	Command string
	Dir     string
	Env     []string
}

// JobStatus is what a scheduler knows about a submitted job.
type JobStatus struct {
	Done     bool
	ExitCode int
}

// JobScheduler submits jobs to a cluster and reports on them.
type JobScheduler interface {
	Submit(ctx context.Context, job Job) (jobID string, err error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// Cluster runs a task's command as a cluster job and blocks until the job
// has finished and its declared outputs are visible. Polling backs off
// exponentially from PollInterval to MaxPollInterval.
type Cluster struct {
	Scheduler JobScheduler
	// Dir is the working directory of submitted jobs.
	Dir             string
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// GracePeriod bounds the wait for outputs after the job ends, since
	// shared filesystems lag behind the compute node.
	GracePeriod time.Duration
	// MaxWait bounds the time from submission to job completion. Zero
	// waits until the context is done.
	MaxWait time.Duration
}

// Run implements task.Runner.
func (c *Cluster) Run(ctx context.Context, t *task.Task) error {
	logger := ctxlog.FromContext(ctx).With("task_id", t.ID())

	if strings.TrimSpace(t.Command()) == "" {
		return fmt.Errorf("task %s has no command", t.ID())
	}
	job := Job{
		Name:    JobName(t),
		Command: t.Command(),
		Dir:     c.Dir,
		Env:     TaskEnv(t),
	}

	jobID, err := c.Scheduler.Submit(ctx, job)
	if err != nil {
		return fmt.Errorf("submitting job %s: %w", job.Name, err)
	}
	logger = logger.With("job_id", jobID, "job_name", job.Name)
	logger.Info("Job submitted.")

	var status JobStatus
	poll := func() error {
		s, err := c.Scheduler.Status(ctx, jobID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("querying job %s: %w", jobID, err))
		}
		if !s.Done {
			return errJobRunning
		}
		status = s
		return nil
	}
	err = backoff.Retry(poll, backoff.WithContext(c.backOff(c.MaxWait), ctx))
	if errors.Is(err, errJobRunning) {
		logger.Warn("Job did not finish in time; it may still be queued.", "max_wait", c.MaxWait)
		return fmt.Errorf("job %s: %w (%s)", jobID, ErrJobTimeout, c.MaxWait)
	}
	if err != nil {
		return err
	}
	logger.Debug("Job finished.", "exit_code", status.ExitCode)
	if status.ExitCode != 0 {
		return fmt.Errorf("job %s exited with status %d", jobID, status.ExitCode)
	}

	if err := c.awaitOutputs(ctx, t); err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	return nil
}

func (c *Cluster) awaitOutputs(ctx context.Context, t *task.Task) error {
	grace := c.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	check := func() error {
		var missing []string
		for _, role := range t.OutputRoles() {
			if a, _ := t.Output(role); !a.Exists() {
				missing = append(missing, a.ID())
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w after %s: %s", errOutputsNotReady, grace, strings.Join(missing, ", "))
		}
		return nil
	}
	return backoff.Retry(check, backoff.WithContext(c.backOff(grace), ctx))
}

// backOff builds the polling schedule. A non-positive limit polls until
// the context is done.
func (c *Cluster) backOff(limit time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.PollInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultPollInterval
	}
	b.MaxInterval = c.MaxPollInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxPollInterval
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = max(limit, 0)
	b.Reset()
	return b
}

// JobName derives a scheduler-safe, per-submission unique job name from a
// task ID.
func JobName(t *task.Task) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, t.Name())
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t" + name
	}
	return name + "-" + strings.ToLower(ulid.Make().String())
}
