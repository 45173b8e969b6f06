package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// execute runs one task to completion on a worker slot, including retries
// and output verification. It never touches task state.
func (s *Scheduler) execute(ctx context.Context, e *entry) completion {
	t := e.task
	ctx = ctxlog.With(ctx, "task_id", t.ID())
	logger := ctxlog.FromContext(ctx)
	opts := t.Options()

	logger.Info("Task started.", "strategy", opts.Strategy)

	attempts := 0
	attempt := func() error {
		attempts++
		err := s.attempt(ctx, t, opts.Timeout)
		if err != nil && uint64(attempts) <= opts.MaxRetries {
			logger.Warn("Task attempt failed, retrying.", "attempt", attempts, "error", err)
		}
		return err
	}
	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(s.retryBackOff(), opts.MaxRetries), ctx))

	if err == nil && s.opts.VerifyOutputs {
		err = verifyOutputs(t)
	}
	return completion{entry: e, err: err, attempts: attempts, finished: time.Now()}
}

func (s *Scheduler) attempt(ctx context.Context, t *task.Task, timeout time.Duration) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", t.ID(), r, debug.Stack())
		}
	}()
	return t.Runner().Run(ctx, t)
}

func (s *Scheduler) retryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval
	b.MaxInterval = s.opts.MaxRetryInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// verifyOutputs checks that every declared output exists and passes its
// own content check.
func verifyOutputs(t *task.Task) error {
	for _, role := range t.OutputRoles() {
		a, _ := t.Output(role)
		if v, ok := a.(artifact.Verifier); ok {
			if err := v.Verify(); err != nil {
				return fmt.Errorf("output %q: %w", role, err)
			}
			continue
		}
		if !a.Exists() {
			return fmt.Errorf("output %q: %s: %w", role, a.ID(), artifact.ErrNotFound)
		}
	}
	return nil
}
