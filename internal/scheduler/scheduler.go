package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/dag"
	"github.com/specialistvlad/stalegrid/internal/staleness"
	"github.com/specialistvlad/stalegrid/internal/task"
)

const (
	defaultRetryInterval    = time.Second
	defaultMaxRetryInterval = 30 * time.Second
)

// errStalled means tasks remain but nothing runs or can be queued. It can
// only result from a corrupted run index.
var errStalled = errors.New("scheduler stalled with unfinished tasks")

// Options tune a run.
type Options struct {
	// Workers bounds how many tasks run at once. Values below one mean one.
	Workers int
	// RunID tags logs and the report.
	RunID string
	// VerifyOutputs fails a successful task whose declared outputs are
	// missing or fail their Verifier.
	VerifyOutputs bool
	// RetryInterval is the first wait between attempts of a task with
	// retries. MaxRetryInterval caps the exponential growth.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

// Scheduler runs plans against one graph.
type Scheduler struct {
	graph *dag.Graph
	opts  Options
}

// New creates a scheduler.
func New(g *dag.Graph, opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.MaxRetryInterval < opts.RetryInterval {
		opts.MaxRetryInterval = max(defaultMaxRetryInterval, opts.RetryInterval)
	}
	return &Scheduler{graph: g, opts: opts}
}

// Run executes plan on g. See Scheduler.Run.
func Run(ctx context.Context, g *dag.Graph, plan *staleness.Plan, opts Options) (*Report, error) {
	return New(g, opts).Run(ctx, plan)
}

// entry is the coordinator's bookkeeping for one task.
type entry struct {
	task       *task.Task
	upstream   []*entry
	downstream []*entry
	// pending counts upstream entries not yet Done.
	pending int
	outcome *Outcome
}

type completion struct {
	entry    *entry
	err      error
	attempts int
	finished time.Time
}

// Run executes the stale tasks of plan and returns one outcome per task.
// The returned error is non-nil only when the run could not start, for
// example because the selected tasks form a cycle; task failures are
// reported in the Report.
func (s *Scheduler) Run(ctx context.Context, plan *staleness.Plan) (*Report, error) {
	ctx = ctxlog.With(ctx, "run_id", s.opts.RunID)
	logger := ctxlog.FromContext(ctx)

	entries, err := s.prepare(plan)
	if err != nil {
		return nil, err
	}

	report := NewReport(s.opts.RunID)
	report.UpToDate = plan.FreshIDs()
	for _, e := range entries {
		if err := e.task.Transition(e.task.State(), task.Stale, nil); err != nil {
			return nil, fmt.Errorf("selecting task: %w", err)
		}
		e.outcome = &Outcome{TaskID: e.task.ID(), State: task.Stale, Reason: string(plan.Reasons[e.task.ID()])}
		report.add(e.outcome)
	}

	logger.Info("🚀 Starting run.", "tasks", len(entries), "workers", s.opts.Workers)

	var queue []*entry
	for _, e := range entries {
		if e.pending == 0 {
			s.move(logger, e, task.Stale, task.Queued, nil)
			queue = append(queue, e)
		}
	}
	sortQueue(queue)

	completions := make(chan completion, len(entries))
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	unfinished := len(entries)
	running := 0
	cancelled := false
	var runErr error

	for unfinished > 0 {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			logger.Warn("Run cancelled, no further tasks will start.", "error", ctx.Err())
			unfinished -= s.skipAll(logger, entries, ctx.Err())
			queue = nil
			continue
		}

		for !cancelled && running < s.opts.Workers && len(queue) > 0 {
			e := queue[0]
			queue = queue[1:]
			s.move(logger, e, task.Queued, task.Running, nil)
			e.outcome.Started = time.Now()
			running++
			g.Go(func() error {
				completions <- s.execute(ctx, e)
				return nil
			})
		}

		if running == 0 {
			if unfinished > 0 {
				runErr = fmt.Errorf("%w: %d left", errStalled, unfinished)
			}
			break
		}

		var done <-chan struct{}
		if !cancelled {
			done = ctx.Done()
		}
		select {
		case c := <-completions:
			running--
			unfinished--
			var skipped int
			queue, skipped = s.complete(logger, c, queue)
			unfinished -= skipped
		case <-done:
		}
	}

	_ = g.Wait()
	report.Finished = time.Now()
	for _, e := range entries {
		e.outcome.State = e.task.State()
	}
	logger.Info("🏁 Run finished.", "done", len(report.Done()), "failed", len(report.Failed()), "skipped", len(report.Skipped()))
	return report, runErr
}

// prepare indexes the plan's tasks and checks that they can be ordered.
func (s *Scheduler) prepare(plan *staleness.Plan) ([]*entry, error) {
	if len(plan.Stale) == 0 {
		return nil, nil
	}
	byID := make(map[string]*entry, len(plan.Stale))
	subset := make([]string, 0, len(plan.Stale))
	for _, t := range plan.Stale {
		if _, dup := byID[t.ID()]; dup {
			return nil, fmt.Errorf("task %s: %w", t.ID(), dag.ErrDuplicateIdentity)
		}
		if running := t.State(); running == task.Running || running == task.Queued {
			return nil, fmt.Errorf("task %s is already %s", t.ID(), running)
		}
		byID[t.ID()] = &entry{task: t}
		subset = append(subset, t.ID())
		for _, a := range t.Inputs() {
			subset = append(subset, a.ID())
		}
		for _, a := range t.Outputs() {
			subset = append(subset, a.ID())
		}
	}

	order, err := s.graph.TopologicalOrder(uniq(subset))
	if err != nil {
		return nil, fmt.Errorf("ordering run: %w", err)
	}

	entries := make([]*entry, 0, len(byID))
	for _, id := range order {
		e, ok := byID[id]
		if !ok {
			continue
		}
		entries = append(entries, e)
		for _, a := range e.task.Inputs() {
			producer, err := s.graph.Producer(a.ID())
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", id, err)
			}
			up, ok := byID[producer]
			if !ok || slices.Contains(e.upstream, up) {
				continue
			}
			e.upstream = append(e.upstream, up)
			up.downstream = append(up.downstream, e)
			e.pending++
		}
	}
	return entries, nil
}

// complete applies a worker's result and returns the updated queue and the
// number of tasks it skipped.
func (s *Scheduler) complete(logger *slog.Logger, c completion, queue []*entry) ([]*entry, int) {
	e := c.entry
	e.outcome.Attempts = c.attempts
	e.outcome.Finished = c.finished
	taskLogger := logger.With("task_id", e.task.ID(), "attempts", c.attempts, "duration", e.outcome.Duration())

	if c.err == nil {
		s.move(logger, e, task.Running, task.Done, nil)
		taskLogger.Info("Task done.")
		released := false
		for _, d := range e.downstream {
			d.pending--
			if d.pending == 0 && d.task.State() == task.Stale {
				s.move(logger, d, task.Stale, task.Queued, nil)
				queue = append(queue, d)
				released = true
			}
		}
		if released {
			sortQueue(queue)
		}
		return queue, 0
	}

	s.move(logger, e, task.Running, task.Failed, c.err)
	e.outcome.Err = c.err
	taskLogger.Error("Task failed.", "error", c.err)

	skipped := 0
	cause := fmt.Errorf("upstream task %s failed", e.task.ID())
	seen := map[*entry]bool{}
	stack := append([]*entry(nil), e.downstream...)
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[d] {
			continue
		}
		seen[d] = true
		stack = append(stack, d.downstream...)

		state := d.task.State()
		if state != task.Stale && state != task.Queued {
			continue
		}
		s.move(logger, d, state, task.Skipped, cause)
		d.outcome.Err = cause
		d.outcome.SkippedBecause = e.task.ID()
		skipped++
	}
	if skipped > 0 {
		queue = slices.DeleteFunc(queue, func(q *entry) bool { return q.task.State() != task.Queued })
		logger.Warn("Skipped tasks downstream of failure.", "failed_task", e.task.ID(), "skipped", skipped)
	}
	return queue, skipped
}

// skipAll marks every task that has not started as Skipped.
func (s *Scheduler) skipAll(logger *slog.Logger, entries []*entry, cause error) int {
	skipped := 0
	for _, e := range entries {
		state := e.task.State()
		if state != task.Stale && state != task.Queued {
			continue
		}
		s.move(logger, e, state, task.Skipped, cause)
		e.outcome.Err = cause
		skipped++
	}
	return skipped
}

func (s *Scheduler) move(logger *slog.Logger, e *entry, from, to task.State, cause error) {
	if err := e.task.Transition(from, to, cause); err != nil {
		logger.Error("Rejected state transition.", "task_id", e.task.ID(), "error", err)
		return
	}
	logger.Debug("Task state changed.", "task_id", e.task.ID(), "from", from, "to", to)
}

func sortQueue(queue []*entry) {
	slices.SortFunc(queue, func(a, b *entry) int {
		return strings.Compare(a.task.ID(), b.task.ID())
	})
}

func uniq(ids []string) []string {
	slices.Sort(ids)
	return slices.Compact(ids)
}
