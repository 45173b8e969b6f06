package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/stalegrid/internal/task"
)

// Outcome is the result of one task in a run.
type Outcome struct {
	TaskID string
	State  task.State
	// Reason is why the task was selected for this run.
	Reason string
	Err    error
	// SkippedBecause names the failed task that caused a skip. Empty when
	// the skip came from cancellation.
	SkippedBecause string
	Attempts       int
	Started        time.Time
	Finished       time.Time
}

// Duration is the wall time the task held a worker slot.
func (o *Outcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Finished.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

// MarshalJSON renders the error as a string.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	type view struct {
		TaskID         string     `json:"task_id"`
		State          task.State `json:"state"`
		Reason         string     `json:"reason,omitempty"`
		Error          string     `json:"error,omitempty"`
		SkippedBecause string     `json:"skipped_because,omitempty"`
		Attempts       int        `json:"attempts"`
		Started        time.Time  `json:"started,omitzero"`
		Finished       time.Time  `json:"finished,omitzero"`
	}
	v := view{
		TaskID:         o.TaskID,
		State:          o.State,
		Reason:         o.Reason,
		SkippedBecause: o.SkippedBecause,
		Attempts:       o.Attempts,
		Started:        o.Started,
		Finished:       o.Finished,
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

// Report is the result of a run. Outcomes cover the tasks that ran;
// UpToDate lists the other tasks considered, which were already fresh.
type Report struct {
	RunID    string     `json:"run_id"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished,omitzero"`
	Outcomes []*Outcome `json:"outcomes"`
	UpToDate []string   `json:"up_to_date,omitempty"`

	byID map[string]*Outcome
}

// NewReport creates an empty report, used directly when nothing is stale.
func NewReport(runID string) *Report {
	return &Report{RunID: runID, Started: time.Now(), byID: make(map[string]*Outcome)}
}

func (r *Report) add(o *Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.byID[o.TaskID] = o
}

// Outcome returns the outcome of a task in this run.
func (r *Report) Outcome(taskID string) (*Outcome, bool) {
	o, ok := r.byID[taskID]
	return o, ok
}

// OK reports whether every task in the run finished Done.
func (r *Report) OK() bool {
	for _, o := range r.Outcomes {
		if o.State != task.Done {
			return false
		}
	}
	return true
}

func (r *Report) Done() []string    { return r.inState(task.Done) }
func (r *Report) Failed() []string  { return r.inState(task.Failed) }
func (r *Report) Skipped() []string { return r.inState(task.Skipped) }

func (r *Report) inState(s task.State) []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.State == s {
			ids = append(ids, o.TaskID)
		}
	}
	return ids
}

// Err joins the errors of failed tasks, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.State == task.Failed {
			errs = append(errs, fmt.Errorf("%s: %w", o.TaskID, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Summary is a one-line description of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d task(s), %d done, %d failed, %d skipped, %d up to date",
		r.RunID, len(r.Outcomes), len(r.Done()), len(r.Failed()), len(r.Skipped()), len(r.UpToDate))
	if !r.Finished.IsZero() {
		fmt.Fprintf(&b, " in %s", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	return b.String()
}
