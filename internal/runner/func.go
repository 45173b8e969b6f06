package runner

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/specialistvlad/stalegrid/internal/task"
)

// Func runs a Go function in the calling goroutine. A returned error or a
// panic fails the task.
type Func func(ctx context.Context, t *task.Task) error

// Run implements task.Runner.
func (f Func) Run(ctx context.Context, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", t.ID(), r, debug.Stack())
		}
	}()
	return f(ctx, t)
}
