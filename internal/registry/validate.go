package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// Validate checks the workflow model against the registered handlers. Every
// in-process task must name a registered handler, and tasks of other
// strategies must not name one.
func (r *Registry) Validate(ctx context.Context, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	for _, t := range model.Tasks {
		strategy := task.Strategy(t.Strategy)
		if strategy == "" {
			strategy = task.StrategyInProcess
		}

		if strategy != task.StrategyInProcess {
			if t.Handler != "" {
				errs = append(errs, fmt.Errorf("%s: task %q: handler %q is only used by in-process tasks, not %q", t.Source, t.Name, t.Handler, strategy))
			}
			continue
		}

		switch {
		case t.Handler == "":
			errs = append(errs, fmt.Errorf("%s: in-process task %q does not name a handler", t.Source, t.Name))
		default:
			if _, ok := r.Handler(t.Handler); !ok {
				errs = append(errs, fmt.Errorf("%s: task %q: %w: %q", t.Source, t.Name, ErrUnknownHandler, t.Handler))
			}
		}
		if t.Command != "" || t.Script != "" {
			logger.Warn("In-process task declares a command that will not be used.", "task", t.Name, "handler", t.Handler)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed: %w", errors.Join(errs...))
	}
	return nil
}
