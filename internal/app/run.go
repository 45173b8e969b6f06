package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/stalegrid/internal/config"
	"github.com/specialistvlad/stalegrid/internal/ctxlog"
	"github.com/specialistvlad/stalegrid/internal/export"
	"github.com/specialistvlad/stalegrid/internal/workflow"
)

// Run executes the main application logic: load the workflow, then export
// it, print its plan or refresh its targets, depending on the config.
//
// Problems with the workflow itself are wrapped in ErrConfig. A refresh
// where some task did not finish Done returns ErrRunFailed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	if a.config.StatusPort > 0 {
		if err := a.startStatusServer(a.config.StatusPort); err != nil {
			return err
		}
		defer a.closeStatusServer()
	}

	model, err := a.loader.Load(ctx, a.config.WorkflowPaths...)
	if err != nil {
		return fmt.Errorf("%w: failed to load workflow: %w", ErrConfig, err)
	}
	a.logger.Debug("Workflow loaded.", "artifacts", len(model.Artifacts), "tasks", len(model.Tasks))

	b, err := a.build(ctx, model)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	wf := b.Workflow

	if a.config.Export != "" {
		return a.export(wf, model)
	}

	targets, err := b.targets(a.config.Targets)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if a.config.DryRun {
		return a.plan(ctx, wf, targets)
	}

	a.logger.Info("🚀 Starting refresh...", "targets", targets, "workers", wf.Settings().Workers)
	report, err := wf.Refresh(ctx, targets)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	a.setReport(report)

	for _, o := range report.Outcomes {
		a.logger.Debug("Task outcome.", "task_id", o.TaskID, "state", o.State, "attempts", o.Attempts, "duration", o.Duration())
	}
	if !report.OK() {
		a.logger.Error("🏁 Refresh failed.", "summary", report.Summary(), "failed", report.Failed(), "skipped", report.Skipped())
		if err := report.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrRunFailed, err)
		}
		return fmt.Errorf("%w: %s", ErrRunFailed, report.Summary())
	}
	a.logger.Info("🏁 Refresh finished.", "summary", report.Summary())
	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) export(wf *workflow.Workflow, model *config.Model) error {
	a.logger.Debug("Exporting workflow.", "format", a.config.Export)
	switch export.Format(a.config.Export) {
	case export.FormatDOT:
		return export.DOT(a.outW, wf.Graph())
	case export.FormatMakefile:
		return export.Makefile(a.outW, wf)
	case export.FormatHCL:
		return export.HCL(a.outW, model)
	}
	return fmt.Errorf("unknown export format %q", a.config.Export)
}

// plan prints the tasks a refresh would run, one per line with the reason.
func (a *App) plan(ctx context.Context, wf *workflow.Workflow, targets []string) error {
	p, err := wf.Plan(ctx, targets...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if p.UpToDate() {
		fmt.Fprintln(a.outW, "All targets are up to date.")
		return nil
	}
	var b strings.Builder
	for _, t := range p.Stale {
		fmt.Fprintf(&b, "%s\t%s\n", t.ID(), p.Reasons[t.ID()])
	}
	_, err = fmt.Fprint(a.outW, b.String())
	return err
}
