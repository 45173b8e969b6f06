// Package workflow is the caller-facing entry point of the engine. A
// Workflow owns one dependency graph together with the artifacts and tasks
// registered into it, and brings targets up to date with Refresh:
//
//	wf := workflow.New(workflow.WithWorkers(4))
//	_ = wf.AddArtifacts(raw, aligned)
//	_ = wf.AddTask(align)
//	report, err := wf.Refresh(ctx, []string{aligned.ID()})
//
// Each Workflow is independent; nothing is registered globally.
package workflow
