package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
	"github.com/bakerstreetlabs/holmes-agent/pkg/job"
)

// RunOrchestration decomposes a free-form request into steps and runs each
// step as a child automation job, in order, aborting on the first failure.
func (e *Engine) RunOrchestration(ctx context.Context, id string) job.State {
	rec, ok := e.store.Get(id)
	if !ok || rec.Kind != job.KindOrchestration {
		e.logger.Error("orchestration run for unknown or mismatched job", zap.String("job_id", id))
		return job.StateFailed
	}
	req := rec.Orchestration

	if _, ok := e.advance(id, job.StateValidating, "decomposing request"); !ok {
		return currentState(e.store, id)
	}

	steps := e.dec.Decompose(ctx, req.Request, req.Context)
	e.logger.Info("request decomposed", zap.String("job_id", id), zap.Int("steps", len(steps)))

	outcomes := make([]job.StepOutcome, 0, len(steps))
	failed := false

	for i, step := range steps {
		if _, ok := e.advance(id, job.StateApplying,
			fmt.Sprintf("step %d/%d: %s", i+1, len(steps), step.Action)); !ok {
			return currentState(e.store, id)
		}

		outcome := e.runStep(ctx, id, step)
		outcomes = append(outcomes, outcome)
		if outcome.Status != string(job.StateCompleted) {
			failed = true
			break
		}
	}

	if _, ok := e.advance(id, job.StateDocumenting, "summarizing step outcomes",
		job.WithSteps(outcomes)); !ok {
		return currentState(e.store, id)
	}

	summary := summarize(outcomes, len(steps))
	if failed {
		e.advance(id, job.StateFailed, summary, job.WithError(summary))
		return job.StateFailed
	}
	e.advance(id, job.StateCompleted, summary)
	return job.StateCompleted
}

// runStep resolves the step's target, submits a child automation job, and
// drives it to completion synchronously.
func (e *Engine) runStep(ctx context.Context, parentID string, step Step) job.StepOutcome {
	outcome := job.StepOutcome{Action: step.Action, Description: step.Description}

	target, err := e.resolveStepTarget(ctx, step.Action)
	if err != nil {
		outcome.Status = string(job.StateFailed)
		outcome.Error = err.Error()
		return outcome
	}

	child, err := e.store.Submit(&job.Record{
		Kind: job.KindAutomation,
		Automation: &job.AutomationRequest{
			TemplateName: target.Name,
			ExtraVars: map[string]any{
				"step_action":      step.Action,
				"step_description": step.Description,
			},
			Metadata: map[string]string{"parent_job_id": parentID},
		},
	})
	if err != nil {
		outcome.Status = string(job.StateFailed)
		outcome.Error = fmt.Sprintf("submit step job: %v", err)
		return outcome
	}
	outcome.JobID = child.ID

	if _, ok := e.advance(parentID, job.StateMonitoring,
		fmt.Sprintf("running step %s as job %s", step.Action, child.ID), job.WithChild(child.ID)); !ok {
		outcome.Status = string(job.StateCanceled)
		outcome.Error = "orchestration canceled"
		return outcome
	}

	state := e.RunAutomation(ctx, child.ID)
	outcome.Status = string(state)
	if state != job.StateCompleted {
		if childRec, ok := e.store.Get(child.ID); ok && childRec.Result.Error != "" {
			outcome.Error = childRec.Result.Error
		} else {
			outcome.Error = fmt.Sprintf("step job ended %s", state)
		}
	}
	return outcome
}

// resolveStepTarget tries the action's specific target first, then the
// catalog's generic fallback.
func (e *Engine) resolveStepTarget(ctx context.Context, action string) (adapter.TargetRef, error) {
	name := e.catalog.TargetFor(action)
	target, err := e.backend.ResolveTarget(ctx, name)
	if err == nil {
		return target, nil
	}
	if !adapter.IsTargetNotFound(err) {
		return adapter.TargetRef{}, fmt.Errorf("resolve target %q: %w", name, err)
	}

	fallback := e.catalog.Fallback()
	e.logger.Info("step target missing, using fallback",
		zap.String("target", name), zap.String("fallback", fallback))
	target, err = e.backend.ResolveTarget(ctx, fallback)
	if err != nil {
		return adapter.TargetRef{}, fmt.Errorf("neither target %q nor fallback %q resolved", name, fallback)
	}
	return target, nil
}

func summarize(outcomes []job.StepOutcome, planned int) string {
	succeeded := 0
	for _, o := range outcomes {
		if o.Status == string(job.StateCompleted) {
			succeeded++
		}
	}
	if succeeded == planned {
		return fmt.Sprintf("all %d steps completed", planned)
	}
	return fmt.Sprintf("%d/%d steps completed; sequence aborted at step %d",
		succeeded, planned, len(outcomes))
}
