package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workbridge-io/workbridge/core/infra/logging"
	"github.com/workbridge-io/workbridge/core/infra/metrics"
)

// Engine runs all steps of one execution in order and owns the
// execution's state transitions. Steps are strictly sequential: step N+1
// begins only after step N resolves.
type Engine struct {
	store    Store
	executor *StepExecutor
	metrics  metrics.Metrics
}

func NewEngine(store Store, executor *StepExecutor, m metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Engine{store: store, executor: executor, metrics: m}
}

// ExecuteWorkflow runs the workflow identified by workflowID against the
// trigger payload. The returned Execution is terminal. An error return
// means the run failed; the Execution record, when non-nil, carries the
// structured cause.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID, orgID string, triggerPayload map[string]any, triggerSource string) (*Execution, error) {
	started := time.Now().UTC()
	exec := &Execution{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		OrgID:         orgID,
		Status:        ExecutionStatusRunning,
		TriggerSource: triggerSource,
		Input:         triggerPayload,
		StartedAt:     &started,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	log := logging.NewScope("ENGINE", "execution_id", exec.ID, "workflow_id", workflowID)

	def, err := e.store.GetDefinition(ctx, workflowID)
	if err != nil {
		log.Error("workflow definition not found", "error", err)
		code := CodeExecutionError
		if errors.Is(err, ErrWorkflowNotFound) {
			code = CodeWorkflowNotFound
		}
		e.finishFailed(ctx, exec, started, &ExecutionError{Code: code, Message: err.Error()})
		return exec, err
	}

	// The timeout bounds step execution only; state writes after the
	// deadline still go through so the failure is recorded.
	runCtx := ctx
	if def.Settings != nil && def.Settings.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(def.Settings.TimeoutSec)*time.Second)
		defer cancel()
	}

	log.Info("execution started", "steps", len(def.Steps), "source", triggerSource)

	data := triggerPayload
	if data == nil {
		data = map[string]any{}
	}

	for i, step := range def.Steps {
		stepNumber := i + 1
		stepLog := log.With("step", stepNumber, "step_id", step.ID)

		result, err := e.executor.ExecuteStep(runCtx, exec, step, stepNumber, data)
		if err != nil {
			stepLog.Error("step bookkeeping failed", "error", err)
			e.finishFailed(ctx, exec, started, &ExecutionError{
				StepNumber: stepNumber,
				StepName:   step.Name,
				Code:       CodeExecutionError,
				Message:    err.Error(),
			})
			return exec, err
		}

		if result.Success {
			data = result.Output
			if data == nil {
				data = map[string]any{}
			}
			stepLog.Debug("step succeeded")
			continue
		}

		if step.ContinueOnError {
			// Failure is recorded on the step log; the data document
			// stays as it was so downstream steps see step N-1's output.
			stepLog.Warn("step failed, continuing", "code", result.Error.Code, "error", result.Error.Message)
			continue
		}

		stepLog.Error("step failed, aborting", "code", result.Error.Code, "error", result.Error.Message)
		e.finishFailed(ctx, exec, started, &ExecutionError{
			StepNumber: stepNumber,
			StepName:   step.Name,
			Code:       result.Error.Code,
			Message:    result.Error.Message,
		})
		return exec, fmt.Errorf("step %d (%s) failed: %s", stepNumber, step.ID, result.Error.Message)
	}

	finished := time.Now().UTC()
	exec.Status = ExecutionStatusSuccess
	exec.FinishedAt = &finished
	exec.DurationMs = finished.Sub(started).Milliseconds()
	exec.Output = data
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return exec, fmt.Errorf("finalize execution: %w", err)
	}
	e.metrics.ObserveExecutionDuration(workflowID, finished.Sub(started).Seconds())
	log.Info("execution finished", "status", exec.Status, "duration_ms", exec.DurationMs)
	return exec, nil
}

func (e *Engine) finishFailed(ctx context.Context, exec *Execution, started time.Time, execErr *ExecutionError) {
	finished := time.Now().UTC()
	exec.Status = ExecutionStatusFailed
	exec.FinishedAt = &finished
	exec.DurationMs = finished.Sub(started).Milliseconds()
	exec.Error = execErr
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		logging.Error("ENGINE", "failed to persist failed execution", "execution_id", exec.ID, "error", err)
	}
	e.metrics.ObserveExecutionDuration(exec.WorkflowID, finished.Sub(started).Seconds())
}
