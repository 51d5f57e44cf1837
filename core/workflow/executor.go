package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/workbridge-io/workbridge/core/infra/metrics"
	"github.com/workbridge-io/workbridge/core/mapping"
	"github.com/workbridge-io/workbridge/core/registry"
)

// StepExecutor runs a single workflow step: builds the input document,
// resolves the handler and credentials, invokes the action, and records
// a StepLog around the attempt.
type StepExecutor struct {
	registry *registry.Registry
	creds    CredentialResolver
	mapper   *mapping.Engine
	store    Store
	metrics  metrics.Metrics
}

func NewStepExecutor(reg *registry.Registry, creds CredentialResolver, mapper *mapping.Engine, store Store, m metrics.Metrics) *StepExecutor {
	if m == nil {
		m = metrics.Noop{}
	}
	return &StepExecutor{
		registry: reg,
		creds:    creds,
		mapper:   mapper,
		store:    store,
		metrics:  m,
	}
}

// ExecuteStep runs one step against the accumulated data document. A
// failed step is reported through StepResult, not the error return; the
// error return is reserved for store failures persisting the log.
func (e *StepExecutor) ExecuteStep(ctx context.Context, exec *Execution, step Step, stepNumber int, data map[string]any) (StepResult, error) {
	// Audit writes outlive the run deadline: a timed-out step still gets
	// its log finalized.
	storeCtx := context.WithoutCancel(ctx)
	started := time.Now().UTC()
	log := &StepLog{
		ExecutionID: exec.ID,
		StepNumber:  stepNumber,
		StepID:      step.ID,
		StepName:    step.Name,
		Integration: step.Integration,
		ActionID:    step.ActionID,
		Status:      StepStatusRunning,
		StartedAt:   started,
	}
	if err := e.store.PutStepLog(storeCtx, log); err != nil {
		return StepResult{}, fmt.Errorf("persist step log: %w", err)
	}

	result := e.runStep(ctx, exec, step, stepNumber, data, log)

	finished := time.Now().UTC()
	log.FinishedAt = &finished
	log.DurationMs = finished.Sub(started).Milliseconds()
	if result.Success {
		log.Status = StepStatusSuccess
		log.Output = result.Output
	} else {
		log.Status = StepStatusFailed
		log.Error = result.Error
	}
	if err := e.store.PutStepLog(storeCtx, log); err != nil {
		return StepResult{}, fmt.Errorf("finalize step log: %w", err)
	}

	status := "success"
	if !result.Success {
		status = "failed"
	}
	e.metrics.IncStepsExecuted(step.Integration, status)
	return result, nil
}

func (e *StepExecutor) runStep(ctx context.Context, exec *Execution, step Step, stepNumber int, data map[string]any, log *StepLog) (result StepResult) {
	defer func() {
		if r := recover(); r != nil {
			result = StepResult{
				Success: false,
				Error:   &StepError{Code: CodeExecutionError, Message: fmt.Sprintf("step panicked: %v", r)},
			}
		}
	}()

	handler, err := e.registry.Resolve(step.Integration, step.ActionID)
	if err != nil {
		return StepResult{Success: false, Error: stepErrorFrom(err)}
	}

	var creds *registry.Credentials
	if step.ConnectionID != "" {
		if e.creds == nil {
			return StepResult{Success: false, Error: &StepError{
				Code:    CodeConnectionNotFound,
				Message: fmt.Sprintf("no credential resolver for connection %s", step.ConnectionID),
			}}
		}
		creds, err = e.creds.Resolve(ctx, exec.OrgID, step.ConnectionID)
		if err != nil {
			return StepResult{Success: false, Error: stepErrorFrom(err)}
		}
	}

	input, err := e.mapper.Apply(step.Input.Mappings, data, step.Input.StaticValues)
	if err != nil {
		return StepResult{Success: false, Error: stepErrorFrom(err)}
	}
	log.Input = input

	call := registry.CallContext{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		OrgID:       exec.OrgID,
		StepID:      step.ID,
		StepNumber:  stepNumber,
	}
	output, err := handler.Execute(ctx, input, creds, call)
	if err != nil {
		return StepResult{Success: false, Error: stepErrorFrom(err)}
	}
	return StepResult{Success: true, Output: output}
}
