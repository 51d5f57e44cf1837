package workflow

import "context"

// Store persists workflow definitions, executions, and step logs.
// Execution and StepLog writes happen around every step so partial
// progress stays observable after a crash.
type Store interface {
	SaveDefinition(ctx context.Context, def *Definition) error
	GetDefinition(ctx context.Context, id string) (*Definition, error)

	CreateExecution(ctx context.Context, exec *Execution) error
	UpdateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutionsByWorkflow(ctx context.Context, workflowID string, limit int64) ([]*Execution, error)

	PutStepLog(ctx context.Context, log *StepLog) error
	ListStepLogs(ctx context.Context, executionID string) ([]StepLog, error)
}
