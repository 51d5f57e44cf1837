package workflow

import (
	"time"

	"github.com/workbridge-io/workbridge/core/mapping"
)

// ExecutionStatus captures the lifecycle of a workflow execution.
// Transitions are monotonic: a terminal status never changes.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuccess   ExecutionStatus = "success"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus captures the lifecycle of one step attempt.
type StepStatus string

const (
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)

// Trigger describes what starts a workflow.
type Trigger struct {
	Integration string         `json:"integration"`
	TriggerID   string         `json:"trigger_id"`
	Config      map[string]any `json:"config,omitempty"`
}

// RetryConfig is declared on steps by the authoring flow. The engine does
// not act on it at step granularity; retries happen at job granularity.
type RetryConfig struct {
	MaxAttempts int `json:"max_attempts"`
	BackoffSec  int `json:"backoff_sec,omitempty"`
}

// Settings holds optional workflow-level tuning.
type Settings struct {
	TimeoutSec    int64  `json:"timeout_sec,omitempty"`
	Concurrency   int    `json:"concurrency,omitempty"`
	ErrorStrategy string `json:"error_strategy,omitempty"`
}

// InputSpec declares how a step's input document is built.
type InputSpec struct {
	Mappings     []mapping.FieldMapping `json:"mappings,omitempty"`
	StaticValues map[string]any         `json:"static_values,omitempty"`
}

// Step is one unit of work bound to a single integration action.
type Step struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Integration     string       `json:"integration"`
	ActionID        string       `json:"action_id"`
	ConnectionID    string       `json:"connection_id,omitempty"`
	Input           InputSpec    `json:"input"`
	ContinueOnError bool         `json:"continue_on_error,omitempty"`
	Retry           *RetryConfig `json:"retry,omitempty"`
}

// Definition is the persisted workflow definition: a trigger plus an
// ordered list of steps. Immutable once referenced by an execution.
type Definition struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Trigger   *Trigger  `json:"trigger"`
	Steps     []Step    `json:"steps"`
	Settings  *Settings `json:"settings,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionError identifies the first aborting step of a failed execution.
type ExecutionError struct {
	StepNumber int    `json:"step_number"`
	StepName   string `json:"step_name"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Execution is one run of a workflow definition.
type Execution struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	OrgID         string          `json:"org_id"`
	Status        ExecutionStatus `json:"status"`
	TriggerSource string          `json:"trigger_source,omitempty"`
	Input         map[string]any  `json:"input,omitempty"`
	Output        map[string]any  `json:"output,omitempty"`
	Error         *ExecutionError `json:"error,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	DurationMs    int64           `json:"duration_ms,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StepLog is the audit record of one attempted step. It is created
// before the handler is invoked and finalized after, and persists even
// when the execution later fails.
type StepLog struct {
	ExecutionID string         `json:"execution_id"`
	StepNumber  int            `json:"step_number"`
	StepID      string         `json:"step_id"`
	StepName    string         `json:"step_name"`
	Integration string         `json:"integration"`
	ActionID    string         `json:"action_id"`
	Status      StepStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       *StepError     `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
}

// StepError is a recorded step failure.
type StepError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StepResult is what the step executor hands back to the engine.
type StepResult struct {
	Success bool
	Output  map[string]any
	Error   *StepError
}
