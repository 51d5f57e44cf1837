package workflow

import (
	"context"
	"errors"

	"github.com/workbridge-io/workbridge/core/mapping"
	"github.com/workbridge-io/workbridge/core/registry"
)

// Stable error codes recorded on step logs and execution errors.
const (
	CodeWorkflowNotFound   = "WORKFLOW_NOT_FOUND"
	CodeActionNotFound     = "ACTION_NOT_FOUND"
	CodeConnectionNotFound = "CONNECTION_NOT_FOUND"
	CodeConnectionExpired  = "CONNECTION_EXPIRED"
	CodeMappingError       = "MAPPING_ERROR"
	CodeActionError        = "ACTION_ERROR"
	CodeExecutionError     = "EXECUTION_ERROR"
	CodeTimeout            = "TIMEOUT"
)

// Sentinel errors for missing or stale collaborator state.
var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionExpired  = errors.New("connection expired")
)

// CredentialResolver resolves a step's connection reference to usable
// credentials. Implementations live outside this core.
type CredentialResolver interface {
	Resolve(ctx context.Context, orgID, connectionID string) (*registry.Credentials, error)
}

// stepErrorFrom converts an arbitrary failure into a recorded StepError
// with the most specific code available.
func stepErrorFrom(err error) *StepError {
	var actionErr *registry.ActionError
	if errors.As(err, &actionErr) {
		return &StepError{Code: actionErr.Code, Message: actionErr.Message, Details: actionErr.Details}
	}
	switch {
	case errors.Is(err, registry.ErrActionNotFound):
		return &StepError{Code: CodeActionNotFound, Message: err.Error()}
	case errors.Is(err, ErrConnectionNotFound):
		return &StepError{Code: CodeConnectionNotFound, Message: err.Error()}
	case errors.Is(err, ErrConnectionExpired):
		return &StepError{Code: CodeConnectionExpired, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &StepError{Code: CodeTimeout, Message: err.Error()}
	}
	var mapErr *mapping.Error
	if errors.As(err, &mapErr) {
		return &StepError{Code: mapErr.Code, Message: mapErr.Message}
	}
	return &StepError{Code: CodeExecutionError, Message: err.Error()}
}
