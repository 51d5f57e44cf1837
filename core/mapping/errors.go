package mapping

import "fmt"

// Error codes surfaced by the mapping engine.
const (
	CodeInvalidPath      = "INVALID_PATH"
	CodeInvalidTarget    = "INVALID_TARGET"
	CodeInvalidDate      = "INVALID_DATE"
	CodeInvalidNumber    = "INVALID_NUMBER"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeInvalidTransform = "INVALID_TRANSFORM"
)

// Error is a mapping failure with a stable code for audit records.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
