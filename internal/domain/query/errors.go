package query

import "errors"

// ErrInvalidQuestion means the question was empty or a table was missing.
var ErrInvalidQuestion = errors.New("invalid question")

// ErrExtractionFailed means the model reply had no recognizable code field.
// Nothing was executed.
var ErrExtractionFailed = errors.New("no usable code in model response")

// ErrExecutionFailed means the generated code raised, was rejected by the
// sandbox policy, timed out, or the sandbox itself could not run it.
var ErrExecutionFailed = errors.New("execution failed")

// ExecutionError carries the message reported by a failed run, usually the
// exception line of the generated code.
type ExecutionError struct {
	Message  string
	ExitCode int
}

func (e *ExecutionError) Error() string { return "execution failed: " + e.Message }

func (e *ExecutionError) Unwrap() error { return ErrExecutionFailed }

// NewExecutionError builds an ExecutionError for exit code -1 (never ran or
// was killed).
func NewExecutionError(msg string) *ExecutionError {
	return &ExecutionError{Message: msg, ExitCode: -1}
}
