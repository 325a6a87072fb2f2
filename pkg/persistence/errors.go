package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow definition was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowCodeTaken indicates another flow definition already uses the code.
	ErrFlowCodeTaken = errors.New("flow code already in use")

	// ErrDocumentNotFound indicates a document was not found by the given identifier.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrActiveExecutionExists indicates the document already has a non-terminal execution.
	ErrActiveExecutionExists = errors.New("document already has an active execution")

	// ErrVersionConflict indicates the execution changed since it was loaded.
	ErrVersionConflict = errors.New("execution version conflict")
)

// FlowError wraps flow-related errors with additional context.
type FlowError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	FlowID string
	Err    error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{Op: op, FlowID: flowID, Err: err}
}

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	DocumentID  string
	Err         error
}

func (e *ExecutionError) Error() string {
	target := e.ExecutionID
	if target == "" {
		target = "for document " + e.DocumentID
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, target, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// NewDocumentExecutionError creates an execution error scoped to a document.
func NewDocumentExecutionError(op, documentID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, DocumentID: documentID, Err: err}
}

// IsFlowNotFound checks if an error indicates a flow definition was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsDocumentNotFound checks if an error indicates a document was not found.
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return IsFlowNotFound(err) || IsDocumentNotFound(err) || IsExecutionNotFound(err)
}

// IsConflict checks if an error indicates a concurrent or duplicate write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrActiveExecutionExists) ||
		errors.Is(err, ErrFlowCodeTaken)
}
