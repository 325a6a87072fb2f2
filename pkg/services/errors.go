// Package services applies the business rules around flow definitions, documents and executions.
package services

import (
	"errors"
	"fmt"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrFlowNil        = errors.New("flow cannot be nil")

	// Business Logic Conflicts (409 Conflict).
	ErrFlowLocked = errors.New("flow is locked by an execution")

	// Unprocessable requests (422).
	ErrFlowDisabled    = errors.New("flow is disabled")
	ErrFlowNotEligible = errors.New("flow does not apply to the document")
	ErrFlowInvalid     = errors.New("flow definition is not executable")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, engine.ErrInvalidActionParams)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrFlowLocked) ||
		errors.Is(err, engine.ErrStaleTransition) ||
		errors.Is(err, engine.ErrExecutionTerminal) ||
		persistence.IsConflict(err)
}

// IsUnprocessableError checks if the request was understood but the flow or
// execution cannot honor it yet; HTTP 422.
func IsUnprocessableError(err error) bool {
	return errors.Is(err, ErrFlowDisabled) ||
		errors.Is(err, ErrFlowNotEligible) ||
		errors.Is(err, ErrFlowInvalid) ||
		errors.Is(err, engine.ErrPendingApproval) ||
		errors.Is(err, engine.ErrUnresolvedBranch) ||
		errors.Is(err, engine.ErrIntegrationPending) ||
		errors.Is(err, engine.ErrNotEndNode) ||
		engine.IsFatal(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// invalidFlow wraps the findings of flow.Validate so they match ErrFlowInvalid
// while keeping each finding reachable through errors.Is.
func invalidFlow(op, flowID string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    "flow_invalid",
		Message: fmt.Sprintf("flow %s has %d issue(s)", flowID, len(flow.Issues(err))),
		Err:     errors.Join(ErrFlowInvalid, err),
	}
}
