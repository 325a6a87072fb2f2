package engine

import (
	"errors"
	"fmt"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
)

var (
	// ErrNoStartNode indicates the flow definition has no start node; no execution can be created.
	ErrNoStartNode = errors.New("flow has no start node")

	// ErrPendingApproval indicates an approval-gated action node was advanced without a decision.
	ErrPendingApproval = errors.New("approval pending")

	// ErrUnresolvedBranch indicates the switch field matched neither expected value.
	ErrUnresolvedBranch = errors.New("switch branch unresolved")

	// ErrStaleTransition indicates a duplicate or out-of-order request; refetch the execution.
	ErrStaleTransition = errors.New("stale transition")

	// ErrIntegrationPending indicates the integration node is still waiting for its external result.
	ErrIntegrationPending = errors.New("integration result pending")

	// ErrExecutionTerminal indicates the execution already reached a terminal status.
	ErrExecutionTerminal = errors.New("execution already finished")

	// ErrInvalidTransition indicates the status transition table does not allow the move.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidActionParams indicates malformed action parameters, such as an unknown approval value.
	ErrInvalidActionParams = errors.New("invalid action params")

	// ErrNotEndNode indicates a terminate request named a node that is not an end node.
	ErrNotEndNode = errors.New("node is not an end node")
)

// ExecutionError wraps engine errors with the execution and node they concern.
type ExecutionError struct {
	Op          string
	ExecutionID string
	NodeID      string
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s execution %s at node %s: %v", e.Op, e.ExecutionID, e.NodeID, e.Err)
	}

	return fmt.Sprintf("%s execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, executionID, nodeID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, NodeID: nodeID, Err: err}
}

// IsRecoverable reports whether the execution kept its state and the caller may
// retry after supplying the missing input or refetching.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrPendingApproval) ||
		errors.Is(err, ErrUnresolvedBranch) ||
		errors.Is(err, ErrStaleTransition) ||
		errors.Is(err, ErrIntegrationPending)
}

// IsFatal reports whether the error reflects a broken flow definition.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoStartNode) ||
		errors.Is(err, flow.ErrStructural) ||
		errors.Is(err, flow.ErrConfiguration)
}

// rejectionReason labels recoverable rejections for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrPendingApproval):
		return "pending_approval"
	case errors.Is(err, ErrUnresolvedBranch):
		return "unresolved_branch"
	case errors.Is(err, ErrStaleTransition):
		return "stale_transition"
	case errors.Is(err, ErrIntegrationPending):
		return "integration_pending"
	case errors.Is(err, ErrExecutionTerminal):
		return "terminal"
	default:
		return "other"
	}
}
