package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
)

// IntegrationStatus is the outcome reported by an integration worker.
type IntegrationStatus string

const (
	IntegrationSucceeded IntegrationStatus = "succeeded"
	IntegrationFailed    IntegrationStatus = "failed"
)

// IntegrationResult is the external result that releases a pending integration node.
type IntegrationResult struct {
	Status IntegrationStatus `json:"status" validate:"required,oneof=succeeded failed"`
	Error  string            `json:"error,omitempty"`
	Output map[string]any    `json:"output,omitempty"`
}

// CompleteIntegration records the result of the integration the execution is
// waiting on. A success advances along the node's single edge; a failure
// fails the execution.
func (m *Machine) CompleteIntegration(ctx context.Context, executionID, nodeID string, result IntegrationResult, actor string) (*models.FlowExecution, error) {
	return m.locked(ctx, "complete_integration", executionID, nodeID, actor, func(ctx context.Context, s *session) (*models.FlowExecution, error) {
		data := s.current.ExecutionData
		if data.PendingNodeID != nodeID || data.CurrentNodeID != nodeID {
			if s.current.Status.IsTerminal() {
				return nil, newError(s.op, executionID, nodeID, ErrExecutionTerminal)
			}

			return nil, newError(s.op, executionID, nodeID,
				fmt.Errorf("%w: no integration pending at node %s", ErrStaleTransition, nodeID))
		}

		node, ok := s.graph.Node(nodeID)
		if !ok || node.Integration() == nil {
			return nil, newError(s.op, executionID, nodeID, ErrStaleTransition)
		}

		integration := node.Integration()
		task := s.next.Task(nodeID, node.Type, s.now)

		switch result.Status {
		case IntegrationFailed:
			reason := fmt.Sprintf("integration %s failed: %s", integration.Service, result.Error)
			task.Error = result.Error

			err := m.markFailed(s, nodeID, reason)
			if err != nil {
				return nil, newError(s.op, executionID, nodeID, err)
			}

			s.action = m.newAction(s, nodeID, "Integration failed at "+node.Label(),
				map[string]any{"status": string(result.Status), "error": result.Error})

			return m.commit(ctx, s)
		case IntegrationSucceeded:
			task.Output = result.Output
			s.next.ExecutionData.PendingNodeID = ""

			params := map[string]any{"status": string(result.Status)}
			if len(result.Output) > 0 {
				params["output"] = result.Output
			}

			return m.moveFrom(ctx, s, node, "", params, "Integration completed at "+node.Label())
		default:
			return nil, newError(s.op, executionID, nodeID,
				fmt.Errorf("%w: unknown integration status %q", ErrInvalidActionParams, result.Status))
		}
	})
}

// TimeoutIntegration fails an execution still waiting on the integration at
// nodeID when that integration was requested before deadline. An execution
// that moved on, or whose request is more recent, is left alone.
func (m *Machine) TimeoutIntegration(ctx context.Context, executionID, nodeID string, deadline time.Time, actor string) (*models.FlowExecution, error) {
	return m.locked(ctx, "timeout_integration", executionID, nodeID, actor, func(ctx context.Context, s *session) (*models.FlowExecution, error) {
		if s.current.Status.IsTerminal() {
			return nil, newError(s.op, executionID, nodeID, ErrExecutionTerminal)
		}

		data := s.current.ExecutionData
		task, ok := s.current.FlowTasks[nodeID]

		if data.PendingNodeID != nodeID || data.CurrentNodeID != nodeID ||
			!ok || task.Status != models.TaskStatusPending || !task.EnteredAt.Before(deadline) {
			return nil, newError(s.op, executionID, nodeID,
				fmt.Errorf("%w: integration at node %s is not overdue", ErrStaleTransition, nodeID))
		}

		label := nodeID
		if node, ok := s.graph.Node(nodeID); ok {
			label = node.Label()
		}

		err := m.markFailed(s, nodeID, "integration timed out at "+nodeID)
		if err != nil {
			return nil, newError(s.op, executionID, nodeID, err)
		}

		s.action = m.newAction(s, nodeID, "Integration timed out at "+label, nil)

		return m.commit(ctx, s)
	})
}
