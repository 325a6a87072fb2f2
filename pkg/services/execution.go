package services

import (
	"context"
	"log/slog"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/matcher"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// CancelReason is recorded on executions cancelled by a user.
const CancelReason = "cancelled"

// Execution drives flow executions through the engine.
type Execution struct {
	persistence persistence.Persistence
	machine     *engine.Machine
	matcher     *matcher.Matcher
	logger      *slog.Logger
}

func NewExecution(persistence persistence.Persistence, machine *engine.Machine, matcher *matcher.Matcher, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: persistence,
		machine:     machine,
		matcher:     matcher,
		logger:      logger.With("module", "execution_service"),
	}
}

// ExecutionDetail is an execution together with its audit trail.
type ExecutionDetail struct {
	*models.FlowExecution

	Actions []*models.FlowAction `json:"flow_actions"`
}

// Start begins an execution of the flow for the document. The flow must be
// enabled, apply to the document and pass validation.
func (e *Execution) Start(ctx context.Context, documentID, flowID, actor string) (*models.FlowExecution, error) {
	doc, err := e.persistence.DocumentRepository().GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	definition, err := e.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if !definition.IsEnabled {
		return nil, &ServiceError{Op: "start_execution", Code: "flow_disabled", Err: ErrFlowDisabled}
	}

	if !e.matcher.Eligible(doc, definition) {
		return nil, &ServiceError{Op: "start_execution", Code: "flow_not_eligible", Err: ErrFlowNotEligible}
	}

	err = flow.Validate(definition)
	if err != nil {
		return nil, invalidFlow("start_execution", definition.ID, err)
	}

	return e.machine.Start(ctx, doc, definition, actor)
}

func (e *Execution) Advance(ctx context.Context, executionID, fromNodeID, actor string, params map[string]any) (*models.FlowExecution, error) {
	return e.machine.Advance(ctx, executionID, fromNodeID, actor, params)
}

func (e *Execution) Terminate(ctx context.Context, executionID, endNodeID, actor string) (*models.FlowExecution, error) {
	return e.machine.Terminate(ctx, executionID, endNodeID, actor)
}

// Cancel fails the execution on behalf of a user.
func (e *Execution) Cancel(ctx context.Context, executionID, actor string) (*models.FlowExecution, error) {
	return e.machine.Fail(ctx, executionID, CancelReason, actor)
}

func (e *Execution) CompleteIntegration(ctx context.Context, executionID, nodeID string, result engine.IntegrationResult, actor string) (*models.FlowExecution, error) {
	return e.machine.CompleteIntegration(ctx, executionID, nodeID, result, actor)
}

// FetchByID returns the execution and its ordered actions.
func (e *Execution) FetchByID(ctx context.Context, executionID string) (*ExecutionDetail, error) {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	actions, err := e.persistence.ExecutionRepository().Actions(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return &ExecutionDetail{FlowExecution: execution, Actions: actions}, nil
}

// ListByDocument returns the execution history of a document, newest first.
func (e *Execution) ListByDocument(ctx context.Context, documentID string) ([]*models.FlowExecution, error) {
	_, err := e.persistence.DocumentRepository().GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	return e.persistence.ExecutionRepository().ListByDocument(ctx, documentID)
}
