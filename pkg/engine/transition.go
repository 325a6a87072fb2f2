package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/condition"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/eventbus"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/events"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// ApprovalParam is the action parameter carrying an approval decision.
const ApprovalParam = "isAproved"

// session is the working state of one transition: the execution as loaded,
// the copy being changed and everything to publish once it is committed.
type session struct {
	op         string
	actor      string
	current    *models.FlowExecution
	next       *models.FlowExecution
	definition *models.FlowDefinition
	graph      *flow.Graph
	document   *models.Document
	now        time.Time
	startedAt  time.Time
	fromKind   models.NodeKind

	action        *models.FlowAction
	spawned       *models.FlowExecution
	spawnedAction *models.FlowAction
	spawnedFlow   *models.FlowDefinition

	events []eventbus.Event

	failure    error
	failedNode string
}

func (m *Machine) open(ctx context.Context, op, executionID, actor string) (*session, error) {
	execution, err := m.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	definition, err := m.flows.GetByID(ctx, execution.FlowID)
	if err != nil {
		return nil, fmt.Errorf("load flow of execution %s: %w", executionID, err)
	}

	actions, err := m.executions.Actions(ctx, executionID)
	if err != nil {
		return nil, err
	}

	startedAt := execution.CreatedAt
	if len(actions) > 0 {
		startedAt = actions[len(actions)-1].EndAt
	}

	doc, err := m.documents.GetByID(ctx, execution.DocumentID)
	if err != nil {
		if !persistence.IsDocumentNotFound(err) {
			return nil, err
		}

		m.logger.WarnContext(ctx, "Document of execution not found",
			"execution_id", executionID, "document_id", execution.DocumentID)

		doc = nil
	}

	now := m.now()
	if now.Before(startedAt) {
		now = startedAt
	}

	return &session{
		op:         op,
		actor:      actor,
		current:    execution,
		next:       execution.Clone(),
		definition: definition,
		graph:      flow.NewGraph(definition),
		document:   doc,
		now:        now,
		startedAt:  startedAt,
	}, nil
}

func (m *Machine) advance(ctx context.Context, s *session, fromNodeID string, params map[string]any) (*models.FlowExecution, error) {
	executionID := s.current.ID

	if s.current.ExecutionData.CurrentNodeID != fromNodeID {
		return nil, newError(s.op, executionID, fromNodeID,
			fmt.Errorf("%w: execution is at node %s", ErrStaleTransition, s.current.ExecutionData.CurrentNodeID))
	}

	if s.current.Status.IsTerminal() {
		return nil, newError(s.op, executionID, fromNodeID, ErrExecutionTerminal)
	}

	node, ok := s.graph.Node(fromNodeID)
	if !ok {
		return m.failSession(ctx, s, fromNodeID, &flow.StructuralError{NodeID: fromNodeID, Reason: "current node no longer exists in the flow"})
	}

	params = maps.Clone(params)

	if node.Type == models.NodeKindEnd {
		m.completeTask(s, node.ID)
		s.action = m.newAction(s, node.ID, "Reached "+node.Label(), params)

		err := m.enter(ctx, s, node)
		if err != nil {
			return nil, err
		}

		return m.commit(ctx, s)
	}

	handle, description, err := exitHandle(s, node, params)
	if err != nil {
		return nil, newError(s.op, executionID, node.ID, err)
	}

	return m.moveFrom(ctx, s, node, handle, params, description)
}

// exitHandle resolves the source handle a transition out of node takes. An
// approval decision is recorded on the node's task.
func exitHandle(s *session, node *models.FlowNode, params map[string]any) (string, string, error) {
	switch data := node.Data.(type) {
	case *models.ActionData:
		if !data.RequiresApproval() {
			break
		}

		task := s.next.Task(node.ID, node.Type, s.now)

		approval, err := resolveApproval(task, data, params)
		if err != nil {
			return "", "", err
		}

		if !approval.IsDecided() {
			return "", "", ErrPendingApproval
		}

		task.IsAproved = approval

		if approval == models.ApprovalTrue {
			return "", "Approved at " + node.Label(), nil
		}

		return "", "Rejected at " + node.Label(), nil
	case *models.IntegrationData:
		return "", "", ErrIntegrationPending
	case *models.SwitchData:
		selected, err := selectBranch(s.document, data)
		if err != nil {
			return "", "", err
		}

		return selected, fmt.Sprintf("Switch %s took the %s branch", node.Label(), branchName(selected)), nil
	}

	return "", "Advanced from " + node.Label(), nil
}

// moveFrom follows the single edge leaving node through handle and enters its target.
func (m *Machine) moveFrom(ctx context.Context, s *session, node *models.FlowNode, handle string, params map[string]any, description string) (*models.FlowExecution, error) {
	target, edge, err := s.graph.Next(node.ID, handle)
	if err != nil {
		return m.failSession(ctx, s, node.ID, err)
	}

	status, err := m.states.Next(s.next.Status, TransitionAdvance)
	if err != nil {
		return nil, newError(s.op, s.current.ID, node.ID, err)
	}

	s.next.Status = status
	s.fromKind = node.Type
	m.completeTask(s, node.ID)

	actionParams := make(map[string]any, len(params)+2)
	maps.Copy(actionParams, params)
	actionParams["nextNodeId"] = target.ID

	if edge.SourceHandle != "" {
		actionParams["sourceHandle"] = edge.SourceHandle
	}

	s.action = m.newAction(s, node.ID, description, actionParams)
	s.events = append(s.events, events.ExecutionAdvanced{
		BaseEvent:  m.baseEvent(events.ExecutionAdvancedEvent, s.next),
		FromNodeID: node.ID,
		ToNodeID:   target.ID,
		Actor:      s.actor,
		Params:     params,
	})

	err = m.enter(ctx, s, target)
	if err != nil {
		return nil, err
	}

	return m.commit(ctx, s)
}

// enter positions the execution on node and applies the node's entry behavior.
func (m *Machine) enter(ctx context.Context, s *session, node *models.FlowNode) error {
	task := &models.FlowTask{NodeID: node.ID, Kind: node.Type, Status: models.TaskStatusActive, EnteredAt: s.now}

	if s.next.FlowTasks == nil {
		s.next.FlowTasks = make(map[string]*models.FlowTask)
	}

	s.next.FlowTasks[node.ID] = task
	s.next.ExecutionData.CurrentNodeID = node.ID
	s.next.ExecutionData.PendingNodeID = ""

	switch data := node.Data.(type) {
	case *models.EndData:
		return m.finishAt(ctx, s, node, data)
	case *models.IntegrationData:
		task.Status = models.TaskStatusPending
		s.next.ExecutionData.PendingNodeID = node.ID
		s.events = append(s.events, events.IntegrationRequested{
			BaseEvent: m.baseEvent(events.IntegrationRequestedEvent, s.next),
			NodeID:    node.ID,
			Service:   data.Service,
			CallType:  data.CallType,
		})
	}

	return nil
}

func (m *Machine) finishAt(ctx context.Context, s *session, node *models.FlowNode, data *models.EndData) error {
	m.completeTask(s, node.ID)

	if data.ToType == models.EndFlowFinish {
		return m.transfer(ctx, s, node, data.ToFlowID)
	}

	status, err := m.states.Next(s.next.Status, TransitionComplete)
	if err != nil {
		return newError(s.op, s.current.ID, node.ID, err)
	}

	s.next.Status = status
	s.next.CompletedAt = &s.now
	s.events = append(s.events, events.ExecutionCompleted{
		BaseEvent: m.baseEvent(events.ExecutionCompletedEvent, s.next),
		EndNodeID: node.ID,
		Duration:  s.now.Sub(s.next.CreatedAt),
	})

	return nil
}

// transfer ends the execution and begins a new one at the target flow's start
// node. Both writes are committed together.
func (m *Machine) transfer(ctx context.Context, s *session, node *models.FlowNode, targetFlowID string) error {
	if targetFlowID == "" {
		return m.failIn(s, node.ID, &flow.ConfigurationError{NodeID: node.ID, Field: "To_Flow_id", Reason: "flow_Finish end node has no target flow"})
	}

	target, start, err := m.claimFlow(ctx, targetFlowID)
	switch {
	case persistence.IsFlowNotFound(err):
		return m.failIn(s, node.ID, &flow.ConfigurationError{NodeID: node.ID, Field: "To_Flow_id", Reason: "target flow " + targetFlowID + " does not exist"})
	case errors.Is(err, ErrNoStartNode):
		return m.failIn(s, node.ID, fmt.Errorf("transfer to flow %s: %w", targetFlowID, ErrNoStartNode))
	case err != nil:
		return err
	}

	status, err := m.states.Next(s.next.Status, TransitionTransfer)
	if err != nil {
		return newError(s.op, s.current.ID, node.ID, err)
	}

	spawned := m.newExecution(s.next.DocumentID, target, start, s.actor, s.now)
	spawned.ExecutionData.TransferredFrom = s.next.ID

	s.next.Status = status
	s.next.CompletedAt = &s.now
	s.next.ExecutionData.TransferredTo = spawned.ID

	s.spawned = spawned
	s.spawnedFlow = target
	s.spawnedAction = &models.FlowAction{
		ID:                m.newID(),
		ExecutionID:       spawned.ID,
		ActionDescription: "Execution started by transfer from flow " + s.definition.Code,
		Actor:             s.actor,
		FlowNode:          start.ID,
		ActionParams:      map[string]any{"transferredFrom": s.next.ID},
		StartedAt:         s.now,
		EndAt:             s.now,
	}
	s.events = append(s.events,
		events.ExecutionTransfered{
			BaseEvent:      m.baseEvent(events.ExecutionTransferedEvent, s.next),
			EndNodeID:      node.ID,
			TargetFlowID:   target.ID,
			NewExecutionID: spawned.ID,
		},
		events.ExecutionStarted{
			BaseEvent:       m.baseEvent(events.ExecutionStartedEvent, spawned),
			StartNodeID:     start.ID,
			StartedBy:       s.actor,
			TransferredFrom: s.next.ID,
		},
	)

	return nil
}

// failIn marks the execution failed while a transition is being prepared;
// the caller still commits and the cause is returned after the commit.
func (m *Machine) failIn(s *session, nodeID string, cause error) error {
	err := m.markFailed(s, nodeID, cause.Error())
	if err != nil {
		return newError(s.op, s.current.ID, nodeID, err)
	}

	s.failure = cause
	s.failedNode = nodeID

	if s.action != nil {
		s.action.ActionDescription += "; execution failed: " + cause.Error()
	}

	return nil
}

// failSession records a failure as the whole transition.
func (m *Machine) failSession(ctx context.Context, s *session, nodeID string, cause error) (*models.FlowExecution, error) {
	err := m.failIn(s, nodeID, cause)
	if err != nil {
		return nil, err
	}

	s.action = m.newAction(s, nodeID, "Execution failed: "+cause.Error(), nil)

	return m.commit(ctx, s)
}

func (m *Machine) markFailed(s *session, nodeID, reason string) error {
	status, err := m.states.Next(s.next.Status, TransitionFail)
	if err != nil {
		return err
	}

	s.next.Status = status
	s.next.CompletedAt = &s.now
	s.next.ExecutionData.Error = reason
	s.next.ExecutionData.FailedNodeID = nodeID
	s.next.ExecutionData.PendingNodeID = ""

	if nodeID != "" {
		kind := models.NodeKind("")
		if node, ok := s.graph.Node(nodeID); ok {
			kind = node.Type
		}

		task := s.next.Task(nodeID, kind, s.now)
		task.Status = models.TaskStatusFailed
		task.Error = reason
	}

	s.events = append(s.events, events.ExecutionFailed{
		BaseEvent: m.baseEvent(events.ExecutionFailedEvent, s.next),
		NodeID:    nodeID,
		Error:     reason,
	})

	return nil
}

func (m *Machine) completeTask(s *session, nodeID string) {
	kind := models.NodeKind("")
	if node, ok := s.graph.Node(nodeID); ok {
		kind = node.Type
	}

	task := s.next.Task(nodeID, kind, s.now)
	task.Status = models.TaskStatusDone
	task.CompletedAt = &s.now
}

// commit persists the transition atomically, then applies its side effects.
func (m *Machine) commit(ctx context.Context, s *session) (*models.FlowExecution, error) {
	s.next.UpdatedAt = s.now

	changes := []persistence.ExecutionChange{{Execution: s.next, Action: s.action}}
	if s.spawned != nil {
		changes = append(changes, persistence.ExecutionChange{Execution: s.spawned, Action: s.spawnedAction})
	}

	err := m.executions.Save(ctx, changes...)
	if err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			return nil, newError(s.op, s.next.ID, s.next.ExecutionData.CurrentNodeID, fmt.Errorf("%w: %w", ErrStaleTransition, err))
		}

		return nil, err
	}

	m.afterCommit(ctx, s)

	if s.failure != nil {
		return s.next, newError(s.op, s.next.ID, s.failedNode, s.failure)
	}

	return s.next, nil
}

func (m *Machine) afterCommit(ctx context.Context, s *session) {
	m.logger.InfoContext(ctx, "Execution transitioned",
		"op", s.op,
		"execution_id", s.next.ID,
		"document_id", s.next.DocumentID,
		"flow_id", s.next.FlowID,
		"node_id", s.next.ExecutionData.CurrentNodeID,
		"status", s.next.Status,
		"actor", s.actor)

	m.syncTaskState(ctx, s)

	for _, event := range s.events {
		m.publish(ctx, s.next.ID, event)
	}

	code := s.definition.Code

	if s.op == "start" {
		m.metrics.IncExecutionStarted(code)
	}

	if s.fromKind != "" {
		m.metrics.IncTransition(code, string(s.fromKind))
	}

	if s.next.Status.IsTerminal() {
		m.metrics.IncExecutionFinished(code, string(s.next.Status))
		m.metrics.ObserveExecutionDuration(code, s.now.Sub(s.next.CreatedAt).Seconds())
	}

	if s.spawned != nil {
		m.metrics.IncExecutionStarted(s.spawnedFlow.Code)
	}
}

// syncTaskState mirrors the execution position onto the document's task state.
func (m *Machine) syncTaskState(ctx context.Context, s *session) {
	if s.document == nil {
		return
	}

	state := taskStateFor(s)
	if s.document.TaskState == state {
		return
	}

	err := m.documents.SetTaskState(ctx, s.document.ID, state)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to update document task state",
			"document_id", s.document.ID, "task_state", state, "error", err)

		return
	}

	doc := *s.document
	doc.TaskState = state
	s.document = &doc
}

func taskStateFor(s *session) models.TaskState {
	switch s.next.Status {
	case models.ExecutionStatusCompleted:
		return models.TaskStateCompleted
	case models.ExecutionStatusFailed:
		return models.TaskStateBlocked
	case models.ExecutionStatusTransfered:
		return models.TaskStateInDoc
	}

	if node, ok := s.graph.Node(s.next.ExecutionData.CurrentNodeID); ok {
		if action := node.Action(); action != nil && action.RequiresApproval() {
			return models.TaskStateInApr
		}
	}

	return models.TaskStateInDoc
}

func (m *Machine) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	err := m.publisher.Publish(ctx, key, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "execution_id", key, "error", err)
	}
}

func (m *Machine) newExecution(documentID string, definition *models.FlowDefinition, start *models.FlowNode, actor string, now time.Time) *models.FlowExecution {
	return &models.FlowExecution{
		ID:         m.newID(),
		DocumentID: documentID,
		FlowID:     definition.ID,
		Status:     models.ExecutionStatusInitiated,
		ExecutionData: models.ExecutionData{
			CurrentNodeID: start.ID,
			FlowName:      definition.Name,
			FlowCode:      definition.Code,
		},
		FlowTasks: map[string]*models.FlowTask{
			start.ID: {NodeID: start.ID, Kind: start.Type, Status: models.TaskStatusActive, EnteredAt: now},
		},
		StartedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *Machine) newAction(s *session, nodeID, description string, params map[string]any) *models.FlowAction {
	return &models.FlowAction{
		ID:                m.newID(),
		ExecutionID:       s.next.ID,
		ActionDescription: description,
		Actor:             s.actor,
		FlowNode:          nodeID,
		ActionParams:      params,
		StartedAt:         s.startedAt,
		EndAt:             s.now,
	}
}

func (m *Machine) baseEvent(eventType events.EventType, execution *models.FlowExecution) events.BaseEvent {
	return events.NewBaseEvent(m.newID(), eventType, execution.ID, execution.DocumentID, execution.FlowID)
}

// resolveApproval picks the decision for an approval-gated node: the request
// parameter first, then a decision already recorded on the task, then a value
// preset on the node.
func resolveApproval(task *models.FlowTask, data *models.ActionData, params map[string]any) (models.Approval, error) {
	if raw, ok := params[ApprovalParam]; ok {
		return parseApproval(raw)
	}

	if task.IsAproved.IsDecided() {
		return task.IsAproved, nil
	}

	if data.IsAproved != nil && data.IsAproved.IsDecided() {
		return *data.IsAproved, nil
	}

	return models.ApprovalUnset, nil
}

func parseApproval(raw any) (models.Approval, error) {
	switch v := raw.(type) {
	case nil:
		return models.ApprovalUnset, nil
	case bool:
		if v {
			return models.ApprovalTrue, nil
		}

		return models.ApprovalFalse, nil
	case string:
		switch approval := models.Approval(strings.ToUpper(strings.TrimSpace(v))); approval {
		case models.ApprovalTrue, models.ApprovalFalse, models.ApprovalUnset:
			return approval, nil
		}
	}

	return models.ApprovalUnset, fmt.Errorf("%w: %s must be TRUE or FALSE, got %v", ErrInvalidActionParams, ApprovalParam, raw)
}

// selectBranch compares the switch field of the document against the left and
// right values. The left value wins when both match.
func selectBranch(doc *models.Document, data *models.SwitchData) (string, error) {
	var value any

	if doc != nil {
		value, _ = doc.Attribute(data.SwitchField)
	}

	switch {
	case condition.EqualText(value, data.LeftSwitch):
		return flow.HandleLeft, nil
	case condition.EqualText(value, data.RightSwitch):
		return flow.HandleRight, nil
	}

	return flow.HandleUndetermined, fmt.Errorf("%w: %s=%q matches neither %q nor %q",
		ErrUnresolvedBranch, data.SwitchField, condition.Text(value), data.LeftSwitch, data.RightSwitch)
}

func branchName(handle string) string {
	if handle == flow.HandleLeft {
		return "left"
	}

	return "right"
}
