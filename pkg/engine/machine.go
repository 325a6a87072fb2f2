// Package engine implements the execution state machine that moves a document
// through a flow definition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/eventbus"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/events"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/locks"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/metrics"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/otelhelper"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SystemActor is recorded on transitions the service performs on its own.
const SystemActor = "system"

// FlowStore reads flow definitions and sets their lock flag.
type FlowStore interface {
	GetByID(ctx context.Context, id string) (*models.FlowDefinition, error)
	Lock(ctx context.Context, id string) error
}

// DocumentStore reads the bound document and records its task state.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	SetTaskState(ctx context.Context, id string, state models.TaskState) error
}

// Machine owns the lifecycle of flow executions. Transitions on one execution
// are serialized through the locker and guarded by the execution version.
type Machine struct {
	executions persistence.ExecutionRepository
	flows      FlowStore
	documents  DocumentStore
	states     *StatusMachine
	locker     locks.Locker
	publisher  eventbus.EventPublisher
	metrics    metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

type Option func(*Machine)

func WithLocker(locker locks.Locker) Option {
	return func(m *Machine) { m.locker = locker }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(m *Machine) { m.publisher = publisher }
}

func WithMetrics(mt metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Machine) { m.tracer = tracer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger.With("module", "engine") }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Machine) { m.newID = newID }
}

func NewMachine(executions persistence.ExecutionRepository, flows FlowStore, documents DocumentStore, opts ...Option) *Machine {
	m := &Machine{
		executions: executions,
		flows:      flows,
		documents:  documents,
		states:     NewStatusMachine(),
		locker:     locks.NewMemoryLocker(),
		metrics:    metrics.Noop{},
		tracer:     otelhelper.NoopTracer(),
		logger:     slog.Default().With("module", "engine"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.Must(uuid.NewV7()).String() },
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start creates an execution of the definition for the document, positioned
// at the start node in the initiated status.
func (m *Machine) Start(ctx context.Context, doc *models.Document, definition *models.FlowDefinition, actor string) (*models.FlowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "engine.start",
		attribute.String(otelhelper.DocumentIDKey, doc.ID),
		attribute.String(otelhelper.FlowIDKey, definition.ID),
		attribute.String(otelhelper.ActorKey, actor),
	)
	defer span.End()

	unlock, err := m.locker.Lock(ctx, documentLockKey(doc.ID))
	if err != nil {
		return nil, fmt.Errorf("start flow %s for document %s: %w", definition.ID, doc.ID, err)
	}
	defer m.release(ctx, unlock)

	active, err := m.executions.LoadActive(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	if active != nil {
		err := persistence.NewDocumentExecutionError("Start", doc.ID, persistence.ErrActiveExecutionExists)
		otelhelper.SetError(span, err, attribute.String(otelhelper.ExecutionIDKey, active.ID))

		return nil, err
	}

	claimed, start, err := m.claimFlow(ctx, definition.ID)
	if err != nil {
		err = fmt.Errorf("start flow %s: %w", definition.ID, err)
		otelhelper.SetError(span, err)

		return nil, err
	}

	definition = claimed

	now := m.now()
	execution := m.newExecution(doc.ID, definition, start, actor, now)

	s := &session{
		op:         "start",
		actor:      actor,
		next:       execution,
		definition: definition,
		graph:      flow.NewGraph(definition),
		document:   doc,
		now:        now,
		startedAt:  now,
	}
	s.action = m.newAction(s, start.ID, "Execution started", nil)
	s.events = append(s.events, events.ExecutionStarted{
		BaseEvent:   m.baseEvent(events.ExecutionStartedEvent, execution),
		StartNodeID: start.ID,
		StartedBy:   actor,
	})

	result, err := m.commit(ctx, s)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, result.ID))

	return result, nil
}

// Advance performs one transition out of fromNodeID. The request is stale when
// the execution is no longer at fromNodeID.
func (m *Machine) Advance(ctx context.Context, executionID, fromNodeID, actor string, params map[string]any) (*models.FlowExecution, error) {
	return m.locked(ctx, "advance", executionID, fromNodeID, actor, func(ctx context.Context, s *session) (*models.FlowExecution, error) {
		return m.advance(ctx, s, fromNodeID, params)
	})
}

// Terminate finishes an active execution at the given end node, completing it
// or transferring it to the end node's target flow. The end node must be the
// node the current one would advance to, so approval gates and switch
// branches are honored.
func (m *Machine) Terminate(ctx context.Context, executionID, endNodeID, actor string) (*models.FlowExecution, error) {
	return m.locked(ctx, "terminate", executionID, endNodeID, actor, func(ctx context.Context, s *session) (*models.FlowExecution, error) {
		if s.current.Status.IsTerminal() {
			return nil, newError(s.op, executionID, endNodeID, ErrExecutionTerminal)
		}

		end, ok := s.graph.Node(endNodeID)
		if !ok || end.Type != models.NodeKindEnd {
			return nil, newError(s.op, executionID, endNodeID, ErrNotEndNode)
		}

		currentID := s.current.ExecutionData.CurrentNodeID

		current, ok := s.graph.Node(currentID)
		if !ok {
			return m.failSession(ctx, s, currentID, &flow.StructuralError{NodeID: currentID, Reason: "current node no longer exists in the flow"})
		}

		handle, _, err := exitHandle(s, current, nil)
		if err != nil {
			return nil, newError(s.op, executionID, currentID, err)
		}

		target, _, err := s.graph.Next(currentID, handle)
		if err != nil || target.ID != endNodeID {
			return nil, newError(s.op, executionID, endNodeID,
				fmt.Errorf("%w: end node %s does not follow node %s", ErrStaleTransition, endNodeID, currentID))
		}

		return m.moveFrom(ctx, s, current, handle, nil, "Terminated at "+end.Label())
	})
}

// Fail moves an active execution to failed, keeping the reason in its execution data.
func (m *Machine) Fail(ctx context.Context, executionID, reason, actor string) (*models.FlowExecution, error) {
	return m.locked(ctx, "fail", executionID, "", actor, func(ctx context.Context, s *session) (*models.FlowExecution, error) {
		if s.current.Status.IsTerminal() {
			return nil, newError(s.op, executionID, "", ErrExecutionTerminal)
		}

		nodeID := s.current.ExecutionData.CurrentNodeID

		err := m.markFailed(s, nodeID, reason)
		if err != nil {
			return nil, newError(s.op, executionID, nodeID, err)
		}

		s.action = m.newAction(s, nodeID, "Execution failed: "+reason, nil)

		return m.commit(ctx, s)
	})
}

type sessionFunc func(ctx context.Context, s *session) (*models.FlowExecution, error)

// locked loads the execution under its lock and runs fn inside a span.
func (m *Machine) locked(ctx context.Context, op, executionID, nodeID, actor string, fn sessionFunc) (*models.FlowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "engine."+op,
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.ActorKey, actor),
	)
	defer span.End()

	result, err := m.runLocked(ctx, op, executionID, actor, fn)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.TransitionKey, op))

		if IsRecoverable(err) || errors.Is(err, ErrExecutionTerminal) {
			m.metrics.IncTransitionRejected(rejectionReason(err))
			m.logger.InfoContext(ctx, "Transition rejected",
				"op", op, "execution_id", executionID, "node_id", nodeID, "error", err)
		}
	}

	if result != nil {
		span.SetAttributes(attribute.String(otelhelper.StatusKey, string(result.Status)))
	}

	return result, err
}

func (m *Machine) runLocked(ctx context.Context, op, executionID, actor string, fn sessionFunc) (*models.FlowExecution, error) {
	unlock, err := m.locker.Lock(ctx, executionLockKey(executionID))
	if err != nil {
		return nil, newError(op, executionID, "", err)
	}
	defer m.release(ctx, unlock)

	s, err := m.open(ctx, op, executionID, actor)
	if err != nil {
		return nil, err
	}

	return fn(ctx, s)
}

// claimFlow loads a definition under its flow lock and sets its lock flag, so
// no structural edit can land once an execution depends on it. A definition
// without a start node is left unlocked.
func (m *Machine) claimFlow(ctx context.Context, flowID string) (*models.FlowDefinition, *models.FlowNode, error) {
	unlock, err := m.locker.Lock(ctx, FlowLockKey(flowID))
	if err != nil {
		return nil, nil, err
	}
	defer m.release(ctx, unlock)

	definition, err := m.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}

	start := flow.NewGraph(definition).StartNode()
	if start == nil {
		return definition, nil, ErrNoStartNode
	}

	if !definition.IsLocked {
		err = m.flows.Lock(ctx, flowID)
		if err != nil {
			return nil, nil, err
		}

		definition.IsLocked = true
	}

	return definition, start, nil
}

func (m *Machine) release(ctx context.Context, unlock locks.Unlock) {
	err := unlock(context.WithoutCancel(ctx))
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to release lock", "error", err)
	}
}

// FlowLockKey is the lock key serializing edits of a flow definition with its locking.
func FlowLockKey(id string) string {
	return "flow:" + id
}

func executionLockKey(id string) string {
	return "execution:" + id
}

func documentLockKey(id string) string {
	return "document:" + id
}
