package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/condition"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/locks"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/matcher"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServices struct {
	persistence *file.Persistence
	flows       *Flow
	documents   *Document
	executions  *Execution
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	p := file.NewPersistence(t.TempDir())
	m := matcher.NewMatcher(condition.NewEvaluator(logger), logger)
	locker := locks.NewMemoryLocker()
	machine := engine.NewMachine(p.ExecutionRepository(), p.FlowRepository(), p.DocumentRepository(),
		engine.WithLocker(locker), engine.WithLogger(logger))

	return &testServices{
		persistence: p,
		flows:       NewFlow(p, m, locker, logger),
		documents:   NewDocument(p),
		executions:  NewExecution(p, machine, m, logger),
	}
}

func simpleFlow(code string) *models.FlowDefinition {
	return &models.FlowDefinition{
		Code:      code,
		Name:      "Fluxo " + code,
		IsEnabled: true,
		Nodes: []*models.FlowNode{
			{ID: "start", Type: models.NodeKindStart, Data: &models.StartData{NodeCommon: models.NodeCommon{Configured: true}, FromType: models.StartFromInit}},
			{ID: "doc", Type: models.NodeKindDocument, Data: &models.DocumentData{NodeCommon: models.NodeCommon{Configured: true}, DocType: "manual"}},
			{ID: "end", Type: models.NodeKindEnd, Data: &models.EndData{NodeCommon: models.NodeCommon{Configured: true}, ToType: models.EndDirectFinish}},
		},
		Edges: []*models.FlowEdge{
			{ID: "e1", Source: "start", Target: "doc"},
			{ID: "e2", Source: "doc", Target: "end"},
		},
		ApplicationFilter: &models.Condition{Field: "status", Operator: "=", Value: "Em Processo"},
	}
}

func TestFlow_CreateAssignsIdentity(t *testing.T) {
	s := newTestServices(t)

	created, err := s.flows.Create(t.Context(), simpleFlow("DOC"), "ana")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ana", created.CreatedBy)
	assert.False(t, created.IsLocked)

	_, err = s.flows.Create(t.Context(), &models.FlowDefinition{Code: "X"}, "ana")
	assert.True(t, IsValidationError(err))

	_, err = s.flows.Create(t.Context(), nil, "ana")
	assert.ErrorIs(t, err, ErrFlowNil)

	_, err = s.flows.Create(t.Context(), simpleFlow("DOC"), "ana")
	assert.True(t, IsConflictError(err))
}

func TestFlow_LockedFlowRejectsStructuralEdits(t *testing.T) {
	s := newTestServices(t)
	ctx := t.Context()

	created, err := s.flows.Create(ctx, simpleFlow("DOC"), "ana")
	require.NoError(t, err)

	_, err = s.documents.Put(ctx, &models.Document{ID: "d1", Status: "Em Processo"})
	require.NoError(t, err)

	_, err = s.executions.Start(ctx, "d1", created.ID, "ana")
	require.NoError(t, err)

	locked, err := s.flows.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, locked.IsLocked)

	edited := simpleFlow("DOC")
	edited.Edges = edited.Edges[:1]

	_, err = s.flows.Update(ctx, created.ID, edited, "bruno")
	require.ErrorIs(t, err, ErrFlowLocked)
	assert.True(t, IsConflictError(err))

	renamed := simpleFlow("DOC")
	renamed.Name = "Fluxo renomeado"

	updated, err := s.flows.Update(ctx, created.ID, renamed, "bruno")
	require.NoError(t, err)
	assert.True(t, updated.IsLocked)
	assert.Equal(t, "bruno", updated.UpdatedBy)

	disabled := false
	patched, err := s.flows.Patch(ctx, created.ID, FlowPatch{IsEnabled: &disabled}, "bruno")
	require.NoError(t, err)
	assert.False(t, patched.IsEnabled)

	err = s.flows.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, ErrFlowLocked)
}

// startingFlows runs onGet the first time a definition is read.
type startingFlows struct {
	persistence.FlowRepository

	once  sync.Once
	onGet func()
}

func (r *startingFlows) GetByID(ctx context.Context, id string) (*models.FlowDefinition, error) {
	r.once.Do(r.onGet)

	return r.FlowRepository.GetByID(ctx, id)
}

type hookedPersistence struct {
	*file.Persistence

	flows persistence.FlowRepository
}

func (p *hookedPersistence) FlowRepository() persistence.FlowRepository {
	return p.flows
}

func TestFlow_UpdateRacingStartKeepsLock(t *testing.T) {
	s := newTestServices(t)
	ctx := t.Context()

	created, err := s.flows.Create(ctx, simpleFlow("DOC"), "ana")
	require.NoError(t, err)

	_, err = s.documents.Put(ctx, &models.Document{ID: "d1", Status: "Em Processo"})
	require.NoError(t, err)

	started := make(chan error, 1)
	hooked := &hookedPersistence{
		Persistence: s.persistence,
		flows: &startingFlows{
			FlowRepository: s.persistence.FlowRepository(),
			onGet: func() {
				go func() {
					_, err := s.executions.Start(ctx, "d1", created.ID, "ana")
					started <- err
				}()
			},
		},
	}
	flows := NewFlow(hooked, s.flows.matcher, s.flows.locker, slog.New(slog.DiscardHandler))

	edited := simpleFlow("DOC")
	edited.Nodes[1].Data = &models.DocumentData{NodeCommon: models.NodeCommon{Configured: true}, DocType: "anexo"}

	_, err = flows.Update(ctx, created.ID, edited, "bruno")
	require.NoError(t, err)
	require.NoError(t, <-started)

	stored, err := s.flows.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsLocked)
	docData, ok := stored.NodeByID("doc").Data.(*models.DocumentData)
	require.True(t, ok)
	assert.Equal(t, "anexo", docData.DocType)

	again := simpleFlow("DOC")

	_, err = s.flows.Update(ctx, created.ID, again, "bruno")
	assert.ErrorIs(t, err, ErrFlowLocked)
}

func TestFlow_DeleteUnlocked(t *testing.T) {
	s := newTestServices(t)

	created, err := s.flows.Create(t.Context(), simpleFlow("DOC"), "ana")
	require.NoError(t, err)

	require.NoError(t, s.flows.Delete(t.Context(), created.ID))

	_, err = s.flows.FetchByID(t.Context(), created.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestFlow_Validate(t *testing.T) {
	s := newTestServices(t)

	valid, err := s.flows.Create(t.Context(), simpleFlow("OK"), "ana")
	require.NoError(t, err)

	result, err := s.flows.Validate(t.Context(), valid.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)

	broken := simpleFlow("BROKEN")
	broken.Edges = nil

	invalid, err := s.flows.Create(t.Context(), broken, "ana")
	require.NoError(t, err)

	result, err = s.flows.Validate(t.Context(), invalid.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Issues)
}

func TestFlow_Candidates(t *testing.T) {
	s := newTestServices(t)
	ctx := t.Context()

	matching, err := s.flows.Create(ctx, simpleFlow("MATCH"), "ana")
	require.NoError(t, err)

	other := simpleFlow("OTHER")
	other.ApplicationFilter = &models.Condition{Field: "status", Operator: "=", Value: "Concluido"}
	_, err = s.flows.Create(ctx, other, "ana")
	require.NoError(t, err)

	disabled := simpleFlow("OFF")
	disabled.IsEnabled = false
	_, err = s.flows.Create(ctx, disabled, "ana")
	require.NoError(t, err)

	_, err = s.documents.Put(ctx, &models.Document{ID: "d1", Status: "Em Processo"})
	require.NoError(t, err)

	candidates, err := s.flows.Candidates(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, matching.ID, candidates[0].ID)

	_, err = s.flows.Candidates(ctx, "missing")
	assert.True(t, IsNotFoundError(err))
}

func TestDocument_PutKeepsTaskState(t *testing.T) {
	s := newTestServices(t)
	ctx := t.Context()

	doc, err := s.documents.Put(ctx, &models.Document{ID: "d1", Status: "Em Processo"})
	require.NoError(t, err)
	assert.False(t, doc.CreatedAt.IsZero())

	stored, err := s.persistence.DocumentRepository().GetByID(ctx, "d1")
	require.NoError(t, err)

	stored.TaskState = models.TaskStateInApr
	require.NoError(t, s.persistence.DocumentRepository().Save(ctx, stored))

	doc, err = s.documents.Put(ctx, &models.Document{ID: "d1", Status: "Revisado", TaskState: models.TaskStateCompleted})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateInApr, doc.TaskState)
	assert.Equal(t, "Revisado", doc.Status)

	_, err = s.documents.Put(ctx, &models.Document{})
	assert.True(t, IsValidationError(err))
}

func TestExecution_StartChecks(t *testing.T) {
	s := newTestServices(t)
	ctx := t.Context()

	_, err := s.documents.Put(ctx, &models.Document{ID: "d1", Status: "Em Processo"})
	require.NoError(t, err)

	disabled := simpleFlow("OFF")
	disabled.IsEnabled = false
	off, err := s.flows.Create(ctx, disabled, "ana")
	require.NoError(t, err)

	_, err = s.executions.Start(ctx, "d1", off.ID, "ana")
	require.ErrorIs(t, err, ErrFlowDisabled)
	assert.True(t, IsUnprocessableError(err))

	ineligible := simpleFlow("NOPE")
	ineligible.ApplicationFilter = &models.Condition{Field: "status", Operator: "=", Value: "Outro"}
	nope, err := s.flows.Create(ctx, ineligible, "ana")
	require.NoError(t, err)

	_, err = s.executions.Start(ctx, "d1", nope.ID, "ana")
	assert.ErrorIs(t, err, ErrFlowNotEligible)

	broken := simpleFlow("BROKEN")
	broken.Nodes = broken.Nodes[1:]
	bad, err := s.flows.Create(ctx, broken, "ana")
	require.NoError(t, err)

	_, err = s.executions.Start(ctx, "d1", bad.ID, "ana")
	require.ErrorIs(t, err, ErrFlowInvalid)
	assert.ErrorIs(t, err, flow.ErrStructural)
	assert.True(t, IsUnprocessableError(err))

	_, err = s.executions.Start(ctx, "missing", bad.ID, "ana")
	assert.True(t, IsNotFoundError(err))
}

func TestExecution_Lifecycle(t *testing.T) {
	s := newTestServices(t)
	ctx := t.Context()

	created, err := s.flows.Create(ctx, simpleFlow("DOC"), "ana")
	require.NoError(t, err)

	_, err = s.documents.Put(ctx, &models.Document{ID: "d1", Status: "Em Processo"})
	require.NoError(t, err)

	execution, err := s.executions.Start(ctx, "d1", created.ID, "ana")
	require.NoError(t, err)

	_, err = s.executions.Start(ctx, "d1", created.ID, "ana")
	require.ErrorIs(t, err, persistence.ErrActiveExecutionExists)
	assert.True(t, IsConflictError(err))

	execution, err = s.executions.Advance(ctx, execution.ID, "start", "ana", nil)
	require.NoError(t, err)

	_, err = s.executions.Advance(ctx, execution.ID, "start", "ana", nil)
	assert.True(t, IsConflictError(err))

	execution, err = s.executions.Cancel(ctx, execution.ID, "ana")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, CancelReason, execution.ExecutionData.Error)

	detail, err := s.executions.FetchByID(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, detail.Actions, 3)
	assert.Equal(t, "Execution failed: cancelled", detail.Actions[2].ActionDescription)

	history, err := s.executions.ListByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = s.executions.FetchByID(ctx, "missing")
	assert.True(t, IsNotFoundError(err))
}
