package file

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	fp := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)

	fp = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	require.NoError(t, fp.HealthCheck(t.Context()))
	require.NoError(t, fp.Close(t.Context()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, missing.HealthCheck(t.Context()))
}

func testFlow(id, code string) *models.FlowDefinition {
	return &models.FlowDefinition{
		ID:        id,
		Code:      code,
		Name:      "Fluxo " + code,
		IsEnabled: true,
		Nodes: []*models.FlowNode{
			{ID: "start", Type: models.NodeKindStart, Data: &models.StartData{FromType: models.StartFromInit}},
			{ID: "end", Type: models.NodeKindEnd, Data: &models.EndData{ToType: models.EndDirectFinish}},
		},
		Edges: []*models.FlowEdge{{ID: "e1", Source: "start", Target: "end"}},
	}
}

func TestFlowRepository_StorageOrder(t *testing.T) {
	repo := NewPersistence(t.TempDir()).FlowRepository()
	ctx := t.Context()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, repo.Save(ctx, testFlow(id, "C-"+id)))
	}

	// Updating an existing flow keeps its position.
	updated := testFlow("zeta", "C-zeta")
	updated.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, updated))

	flows, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 3)
	assert.Equal(t, "zeta", flows[0].ID)
	assert.Equal(t, "Renamed", flows[0].Name)
	assert.Equal(t, "alpha", flows[1].ID)
	assert.Equal(t, "mid", flows[2].ID)

	loaded, err := repo.GetByID(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, models.StartFromInit, loaded.NodeByID("start").Start().FromType)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestFlowRepository_CodeTaken(t *testing.T) {
	repo := NewPersistence(t.TempDir()).FlowRepository()

	require.NoError(t, repo.Save(t.Context(), testFlow("f1", "DOC")))

	err := repo.Save(t.Context(), testFlow("f2", "DOC"))
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrFlowCodeTaken)
	assert.True(t, persistence.IsConflict(err))
}

func TestFlowRepository_NotFound(t *testing.T) {
	repo := NewPersistence(t.TempDir()).FlowRepository()

	_, err := repo.GetByID(t.Context(), "missing")
	assert.True(t, persistence.IsFlowNotFound(err))

	err = repo.Delete(t.Context(), "missing")
	assert.True(t, persistence.IsFlowNotFound(err))

	require.NoError(t, repo.Save(t.Context(), testFlow("f1", "A")))
	require.NoError(t, repo.Delete(t.Context(), "f1"))

	_, err = repo.GetByID(t.Context(), "f1")
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestFlowRepository_LockSurvivesStaleSave(t *testing.T) {
	repo := NewPersistence(t.TempDir()).FlowRepository()
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, testFlow("f1", "A")))

	stale, err := repo.GetByID(ctx, "f1")
	require.NoError(t, err)
	require.False(t, stale.IsLocked)

	require.NoError(t, repo.Lock(ctx, "f1"))
	require.NoError(t, repo.Lock(ctx, "f1"))

	stale.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, stale))

	loaded, err := repo.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, loaded.IsLocked)
	assert.Equal(t, "Renamed", loaded.Name)

	assert.True(t, persistence.IsFlowNotFound(repo.Lock(ctx, "missing")))
}

func TestFlowRepository_RejectsPathTraversal(t *testing.T) {
	repo := NewPersistence(t.TempDir()).FlowRepository()

	err := repo.Save(t.Context(), testFlow("../escape", "X"))
	assert.Error(t, err)
}

func TestDocumentRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).DocumentRepository()

	_, err := repo.GetByID(t.Context(), "d1")
	assert.True(t, persistence.IsDocumentNotFound(err))

	doc := &models.Document{ID: "d1", Status: "Em Processo", Fields: map[string]any{"cliente": "ACME"}}
	require.NoError(t, repo.Save(t.Context(), doc))

	loaded, err := repo.GetByID(t.Context(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Em Processo", loaded.Status)
	assert.Equal(t, "ACME", loaded.Fields["cliente"])
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestDocumentRepository_SetTaskStateKeepsFields(t *testing.T) {
	repo := NewPersistence(t.TempDir()).DocumentRepository()
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, &models.Document{ID: "d1", Status: "Em Processo", Fields: map[string]any{"prioridade": "baixa"}}))

	edited, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)

	edited.Fields["prioridade"] = "alta"
	require.NoError(t, repo.Save(ctx, edited))

	require.NoError(t, repo.SetTaskState(ctx, "d1", models.TaskStateInApr))

	loaded, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateInApr, loaded.TaskState)
	assert.Equal(t, "alta", loaded.Fields["prioridade"])

	err = repo.SetTaskState(ctx, "missing", models.TaskStateInDoc)
	assert.True(t, persistence.IsDocumentNotFound(err))
}

func testExecution(id, documentID string) *models.FlowExecution {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	return &models.FlowExecution{
		ID:            id,
		DocumentID:    documentID,
		FlowID:        "f1",
		Status:        models.ExecutionStatusInitiated,
		ExecutionData: models.ExecutionData{CurrentNodeID: "start"},
		FlowTasks:     map[string]*models.FlowTask{"start": {NodeID: "start", Status: models.TaskStatusActive, EnteredAt: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testAction(id, executionID string) *models.FlowAction {
	return &models.FlowAction{ID: id, ExecutionID: executionID, ActionDescription: id, Actor: "ana", FlowNode: "start"}
}

func TestExecutionRepository_SaveAndLoad(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	ctx := t.Context()

	execution := testExecution("x1", "d1")
	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: execution, Action: testAction("a1", "x1")}))
	assert.Equal(t, int64(1), execution.Version)

	active, err := repo.LoadActive(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "x1", active.ID)

	none, err := repo.LoadActive(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, none)

	next := active.Clone()
	next.Status = models.ExecutionStatusInProgress
	next.ExecutionData.CurrentNodeID = "end"
	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: next, Action: testAction("a2", "x1")}))
	assert.Equal(t, int64(2), next.Version)

	loaded, err := repo.GetByID(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, loaded.Status)
	assert.Equal(t, int64(2), loaded.Version)

	actions, err := repo.Actions(ctx, "x1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "a1", actions[0].ID)
	assert.Equal(t, "a2", actions[1].ID)

	inProgress, err := repo.ListByStatus(ctx, models.ExecutionStatusInProgress)
	require.NoError(t, err)
	assert.Len(t, inProgress, 1)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_VersionConflict(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: testExecution("x1", "d1")}))

	loaded, err := repo.GetByID(ctx, "x1")
	require.NoError(t, err)

	first := loaded.Clone()
	second := loaded.Clone()

	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: first, Action: testAction("a1", "x1")}))

	err = repo.Save(ctx, persistence.ExecutionChange{Execution: second, Action: testAction("a2", "x1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)

	actions, err := repo.Actions(ctx, "x1")
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestExecutionRepository_SingleActivePerDocument(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: testExecution("x1", "d1")}))

	err := repo.Save(ctx, persistence.ExecutionChange{Execution: testExecution("x2", "d1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrActiveExecutionExists)

	executions, err := repo.ListByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestExecutionRepository_TransferIsAtomic(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	ctx := t.Context()

	first := testExecution("x1", "d1")
	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: first}))

	finished := first.Clone()
	finished.Status = models.ExecutionStatusTransfered
	successor := testExecution("x2", "d1")

	require.NoError(t, repo.Save(ctx,
		persistence.ExecutionChange{Execution: finished, Action: testAction("a1", "x1")},
		persistence.ExecutionChange{Execution: successor, Action: testAction("a2", "x2")},
	))

	executions, err := repo.ListByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "x2", executions[0].ID)
	assert.Equal(t, "x1", executions[1].ID)

	active, err := repo.LoadActive(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "x2", active.ID)
}

func TestExecutionRepository_ConcurrentWritersOneWins(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: testExecution("x1", "d1")}))

	loaded, err := repo.GetByID(ctx, "x1")
	require.NoError(t, err)

	const writers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			change := persistence.ExecutionChange{Execution: loaded.Clone(), Action: testAction("a"+string(rune('0'+i)), "x1")}
			if repo.Save(ctx, change) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)

	actions, err := repo.Actions(ctx, "x1")
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}
