//go:build integration

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"flow_actions", "flow_executions", "documents", "flow_definitions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("composer_test"),
			postgres.WithUsername("composer"),
			postgres.WithPassword("composer"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	for _, table := range []string{"flow_definitions", "documents", "flow_executions", "flow_actions"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func testFlow(code string) *models.FlowDefinition {
	return &models.FlowDefinition{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      "Fluxo " + code,
		IsEnabled: true,
		Nodes: []*models.FlowNode{
			{ID: "start", Type: models.NodeKindStart, Data: &models.StartData{FromType: models.StartFromInit}},
			{ID: "end", Type: models.NodeKindEnd, Data: &models.EndData{ToType: models.EndDirectFinish}},
		},
		Edges:             []*models.FlowEdge{{ID: "e1", Source: "start", Target: "end"}},
		ApplicationFilter: &models.Condition{Field: "status", Operator: "=", Value: "Em Processo"},
	}
}

func TestFlowRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	first := testFlow("A")
	second := testFlow("B")

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	first.IsLocked = true
	require.NoError(t, repo.Save(ctx, first))

	flows, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, first.ID, flows[0].ID)
	assert.True(t, flows[0].IsLocked)
	assert.Equal(t, "status", flows[0].ApplicationFilter.Field)
	assert.Equal(t, models.EndDirectFinish, flows[0].NodeByID("end").End().ToType)

	require.NoError(t, repo.Lock(ctx, second.ID))

	second.IsLocked = false
	second.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, second))

	loaded, err := repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, loaded.IsLocked)
	assert.Equal(t, "Renamed", loaded.Name)
	assert.True(t, persistence.IsFlowNotFound(repo.Lock(ctx, "missing")))

	err = repo.Save(ctx, testFlow("A"))
	assert.ErrorIs(t, err, persistence.ErrFlowCodeTaken)

	require.NoError(t, repo.Delete(ctx, second.ID))

	_, err = repo.GetByID(ctx, second.ID)
	assert.True(t, persistence.IsFlowNotFound(err))
	assert.True(t, persistence.IsFlowNotFound(repo.Delete(ctx, second.ID)))
}

func TestDocumentRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.DocumentRepository()

	_, err := repo.GetByID(ctx, "d1")
	assert.True(t, persistence.IsDocumentNotFound(err))

	require.NoError(t, repo.Save(ctx, &models.Document{ID: "d1", Status: "Em Processo", Fields: map[string]any{"cliente": "ACME"}}))

	doc, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "ACME", doc.Fields["cliente"])

	doc.TaskState = models.TaskStateInApr
	require.NoError(t, repo.Save(ctx, doc))

	doc, err = repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateInApr, doc.TaskState)

	doc.Fields["prioridade"] = "alta"
	require.NoError(t, repo.Save(ctx, doc))
	require.NoError(t, repo.SetTaskState(ctx, "d1", models.TaskStateCompleted))

	doc, err = repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateCompleted, doc.TaskState)
	assert.Equal(t, "alta", doc.Fields["prioridade"])
	assert.True(t, persistence.IsDocumentNotFound(repo.SetTaskState(ctx, "missing", models.TaskStateInDoc)))
}

func testExecution(documentID string) *models.FlowExecution {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &models.FlowExecution{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		FlowID:        "f1",
		Status:        models.ExecutionStatusInitiated,
		ExecutionData: models.ExecutionData{CurrentNodeID: "start", FlowCode: "F1"},
		FlowTasks:     map[string]*models.FlowTask{"start": {NodeID: "start", Status: models.TaskStatusActive, EnteredAt: now}},
		StartedBy:     "ana",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testAction(executionID, description string) *models.FlowAction {
	now := time.Now().UTC()

	return &models.FlowAction{
		ID:                uuid.NewString(),
		ExecutionID:       executionID,
		ActionDescription: description,
		Actor:             "ana",
		FlowNode:          "start",
		ActionParams:      map[string]any{"nextNodeId": "end"},
		StartedAt:         now,
		EndAt:             now,
	}
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	execution := testExecution("d1")
	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: execution, Action: testAction(execution.ID, "started")}))
	assert.Equal(t, int64(1), execution.Version)

	active, err := repo.LoadActive(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "F1", active.ExecutionData.FlowCode)

	stale := active.Clone()

	next := active.Clone()
	next.Status = models.ExecutionStatusCompleted
	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: next, Action: testAction(execution.ID, "completed")}))

	err = repo.Save(ctx, persistence.ExecutionChange{Execution: stale, Action: testAction(execution.ID, "duplicate")})
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)

	actions, err := repo.Actions(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "started", actions[0].ActionDescription)
	assert.Equal(t, "end", actions[1].ActionParams["nextNodeId"])

	none, err := repo.LoadActive(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, none)

	completed, err := repo.ListByStatus(ctx, models.ExecutionStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}

func TestExecutionRepository_SingleActive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	require.NoError(t, repo.Save(ctx, persistence.ExecutionChange{Execution: testExecution("d1")}))

	err := repo.Save(ctx, persistence.ExecutionChange{Execution: testExecution("d1")})
	assert.ErrorIs(t, err, persistence.ErrActiveExecutionExists)

	executions, err := repo.ListByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}
