package mocks

import (
	"context"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.FlowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) LoadActive(ctx context.Context, documentID string) (*models.FlowExecution, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) Actions(ctx context.Context, executionID string) ([]*models.FlowAction, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowAction), args.Error(1)
}

func (m *MockExecutionRepository) Save(ctx context.Context, changes ...persistence.ExecutionChange) error {
	args := m.Called(ctx, changes)

	return args.Error(0)
}

// MockDocumentRepository is a mock implementation of persistence.DocumentRepository interface.
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *MockDocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	args := m.Called(ctx, doc)

	return args.Error(0)
}

func (m *MockDocumentRepository) SetTaskState(ctx context.Context, id string, state models.TaskState) error {
	args := m.Called(ctx, id, state)

	return args.Error(0)
}
