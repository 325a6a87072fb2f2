// Package persistence provides the storage abstraction for flow definitions, documents and executions.
package persistence

import (
	"context"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
)

type Persistence interface {
	FlowRepository() FlowRepository
	DocumentRepository() DocumentRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow definitions. GetAll returns definitions in storage order.
type FlowRepository interface {
	GetAll(ctx context.Context) ([]*models.FlowDefinition, error)
	GetByID(ctx context.Context, id string) (*models.FlowDefinition, error)
	// Save creates or replaces a definition. It never clears the lock flag of a
	// stored definition.
	Save(ctx context.Context, flow *models.FlowDefinition) error
	// Lock sets the lock flag without touching the rest of the definition.
	Lock(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// DocumentRepository stores the documents routed through flows.
type DocumentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	Save(ctx context.Context, doc *models.Document) error
	// SetTaskState updates the task state alone, leaving concurrent edits of
	// other attributes in place.
	SetTaskState(ctx context.Context, id string, state models.TaskState) error
}

// ExecutionChange is one execution write together with the audit record it produced.
// Execution.Version holds the version the change was prepared from; a zero
// version inserts a new execution.
type ExecutionChange struct {
	Execution *models.FlowExecution
	Action    *models.FlowAction
}

// ExecutionRepository is the persistence boundary of the execution state machine.
type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.FlowExecution, error)
	// LoadActive returns the single non-terminal execution of a document, or nil.
	LoadActive(ctx context.Context, documentID string) (*models.FlowExecution, error)
	// ListByDocument returns every execution of a document, newest first.
	ListByDocument(ctx context.Context, documentID string) ([]*models.FlowExecution, error)
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.FlowExecution, error)
	// Actions returns the audit trail of an execution in the order it was written.
	Actions(ctx context.Context, executionID string) ([]*models.FlowAction, error)
	// Save commits every change atomically. A version mismatch yields ErrVersionConflict
	// and a second active execution for a document yields ErrActiveExecutionExists.
	// On success each execution's Version is incremented.
	Save(ctx context.Context, changes ...ExecutionChange) error
}
