package file

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// DocumentRepository handles document file operations.
type DocumentRepository struct {
	root string
	mu   *sync.RWMutex
}

func (dr *DocumentRepository) path(id string) string {
	return filepath.Join(dr.root, "documents", id+".json")
}

// GetByID retrieves a document by its ID.
func (dr *DocumentRepository) GetByID(_ context.Context, id string) (*models.Document, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewDocumentExecutionError("GetDocument", id, err)
	}

	dr.mu.RLock()
	defer dr.mu.RUnlock()

	var doc models.Document

	ok, err := readJSON(dr.path(id), &doc)
	if err != nil {
		return nil, persistence.NewDocumentExecutionError("GetDocument", id, err)
	}

	if !ok {
		return nil, persistence.NewDocumentExecutionError("GetDocument", id, persistence.ErrDocumentNotFound)
	}

	return &doc, nil
}

// Save creates or replaces a document.
func (dr *DocumentRepository) Save(_ context.Context, doc *models.Document) error {
	err := validateID(doc.ID)
	if err != nil {
		return persistence.NewDocumentExecutionError("SaveDocument", doc.ID, err)
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	err = writeJSON(dr.path(doc.ID), doc)
	if err != nil {
		return persistence.NewDocumentExecutionError("SaveDocument", doc.ID, err)
	}

	return nil
}

// SetTaskState rewrites the stored document with only its task state changed.
func (dr *DocumentRepository) SetTaskState(_ context.Context, id string, state models.TaskState) error {
	err := validateID(id)
	if err != nil {
		return persistence.NewDocumentExecutionError("SetTaskState", id, err)
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()

	var doc models.Document

	ok, err := readJSON(dr.path(id), &doc)
	if err != nil {
		return persistence.NewDocumentExecutionError("SetTaskState", id, err)
	}

	if !ok {
		return persistence.NewDocumentExecutionError("SetTaskState", id, persistence.ErrDocumentNotFound)
	}

	doc.TaskState = state
	doc.UpdatedAt = time.Now().UTC()

	err = writeJSON(dr.path(id), &doc)
	if err != nil {
		return persistence.NewDocumentExecutionError("SetTaskState", id, err)
	}

	return nil
}
