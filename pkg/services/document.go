package services

import (
	"context"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Document manages the documents routed through flows.
type Document struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewDocument(persistence persistence.Persistence) *Document {
	return &Document{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (d *Document) FetchByID(ctx context.Context, id string) (*models.Document, error) {
	return d.persistence.DocumentRepository().GetByID(ctx, id)
}

// Put creates or replaces a document. The task state is owned by the
// execution engine and is kept from the stored copy.
func (d *Document) Put(ctx context.Context, doc *models.Document) (*models.Document, error) {
	err := d.validate.Struct(doc)
	if err != nil {
		return nil, NewValidationError("put_document", "invalid_document", err.Error(), ErrInvalidRequest)
	}

	existing, err := d.persistence.DocumentRepository().GetByID(ctx, doc.ID)

	switch {
	case err == nil:
		doc.TaskState = existing.TaskState
		doc.CreatedAt = existing.CreatedAt
	case persistence.IsDocumentNotFound(err):
		doc.CreatedAt = time.Time{}
	default:
		return nil, err
	}

	doc.UpdatedAt = time.Now().UTC()

	err = d.persistence.DocumentRepository().Save(ctx, doc)
	if err != nil {
		return nil, err
	}

	return doc, nil
}
