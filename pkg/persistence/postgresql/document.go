package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// DocumentRepository handles document database operations.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `
		SELECT id, title, status, task_state, fields, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	var (
		doc    models.Document
		fields []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Title, &doc.Status, &doc.TaskState, &fields, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDocumentExecutionError("GetDocument", id, persistence.ErrDocumentNotFound)
		}

		return nil, persistence.NewDocumentExecutionError("GetDocument", id, err)
	}

	err = json.Unmarshal(fields, &doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields of document %s: %w", id, err)
	}

	return &doc, nil
}

func (r *DocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	fields := doc.Fields
	if fields == nil {
		fields = map[string]any{}
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields of document %s: %w", doc.ID, err)
	}

	query := `
		INSERT INTO documents (id, title, status, task_state, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			task_state = EXCLUDED.task_state,
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.Status, doc.TaskState, data, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return persistence.NewDocumentExecutionError("SaveDocument", doc.ID, err)
	}

	return nil
}

func (r *DocumentRepository) SetTaskState(ctx context.Context, id string, state models.TaskState) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET task_state = $2, updated_at = $3 WHERE id = $1`,
		id, state, time.Now().UTC())
	if err != nil {
		return persistence.NewDocumentExecutionError("SetTaskState", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDocumentExecutionError("SetTaskState", id, err)
	}

	if affected == 0 {
		return persistence.NewDocumentExecutionError("SetTaskState", id, persistence.ErrDocumentNotFound)
	}

	return nil
}
