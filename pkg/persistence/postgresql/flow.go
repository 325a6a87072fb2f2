package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

const flowColumns = `
			id
		  , code
		  , name
		  , description
		  , nodes
		  , edges
		  , application_filter
		  , is_enabled
		  , is_locked
		  , created_by
		  , updated_by
		  , created_at
		  , updated_at`

// FlowRepository handles flow definition database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// GetAll returns every flow definition in insertion order.
func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.FlowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+flowColumns+` FROM flow_definitions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.FlowDefinition, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// GetByID retrieves a flow definition by its ID.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.FlowDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flow_definitions WHERE id = $1`, id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	return flow, nil
}

// Save upserts a flow definition.
func (r *FlowRepository) Save(ctx context.Context, flow *models.FlowDefinition) error {
	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	nodes, err := json.Marshal(flow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edges, err := json.Marshal(flow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	var filter []byte
	if !flow.ApplicationFilter.IsEmpty() {
		filter, err = json.Marshal(flow.ApplicationFilter)
		if err != nil {
			return fmt.Errorf("failed to marshal application filter: %w", err)
		}
	}

	query := `
		INSERT INTO flow_definitions (
			id, code, name, description, nodes, edges, application_filter,
			is_enabled, is_locked, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			application_filter = EXCLUDED.application_filter,
			is_enabled = EXCLUDED.is_enabled,
			is_locked = flow_definitions.is_locked OR EXCLUDED.is_locked,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID, flow.Code, flow.Name, flow.Description, nodes, edges, nullJSON(filter),
		flow.IsEnabled, flow.IsLocked, flow.CreatedBy, flow.UpdatedBy, flow.CreatedAt, flow.UpdatedAt,
	)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return persistence.NewFlowError("Save", flow.ID, fmt.Errorf("%w: %s", persistence.ErrFlowCodeTaken, flow.Code))
		}

		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// Lock sets is_locked on a flow definition.
func (r *FlowRepository) Lock(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE flow_definitions SET is_locked = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return persistence.NewFlowError("Lock", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Lock", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Lock", id, persistence.ErrFlowNotFound)
	}

	return nil
}

// Delete removes a flow definition.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM flow_definitions WHERE id = $1`, id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

func scanFlow(row rowScanner) (*models.FlowDefinition, error) {
	var (
		flow   models.FlowDefinition
		nodes  []byte
		edges  []byte
		filter []byte
	)

	err := row.Scan(
		&flow.ID, &flow.Code, &flow.Name, &flow.Description, &nodes, &edges, &filter,
		&flow.IsEnabled, &flow.IsLocked, &flow.CreatedBy, &flow.UpdatedBy, &flow.CreatedAt, &flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodes, &flow.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes of flow %s: %w", flow.ID, err)
	}

	err = json.Unmarshal(edges, &flow.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges of flow %s: %w", flow.ID, err)
	}

	if len(filter) > 0 {
		flow.ApplicationFilter = &models.Condition{}

		err = json.Unmarshal(filter, flow.ApplicationFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal application filter of flow %s: %w", flow.ID, err)
		}
	}

	return &flow, nil
}

// nullJSON stores an absent document as SQL NULL.
func nullJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}

	return data
}
