package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

const executionColumns = `
			id
		  , document_id
		  , flow_id
		  , status
		  , execution_data
		  , flow_tasks
		  , started_by
		  , version
		  , created_at
		  , updated_at
		  , completed_at`

// ExecutionRepository handles flow execution database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.FlowExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM flow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// LoadActive returns the non-terminal execution of a document, or nil.
func (r *ExecutionRepository) LoadActive(ctx context.Context, documentID string) (*models.FlowExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+`
		FROM flow_executions
		WHERE document_id = $1 AND status IN ('initiated', 'in_progress')`, documentID)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewDocumentExecutionError("LoadActive", documentID, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.FlowExecution, error) {
	return r.list(ctx, `SELECT `+executionColumns+`
		FROM flow_executions
		WHERE document_id = $1
		ORDER BY created_at DESC, id DESC`, documentID)
}

func (r *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.FlowExecution, error) {
	return r.list(ctx, `SELECT `+executionColumns+`
		FROM flow_executions
		WHERE status = $1
		ORDER BY created_at`, string(status))
}

func (r *ExecutionRepository) list(ctx context.Context, query string, args ...any) ([]*models.FlowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.FlowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// Actions returns the audit trail of an execution in write order.
func (r *ExecutionRepository) Actions(ctx context.Context, executionID string) ([]*models.FlowAction, error) {
	query := `
		SELECT id, execution_id, action_description, actor, flow_node, action_params, started_at, end_at
		FROM flow_actions
		WHERE execution_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.FlowAction, 0)

	for rows.Next() {
		var (
			action models.FlowAction
			params []byte
		)

		err := rows.Scan(&action.ID, &action.ExecutionID, &action.ActionDescription, &action.Actor,
			&action.FlowNode, &params, &action.StartedAt, &action.EndAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		if len(params) > 0 {
			err = json.Unmarshal(params, &action.ActionParams)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal params of action %s: %w", action.ID, err)
			}
		}

		actions = append(actions, &action)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

// Save writes every change in one transaction. Updates are conditional on the
// stored version; the partial unique index rejects a second active execution.
func (r *ExecutionRepository) Save(ctx context.Context, changes ...persistence.ExecutionChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	for _, change := range changes {
		err = r.write(ctx, tx, change.Execution)
		if err != nil {
			return err
		}

		if change.Action != nil {
			err = insertAction(ctx, tx, change.Action)
			if err != nil {
				return persistence.NewExecutionError("Save", change.Execution.ID, err)
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, change := range changes {
		change.Execution.Version++
	}

	return nil
}

func (r *ExecutionRepository) write(ctx context.Context, tx *sql.Tx, execution *models.FlowExecution) error {
	data, err := json.Marshal(execution.ExecutionData)
	if err != nil {
		return fmt.Errorf("failed to marshal execution data: %w", err)
	}

	tasks, err := json.Marshal(execution.FlowTasks)
	if err != nil {
		return fmt.Errorf("failed to marshal flow tasks: %w", err)
	}

	if execution.Version == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO flow_executions (
				id, document_id, flow_id, status, execution_data, flow_tasks,
				started_by, version, created_at, updated_at, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10)`,
			execution.ID, execution.DocumentID, execution.FlowID, string(execution.Status), data, tasks,
			execution.StartedBy, execution.CreatedAt, execution.UpdatedAt, execution.CompletedAt,
		)
		if err != nil {
			return classify(execution, err)
		}

		return nil
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE flow_executions SET
			status = $2,
			execution_data = $3,
			flow_tasks = $4,
			version = version + 1,
			updated_at = $5,
			completed_at = $6
		WHERE id = $1 AND version = $7`,
		execution.ID, string(execution.Status), data, tasks, execution.UpdatedAt, execution.CompletedAt, execution.Version,
	)
	if err != nil {
		return classify(execution, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Save", execution.ID,
			fmt.Errorf("%w: expected version %d", persistence.ErrVersionConflict, execution.Version))
	}

	return nil
}

func classify(execution *models.FlowExecution, err error) error {
	constraint, ok := uniqueConstraint(err)

	switch {
	case ok && constraint == "idx_flow_executions_active_document":
		return persistence.NewDocumentExecutionError("Save", execution.DocumentID, persistence.ErrActiveExecutionExists)
	case ok:
		return persistence.NewExecutionError("Save", execution.ID, fmt.Errorf("%w: %w", persistence.ErrVersionConflict, err))
	default:
		return persistence.NewExecutionError("Save", execution.ID, err)
	}
}

func insertAction(ctx context.Context, tx *sql.Tx, action *models.FlowAction) error {
	var params []byte

	if action.ActionParams != nil {
		var err error

		params, err = json.Marshal(action.ActionParams)
		if err != nil {
			return fmt.Errorf("failed to marshal action params: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO flow_actions (
			id, execution_id, action_description, actor, flow_node, action_params, started_at, end_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		action.ID, action.ExecutionID, action.ActionDescription, action.Actor, action.FlowNode,
		nullJSON(params), action.StartedAt, action.EndAt,
	)

	return err
}

func scanExecution(row rowScanner) (*models.FlowExecution, error) {
	var (
		execution models.FlowExecution
		status    string
		data      []byte
		tasks     []byte
	)

	err := row.Scan(
		&execution.ID, &execution.DocumentID, &execution.FlowID, &status, &data, &tasks,
		&execution.StartedBy, &execution.Version, &execution.CreatedAt, &execution.UpdatedAt, &execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	err = json.Unmarshal(data, &execution.ExecutionData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution data of %s: %w", execution.ID, err)
	}

	err = json.Unmarshal(tasks, &execution.FlowTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow tasks of %s: %w", execution.ID, err)
	}

	return &execution, nil
}
