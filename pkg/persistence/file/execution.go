package file

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// ledger is the on-disk record of every execution of one document and its
// audit trail. Writing a whole ledger at once keeps a transfer atomic.
type ledger struct {
	DocumentID string                  `json:"document_id"`
	Executions []*models.FlowExecution `json:"executions"`
	Actions    []*models.FlowAction    `json:"actions"`
}

func (l *ledger) execution(id string) (int, *models.FlowExecution) {
	for i, execution := range l.Executions {
		if execution.ID == id {
			return i, execution
		}
	}

	return -1, nil
}

func (l *ledger) active() *models.FlowExecution {
	for _, execution := range l.Executions {
		if execution.IsActive() {
			return execution
		}
	}

	return nil
}

// ExecutionRepository handles flow execution file operations.
type ExecutionRepository struct {
	root string
	mu   *sync.RWMutex
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) path(documentID string) string {
	return filepath.Join(er.dir(), documentID+".json")
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.FlowExecution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	l, err := er.find(id)
	if err != nil {
		return nil, err
	}

	_, execution := l.execution(id)

	return execution, nil
}

// LoadActive returns the non-terminal execution of the document, or nil when there is none.
func (er *ExecutionRepository) LoadActive(_ context.Context, documentID string) (*models.FlowExecution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	l, err := er.load(documentID)
	if err != nil {
		return nil, persistence.NewDocumentExecutionError("LoadActive", documentID, err)
	}

	return l.active(), nil
}

// ListByDocument returns the executions of a document, newest first.
func (er *ExecutionRepository) ListByDocument(_ context.Context, documentID string) ([]*models.FlowExecution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	l, err := er.load(documentID)
	if err != nil {
		return nil, persistence.NewDocumentExecutionError("ListByDocument", documentID, err)
	}

	executions := slices.Clone(l.Executions)
	slices.Reverse(executions)

	return executions, nil
}

// ListByStatus returns every execution in the given status.
func (er *ExecutionRepository) ListByStatus(_ context.Context, status models.ExecutionStatus) ([]*models.FlowExecution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	ledgers, err := er.all()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.FlowExecution, 0)

	for _, l := range ledgers {
		for _, execution := range l.Executions {
			if execution.Status == status {
				executions = append(executions, execution)
			}
		}
	}

	return executions, nil
}

// Actions returns the audit trail of an execution in write order.
func (er *ExecutionRepository) Actions(_ context.Context, executionID string) ([]*models.FlowAction, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	l, err := er.find(executionID)
	if err != nil {
		return nil, err
	}

	actions := make([]*models.FlowAction, 0)

	for _, action := range l.Actions {
		if action.ExecutionID == executionID {
			actions = append(actions, action)
		}
	}

	return actions, nil
}

// Save applies every change under the write lock. Versions and the single
// active execution rule are checked before anything is written.
func (er *ExecutionRepository) Save(_ context.Context, changes ...persistence.ExecutionChange) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	ledgers := make(map[string]*ledger)
	order := make([]string, 0, 1)

	for _, change := range changes {
		execution := change.Execution

		err := validateID(execution.DocumentID)
		if err != nil {
			return persistence.NewExecutionError("Save", execution.ID, err)
		}

		l, ok := ledgers[execution.DocumentID]
		if !ok {
			l, err = er.load(execution.DocumentID)
			if err != nil {
				return persistence.NewExecutionError("Save", execution.ID, err)
			}

			ledgers[execution.DocumentID] = l
			order = append(order, execution.DocumentID)
		}

		err = apply(l, change)
		if err != nil {
			return err
		}
	}

	for _, documentID := range order {
		err := checkSingleActive(ledgers[documentID])
		if err != nil {
			return err
		}
	}

	for _, documentID := range order {
		err := writeJSON(er.path(documentID), ledgers[documentID])
		if err != nil {
			return persistence.NewDocumentExecutionError("Save", documentID, err)
		}
	}

	for _, change := range changes {
		change.Execution.Version++
	}

	return nil
}

// apply stages a change on the ledger with the version it will be stored under.
func apply(l *ledger, change persistence.ExecutionChange) error {
	execution := change.Execution
	i, stored := l.execution(execution.ID)

	switch {
	case execution.Version == 0 && stored != nil:
		return persistence.NewExecutionError("Save", execution.ID, fmt.Errorf("%w: execution already exists", persistence.ErrVersionConflict))
	case execution.Version != 0 && stored == nil:
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrExecutionNotFound)
	case stored != nil && stored.Version != execution.Version:
		return persistence.NewExecutionError("Save", execution.ID,
			fmt.Errorf("%w: expected version %d, stored %d", persistence.ErrVersionConflict, execution.Version, stored.Version))
	}

	staged := execution.Clone()
	staged.Version++

	if stored == nil {
		l.Executions = append(l.Executions, staged)
	} else {
		l.Executions[i] = staged
	}

	if change.Action != nil {
		l.Actions = append(l.Actions, change.Action)
	}

	return nil
}

func checkSingleActive(l *ledger) error {
	var active *models.FlowExecution

	for _, execution := range l.Executions {
		if !execution.IsActive() {
			continue
		}

		if active != nil {
			return persistence.NewDocumentExecutionError("Save", l.DocumentID, persistence.ErrActiveExecutionExists)
		}

		active = execution
	}

	return nil
}

func (er *ExecutionRepository) load(documentID string) (*ledger, error) {
	err := validateID(documentID)
	if err != nil {
		return nil, err
	}

	l := &ledger{DocumentID: documentID}

	_, err = readJSON(er.path(documentID), l)
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (er *ExecutionRepository) all() ([]*ledger, error) {
	ids, err := listJSON(er.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	ledgers := make([]*ledger, 0, len(ids))

	for _, id := range ids {
		l, err := er.load(id)
		if err != nil {
			return nil, err
		}

		ledgers = append(ledgers, l)
	}

	return ledgers, nil
}

// find returns the ledger holding the execution.
func (er *ExecutionRepository) find(executionID string) (*ledger, error) {
	ledgers, err := er.all()
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", executionID, err)
	}

	for _, l := range ledgers {
		if _, execution := l.execution(executionID); execution != nil {
			return l, nil
		}
	}

	return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
}
