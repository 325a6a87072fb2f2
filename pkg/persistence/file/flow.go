package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// flowRecord keeps the insertion sequence next to the definition so GetAll
// can return definitions in storage order.
type flowRecord struct {
	Seq  int64                  `json:"seq"`
	Flow *models.FlowDefinition `json:"flow"`
}

// FlowRepository handles flow definition file operations.
type FlowRepository struct {
	root string
	mu   *sync.RWMutex
}

func (fr *FlowRepository) dir() string {
	return filepath.Join(fr.root, "flows")
}

func (fr *FlowRepository) path(id string) string {
	return filepath.Join(fr.dir(), id+".json")
}

// GetAll returns every flow definition in the order it was first saved.
func (fr *FlowRepository) GetAll(_ context.Context) ([]*models.FlowDefinition, error) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	records, err := fr.records()
	if err != nil {
		return nil, err
	}

	flows := make([]*models.FlowDefinition, 0, len(records))
	for _, record := range records {
		flows = append(flows, record.Flow)
	}

	return flows, nil
}

// GetByID retrieves a flow definition by its ID.
func (fr *FlowRepository) GetByID(_ context.Context, id string) (*models.FlowDefinition, error) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	record, err := fr.load(id)
	if err != nil {
		return nil, err
	}

	return record.Flow, nil
}

// Save creates or replaces a flow definition. Codes are unique across definitions.
func (fr *FlowRepository) Save(_ context.Context, flow *models.FlowDefinition) error {
	err := validateID(flow.ID)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	records, err := fr.records()
	if err != nil {
		return err
	}

	seq := int64(0)
	last := int64(0)

	for _, record := range records {
		last = max(last, record.Seq)

		if record.Flow.ID == flow.ID {
			seq = record.Seq
			flow.IsLocked = flow.IsLocked || record.Flow.IsLocked

			continue
		}

		if flow.Code != "" && record.Flow.Code == flow.Code {
			return persistence.NewFlowError("Save", flow.ID, fmt.Errorf("%w: %s", persistence.ErrFlowCodeTaken, flow.Code))
		}
	}

	if seq == 0 {
		seq = last + 1
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	err = writeJSON(fr.path(flow.ID), flowRecord{Seq: seq, Flow: flow})
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// Lock marks a flow definition as used by an execution.
func (fr *FlowRepository) Lock(_ context.Context, id string) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	record, err := fr.load(id)
	if err != nil {
		return err
	}

	if record.Flow.IsLocked {
		return nil
	}

	record.Flow.IsLocked = true
	record.Flow.UpdatedAt = time.Now().UTC()

	err = writeJSON(fr.path(id), record)
	if err != nil {
		return persistence.NewFlowError("Lock", id, err)
	}

	return nil
}

// Delete removes a flow definition by its ID.
func (fr *FlowRepository) Delete(_ context.Context, id string) error {
	err := validateID(id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	err = os.Remove(fr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
		}

		return persistence.NewFlowError("Delete", id, err)
	}

	return nil
}

func (fr *FlowRepository) load(id string) (*flowRecord, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	var record flowRecord

	ok, err := readJSON(fr.path(id), &record)
	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	if !ok {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	return &record, nil
}

func (fr *FlowRepository) records() ([]*flowRecord, error) {
	ids, err := listJSON(fr.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	records := make([]*flowRecord, 0, len(ids))

	for _, id := range ids {
		record, err := fr.load(id)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})

	return records, nil
}
