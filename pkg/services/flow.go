package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/locks"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/matcher"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Flow struct {
	persistence persistence.Persistence
	matcher     *matcher.Matcher
	locker      locks.Locker
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewFlow creates a new flow definition service. Edits take the same flow lock
// the engine holds while it locks a flow, so the locker must be the engine's.
func NewFlow(persistence persistence.Persistence, matcher *matcher.Matcher, locker locks.Locker, logger *slog.Logger) *Flow {
	return &Flow{
		persistence: persistence,
		matcher:     matcher,
		locker:      locker,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "flow_service"),
	}
}

// guard holds the flow lock of id while fn reads and writes the definition.
func (f *Flow) guard(ctx context.Context, op, id string, fn func() error) error {
	unlock, err := f.locker.Lock(ctx, engine.FlowLockKey(id))
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			f.logger.WarnContext(ctx, "Failed to release flow lock", "flow_id", id, "error", err)
		}
	}()

	return fn()
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every flow definition in storage order.
func (f *Flow) List(ctx context.Context) ([]*models.FlowDefinition, error) {
	return f.persistence.FlowRepository().GetAll(ctx)
}

func (f *Flow) FetchByID(ctx context.Context, id string) (*models.FlowDefinition, error) {
	return f.persistence.FlowRepository().GetByID(ctx, id)
}

// Candidates returns the flow definitions that may be started for the document.
func (f *Flow) Candidates(ctx context.Context, documentID string) ([]*models.FlowDefinition, error) {
	doc, err := f.persistence.DocumentRepository().GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	definitions, err := f.persistence.FlowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return f.matcher.Match(doc, definitions), nil
}

// Create stores a new flow definition. Structural soundness is not required
// at this point; drafts are validated when they are started.
func (f *Flow) Create(ctx context.Context, definition *models.FlowDefinition, actor string) (*models.FlowDefinition, error) {
	if definition == nil {
		return nil, ErrFlowNil
	}

	err := f.validate.Struct(definition)
	if err != nil {
		return nil, NewValidationError("create_flow", "invalid_flow", err.Error(), ErrInvalidRequest)
	}

	if definition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate flow ID: %w", err)
		}

		definition.ID = id.String()
	}

	now := time.Now().UTC()
	definition.IsLocked = false
	definition.CreatedBy = actor
	definition.UpdatedBy = actor
	definition.CreatedAt = now
	definition.UpdatedAt = now

	err = f.persistence.FlowRepository().Save(ctx, definition)
	if err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "Flow created", "flow_id", definition.ID, "code", definition.Code)

	return definition, nil
}

// Update replaces a flow definition. A locked flow only accepts changes to
// its name, description and enabled flag.
func (f *Flow) Update(ctx context.Context, id string, definition *models.FlowDefinition, actor string) (*models.FlowDefinition, error) {
	if definition == nil {
		return nil, ErrFlowNil
	}

	err := f.validate.Struct(definition)
	if err != nil {
		return nil, NewValidationError("update_flow", "invalid_flow", err.Error(), ErrInvalidRequest)
	}

	err = f.guard(ctx, "update_flow", id, func() error {
		existing, err := f.persistence.FlowRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if existing.IsLocked {
			changed, err := structureChanged(existing, definition)
			if err != nil {
				return err
			}

			if changed || existing.Code != definition.Code {
				return &ServiceError{Op: "update_flow", Code: "flow_locked", Err: ErrFlowLocked}
			}
		}

		definition.ID = existing.ID
		definition.IsLocked = existing.IsLocked
		definition.CreatedBy = existing.CreatedBy
		definition.CreatedAt = existing.CreatedAt
		definition.UpdatedBy = actor

		return f.persistence.FlowRepository().Save(ctx, definition)
	})
	if err != nil {
		return nil, err
	}

	return definition, nil
}

// FlowPatch holds the attributes that stay editable on a locked flow.
type FlowPatch struct {
	Name        *string `json:"name"        validate:"omitempty,min=3"`
	Description *string `json:"description"`
	IsEnabled   *bool   `json:"is_enabled"`
}

// Patch updates the name, description or enabled flag of a flow.
func (f *Flow) Patch(ctx context.Context, id string, patch FlowPatch, actor string) (*models.FlowDefinition, error) {
	err := f.validate.Struct(patch)
	if err != nil {
		return nil, NewValidationError("patch_flow", "invalid_patch", err.Error(), ErrInvalidRequest)
	}

	var definition *models.FlowDefinition

	err = f.guard(ctx, "patch_flow", id, func() error {
		loaded, err := f.persistence.FlowRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		definition = loaded

		if patch.Name != nil {
			definition.Name = *patch.Name
		}

		if patch.Description != nil {
			definition.Description = *patch.Description
		}

		if patch.IsEnabled != nil {
			definition.IsEnabled = *patch.IsEnabled
		}

		definition.UpdatedBy = actor

		return f.persistence.FlowRepository().Save(ctx, definition)
	})
	if err != nil {
		return nil, err
	}

	return definition, nil
}

// Delete removes a flow definition that no execution has used.
func (f *Flow) Delete(ctx context.Context, id string) error {
	return f.guard(ctx, "delete_flow", id, func() error {
		definition, err := f.persistence.FlowRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if definition.IsLocked {
			return &ServiceError{Op: "delete_flow", Code: "flow_locked", Err: ErrFlowLocked}
		}

		return f.persistence.FlowRepository().Delete(ctx, id)
	})
}

// ValidationResult lists the findings of flow.Validate for one definition.
type ValidationResult struct {
	FlowID string   `json:"flow_id"`
	Code   string   `json:"code"`
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Validate checks whether the stored definition can be executed.
func (f *Flow) Validate(ctx context.Context, id string) (*ValidationResult, error) {
	definition, err := f.persistence.FlowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return ValidateDefinition(definition), nil
}

// ValidateDefinition runs flow.Validate and flattens its findings.
func ValidateDefinition(definition *models.FlowDefinition) *ValidationResult {
	result := &ValidationResult{FlowID: definition.ID, Code: definition.Code, Valid: true, Issues: make([]string, 0)}

	for _, issue := range flow.Issues(flow.Validate(definition)) {
		result.Valid = false
		result.Issues = append(result.Issues, issue.Error())
	}

	return result
}

// structureChanged reports whether nodes, edges or the application filter differ.
func structureChanged(current, proposed *models.FlowDefinition) (bool, error) {
	for _, pair := range [][2]any{
		{current.Nodes, proposed.Nodes},
		{current.Edges, proposed.Edges},
		{filterOf(current), filterOf(proposed)},
	} {
		a, err := json.Marshal(pair[0])
		if err != nil {
			return false, err
		}

		b, err := json.Marshal(pair[1])
		if err != nil {
			return false, err
		}

		var left, right any

		_ = json.Unmarshal(a, &left)
		_ = json.Unmarshal(b, &right)

		if !reflect.DeepEqual(left, right) {
			return true, nil
		}
	}

	return false, nil
}

func filterOf(definition *models.FlowDefinition) *models.Condition {
	if !definition.HasApplicationFilter() {
		return nil
	}

	return definition.ApplicationFilter
}
