// Package seed loads flow definitions and documents from a YAML or JSON file.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"gopkg.in/yaml.v3"
)

// Actor is recorded as the author of seeded flows.
const Actor = "seed"

// File is the content of a seed file.
type File struct {
	Flows     []*models.FlowDefinition `json:"flows"`
	Documents []*models.Document       `json:"documents"`
}

// Load reads a seed file. Files ending in .json are decoded as JSON and
// anything else as YAML. YAML is converted to JSON first so node data goes
// through the same decoding as API requests.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	return Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
}

func Parse(data []byte, isJSON bool) (*File, error) {
	if !isJSON {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML seed: %w", err)
		}

		converted, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML seed: %w", err)
		}

		data = converted
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}

	for i, definition := range file.Flows {
		if definition == nil || definition.ID == "" {
			return nil, fmt.Errorf("flows[%d]: id is required", i)
		}
	}

	for i, doc := range file.Documents {
		if doc == nil || doc.ID == "" {
			return nil, fmt.Errorf("documents[%d]: id is required", i)
		}
	}

	return &file, nil
}

// Apply stores the seeded flows and documents. Entities that already exist
// are left untouched so a restart never overwrites edits or locked flows.
func Apply(ctx context.Context, p persistence.Persistence, file *File, logger *slog.Logger) error {
	logger = logger.With("module", "seed")

	for _, definition := range file.Flows {
		_, err := p.FlowRepository().GetByID(ctx, definition.ID)

		switch {
		case err == nil:
			logger.DebugContext(ctx, "Flow already present", "flow_id", definition.ID)

			continue
		case !errors.Is(err, persistence.ErrFlowNotFound):
			return fmt.Errorf("seed flow %s: %w", definition.ID, err)
		}

		definition.IsLocked = false
		definition.CreatedBy = Actor
		definition.UpdatedBy = Actor

		if err := p.FlowRepository().Save(ctx, definition); err != nil {
			return fmt.Errorf("seed flow %s: %w", definition.ID, err)
		}

		logger.InfoContext(ctx, "Flow seeded", "flow_id", definition.ID, "code", definition.Code)
	}

	for _, doc := range file.Documents {
		_, err := p.DocumentRepository().GetByID(ctx, doc.ID)

		switch {
		case err == nil:
			continue
		case !errors.Is(err, persistence.ErrDocumentNotFound):
			return fmt.Errorf("seed document %s: %w", doc.ID, err)
		}

		if err := p.DocumentRepository().Save(ctx, doc); err != nil {
			return fmt.Errorf("seed document %s: %w", doc.ID, err)
		}

		logger.InfoContext(ctx, "Document seeded", "document_id", doc.ID)
	}

	return nil
}
