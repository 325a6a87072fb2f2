// Package file provides file-based persistence for flow definitions, documents and executions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	mu            *sync.RWMutex
	flowRepo      *FlowRepository
	documentRepo  *DocumentRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.RWMutex{}

	return &Persistence{
		root:          cleanRoot,
		mu:            mu,
		flowRepo:      &FlowRepository{root: cleanRoot, mu: mu},
		documentRepo:  &DocumentRepository{root: cleanRoot, mu: mu},
		executionRepo: &ExecutionRepository{root: cleanRoot, mu: mu},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flowRepo
}

func (fp *Persistence) DocumentRepository() persistence.DocumentRepository {
	return fp.documentRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// validateID rejects identifiers that are unsafe as file names.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("id %q contains invalid characters", id)
	}

	return nil
}

// readJSON decodes the file into v. It reports false when the file does not exist.
func readJSON(path string, v any) (bool, error) {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	err = json.Unmarshal(body, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return true, nil
}

// writeJSON replaces the file through a temporary file and a rename, so
// readers never observe a partial write.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}

// listJSON returns the ids of the json files in dir.
func listJSON(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(match), ".json"))
	}

	return ids, nil
}
