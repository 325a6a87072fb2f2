// Package matcher selects the flow definitions eligible for a document.
package matcher

import (
	"log/slog"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/condition"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
)

// Matcher filters flow definitions by their enabled flag and application filter.
// It returns every eligible definition and leaves selection to the caller.
type Matcher struct {
	evaluator *condition.Evaluator
	logger    *slog.Logger
}

func NewMatcher(evaluator *condition.Evaluator, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Matcher{
		evaluator: evaluator,
		logger:    logger.With("module", "matcher"),
	}
}

// Match returns the enabled definitions whose application filter is empty or
// satisfied by the document, in the order they were given.
func (m *Matcher) Match(doc *models.Document, definitions []*models.FlowDefinition) []*models.FlowDefinition {
	eligible := make([]*models.FlowDefinition, 0)

	for _, definition := range definitions {
		if m.Eligible(doc, definition) {
			eligible = append(eligible, definition)
		}
	}

	m.logger.Debug("Matched flow definitions",
		"document_id", doc.ID,
		"candidates", len(definitions),
		"eligible", len(eligible))

	return eligible
}

// Eligible reports whether a single definition applies to the document.
func (m *Matcher) Eligible(doc *models.Document, definition *models.FlowDefinition) bool {
	if definition == nil || !definition.IsEnabled {
		return false
	}

	if !definition.HasApplicationFilter() {
		return true
	}

	return m.evaluator.Evaluate(doc, definition.ApplicationFilter)
}
