// Package condition evaluates filter expression trees against documents.
package condition

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
)

// Supported comparison operators.
const (
	OpEqual          = "="
	OpEqualAlt       = "=="
	OpNotEqual       = "!="
	OpNotEqualAlt    = "<>"
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpContains       = "contains"
	OpLike           = "like"
)

// Operators lists the supported operators in the order graph editors offer them.
var Operators = []string{
	OpEqual, OpEqualAlt, OpNotEqual, OpNotEqualAlt,
	OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual,
	OpContains, OpLike,
}

// IsKnownOperator reports whether the operator is supported.
func IsKnownOperator(op string) bool {
	switch normalizeOperator(op) {
	case OpEqual, OpEqualAlt, OpNotEqual, OpNotEqualAlt,
		OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual,
		OpContains, OpLike:
		return true
	default:
		return false
	}
}

// Evaluator evaluates condition trees. Leaves with an unknown operator
// evaluate to true and are logged at warn level.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{logger: logger.With("module", "condition")}
}

// Evaluate reports whether the document satisfies the condition. An empty or
// absent condition always matches. And lists require every child, Or lists
// any child; both short-circuit in declaration order.
func (e *Evaluator) Evaluate(doc *models.Document, cond *models.Condition) bool {
	if cond.IsEmpty() {
		return true
	}

	if cond.IsLeaf() {
		return e.evaluateLeaf(doc, cond)
	}

	for _, child := range cond.And {
		if !e.Evaluate(doc, child) {
			return false
		}
	}

	if len(cond.Or) == 0 {
		return true
	}

	for _, child := range cond.Or {
		if e.Evaluate(doc, child) {
			return true
		}
	}

	return false
}

func (e *Evaluator) evaluateLeaf(doc *models.Document, cond *models.Condition) bool {
	var actual any

	if doc != nil {
		actual, _ = doc.Attribute(cond.Field)
	}

	switch normalizeOperator(cond.Operator) {
	case OpEqual, OpEqualAlt:
		return Equal(actual, cond.Value)
	case OpNotEqual, OpNotEqualAlt:
		return !Equal(actual, cond.Value)
	case OpGreater:
		cmp, ok := compare(actual, cond.Value)
		return ok && cmp > 0
	case OpGreaterOrEqual:
		cmp, ok := compare(actual, cond.Value)
		return ok && cmp >= 0
	case OpLess:
		cmp, ok := compare(actual, cond.Value)
		return ok && cmp < 0
	case OpLessOrEqual:
		cmp, ok := compare(actual, cond.Value)
		return ok && cmp <= 0
	case OpContains, OpLike:
		return contains(actual, cond.Value)
	default:
		e.logger.Warn("Unknown condition operator, treating as match",
			"operator", cond.Operator,
			"field", cond.Field,
			"document_id", documentID(doc))

		return true
	}
}

// Equal is strict equality: values of different kinds never match, numbers
// compare by value regardless of their Go type.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if x, ok := number(a); ok {
		y, ok := number(b)

		return ok && x == y
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
}

// EqualText compares a value against an expected value typed as text, such as
// a switch node's leftSwitch. Non-string values match through their string form.
func EqualText(value any, expected string) bool {
	if value == nil {
		return false
	}

	if s, ok := value.(string); ok {
		return s == expected
	}

	if Equal(value, expected) {
		return true
	}

	return Text(value) == expected
}

// Text renders a scalar the way it is shown to users.
func Text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "TRUE"
		}

		return "FALSE"
	}

	if n, ok := number(value); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}

	return fmt.Sprint(value)
}

func normalizeOperator(op string) string {
	return strings.ToLower(strings.TrimSpace(op))
}

// compare orders two values numerically when both are numeric, otherwise
// lexicographically on their string form. Missing values are not ordered.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	x, okA := numeric(a)
	y, okB := numeric(b)

	if okA && okB {
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	}

	return strings.Compare(Text(a), Text(b)), true
}

func contains(haystack, needle any) bool {
	if haystack == nil || needle == nil {
		return false
	}

	return strings.Contains(strings.ToLower(Text(haystack)), strings.ToLower(Text(needle)))
}

// number converts Go numeric types to float64.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// numeric is number extended to numeric strings, used for ordering only.
func numeric(v any) (float64, bool) {
	if n, ok := number(v); ok {
		return n, true
	}

	s, ok := v.(string)
	if !ok {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)

	return f, err == nil
}

func documentID(doc *models.Document) string {
	if doc == nil {
		return ""
	}

	return doc.ID
}
