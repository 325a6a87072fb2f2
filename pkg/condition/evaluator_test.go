package condition_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/condition"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/stretchr/testify/assert"
)

func testDocument() *models.Document {
	return &models.Document{
		ID:        "doc-1",
		Status:    "Integrado",
		TaskState: models.TaskStateInDoc,
		Fields: map[string]any{
			"cliente":     "ACME Industria",
			"responsavel": "maria",
			"modulo":      "Financeiro",
			"horas":       12.0,
			"versao":      "2.1",
			"urgente":     true,
		},
	}
}

func leaf(field, op string, value any) *models.Condition {
	return &models.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluate_Leaves(t *testing.T) {
	t.Parallel()

	evaluator := condition.NewEvaluator(slog.Default())
	doc := testDocument()

	tests := []struct {
		name string
		cond *models.Condition
		want bool
	}{
		{"equal string", leaf("status", "=", "Integrado"), true},
		{"equal alias", leaf("status", "==", "Integrado"), true},
		{"equal is case sensitive", leaf("status", "=", "integrado"), false},
		{"equal number across types", leaf("horas", "=", 12), true},
		{"equal is strict across kinds", leaf("horas", "=", "12"), false},
		{"not equal", leaf("modulo", "!=", "RH"), true},
		{"not equal alias", leaf("modulo", "<>", "Financeiro"), false},
		{"greater numeric", leaf("horas", ">", 10), true},
		{"greater or equal numeric", leaf("horas", ">=", 12), true},
		{"less numeric", leaf("horas", "<", 10), false},
		{"less or equal numeric string", leaf("versao", "<=", "10"), true},
		{"lexicographic", leaf("responsavel", "<", "pedro"), true},
		{"contains case insensitive", leaf("cliente", "contains", "acme"), true},
		{"like case insensitive", leaf("cliente", "LIKE", "INDUSTRIA"), true},
		{"contains miss", leaf("cliente", "contains", "globex"), false},
		{"task state attribute", leaf("taskState", "=", "in_doc"), true},
		{"boolean equality", leaf("urgente", "=", true), true},
		{"missing field equal", leaf("origem", "=", "github"), false},
		{"missing field not equal", leaf("origem", "!=", "github"), true},
		{"missing field contains", leaf("origem", "contains", "git"), false},
		{"missing field compared", leaf("origem", ">", 1), false},
		{"missing field equals nil", leaf("origem", "=", nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, evaluator.Evaluate(doc, tt.cond))
		})
	}
}

func TestEvaluate_EmptyConditionMatches(t *testing.T) {
	t.Parallel()

	evaluator := condition.NewEvaluator(nil)
	doc := testDocument()

	assert.True(t, evaluator.Evaluate(doc, nil))
	assert.True(t, evaluator.Evaluate(doc, &models.Condition{}))
	assert.True(t, evaluator.Evaluate(doc, &models.Condition{Or: []*models.Condition{}}))
	assert.True(t, evaluator.Evaluate(nil, nil))
}

func TestEvaluate_StatusFilterMatchesExactly(t *testing.T) {
	t.Parallel()

	evaluator := condition.NewEvaluator(nil)
	filter := leaf("status", "=", "X")

	for _, status := range []string{"X", "Y", "", "x"} {
		doc := &models.Document{ID: "d", Status: status}
		assert.Equal(t, status == "X", evaluator.Evaluate(doc, filter), "status %q", status)
	}
}

func TestEvaluate_Compound(t *testing.T) {
	t.Parallel()

	evaluator := condition.NewEvaluator(nil)
	doc := testDocument()

	and := &models.Condition{And: []*models.Condition{
		leaf("status", "=", "Integrado"),
		leaf("modulo", "=", "Financeiro"),
	}}
	assert.True(t, evaluator.Evaluate(doc, and))

	and.And = append(and.And, leaf("horas", ">", 100))
	assert.False(t, evaluator.Evaluate(doc, and))

	or := &models.Condition{Or: []*models.Condition{
		leaf("modulo", "=", "RH"),
		leaf("cliente", "contains", "acme"),
	}}
	assert.True(t, evaluator.Evaluate(doc, or))

	nested := &models.Condition{And: []*models.Condition{
		leaf("status", "=", "Integrado"),
		{Or: []*models.Condition{leaf("modulo", "=", "RH"), leaf("modulo", "=", "Vendas")}},
	}}
	assert.False(t, evaluator.Evaluate(doc, nested))
}

func TestEvaluate_ShortCircuitsUnknownOperator(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	evaluator := condition.NewEvaluator(slog.New(slog.NewTextHandler(&buf, nil)))
	doc := testDocument()

	or := &models.Condition{Or: []*models.Condition{
		leaf("status", "=", "Integrado"),
		leaf("status", "matches", "^Int"),
	}}

	assert.True(t, evaluator.Evaluate(doc, or))
	assert.Empty(t, buf.String())
}

// Unknown operators fail open: the leaf matches and a warning is logged.
// This is deliberate policy, distinct from an evaluation failure.
func TestEvaluate_UnknownOperatorFailsOpen(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	evaluator := condition.NewEvaluator(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.True(t, evaluator.Evaluate(testDocument(), leaf("status", "between", "A")))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "operator=between")
	assert.False(t, condition.IsKnownOperator("between"))
	assert.True(t, condition.IsKnownOperator(" Contains "))
}

func TestEqualText(t *testing.T) {
	t.Parallel()

	assert.True(t, condition.EqualText("alta", "alta"))
	assert.False(t, condition.EqualText("Alta", "alta"))
	assert.True(t, condition.EqualText(true, "TRUE"))
	assert.True(t, condition.EqualText(3, "3"))
	assert.True(t, condition.EqualText(2.5, "2.5"))
	assert.False(t, condition.EqualText(nil, ""))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, condition.Equal(nil, nil))
	assert.False(t, condition.Equal(nil, ""))
	assert.True(t, condition.Equal(int64(4), 4.0))
	assert.False(t, condition.Equal(true, "true"))
}
