package flow

import (
	"fmt"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
)

// Switch output handles.
const (
	HandleLeft         = "a" // green, document value equals leftSwitch
	HandleUndetermined = "b" // gray, never bound to an edge
	HandleRight        = "c" // red, document value equals rightSwitch
)

var (
	inHandle  = models.Handle{ID: "in", Type: "target"}
	outHandle = models.Handle{ID: "out", Type: "source"}
)

var nodeMetadata = map[models.NodeKind]models.NodeTypeSchema{
	models.NodeKindStart: {
		Kind:        models.NodeKindStart,
		Name:        "Start",
		Description: "Entry point of the flow",
		Fields: []models.FieldSpec{
			{Name: "FromType", Type: models.FieldTypeEnum, Label: "Origem", Widget: "select", Options: []string{string(models.StartFromInit), string(models.StartFromFlow)}, Required: true},
			{Name: "From_Flow_id", Type: models.FieldTypeFlowRef, Label: "Fluxo de origem", Widget: "flow-select"},
		},
		Handles: []models.Handle{outHandle},
	},
	models.NodeKindEnd: {
		Kind:        models.NodeKindEnd,
		Name:        "End",
		Description: "Terminates the execution or transfers it to another flow",
		Fields: []models.FieldSpec{
			{Name: "To_Type", Type: models.FieldTypeEnum, Label: "Destino", Widget: "select", Options: []string{string(models.EndDirectFinish), string(models.EndFlowFinish)}, Required: true},
			{Name: "To_Flow_id", Type: models.FieldTypeFlowRef, Label: "Fluxo de destino", Widget: "flow-select"},
		},
		Handles: []models.Handle{inHandle},
	},
	models.NodeKindAction: {
		Kind:        models.NodeKindAction,
		Name:        "Action",
		Description: "Manual step, optionally gated by an approval",
		Fields: []models.FieldSpec{
			{Name: "actionType", Type: models.FieldTypeString, Label: "Tipo de ação", Widget: "text", Required: true},
			{Name: "isAproved", Type: models.FieldTypeEnum, Label: "Aprovação", Widget: "approval", Options: []string{string(models.ApprovalUnset), string(models.ApprovalTrue), string(models.ApprovalFalse)}},
		},
		Handles: []models.Handle{inHandle, outHandle},
	},
	models.NodeKindDocument: {
		Kind:        models.NodeKindDocument,
		Name:        "Document",
		Description: "Documentation step on the bound document",
		Fields: []models.FieldSpec{
			{Name: "docType", Type: models.FieldTypeString, Label: "Tipo de documento", Widget: "text", Required: true},
		},
		Handles: []models.Handle{inHandle, outHandle},
	},
	models.NodeKindIntegration: {
		Kind:        models.NodeKindIntegration,
		Name:        "Integration",
		Description: "Call to an external service that completes asynchronously",
		Fields: []models.FieldSpec{
			{Name: "service", Type: models.FieldTypeString, Label: "Serviço", Widget: "text", Required: true},
			{Name: "callType", Type: models.FieldTypeString, Label: "Tipo de chamada", Widget: "text"},
		},
		Handles: []models.Handle{inHandle, outHandle},
	},
	models.NodeKindSwitch: {
		Kind:        models.NodeKindSwitch,
		Name:        "Switch",
		Description: "Routes on a document attribute compared against two expected values",
		Fields: []models.FieldSpec{
			{Name: "switchField", Type: models.FieldTypeField, Label: "Campo", Widget: "field-select", Required: true, Evaluable: true},
			{Name: "leftSwitch", Type: models.FieldTypeString, Label: "Valor esquerdo", Widget: "text", Required: true},
			{Name: "rightSwitch", Type: models.FieldTypeString, Label: "Valor direito", Widget: "text", Required: true},
		},
		Handles: []models.Handle{
			inHandle,
			{ID: HandleLeft, Type: "source", Label: "left", Color: "green"},
			{ID: HandleUndetermined, Type: "source", Label: "undetermined", Color: "gray"},
			{ID: HandleRight, Type: "source", Label: "right", Color: "red"},
		},
	},
}

// NodeMetadata returns the declarative schema of a node kind.
func NodeMetadata(kind models.NodeKind) (models.NodeTypeSchema, error) {
	schema, ok := nodeMetadata[kind]
	if !ok {
		return models.NodeTypeSchema{}, fmt.Errorf("%w: %q", models.ErrUnknownNodeKind, kind)
	}

	return schema, nil
}

// AllNodeMetadata returns the schema of every node kind in palette order.
func AllNodeMetadata() []models.NodeTypeSchema {
	schemas := make([]models.NodeTypeSchema, 0, len(models.NodeKinds))

	for _, kind := range models.NodeKinds {
		schemas = append(schemas, nodeMetadata[kind])
	}

	return schemas
}

// EvaluableFields lists, per kind, the fields whose value names a document attribute.
func EvaluableFields(kind models.NodeKind) []string {
	fields := make([]string, 0)

	for _, field := range nodeMetadata[kind].Fields {
		if field.Evaluable {
			fields = append(fields, field.Name)
		}
	}

	return fields
}
