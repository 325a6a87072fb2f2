package models

// JSONSchema represents a JSON Schema for node configuration validation
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	MinLength   *int   `json:"minLength,omitempty"`
}

// FieldType is the value type of a node configuration field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeEnum    FieldType = "enum"
	FieldTypeFlowRef FieldType = "flow_ref"
	FieldTypeField   FieldType = "document_field"
)

// FieldSpec describes one configuration field of a node kind.
type FieldSpec struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Label     string    `json:"label"`
	Widget    string    `json:"widget,omitempty"`
	Options   []string  `json:"options,omitempty"`
	Required  bool      `json:"required"`
	Evaluable bool      `json:"evaluable"` // The value names a document attribute read at runtime
}

// Handle is a named output port of a node.
type Handle struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Color string `json:"color,omitempty"`
}

// NodeTypeSchema is the declarative description of a node kind used by graph
// editors and by configuration validation.
type NodeTypeSchema struct {
	Kind        NodeKind    `json:"kind"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Fields      []FieldSpec `json:"fields"`
	Handles     []Handle    `json:"handles"`
}

// Field returns the field spec with the given name.
func (s *NodeTypeSchema) Field(name string) (FieldSpec, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}

	return FieldSpec{}, false
}

// HasHandle reports whether the kind declares the given output handle.
func (s *NodeTypeSchema) HasHandle(id string) bool {
	for _, handle := range s.Handles {
		if handle.Type == "source" && handle.ID == id {
			return true
		}
	}

	return false
}

// JSONSchema renders the fields as a JSON Schema that a configured node's data must satisfy.
func (s *NodeTypeSchema) JSONSchema() *JSONSchema {
	schema := &JSONSchema{
		Type:        "object",
		Title:       s.Name,
		Description: s.Description,
		Properties:  make(map[string]*Property, len(s.Fields)),
		Required:    make([]string, 0),
	}

	for _, field := range s.Fields {
		property := &Property{Type: "string", Description: field.Label}

		switch field.Type {
		case FieldTypeBoolean:
			property.Type = "boolean"
		case FieldTypeEnum:
			property.Enum = make([]any, 0, len(field.Options))
			for _, option := range field.Options {
				property.Enum = append(property.Enum, option)
			}
		}

		if field.Required && property.Type == "string" {
			minLength := 1
			property.MinLength = &minLength
		}

		schema.Properties[field.Name] = property

		if field.Required {
			schema.Required = append(schema.Required, field.Name)
		}
	}

	return schema
}
