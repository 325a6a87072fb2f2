package models

// Condition is a filter expression tree. A leaf compares one document field
// against a value; a compound node holds either an And or an Or list.
type Condition struct {
	Field    string       `json:"field,omitempty"    yaml:"field,omitempty"`
	Operator string       `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any          `json:"value,omitempty"    yaml:"value,omitempty"`
	And      []*Condition `json:"and,omitempty"      yaml:"and,omitempty"`
	Or       []*Condition `json:"or,omitempty"       yaml:"or,omitempty"`
}

// IsEmpty reports whether the condition constrains nothing.
func (c *Condition) IsEmpty() bool {
	return c == nil || (c.Field == "" && len(c.And) == 0 && len(c.Or) == 0)
}

// IsLeaf reports whether the condition is a field comparison.
func (c *Condition) IsLeaf() bool {
	return c != nil && c.Field != ""
}
