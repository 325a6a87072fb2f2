// Package models defines the core domain models for document flow definitions and executions
package models

import "time"

// FlowDefinition is a designer-authored graph describing how a document moves through stages.
type FlowDefinition struct {
	ID                string      `json:"id"`
	Code              string      `json:"code"                         validate:"required,min=2"`
	Name              string      `json:"name"                         validate:"required,min=3"`
	Description       string      `json:"description"`
	Nodes             []*FlowNode `json:"nodes"                        validate:"dive"`
	Edges             []*FlowEdge `json:"edges"                        validate:"dive"`
	ApplicationFilter *Condition  `json:"application_filter,omitempty"`
	IsEnabled         bool        `json:"is_enabled"`
	IsLocked          bool        `json:"is_locked"`
	CreatedBy         string      `json:"created_by"`
	UpdatedBy         string      `json:"updated_by"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// FlowEdge connects two nodes of the same definition. Switch nodes bind edges
// to one of their named output handles through SourceHandle.
type FlowEdge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"                 validate:"required"`
	Target       string         `json:"target"                 validate:"required"`
	SourceHandle string         `json:"sourceHandle,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (f *FlowDefinition) NodeByID(id string) *FlowNode {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// NodesOfKind returns the nodes of the given kind in declaration order.
func (f *FlowDefinition) NodesOfKind(kind NodeKind) []*FlowNode {
	nodes := make([]*FlowNode, 0)

	for _, node := range f.Nodes {
		if node.Type == kind {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// HasApplicationFilter reports whether the definition restricts the documents it applies to.
func (f *FlowDefinition) HasApplicationFilter() bool {
	return f.ApplicationFilter != nil && !f.ApplicationFilter.IsEmpty()
}
