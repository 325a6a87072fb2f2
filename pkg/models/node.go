package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeKind identifies the kind of a flow node.
type NodeKind string

const (
	NodeKindStart       NodeKind = "start"
	NodeKindEnd         NodeKind = "end"
	NodeKindAction      NodeKind = "action"
	NodeKindDocument    NodeKind = "document"
	NodeKindIntegration NodeKind = "integration"
	NodeKindSwitch      NodeKind = "switch"
)

// NodeKinds lists every supported kind in editor palette order.
var NodeKinds = []NodeKind{
	NodeKindStart,
	NodeKindEnd,
	NodeKindAction,
	NodeKindDocument,
	NodeKindIntegration,
	NodeKindSwitch,
}

// ErrUnknownNodeKind is returned when a node carries a type outside NodeKinds.
var ErrUnknownNodeKind = errors.New("unknown node kind")

// StartFromType tells where an execution entering a start node comes from.
type StartFromType string

const (
	StartFromInit StartFromType = "Init"
	StartFromFlow StartFromType = "flow_Init"
)

// EndToType tells what happens when an execution reaches an end node.
type EndToType string

const (
	EndDirectFinish EndToType = "Direct_finish"
	EndFlowFinish   EndToType = "flow_Finish"
)

// Approval is the tri-state outcome of an approval-gated action node.
type Approval string

const (
	ApprovalUnset Approval = ""
	ApprovalTrue  Approval = "TRUE"
	ApprovalFalse Approval = "FALSE"
)

// IsDecided reports whether the approval was explicitly granted or rejected.
func (a Approval) IsDecided() bool {
	return a == ApprovalTrue || a == ApprovalFalse
}

// Position is layout-only information from the editor.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlowNode is one node of a flow definition graph.
type FlowNode struct {
	ID       string   `json:"id"       validate:"required"`
	Type     NodeKind `json:"type"     validate:"required,oneof=start end action document integration switch"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// NodeCommon holds the configuration shared by every node kind.
type NodeCommon struct {
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Configured  bool   `json:"configured"`
}

// NodeData is the kind-specific configuration of a node. The set of
// implementations is closed; switch on the concrete type to handle each kind.
type NodeData interface {
	Kind() NodeKind
	Common() NodeCommon
	nodeData()
}

type StartData struct {
	NodeCommon

	FromType   StartFromType `json:"FromType,omitempty"`
	FromFlowID string        `json:"From_Flow_id,omitempty"`
}

type EndData struct {
	NodeCommon

	ToType   EndToType `json:"To_Type,omitempty"`
	ToFlowID string    `json:"To_Flow_id,omitempty"`
}

// ActionData configures a manual step. A non-nil IsAproved makes the node approval-gated.
type ActionData struct {
	NodeCommon

	ActionType string    `json:"actionType,omitempty"`
	IsAproved  *Approval `json:"isAproved,omitempty"`
}

type DocumentData struct {
	NodeCommon

	DocType string `json:"docType,omitempty"`
}

// IntegrationData configures a call to an external service that completes asynchronously.
type IntegrationData struct {
	NodeCommon

	Service  string `json:"service,omitempty"`
	CallType string `json:"callType,omitempty"`
}

type SwitchData struct {
	NodeCommon

	SwitchField string `json:"switchField,omitempty"`
	LeftSwitch  string `json:"leftSwitch,omitempty"`
	RightSwitch string `json:"rightSwitch,omitempty"`
}

func (d *StartData) Kind() NodeKind       { return NodeKindStart }
func (d *EndData) Kind() NodeKind         { return NodeKindEnd }
func (d *ActionData) Kind() NodeKind      { return NodeKindAction }
func (d *DocumentData) Kind() NodeKind    { return NodeKindDocument }
func (d *IntegrationData) Kind() NodeKind { return NodeKindIntegration }
func (d *SwitchData) Kind() NodeKind      { return NodeKindSwitch }

func (d *StartData) Common() NodeCommon       { return d.NodeCommon }
func (d *EndData) Common() NodeCommon         { return d.NodeCommon }
func (d *ActionData) Common() NodeCommon      { return d.NodeCommon }
func (d *DocumentData) Common() NodeCommon    { return d.NodeCommon }
func (d *IntegrationData) Common() NodeCommon { return d.NodeCommon }
func (d *SwitchData) Common() NodeCommon      { return d.NodeCommon }

func (*StartData) nodeData()       {}
func (*EndData) nodeData()         {}
func (*ActionData) nodeData()      {}
func (*DocumentData) nodeData()    {}
func (*IntegrationData) nodeData() {}
func (*SwitchData) nodeData()      {}

// RequiresApproval reports whether the action node is approval-gated.
func (d *ActionData) RequiresApproval() bool {
	return d.IsAproved != nil
}

// NewNodeData returns an empty configuration for the given kind.
func NewNodeData(kind NodeKind) (NodeData, error) {
	switch kind {
	case NodeKindStart:
		return &StartData{}, nil
	case NodeKindEnd:
		return &EndData{}, nil
	case NodeKindAction:
		return &ActionData{}, nil
	case NodeKindDocument:
		return &DocumentData{}, nil
	case NodeKindIntegration:
		return &IntegrationData{}, nil
	case NodeKindSwitch:
		return &SwitchData{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeKind, kind)
	}
}

// UnmarshalJSON decodes the node and picks the concrete NodeData from its type.
func (n *FlowNode) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Type     NodeKind        `json:"type"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data"`
	}

	err := json.Unmarshal(b, &raw)
	if err != nil {
		return err
	}

	data, err := NewNodeData(raw.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		err = json.Unmarshal(raw.Data, data)
		if err != nil {
			return fmt.Errorf("node %s: invalid %s data: %w", raw.ID, raw.Type, err)
		}
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Position = raw.Position
	n.Data = data

	return nil
}

// Start returns the start configuration, or nil when the node is of another kind.
func (n *FlowNode) Start() *StartData {
	data, _ := n.Data.(*StartData)

	return data
}

// End returns the end configuration, or nil when the node is of another kind.
func (n *FlowNode) End() *EndData {
	data, _ := n.Data.(*EndData)

	return data
}

// Action returns the action configuration, or nil when the node is of another kind.
func (n *FlowNode) Action() *ActionData {
	data, _ := n.Data.(*ActionData)

	return data
}

// Integration returns the integration configuration, or nil when the node is of another kind.
func (n *FlowNode) Integration() *IntegrationData {
	data, _ := n.Data.(*IntegrationData)

	return data
}

// Switch returns the switch configuration, or nil when the node is of another kind.
func (n *FlowNode) Switch() *SwitchData {
	data, _ := n.Data.(*SwitchData)

	return data
}

// IsConfigured reports whether the designer marked the node as configured.
func (n *FlowNode) IsConfigured() bool {
	if n.Data == nil {
		return false
	}

	return n.Data.Common().Configured
}

// Label returns the node label, falling back to its id.
func (n *FlowNode) Label() string {
	if n.Data != nil {
		if label := n.Data.Common().Label; label != "" {
			return label
		}
	}

	return n.ID
}
