// Package web provides HTTP request and response types for the flow API.
package web

// StartExecutionRequest represents the request body for starting an execution.
type StartExecutionRequest struct {
	DocumentID string `json:"documentId" validate:"required"`
	FlowID     string `json:"flowId"     validate:"required"`
	Actor      string `json:"actor"      validate:"required"`
}

// AdvanceRequest represents the request body for one execution transition.
type AdvanceRequest struct {
	FromNodeID   string         `json:"fromNodeId"   validate:"required"`
	ActionParams map[string]any `json:"actionParams"`
	Actor        string         `json:"actor"        validate:"required"`
}

// TerminateRequest finishes an execution at an end node.
type TerminateRequest struct {
	EndNodeID string `json:"endNodeId" validate:"required"`
	Actor     string `json:"actor"     validate:"required"`
}

type CancelRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// IntegrationResultRequest reports the outcome of an external integration call.
type IntegrationResultRequest struct {
	NodeID string         `json:"nodeId" validate:"required"`
	Status string         `json:"status" validate:"required,oneof=succeeded failed"`
	Error  string         `json:"error"`
	Output map[string]any `json:"output"`
	Actor  string         `json:"actor"`
}

// ActorHeader names the user editing flow definitions.
const ActorHeader = "X-Actor"
