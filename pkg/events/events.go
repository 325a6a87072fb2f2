// Package events defines event types and structures for flow execution lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Kafka topics.
const (
	ExecutionTopic   = "composer.executions"   // Execution lifecycle events
	IntegrationTopic = "composer.integrations" // Integration requests and results
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent    EventType = "execution.started"
	ExecutionAdvancedEvent   EventType = "execution.advanced"
	ExecutionCompletedEvent  EventType = "execution.completed"
	ExecutionTransferedEvent EventType = "execution.transfered"
	ExecutionFailedEvent     EventType = "execution.failed"

	IntegrationRequestedEvent EventType = "integration.requested"
	IntegrationCompletedEvent EventType = "integration.completed"
)

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case IntegrationRequestedEvent, IntegrationCompletedEvent:
		return IntegrationTopic
	default:
		return ExecutionTopic
	}
}

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	DocumentID  string         `json:"document_id,omitempty"`
	FlowID      string         `json:"flow_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the common fields of an event.
func NewBaseEvent(id string, eventType EventType, executionID, documentID, flowID string) BaseEvent {
	return BaseEvent{
		ID:          id,
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		DocumentID:  documentID,
		FlowID:      flowID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	StartNodeID     string `json:"start_node_id"`
	StartedBy       string `json:"started_by"`
	TransferredFrom string `json:"transferred_from,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionAdvanced struct {
	BaseEvent

	FromNodeID string         `json:"from_node_id"`
	ToNodeID   string         `json:"to_node_id"`
	Actor      string         `json:"actor"`
	Params     map[string]any `json:"params,omitempty"`
}

func (e ExecutionAdvanced) GetType() EventType {
	return ExecutionAdvancedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	EndNodeID string        `json:"end_node_id"`
	Duration  time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionTransfered struct {
	BaseEvent

	EndNodeID      string `json:"end_node_id"`
	TargetFlowID   string `json:"target_flow_id"`
	NewExecutionID string `json:"new_execution_id"`
}

func (e ExecutionTransfered) GetType() EventType {
	return ExecutionTransferedEvent
}

type ExecutionFailed struct {
	BaseEvent

	NodeID string `json:"node_id,omitempty"`
	Error  string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// IntegrationRequested asks an external worker to perform an integration node's call.
type IntegrationRequested struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	Service  string `json:"service"`
	CallType string `json:"call_type,omitempty"`
}

func (e IntegrationRequested) GetType() EventType {
	return IntegrationRequestedEvent
}

// IntegrationCompleted carries the outcome of an integration call back to the engine.
type IntegrationCompleted struct {
	BaseEvent

	NodeID string         `json:"node_id"`
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Output map[string]any `json:"output,omitempty"`
}

func (e IntegrationCompleted) GetType() EventType {
	return IntegrationCompletedEvent
}
