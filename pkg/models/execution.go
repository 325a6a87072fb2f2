package models

import (
	"maps"
	"time"
)

// ExecutionStatus is the lifecycle state of a flow execution.
type ExecutionStatus string

const (
	ExecutionStatusInitiated  ExecutionStatus = "initiated"   // At the start node
	ExecutionStatusInProgress ExecutionStatus = "in_progress" // Advanced past the start node
	ExecutionStatusCompleted  ExecutionStatus = "completed"   // Reached a Direct_finish end node
	ExecutionStatusFailed     ExecutionStatus = "failed"      // Failed or cancelled
	ExecutionStatusTransfered ExecutionStatus = "transfered"  // Handed over to another flow
)

// ActiveExecutionStatuses are the statuses of a non-terminal execution.
var ActiveExecutionStatuses = []ExecutionStatus{ExecutionStatusInitiated, ExecutionStatusInProgress}

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusTransfered
}

// TaskStatus is the bookkeeping state of one node within an execution.
type TaskStatus string

const (
	TaskStatusActive  TaskStatus = "active"
	TaskStatusPending TaskStatus = "pending" // Waiting on an external integration result
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// FlowTask tracks an execution's visit to one node.
type FlowTask struct {
	NodeID      string         `json:"node_id"`
	Kind        NodeKind       `json:"kind"`
	Status      TaskStatus     `json:"status"`
	IsAproved   Approval       `json:"isAproved,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	EnteredAt   time.Time      `json:"entered_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ExecutionData is the progress snapshot of an execution.
type ExecutionData struct {
	CurrentNodeID   string `json:"current_node_id"`
	FlowName        string `json:"flow_name"`
	FlowCode        string `json:"flow_code"`
	PendingNodeID   string `json:"pending_node_id,omitempty"`
	TransferredTo   string `json:"transferred_to,omitempty"`
	TransferredFrom string `json:"transferred_from,omitempty"`
	FailedNodeID    string `json:"failed_node_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// FlowExecution is one instantiation of a flow definition against a document.
type FlowExecution struct {
	ID            string               `json:"id"`
	DocumentID    string               `json:"document_id"`
	FlowID        string               `json:"flow_id"`
	Status        ExecutionStatus      `json:"status"`
	ExecutionData ExecutionData        `json:"execution_data"`
	FlowTasks     map[string]*FlowTask `json:"flow_tasks"`
	StartedBy     string               `json:"started_by"`
	Version       int64                `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// IsActive reports whether the execution still accepts transitions.
func (e *FlowExecution) IsActive() bool {
	return !e.Status.IsTerminal()
}

// Task returns the bookkeeping entry for a node, creating it when missing.
func (e *FlowExecution) Task(nodeID string, kind NodeKind, now time.Time) *FlowTask {
	if e.FlowTasks == nil {
		e.FlowTasks = make(map[string]*FlowTask)
	}

	task, ok := e.FlowTasks[nodeID]
	if !ok {
		task = &FlowTask{NodeID: nodeID, Kind: kind, Status: TaskStatusActive, EnteredAt: now}
		e.FlowTasks[nodeID] = task
	}

	return task
}

// Clone returns a deep copy so a transition can be prepared without touching the original.
func (e *FlowExecution) Clone() *FlowExecution {
	clone := *e

	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		clone.CompletedAt = &completedAt
	}

	clone.FlowTasks = make(map[string]*FlowTask, len(e.FlowTasks))

	for id, task := range e.FlowTasks {
		copied := *task
		copied.Output = maps.Clone(task.Output)

		if task.CompletedAt != nil {
			completedAt := *task.CompletedAt
			copied.CompletedAt = &completedAt
		}

		clone.FlowTasks[id] = &copied
	}

	return &clone
}

// FlowAction is the immutable audit record of one transition.
type FlowAction struct {
	ID                string         `json:"id"`
	ExecutionID       string         `json:"execution_id"`
	ActionDescription string         `json:"action_description"`
	Actor             string         `json:"actor"`
	FlowNode          string         `json:"flow_node"`
	ActionParams      map[string]any `json:"action_params,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	EndAt             time.Time      `json:"end_at"`
}
