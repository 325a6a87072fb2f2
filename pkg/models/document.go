package models

import "time"

// TaskState is the documentation progress of a document.
type TaskState string

const (
	TaskStateNone      TaskState = ""
	TaskStateInDoc     TaskState = "in_doc"
	TaskStateInApr     TaskState = "in_apr"
	TaskStateCompleted TaskState = "completed"
	TaskStateBlocked   TaskState = "blocked"
	TaskStateReview    TaskState = "review"
)

// Document is the unit routed through flows. Business attributes such as
// cliente, responsavel, modulo or origem live in Fields.
type Document struct {
	ID        string         `json:"id"         validate:"required"`
	Title     string         `json:"title"`
	Status    string         `json:"status"`
	TaskState TaskState      `json:"task_state" validate:"omitempty,oneof=in_doc in_apr completed blocked review"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Attribute resolves a named attribute of the document. The well-known
// attributes are checked before the free-form fields.
func (d *Document) Attribute(name string) (any, bool) {
	switch name {
	case "id":
		return d.ID, true
	case "title":
		return d.Title, true
	case "status":
		return d.Status, true
	case "taskState", "task_state":
		return string(d.TaskState), true
	}

	if d.Fields == nil {
		return nil, false
	}

	value, ok := d.Fields[name]

	return value, ok
}
