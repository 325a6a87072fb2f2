// Package flow implements the flow definition graph model and its validation.
package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrStructural matches every malformed-graph error.
	ErrStructural = errors.New("structural error")

	// ErrConfiguration matches every node configuration error.
	ErrConfiguration = errors.New("configuration error")
)

// StructuralError reports a malformed graph: missing start or end nodes,
// unreachable nodes, dangling edges or an ambiguous transition.
type StructuralError struct {
	NodeID string
	EdgeID string
	Reason string
}

func (e *StructuralError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("structural error at edge %s: %s", e.EdgeID, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("structural error at node %s: %s", e.NodeID, e.Reason)
	default:
		return "structural error: " + e.Reason
	}
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

// ConfigurationError reports a node whose configuration is incomplete or contradictory.
type ConfigurationError struct {
	NodeID string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error at node %s field %s: %s", e.NodeID, e.Field, e.Reason)
	}

	return fmt.Sprintf("configuration error at node %s: %s", e.NodeID, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Issues flattens an error returned by Validate into its individual findings.
func Issues(err error) []error {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}

	return []error{err}
}
