package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Validate checks that a definition is executable: exactly one start node,
// every node reachable from it, at least one reachable end node, no dangling
// edges, switch edges bound to declared handles and complete configuration
// on nodes marked as configured. All findings are joined into one error;
// each matches ErrStructural or ErrConfiguration.
func Validate(definition *models.FlowDefinition) error {
	if definition == nil {
		return &StructuralError{Reason: "definition is nil"}
	}

	issues := make([]error, 0)
	graph := NewGraph(definition)

	issues = append(issues, validateNodes(definition)...)
	issues = append(issues, validateEdges(graph)...)
	issues = append(issues, validateReachability(graph)...)
	issues = append(issues, validateFilter(definition.ApplicationFilter, "application_filter")...)

	return errors.Join(issues...)
}

func validateNodes(definition *models.FlowDefinition) []error {
	issues := make([]error, 0)
	seen := make(map[string]bool, len(definition.Nodes))
	starts, ends := 0, 0

	for i, node := range definition.Nodes {
		if node == nil || node.ID == "" {
			issues = append(issues, &StructuralError{Reason: fmt.Sprintf("node at position %d has no id", i)})

			continue
		}

		if seen[node.ID] {
			issues = append(issues, &StructuralError{NodeID: node.ID, Reason: "duplicate node id"})
		}

		seen[node.ID] = true

		switch node.Type {
		case models.NodeKindStart:
			starts++
		case models.NodeKindEnd:
			ends++
		}

		issues = append(issues, validateNodeData(node)...)
	}

	if starts == 0 {
		issues = append(issues, &StructuralError{Reason: "flow has no start node"})
	} else if starts > 1 {
		issues = append(issues, &StructuralError{Reason: fmt.Sprintf("flow has %d start nodes, expected exactly one", starts)})
	}

	if ends == 0 {
		issues = append(issues, &StructuralError{Reason: "flow has no end node"})
	}

	return issues
}

func validateNodeData(node *models.FlowNode) []error {
	if _, err := NodeMetadata(node.Type); err != nil {
		return []error{&ConfigurationError{NodeID: node.ID, Field: "type", Reason: err.Error()}}
	}

	if node.Data == nil {
		return nil
	}

	if node.Data.Kind() != node.Type {
		return []error{&ConfigurationError{NodeID: node.ID, Reason: fmt.Sprintf("data of kind %s on a %s node", node.Data.Kind(), node.Type)}}
	}

	issues := make([]error, 0)

	switch data := node.Data.(type) {
	case *models.StartData:
		if data.FromType == models.StartFromInit && data.FromFlowID != "" {
			issues = append(issues, &ConfigurationError{NodeID: node.ID, Field: "From_Flow_id", Reason: "an Init start node must not reference an originating flow"})
		}
	case *models.EndData:
		if data.ToType == models.EndDirectFinish && data.ToFlowID != "" {
			issues = append(issues, &ConfigurationError{NodeID: node.ID, Field: "To_Flow_id", Reason: "a Direct_finish end node must not reference a target flow"})
		}

		if data.ToType == models.EndFlowFinish && data.ToFlowID == "" && data.Configured {
			issues = append(issues, &ConfigurationError{NodeID: node.ID, Field: "To_Flow_id", Reason: "a flow_Finish end node requires a target flow"})
		}
	}

	if node.IsConfigured() {
		issues = append(issues, validateConfiguredData(node)...)
	}

	return issues
}

func validateConfiguredData(node *models.FlowNode) []error {
	metadata, _ := NodeMetadata(node.Type)

	schemaLoader := gojsonschema.NewGoLoader(metadata.JSONSchema())
	dataLoader := gojsonschema.NewGoLoader(node.Data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return []error{&ConfigurationError{NodeID: node.ID, Reason: err.Error()}}
	}

	if result.Valid() {
		return nil
	}

	issues := make([]error, 0, len(result.Errors()))

	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" {
			if name, ok := desc.Details()["property"].(string); ok {
				field = name
			}
		}

		issues = append(issues, &ConfigurationError{NodeID: node.ID, Field: field, Reason: desc.Description()})
	}

	return issues
}

func validateEdges(graph *Graph) []error {
	issues := make([]error, 0)

	for i, edge := range graph.Definition().Edges {
		if edge == nil {
			issues = append(issues, &StructuralError{Reason: fmt.Sprintf("edge at position %d is empty", i)})

			continue
		}

		edgeID := edge.ID
		if edgeID == "" {
			edgeID = fmt.Sprintf("%s->%s", edge.Source, edge.Target)
		}

		source, ok := graph.Node(edge.Source)
		if !ok {
			issues = append(issues, &StructuralError{EdgeID: edgeID, Reason: "source node " + edge.Source + " does not exist"})
		}

		if _, ok := graph.Node(edge.Target); !ok {
			issues = append(issues, &StructuralError{EdgeID: edgeID, Reason: "target node " + edge.Target + " does not exist"})
		}

		if source != nil && source.Type == models.NodeKindSwitch &&
			edge.SourceHandle != HandleLeft && edge.SourceHandle != HandleRight {
			issues = append(issues, &ConfigurationError{
				NodeID: source.ID,
				Field:  "sourceHandle",
				Reason: fmt.Sprintf("edge %s is bound to handle %q, expected %q or %q", edgeID, edge.SourceHandle, HandleLeft, HandleRight),
			})
		}
	}

	return issues
}

func validateReachability(graph *Graph) []error {
	start := graph.StartNode()
	if start == nil {
		return nil
	}

	reachable := graph.Reachable(start.ID)
	issues := make([]error, 0)
	unreachable := make([]string, 0)
	endReachable := false

	for _, node := range graph.Definition().Nodes {
		if node == nil || node.ID == "" {
			continue
		}

		if !reachable[node.ID] {
			unreachable = append(unreachable, node.ID)

			continue
		}

		if node.Type == models.NodeKindEnd {
			endReachable = true
		}
	}

	if len(unreachable) > 0 {
		issues = append(issues, &StructuralError{Reason: "nodes not reachable from start: " + strings.Join(unreachable, ", ")})
	}

	if !endReachable {
		issues = append(issues, &StructuralError{NodeID: start.ID, Reason: "no end node is reachable from start"})
	}

	return issues
}

func validateFilter(cond *models.Condition, path string) []error {
	if cond == nil {
		return nil
	}

	issues := make([]error, 0)

	if len(cond.And) > 0 && len(cond.Or) > 0 {
		issues = append(issues, &ConfigurationError{NodeID: "flow", Field: path, Reason: "and and or are mutually exclusive at the same level"})
	}

	if cond.Field != "" && (len(cond.And) > 0 || len(cond.Or) > 0) {
		issues = append(issues, &ConfigurationError{NodeID: "flow", Field: path, Reason: "a comparison cannot also hold and/or children"})
	}

	for i, child := range cond.And {
		issues = append(issues, validateFilter(child, fmt.Sprintf("%s.and[%d]", path, i))...)
	}

	for i, child := range cond.Or {
		issues = append(issues, validateFilter(child, fmt.Sprintf("%s.or[%d]", path, i))...)
	}

	return issues
}
