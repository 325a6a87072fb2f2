package flow

import (
	"fmt"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
)

// Graph indexes a flow definition by node id. Nodes and edges reference each
// other only by id; the definition itself is never mutated.
type Graph struct {
	definition *models.FlowDefinition
	nodes      map[string]*models.FlowNode
	outgoing   map[string][]*models.FlowEdge
	starts     []*models.FlowNode
}

// NewGraph builds the index for a definition.
func NewGraph(definition *models.FlowDefinition) *Graph {
	g := &Graph{
		definition: definition,
		nodes:      make(map[string]*models.FlowNode, len(definition.Nodes)),
		outgoing:   make(map[string][]*models.FlowEdge),
	}

	for _, node := range definition.Nodes {
		if node == nil {
			continue
		}

		if _, exists := g.nodes[node.ID]; !exists {
			g.nodes[node.ID] = node
		}

		if node.Type == models.NodeKindStart {
			g.starts = append(g.starts, node)
		}
	}

	for _, edge := range definition.Edges {
		if edge == nil {
			continue
		}

		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
	}

	return g
}

// Definition returns the indexed definition.
func (g *Graph) Definition() *models.FlowDefinition {
	return g.definition
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*models.FlowNode, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// StartNode returns the single start node, or nil when the definition has none.
func (g *Graph) StartNode() *models.FlowNode {
	if len(g.starts) == 0 {
		return nil
	}

	return g.starts[0]
}

// OutgoingEdges returns the edges leaving a node. For switch nodes the handle
// selects the branch; an undeclared handle or a branch without an edge is a
// ConfigurationError. Other nodes ignore the handle.
func (g *Graph) OutgoingEdges(nodeID, handle string) ([]*models.FlowEdge, error) {
	node, ok := g.nodes[nodeID]
	if !ok {
		return nil, &StructuralError{NodeID: nodeID, Reason: "node does not exist"}
	}

	if node.Type != models.NodeKindSwitch {
		return g.outgoing[nodeID], nil
	}

	if handle != HandleLeft && handle != HandleRight {
		return nil, &ConfigurationError{NodeID: nodeID, Field: "sourceHandle", Reason: fmt.Sprintf("handle %q has no transition", handle)}
	}

	edges := make([]*models.FlowEdge, 0, 1)

	for _, edge := range g.outgoing[nodeID] {
		if edge.SourceHandle == handle {
			edges = append(edges, edge)
		}
	}

	if len(edges) == 0 {
		return nil, &ConfigurationError{NodeID: nodeID, Field: "sourceHandle", Reason: fmt.Sprintf("no edge bound to handle %q", handle)}
	}

	return edges, nil
}

// Next resolves the single successor of a node through the given handle.
// Zero or several candidate edges is a StructuralError.
func (g *Graph) Next(nodeID, handle string) (*models.FlowNode, *models.FlowEdge, error) {
	edges, err := g.OutgoingEdges(nodeID, handle)
	if err != nil {
		return nil, nil, err
	}

	switch len(edges) {
	case 0:
		return nil, nil, &StructuralError{NodeID: nodeID, Reason: "no outgoing edge"}
	case 1:
	default:
		return nil, nil, &StructuralError{NodeID: nodeID, Reason: fmt.Sprintf("%d outgoing edges, expected exactly one", len(edges))}
	}

	edge := edges[0]

	target, ok := g.nodes[edge.Target]
	if !ok {
		return nil, nil, &StructuralError{EdgeID: edge.ID, Reason: "target node " + edge.Target + " does not exist"}
	}

	return target, edge, nil
}

// Reachable returns the ids of every node reachable from the given node, itself included.
func (g *Graph) Reachable(fromID string) map[string]bool {
	seen := map[string]bool{}

	if _, ok := g.nodes[fromID]; !ok {
		return seen
	}

	queue := []string{fromID}
	seen[fromID] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range g.outgoing[current] {
			if _, ok := g.nodes[edge.Target]; !ok || seen[edge.Target] {
				continue
			}

			seen[edge.Target] = true
			queue = append(queue, edge.Target)
		}
	}

	return seen
}
