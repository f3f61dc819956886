// Package testutil provides test data builders for flows.
package testutil

import (
	"fmt"

	"github.com/dukex/dmflow/pkg/models"
)

// TestWorkspaceID is the workspace every built flow belongs to.
const TestWorkspaceID = "ws-1"

// CreateTestFlow creates an active flow whose nodes are chained in order with
// unlabeled edges. Overrides run last.
func CreateTestFlow(id string, triggerType models.FlowTriggerType, nodes ...*models.FlowNode) *models.Flow {
	edges := make([]*models.FlowEdge, 0, len(nodes))

	for i := 1; i < len(nodes); i++ {
		edges = append(edges, CreateTestEdge(fmt.Sprintf("%s-e%d", id, i), nodes[i-1].ID, nodes[i].ID))
	}

	return &models.Flow{
		ID:          id,
		WorkspaceID: TestWorkspaceID,
		Name:        id,
		IsActive:    true,
		TriggerType: triggerType,
		ChannelType: models.ChannelTypeInstagram,
		Nodes:       nodes,
		Edges:       edges,
	}
}

// CreateTestEdge creates an unlabeled edge.
func CreateTestEdge(id, source, target string) *models.FlowEdge {
	return &models.FlowEdge{ID: id, Source: source, Target: target}
}

// TriggerNode creates the flow's trigger with the given data.
func TriggerNode(data map[string]any) *models.FlowNode {
	return &models.FlowNode{ID: "trigger", Type: models.NodeTypeTrigger, Data: data}
}

// MessageNode creates a text message node.
func MessageNode(id, content string, overrides ...func(*models.FlowNode)) *models.FlowNode {
	node := &models.FlowNode{ID: id, Type: models.NodeTypeMessage, Data: map[string]any{"content": content}}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithData sets a data field of the node.
func WithData(key string, value any) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		if n.Data == nil {
			n.Data = map[string]any{}
		}

		n.Data[key] = value
	}
}

// WithLabel sets the label of an edge.
func WithLabel(edge *models.FlowEdge, label string) *models.FlowEdge {
	edge.Label = label

	return edge
}
