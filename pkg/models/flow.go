// Package models defines the core domain models for comment and DM automation flows.
package models

import "time"

// FlowTriggerType is the inbound event family a flow reacts to.
type FlowTriggerType string

const (
	FlowTriggerComment FlowTriggerType = "COMMENT" // Comments on posts/reels
	FlowTriggerKeyword FlowTriggerType = "KEYWORD" // Direct messages containing a keyword
)

// ChannelType identifies the messaging platform a flow or channel belongs to.
type ChannelType string

const (
	ChannelTypeInstagram ChannelType = "INSTAGRAM"
)

// Flow is a tenant-authored automation graph triggered by an inbound social event.
type Flow struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id" validate:"required"`
	Name        string          `json:"name"         validate:"required,min=1"`
	IsActive    bool            `json:"is_active"`
	TriggerType FlowTriggerType `json:"trigger_type" validate:"required,oneof=COMMENT KEYWORD"`
	Keywords    []string        `json:"keywords"`
	ChannelType ChannelType     `json:"channel_type" validate:"required"`
	Nodes       []*FlowNode     `json:"nodes"        validate:"dive"`
	Edges       []*FlowEdge     `json:"edges"        validate:"dive"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FlowEdge connects two nodes. Label selects a CONDITION branch ("true"/"false");
// unlabeled edges are taken when no labeled edge applies.
type FlowEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"          validate:"required"`
	Target string `json:"target"          validate:"required"`
	Label  string `json:"label,omitempty" validate:"omitempty,oneof=true false"`
}

// TriggerNode returns the flow's TRIGGER node, or nil.
func (f *Flow) TriggerNode() *FlowNode {
	for _, node := range f.Nodes {
		if node.Type == NodeTypeTrigger {
			return node
		}
	}

	return nil
}

// NodeByID returns the node with the given id, or nil.
func (f *Flow) NodeByID(id string) *FlowNode {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// NodeByRole returns the first node carrying the given role, or nil.
func (f *Flow) NodeByRole(role NodeRole) *FlowNode {
	for _, node := range f.Nodes {
		if node.EffectiveRole() == role {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns the edges leaving the given node in declaration order.
func (f *Flow) OutgoingEdges(nodeID string) []*FlowEdge {
	var edges []*FlowEdge

	for _, edge := range f.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// NextNodeID returns the target of the first outgoing edge of nodeID.
func (f *Flow) NextNodeID(nodeID string) (string, bool) {
	for _, edge := range f.Edges {
		if edge.Source == nodeID {
			return edge.Target, true
		}
	}

	return "", false
}
