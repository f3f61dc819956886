package web

import "github.com/dukex/dmflow/pkg/models"

// WorkspaceHeader selects the workspace the flow admin endpoints act on.
const WorkspaceHeader = "X-Workspace-ID"

// FlowRequest is the request body for creating or replacing a flow.
type FlowRequest struct {
	Name        string             `json:"name"                   validate:"required,min=1"`
	TriggerType string             `json:"trigger_type"           validate:"required,oneof=COMMENT KEYWORD"`
	ChannelType string             `json:"channel_type,omitempty"`
	Keywords    []string           `json:"keywords,omitempty"`
	Nodes       []*models.FlowNode `json:"nodes"                  validate:"required,min=1"`
	Edges       []*models.FlowEdge `json:"edges"`
	IsActive    bool               `json:"is_active"`
}

// ToFlow builds the flow the request describes inside a workspace.
func (r FlowRequest) ToFlow(workspaceID string) *models.Flow {
	return &models.Flow{
		WorkspaceID: workspaceID,
		Name:        r.Name,
		IsActive:    r.IsActive,
		TriggerType: models.FlowTriggerType(r.TriggerType),
		ChannelType: models.ChannelType(r.ChannelType),
		Keywords:    r.Keywords,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
	}
}

// FlowsResponse lists the flows of a workspace.
type FlowsResponse struct {
	Flows      []*models.Flow `json:"flows"`
	TotalCount int            `json:"total_count"`
}
