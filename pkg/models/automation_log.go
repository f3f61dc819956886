package models

import "time"

// AutomationStatus is the outcome recorded on an audit entry.
type AutomationStatus string

const (
	AutomationTriggered   AutomationStatus = "TRIGGERED"
	AutomationBlocked     AutomationStatus = "BLOCKED"
	AutomationSent        AutomationStatus = "SENT"
	AutomationCompleted   AutomationStatus = "COMPLETED"
	AutomationFailed      AutomationStatus = "FAILED"
	AutomationLinkClicked AutomationStatus = "LINK_CLICKED"
)

// AutomationLog is an append-only audit entry. The engine never reads it back.
type AutomationLog struct {
	ID          string           `json:"id"`
	FlowID      string           `json:"flow_id"`
	WorkspaceID string           `json:"workspace_id"`
	TriggerType FlowTriggerType  `json:"trigger_type"`
	Status      AutomationStatus `json:"status"`
	Message     string           `json:"message"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
