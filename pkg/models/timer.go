package models

import "time"

// TimerStatus tracks whether a delay timer has been resumed.
type TimerStatus string

const (
	TimerPending TimerStatus = "pending"
	TimerFired   TimerStatus = "fired"
)

// DelayTimer is a durable pause of a flow run, resumed at NextNodeID once ResumeAt passes.
type DelayTimer struct {
	ID          string         `json:"id"`
	FlowID      string         `json:"flow_id"`
	ContactID   string         `json:"contact_id"`
	WorkspaceID string         `json:"workspace_id"`
	ChannelID   string         `json:"channel_id"`
	NextNodeID  string         `json:"next_node_id"`
	ResumeAt    time.Time      `json:"resume_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Status      TimerStatus    `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Due reports whether the timer is pending and its resume time has passed.
func (t *DelayTimer) Due(now time.Time) bool {
	return t.Status == TimerPending && !t.ResumeAt.After(now)
}
