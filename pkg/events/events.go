// Package events defines the automation lifecycle events published on the event bus.
package events

import (
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every automation event. Consumers route on EventTypeMetadataKey.
const Topic = "dmflow.automation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	FlowTriggeredEvent EventType = "flow.triggered"
	FlowBlockedEvent   EventType = "flow.blocked"
	FlowCompletedEvent EventType = "flow.completed"
	FlowDelayedEvent   EventType = "flow.delayed"
	MessageSentEvent   EventType = "message.sent"
	MessageFailedEvent EventType = "message.failed"
	LinkClickedEvent   EventType = "link.clicked"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	FlowID      string         `json:"flow_id"`
	WorkspaceID string         `json:"workspace_id"`
	ContactID   string         `json:"contact_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, flowID, workspaceID, contactID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		FlowID:      flowID,
		WorkspaceID: workspaceID,
		ContactID:   contactID,
		Metadata:    make(map[string]any),
	}
}

// FlowTriggered is published when an inbound event selects a flow.
type FlowTriggered struct {
	BaseEvent

	TriggerType models.FlowTriggerType `json:"trigger_type"`
	ExternalID  string                 `json:"external_id"`
	Resumed     bool                   `json:"resumed"`
}

func (e FlowTriggered) GetType() EventType {
	return FlowTriggeredEvent
}

// FlowBlocked is published when a gate pauses a run.
type FlowBlocked struct {
	BaseEvent

	State models.AutomationState `json:"state"`
}

func (e FlowBlocked) GetType() EventType {
	return FlowBlockedEvent
}

// FlowCompleted is published when a walk reaches the end of the graph.
type FlowCompleted struct {
	BaseEvent

	NodesExecuted int           `json:"nodes_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e FlowCompleted) GetType() EventType {
	return FlowCompletedEvent
}

// FlowDelayed is published when a DELAY node parks the run on a timer.
type FlowDelayed struct {
	BaseEvent

	TimerID    string    `json:"timer_id"`
	NextNodeID string    `json:"next_node_id"`
	ResumeAt   time.Time `json:"resume_at"`
}

func (e FlowDelayed) GetType() EventType {
	return FlowDelayedEvent
}

// MessageSent is published after a node's message was accepted by the gateway.
type MessageSent struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Shape  string `json:"shape"`
}

func (e MessageSent) GetType() EventType {
	return MessageSentEvent
}

// MessageFailed is published when the gateway rejected a message.
type MessageFailed struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Shape  string `json:"shape"`
	Error  string `json:"error"`
}

func (e MessageFailed) GetType() EventType {
	return MessageFailedEvent
}

// LinkClicked is published when a contact follows a tracked link.
type LinkClicked struct {
	BaseEvent

	NodeID string `json:"node_id"`
	URL    string `json:"url"`
}

func (e LinkClicked) GetType() EventType {
	return LinkClickedEvent
}
