package models

import (
	"maps"
	"slices"
	"time"
)

// AutomationState is where a contact sits inside a gated funnel.
type AutomationState string

const (
	StateNone                   AutomationState = ""
	StateWaitingForFollow       AutomationState = "WAITING_FOR_FOLLOW"
	StateWaitingForOpeningClick AutomationState = "WAITING_FOR_OPENING_CLICK"
	StateWaitingForEmail        AutomationState = "WAITING_FOR_EMAIL"
	StateCompleted              AutomationState = "COMPLETED"
)

// IsWaiting reports whether the state pauses a run until the contact acts.
func (s AutomationState) IsWaiting() bool {
	switch s {
	case StateWaitingForFollow, StateWaitingForOpeningClick, StateWaitingForEmail:
		return true
	default:
		return false
	}
}

// ContactAutomationState is the resumable funnel progress of a contact.
// Version is bumped on every write and used for compare-and-swap updates.
type ContactAutomationState struct {
	PendingFlowID   string          `json:"pending_flow_id,omitempty"`
	State           AutomationState `json:"automation_state,omitempty"`
	PendingMetadata map[string]any  `json:"pending_metadata,omitempty"`
	IsFollower      bool            `json:"is_follower"`
	Version         int64           `json:"version"`
}

// Waiting returns a copy parked on the given state for flowID with a metadata snapshot.
func (s ContactAutomationState) Waiting(state AutomationState, flowID string, metadata map[string]any) ContactAutomationState {
	s.State = state
	s.PendingFlowID = flowID
	s.PendingMetadata = CloneMap(metadata)

	return s
}

// Completed returns a copy with the funnel finished and the pending run cleared.
func (s ContactAutomationState) Completed() ContactAutomationState {
	s.State = StateCompleted
	s.PendingFlowID = ""
	s.PendingMetadata = nil

	return s
}

// ContactChannel links a contact to its platform-specific identifier on a channel.
type ContactChannel struct {
	ChannelID   string      `json:"channel_id"`
	ChannelType ChannelType `json:"channel_type"`
	ExternalID  string      `json:"external_id"`
	Username    string      `json:"username,omitempty"`
}

// Contact is an end user reached through one or more channels.
type Contact struct {
	ID          string                 `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	Email       *string                `json:"email,omitempty"`
	CustomData  map[string]any         `json:"custom_data,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Automation  ContactAutomationState `json:"automation"`
	Channels    []ContactChannel       `json:"channels"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ExternalIDFor returns the contact's platform id on the given channel type.
func (c *Contact) ExternalIDFor(channelType ChannelType) string {
	for _, link := range c.Channels {
		if link.ChannelType == channelType {
			return link.ExternalID
		}
	}

	return ""
}

// Username returns the first known platform username.
func (c *Contact) Username() string {
	for _, link := range c.Channels {
		if link.Username != "" {
			return link.Username
		}
	}

	return ""
}

// HasEmail reports whether an email address was captured.
func (c *Contact) HasEmail() bool {
	return c.Email != nil && *c.Email != ""
}

// ContactPatch is a partial contact update. A non-nil ExpectedVersion turns the
// automation write into a compare-and-swap.
type ContactPatch struct {
	Email           *string
	CustomData      map[string]any
	Tags            []string
	Username        *string
	Automation      *ContactAutomationState
	ExpectedVersion *int64
}

// Apply merges the patch into the contact and bumps the automation version when it changes.
func (p ContactPatch) Apply(contact *Contact) {
	if p.Email != nil {
		email := *p.Email
		contact.Email = &email
	}

	if len(p.CustomData) > 0 {
		if contact.CustomData == nil {
			contact.CustomData = make(map[string]any, len(p.CustomData))
		}

		maps.Copy(contact.CustomData, p.CustomData)
	}

	for _, tag := range p.Tags {
		if !slices.Contains(contact.Tags, tag) {
			contact.Tags = append(contact.Tags, tag)
		}
	}

	if p.Username != nil {
		for i := range contact.Channels {
			contact.Channels[i].Username = *p.Username
		}
	}

	if p.Automation != nil {
		version := contact.Automation.Version
		contact.Automation = *p.Automation
		contact.Automation.Version = version + 1
	}

	contact.UpdatedAt = time.Now().UTC()
}

// CloneMap returns a shallow copy of m, or nil for an empty map.
func CloneMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}

	return maps.Clone(m)
}
