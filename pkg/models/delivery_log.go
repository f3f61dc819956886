package models

import "time"

// Milestone is a monotonic funnel flag recorded on a delivery log.
type Milestone string

const (
	MilestoneFollowMsgSent   Milestone = "follow_msg_sent"
	MilestoneFollowConfirmed Milestone = "follow_confirmed"
	MilestoneOpeningMsgSent  Milestone = "opening_msg_sent"
	MilestoneOpeningClicked  Milestone = "opening_clicked"
	MilestoneEmailReqSent    Milestone = "email_req_sent"
	MilestoneEmailProvided   Milestone = "email_provided"
	MilestoneLinkMsgSent     Milestone = "link_msg_sent"
	MilestoneLinkClicked     Milestone = "link_clicked"
)

// Milestones lists every milestone in funnel order.
var Milestones = []Milestone{
	MilestoneFollowMsgSent,
	MilestoneFollowConfirmed,
	MilestoneOpeningMsgSent,
	MilestoneOpeningClicked,
	MilestoneEmailReqSent,
	MilestoneEmailProvided,
	MilestoneLinkMsgSent,
	MilestoneLinkClicked,
}

// DeliveryLog is the bookkeeping row of one funnel pass of a contact through a flow.
type DeliveryLog struct {
	ID              string    `json:"id"`
	FlowID          string    `json:"flow_id"`
	ContactID       string    `json:"contact_id"`
	WorkspaceID     string    `json:"workspace_id"`
	FollowMsgSent   bool      `json:"follow_msg_sent"`
	FollowConfirmed bool      `json:"follow_confirmed"`
	OpeningMsgSent  bool      `json:"opening_msg_sent"`
	OpeningClicked  bool      `json:"opening_clicked"`
	EmailReqSent    bool      `json:"email_req_sent"`
	EmailProvided   bool      `json:"email_provided"`
	LinkMsgSent     bool      `json:"link_msg_sent"`
	LinkClicked     bool      `json:"link_clicked"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Has reports whether the milestone was reached.
func (l *DeliveryLog) Has(m Milestone) bool {
	if field := l.flag(m); field != nil {
		return *field
	}

	return false
}

// Set marks the milestone. It reports false for unknown milestones.
func (l *DeliveryLog) Set(m Milestone) bool {
	field := l.flag(m)
	if field == nil {
		return false
	}

	*field = true

	return true
}

func (l *DeliveryLog) flag(m Milestone) *bool {
	switch m {
	case MilestoneFollowMsgSent:
		return &l.FollowMsgSent
	case MilestoneFollowConfirmed:
		return &l.FollowConfirmed
	case MilestoneOpeningMsgSent:
		return &l.OpeningMsgSent
	case MilestoneOpeningClicked:
		return &l.OpeningClicked
	case MilestoneEmailReqSent:
		return &l.EmailReqSent
	case MilestoneEmailProvided:
		return &l.EmailProvided
	case MilestoneLinkMsgSent:
		return &l.LinkMsgSent
	case MilestoneLinkClicked:
		return &l.LinkClicked
	default:
		return nil
	}
}

// DeliveryStats counts delivery logs per milestone for a flow.
type DeliveryStats struct {
	FlowID     string            `json:"flow_id"`
	Total      int               `json:"total"`
	Milestones map[Milestone]int `json:"milestones"`
}
