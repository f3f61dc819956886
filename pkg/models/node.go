package models

import (
	"regexp"
	"strings"
)

// NodeType is the structural type of a flow node as authored in the editor.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "TRIGGER"
	NodeTypeMessage   NodeType = "MESSAGE"
	NodeTypeCondition NodeType = "CONDITION"
	NodeTypeDelay     NodeType = "DELAY"
	NodeTypeInput     NodeType = "INPUT"
	NodeTypeAction    NodeType = "ACTION"
)

// NodeRole is the semantic role of a node inside the funnel. It is decided once
// when a flow is saved and stored alongside the node.
type NodeRole string

const (
	RoleTrigger            NodeRole = "trigger"
	RolePlainMessage       NodeRole = "plain_message"
	RoleFollowGateMessage  NodeRole = "follow_gate_message"
	RoleOpeningGateMessage NodeRole = "opening_gate_message"
	RoleEmailGateMessage   NodeRole = "email_gate_message"
	RoleLinkMessage        NodeRole = "link_message"
	RoleDelay              NodeRole = "delay"
	RoleCondition          NodeRole = "condition"
	RoleAction             NodeRole = "action"
	RoleInput              NodeRole = "input"
)

// Markers the editor embeds in node ids or data.messageType to tag funnel messages.
const (
	MarkerFollowGate  = "request_follow_dm"
	MarkerOpeningGate = "opening_dm"
	MarkerEmailGate   = "email_request_dm"
	MarkerLink        = "link_dm"
)

// URLPattern matches http(s) links inside message content.
var URLPattern = regexp.MustCompile(`https?://[^\s]+`)

// FlowNode is a node instance in a flow graph.
type FlowNode struct {
	ID   string         `json:"id"             validate:"required"`
	Type NodeType       `json:"type"           validate:"required,oneof=TRIGGER MESSAGE CONDITION DELAY INPUT ACTION"`
	Role NodeRole       `json:"role,omitempty"`
	Data map[string]any `json:"data"`
}

// EffectiveRole returns the stored role, inferring it for nodes saved before roles existed.
func (n *FlowNode) EffectiveRole() NodeRole {
	if n.Role != "" {
		return n.Role
	}

	return InferRole(n)
}

// IsGateOwned reports whether the node is sent by the gate evaluator rather than the walker.
func (n *FlowNode) IsGateOwned() bool {
	switch n.EffectiveRole() {
	case RoleFollowGateMessage, RoleOpeningGateMessage, RoleEmailGateMessage:
		return true
	default:
		return false
	}
}

// InferRole derives the semantic role of a node from its type, id and data markers.
func InferRole(n *FlowNode) NodeRole {
	switch n.Type {
	case NodeTypeTrigger:
		return RoleTrigger
	case NodeTypeDelay:
		return RoleDelay
	case NodeTypeCondition:
		return RoleCondition
	case NodeTypeAction:
		return RoleAction
	case NodeTypeInput:
		return RoleInput
	case NodeTypeMessage:
	default:
		return ""
	}

	message := n.Message()
	marker := strings.ToLower(n.ID + " " + message.MessageType)

	switch {
	case strings.Contains(marker, MarkerEmailGate):
		return RoleEmailGateMessage
	case strings.Contains(marker, MarkerFollowGate):
		return RoleFollowGateMessage
	case strings.Contains(marker, MarkerOpeningGate):
		return RoleOpeningGateMessage
	case strings.Contains(marker, MarkerLink), message.LinkURL() != "":
		return RoleLinkMessage
	default:
		return RolePlainMessage
	}
}

// Button types supported by the button template.
const (
	ButtonWebURL   = "web_url"
	ButtonPostback = "postback"
)

// Button is a call-to-action attached to a message.
type Button struct {
	Type    string `json:"type"              validate:"omitempty,oneof=web_url postback"`
	Title   string `json:"title"             validate:"required,max=20"`
	URL     string `json:"url,omitempty"     validate:"required_if=Type web_url"`
	Payload string `json:"payload,omitempty"`
}

// TriggerConfig is the typed view of a TRIGGER node's data.
type TriggerConfig struct {
	PostScope         string   `validate:"oneof=any specific"`
	PostID            string   `validate:"required_if=PostScope specific"`
	Keywords          []string `validate:"dive,required"`
	RequireFollow     bool
	RequireEmail      bool
	OpeningDM         bool
	FollowText        string
	FollowButtonText  string
	OpeningText       string
	OpeningButtonText string
	EmailText         string
}

// Post scopes for comment triggers.
const (
	PostScopeAny      = "any"
	PostScopeSpecific = "specific"
)

// Trigger decodes the node's data as a trigger configuration.
func (n *FlowNode) Trigger() TriggerConfig {
	scope := dataString(n.Data, "triggerType")
	if scope == "" {
		scope = PostScopeAny
	}

	config := TriggerConfig{
		PostScope:         scope,
		PostID:            dataString(n.Data, "postId"),
		Keywords:          dataStrings(n.Data, "keywords"),
		RequireFollow:     dataBool(n.Data, "requireFollow"),
		RequireEmail:      dataBool(n.Data, "requireEmail"),
		FollowText:        dataString(n.Data, "followText"),
		FollowButtonText:  dataString(n.Data, "followButtonText"),
		OpeningText:       dataString(n.Data, "openingText"),
		OpeningButtonText: dataString(n.Data, "openingButtonText"),
		EmailText:         dataString(n.Data, "emailText"),
	}

	// openingDM is either a flag or the opening text itself.
	switch v := n.Data["openingDM"].(type) {
	case bool:
		config.OpeningDM = v
	case string:
		if strings.TrimSpace(v) != "" {
			config.OpeningDM = true

			if config.OpeningText == "" {
				config.OpeningText = v
			}
		}
	}

	return config
}

// MessageConfig is the typed view of a MESSAGE node's data.
type MessageConfig struct {
	Content     string   `validate:"required_without=DMLink"`
	Buttons     []Button `validate:"max=3,dive"`
	MessageType string
	DMLink      string `validate:"omitempty,url"`
	ButtonText  string `validate:"max=20"`
}

// Message decodes the node's data as a message configuration.
func (n *FlowNode) Message() MessageConfig {
	content := dataString(n.Data, "content")
	if content == "" {
		content = dataString(n.Data, "text")
	}

	return MessageConfig{
		Content:     content,
		Buttons:     dataButtons(n.Data, "buttons"),
		MessageType: dataString(n.Data, "messageType"),
		DMLink:      dataString(n.Data, "dm_link"),
		ButtonText:  dataString(n.Data, "buttonText"),
	}
}

// LinkURL returns the link the message points to: dm_link, else the first URL in content.
func (m MessageConfig) LinkURL() string {
	if m.DMLink != "" {
		return m.DMLink
	}

	return URLPattern.FindString(m.Content)
}

// DelayConfig is the typed view of a DELAY node's data.
type DelayConfig struct {
	Seconds int64 `validate:"min=0"`
}

// Delay decodes the node's data as a delay. It accepts either "seconds" or a
// "duration" with a "unit" of seconds, minutes, hours or days.
func (n *FlowNode) Delay() DelayConfig {
	if seconds, ok := dataInt(n.Data, "seconds"); ok {
		return DelayConfig{Seconds: seconds}
	}

	duration, _ := dataInt(n.Data, "duration")

	switch strings.ToLower(dataString(n.Data, "unit")) {
	case "minute", "minutes":
		duration *= 60
	case "hour", "hours":
		duration *= 60 * 60
	case "day", "days":
		duration *= 24 * 60 * 60
	}

	return DelayConfig{Seconds: duration}
}

// Condition operators.
const (
	OperatorEquals    = "equals"
	OperatorNotEquals = "not_equals"
	OperatorContains  = "contains"
	OperatorExists    = "exists"
	OperatorNotExists = "not_exists"
)

// ConditionConfig is the typed view of a CONDITION node's data.
type ConditionConfig struct {
	Field    string `validate:"required"`
	Operator string `validate:"oneof=equals not_equals contains exists not_exists"`
	Value    string
}

// Condition decodes the node's data as a branch condition.
func (n *FlowNode) Condition() ConditionConfig {
	operator := dataString(n.Data, "operator")
	if operator == "" {
		operator = OperatorEquals
	}

	return ConditionConfig{
		Field:    dataString(n.Data, "field"),
		Operator: operator,
		Value:    dataString(n.Data, "value"),
	}
}

// Contact actions.
const (
	ActionSetField = "set_field"
	ActionAddTag   = "add_tag"
	ActionComplete = "complete"
)

// ActionConfig is the typed view of an ACTION node's data.
type ActionConfig struct {
	Action string `validate:"oneof=set_field add_tag complete"`
	Field  string `validate:"required_if=Action set_field"`
	Value  string
	Tag    string `validate:"required_if=Action add_tag"`
}

// Action decodes the node's data as a contact action.
func (n *FlowNode) Action() ActionConfig {
	return ActionConfig{
		Action: dataString(n.Data, "action"),
		Field:  dataString(n.Data, "field"),
		Value:  dataString(n.Data, "value"),
		Tag:    dataString(n.Data, "tag"),
	}
}
