package models

import (
	"strings"
)

// IncomingComment is a comment left on a post or reel of a connected account.
type IncomingComment struct {
	MediaID      string `json:"media_id"`
	Text         string `json:"text"`
	CommentID    string `json:"comment_id"`
	FromID       string `json:"from_id"`
	FromUsername string `json:"from_username"`
}

// IncomingMessage is a direct message or button postback sent to a connected account.
type IncomingMessage struct {
	Text       string `json:"text"`
	MessageID  string `json:"message_id"`
	FromID     string `json:"from_id"`
	IsPostback bool   `json:"is_postback,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// PostbackAction is the verb of a resume payload.
type PostbackAction string

const (
	PostbackFollowConfirmed PostbackAction = "follow_confirmed"
	PostbackSendLink        PostbackAction = "send_link"
	PostbackSendLinkClick   PostbackAction = "send_link_click"
)

// Postback is a decoded ACTION:FLOWID payload. FlowID is empty for plain-text replies.
type Postback struct {
	Action PostbackAction
	FlowID string
}

// IsOpeningClick reports whether the postback confirms the opening call-to-action.
func (p Postback) IsOpeningClick() bool {
	return p.Action == PostbackSendLink || p.Action == PostbackSendLinkClick
}

// Payload encodes the postback in ACTION:FLOWID form.
func (p Postback) Payload() string {
	return string(p.Action) + ":" + p.FlowID
}

// ParsePostback decodes an ACTION:FLOWID payload.
func ParsePostback(payload string) (Postback, bool) {
	action, flowID, found := strings.Cut(strings.TrimSpace(payload), ":")
	if !found || flowID == "" {
		return Postback{}, false
	}

	switch a := PostbackAction(strings.ToLower(action)); a {
	case PostbackFollowConfirmed, PostbackSendLink, PostbackSendLinkClick:
		return Postback{Action: a, FlowID: flowID}, true
	default:
		return Postback{}, false
	}
}

// Resume returns the gate transition a message asks for, either through a
// structured payload or the plain-text replies "followed" and "send_link".
func (m IncomingMessage) Resume() (Postback, bool) {
	for _, candidate := range []string{m.Payload, m.Text} {
		if postback, ok := ParsePostback(candidate); ok {
			return postback, true
		}
	}

	switch normalizeReply(m.Text) {
	case "followed":
		return Postback{Action: PostbackFollowConfirmed}, true
	case "send_link":
		return Postback{Action: PostbackSendLink}, true
	default:
		return Postback{}, false
	}
}

func normalizeReply(text string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".!? ")
}
