// Package webhook decodes Instagram webhook deliveries into inbound comment and
// message events.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/dmflow/pkg/models"
)

// FieldComments is the change field carrying new comments.
const FieldComments = "comments"

var ErrInvalidPayload = errors.New("invalid webhook payload")

// Payload is the body of a webhook delivery.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes and messages of one connected account.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Changes   []Change    `json:"changes,omitempty"`
	Messaging []Messaging `json:"messaging,omitempty"`
}

type Change struct {
	Field string        `json:"field"`
	Value CommentChange `json:"value"`
}

type CommentChange struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID               string `json:"id"`
		MediaProductType string `json:"media_product_type,omitempty"`
	} `json:"media"`
}

// Messaging is one direct message or postback event.
type Messaging struct {
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
}

type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID        string `json:"mid"`
	Text       string `json:"text"`
	IsEcho     bool   `json:"is_echo,omitempty"`
	QuickReply *struct {
		Payload string `json:"payload"`
	} `json:"quick_reply,omitempty"`
}

type Postback struct {
	MID     string `json:"mid"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Decode validates the body against the delivery schema and parses it.
func Decode(body []byte) (*Payload, error) {
	err := Validate(body)
	if err != nil {
		return nil, err
	}

	var payload Payload

	err = json.Unmarshal(body, &payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	return &payload, nil
}

// Comments returns the new comments of the entry. Changes on other fields and
// comments without an author are skipped.
func (e Entry) Comments() []models.IncomingComment {
	comments := make([]models.IncomingComment, 0, len(e.Changes))

	for _, change := range e.Changes {
		if change.Field != FieldComments || change.Value.From.ID == "" {
			continue
		}

		comments = append(comments, models.IncomingComment{
			MediaID:      change.Value.Media.ID,
			Text:         change.Value.Text,
			CommentID:    change.Value.ID,
			FromID:       change.Value.From.ID,
			FromUsername: change.Value.From.Username,
		})
	}

	return comments
}

// Messages returns the direct messages and postbacks of the entry. Echoes of
// messages the account sent itself are skipped.
func (e Entry) Messages() []models.IncomingMessage {
	messages := make([]models.IncomingMessage, 0, len(e.Messaging))

	for _, event := range e.Messaging {
		if event.Sender.ID == "" {
			continue
		}

		switch {
		case event.Postback != nil:
			messages = append(messages, models.IncomingMessage{
				Text:       event.Postback.Title,
				MessageID:  event.Postback.MID,
				FromID:     event.Sender.ID,
				IsPostback: true,
				Payload:    event.Postback.Payload,
			})
		case event.Message != nil && !event.Message.IsEcho:
			message := models.IncomingMessage{
				Text:      strings.TrimSpace(event.Message.Text),
				MessageID: event.Message.MID,
				FromID:    event.Sender.ID,
			}

			if event.Message.QuickReply != nil {
				message.IsPostback = true
				message.Payload = event.Message.QuickReply.Payload
			}

			messages = append(messages, message)
		}
	}

	return messages
}
