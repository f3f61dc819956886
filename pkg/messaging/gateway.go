// Package messaging delivers outbound messages through the provider's messaging API.
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/dmflow/pkg/models"
)

var (
	// ErrSendFailed indicates an outbound message could not be delivered.
	ErrSendFailed = errors.New("message send failed")

	// ErrFollowCheckFailed indicates the live follow lookup did not return an answer.
	ErrFollowCheckFailed = errors.New("follow check failed")

	// ErrMissingRecipient indicates neither a user id nor a comment id was given.
	ErrMissingRecipient = errors.New("missing recipient")
)

// Recipient addresses a message either to a user or, as a private reply, to a comment.
type Recipient struct {
	ID        string
	CommentID string
}

// Gateway sends messages and answers follow lookups for a connected channel.
type Gateway interface {
	SendTextMessage(ctx context.Context, channel *models.Channel, recipient Recipient, text string) error
	SendButtonMessage(ctx context.Context, channel *models.Channel, recipient Recipient, text string, buttons []models.Button) error
	CheckFollows(ctx context.Context, channel *models.Channel, externalID string) (bool, error)
}

// APIError is an error payload returned by the provider.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d, code %d): %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == 429
}
