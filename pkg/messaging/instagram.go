package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/dmflow/pkg/models"
)

const (
	DefaultBaseURL    = "https://graph.instagram.com"
	DefaultAPIVersion = "v21.0"
	defaultTimeout    = 10 * time.Second
)

// RetryConfig bounds how often a failed call is repeated. Delay grows linearly with each attempt.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Config configures the Instagram client.
type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	Retry      RetryConfig
}

// InstagramClient implements Gateway against the Instagram Graph API.
type InstagramClient struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewInstagramClient creates a client, filling unset config fields with defaults.
func NewInstagramClient(config Config, logger *slog.Logger) *InstagramClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	if config.Retry.Attempts <= 0 {
		config.Retry.Attempts = 1
	}

	return &InstagramClient{
		config: config,
		http:   &http.Client{},
		logger: logger.With("module", "instagram_client"),
	}
}

type sendRequest struct {
	Recipient map[string]string `json:"recipient"`
	Message   messagePayload    `json:"message"`
}

type messagePayload struct {
	Text       string      `json:"text,omitempty"`
	Attachment *attachment `json:"attachment,omitempty"`
}

type attachment struct {
	Type    string          `json:"type"`
	Payload templatePayload `json:"payload"`
}

type templatePayload struct {
	TemplateType string         `json:"template_type"`
	Text         string         `json:"text"`
	Buttons      []buttonFormat `json:"buttons"`
}

type buttonFormat struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// SendTextMessage sends a plain text message.
func (c *InstagramClient) SendTextMessage(ctx context.Context, channel *models.Channel, recipient Recipient, text string) error {
	return c.send(ctx, channel, recipient, messagePayload{Text: text})
}

// SendButtonMessage sends a button template message.
func (c *InstagramClient) SendButtonMessage(ctx context.Context, channel *models.Channel, recipient Recipient, text string, buttons []models.Button) error {
	formatted := make([]buttonFormat, 0, len(buttons))

	for _, button := range buttons {
		formatted = append(formatted, buttonFormat{
			Type:    button.Type,
			Title:   button.Title,
			URL:     button.URL,
			Payload: button.Payload,
		})
	}

	return c.send(ctx, channel, recipient, messagePayload{
		Attachment: &attachment{
			Type: "template",
			Payload: templatePayload{
				TemplateType: "button",
				Text:         text,
				Buttons:      formatted,
			},
		},
	})
}

func (c *InstagramClient) send(ctx context.Context, channel *models.Channel, recipient Recipient, message messagePayload) error {
	to := map[string]string{}

	switch {
	case recipient.CommentID != "":
		to["comment_id"] = recipient.CommentID
	case recipient.ID != "":
		to["id"] = recipient.ID
	default:
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrMissingRecipient)
	}

	body, err := json.Marshal(sendRequest{Recipient: to, Message: message})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal message: %w", ErrSendFailed, err)
	}

	endpoint := fmt.Sprintf("%s/%s/me/messages", c.config.BaseURL, c.config.APIVersion)

	err = c.do(ctx, channel, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	return nil
}

// CheckFollows asks the provider whether the user follows the connected account.
func (c *InstagramClient) CheckFollows(ctx context.Context, channel *models.Channel, externalID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?fields=%s",
		c.config.BaseURL, c.config.APIVersion, url.PathEscape(externalID), url.QueryEscape("is_user_follow_business"))

	var profile struct {
		IsUserFollowBusiness bool `json:"is_user_follow_business"`
	}

	err := c.do(ctx, channel, http.MethodGet, endpoint, nil, &profile)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrFollowCheckFailed, err)
	}

	return profile.IsUserFollowBusiness, nil
}

// do performs the call with a per-attempt timeout, retrying transport, 429 and 5xx failures.
func (c *InstagramClient) do(ctx context.Context, channel *models.Channel, method, endpoint string, body []byte, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.config.Retry.Attempts; attempt++ {
		if attempt > 1 {
			c.logger.InfoContext(ctx, "retrying provider call", "attempt", attempt, "max_attempts", c.config.Retry.Attempts)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.Retry.Delay * time.Duration(attempt-1)):
			}
		}

		retry, err := c.attempt(ctx, channel, method, endpoint, body, out)
		if err == nil {
			return nil
		}

		lastErr = err

		if !retry {
			break
		}
	}

	return lastErr
}

func (c *InstagramClient) attempt(ctx context.Context, channel *models.Channel, method, endpoint string, body []byte, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+channel.Config.AccessToken)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := parseAPIError(resp.StatusCode, payload)

		return apiErr.Retryable(), apiErr
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return false, nil
}

func parseAPIError(status int, payload []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}

	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Error == nil {
		return &APIError{Status: status, Message: strings.TrimSpace(string(payload))}
	}

	envelope.Error.Status = status

	return envelope.Error
}

// IsAPIError extracts the provider error from err, if any.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)

	return apiErr, ok
}
