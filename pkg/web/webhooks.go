package web

import (
	"context"
	"errors"
	"net/url"

	"github.com/dukex/dmflow/pkg/automation"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/dukex/dmflow/pkg/webhook"
	"github.com/gofiber/fiber/v3"
)

var (
	errInvalidJSON   = errors.New("invalid JSON format")
	errInvalidTarget = errors.New("tracked url must be an absolute http or https url")
)

// VerifyWebhook answers the subscription handshake.
func (h *APIHandlers) VerifyWebhook(c fiber.Ctx) error {
	challenge, err := webhook.VerifySubscription(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		h.config.VerifyToken,
	)
	if err != nil {
		h.logger.WarnContext(c.Context(), "Webhook verification rejected", "mode", c.Query("hub.mode"))

		return forbidden(c, err.Error())
	}

	return c.SendString(challenge)
}

// ReceiveWebhook hands every comment and message of a delivery to the engine.
// Deliveries with a valid signature are always acknowledged with 200.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	body := c.Body()

	err := webhook.VerifySignature(h.config.AppSecret, body, c.Get(webhook.SignatureHeader))
	if err != nil {
		h.logger.WarnContext(c.Context(), "Webhook signature rejected", "error", err)

		return unauthorized(c, err.Error())
	}

	payload, err := webhook.Decode(body)
	if err != nil {
		h.logger.WarnContext(c.Context(), "Ignoring invalid webhook payload", "error", err)

		return c.SendStatus(fiber.StatusOK)
	}

	for _, entry := range payload.Entry {
		h.dispatch(c.Context(), entry)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *APIHandlers) dispatch(ctx context.Context, entry webhook.Entry) {
	logger := h.logger.With("account_id", entry.ID)

	channel, err := h.channels.GetByExternalAccount(ctx, entry.ID)
	if err != nil {
		if persistence.IsChannelNotFound(err) {
			logger.WarnContext(ctx, "Webhook entry for unknown account")
		} else {
			logger.ErrorContext(ctx, "Failed to resolve channel", "error", err)
		}

		return
	}

	if !channel.IsActive {
		logger.DebugContext(ctx, "Skipping entry of inactive channel", "channel_id", channel.ID)

		return
	}

	for _, comment := range entry.Comments() {
		err := h.automation.HandleComment(ctx, channel, comment)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to handle comment", "comment_id", comment.CommentID, "error", err)
		}
	}

	for _, message := range entry.Messages() {
		err := h.automation.HandleMessage(ctx, channel, message)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to handle message", "message_id", message.MessageID, "error", err)
		}
	}
}

// TrackClick records a tracked link click and redirects to the link. Only the
// link the flow node sends is redirected to.
func (h *APIHandlers) TrackClick(c fiber.Ctx) error {
	target := c.Query("url")
	if !isWebURL(target) {
		return badRequest(c, errInvalidTarget.Error())
	}

	flowID := c.Params("flowId")
	contactID := c.Query("contactId")

	err := h.automation.TrackClick(c.Context(), flowID, c.Params("nodeId"), contactID, target)
	if errors.Is(err, automation.ErrUntrackedLink) {
		h.logger.WarnContext(c.Context(), "Rejected untracked redirect", "flow_id", flowID, "url", target)

		return badRequest(c, err.Error())
	}

	if err != nil {
		h.logger.WarnContext(c.Context(), "Failed to record link click",
			"flow_id", flowID, "contact_id", contactID, "error", err)
	}

	return c.Redirect().Status(fiber.StatusFound).To(target)
}

func isWebURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}

	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
