package automation

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dukex/dmflow/pkg/events"
	"github.com/dukex/dmflow/pkg/messaging"
	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/template"
)

// Shape is the outbound form a message node is delivered in.
type Shape string

const (
	ShapeLink    Shape = "link"
	ShapeFollow  Shape = "follow"
	ShapeOpening Shape = "opening"
	ShapeButtons Shape = "buttons"
	ShapeText    Shape = "text"
)

// Default button titles. The provider caps titles at 20 characters.
const (
	DefaultLinkButton    = "Open link"
	DefaultFollowButton  = "I'm following"
	DefaultOpeningButton = "Send me the link"
)

// DefaultLinkText is sent with a link button when the message has no text of its own.
const DefaultLinkText = "Here is your link"

// Classify picks the shape of a message node: a link wins over the follow and
// opening calls-to-action, which win over plain text.
func Classify(node *models.FlowNode) Shape {
	message := node.Message()
	role := node.EffectiveRole()

	switch {
	case role == models.RoleLinkMessage || message.LinkURL() != "":
		return ShapeLink
	case role == models.RoleFollowGateMessage:
		return ShapeFollow
	case role == models.RoleOpeningGateMessage:
		return ShapeOpening
	case len(message.Buttons) > 0:
		return ShapeButtons
	default:
		return ShapeText
	}
}

// TrackURL builds the redirect a link message points to so clicks are recorded.
func TrackURL(apiBaseURL, flowID, nodeID, contactID, target string) string {
	query := url.Values{}
	query.Set("contactId", contactID)
	query.Set("url", target)

	return strings.TrimRight(apiBaseURL, "/") +
		"/automation/track/" + url.PathEscape(flowID) + "/" + url.PathEscape(nodeID) +
		"?" + query.Encode()
}

// Dispatcher renders and delivers message nodes. Delivery failures never reach
// the caller: they are recorded as FAILED audit entries.
type Dispatcher struct {
	gateway      messaging.Gateway
	contacts     *Contacts
	deliveryLogs *DeliveryLogs
	recorder     *recorder
	metrics      *metrics.Metrics
	apiBaseURL   string
	logger       *slog.Logger
}

// Send delivers node to the run's contact and reports whether the gateway accepted it.
func (d *Dispatcher) Send(ctx context.Context, node *models.FlowNode, run *models.RunContext) bool {
	shape := Classify(node)
	logger := d.logger.With("flow_id", run.Flow.ID, "node_id", node.ID, "shape", shape)

	recipient, private := d.recipient(run)
	text := d.render(ctx, node.Message().Content, run)

	err := d.deliver(ctx, shape, node, run, recipient, text)
	if err != nil {
		logger.WarnContext(ctx, "Failed to send message", "error", err)
		d.metrics.RecordSend(string(shape), false)
		d.recorder.audit(ctx, run, models.AutomationFailed, err.Error(), map[string]any{
			"nodeId": node.ID,
			"shape":  string(shape),
		})
		d.recorder.publish(ctx, run.Flow.ID, events.MessageFailed{
			BaseEvent: d.baseEvent(events.MessageFailedEvent, run),
			NodeID:    node.ID,
			Shape:     string(shape),
			Error:     err.Error(),
		})

		return false
	}

	if private {
		run.SetVar(models.VarPrivateReplySent, true)
	}

	logger.InfoContext(ctx, "Message sent", "private_reply", private)
	d.metrics.RecordSend(string(shape), true)
	d.recorder.audit(ctx, run, models.AutomationSent, "message sent", map[string]any{
		"nodeId": node.ID,
		"shape":  string(shape),
	})
	d.recorder.publish(ctx, run.Flow.ID, events.MessageSent{
		BaseEvent: d.baseEvent(events.MessageSentEvent, run),
		NodeID:    node.ID,
		Shape:     string(shape),
	})

	if shape == ShapeLink {
		d.completeLink(ctx, run, logger)
	}

	return true
}

func (d *Dispatcher) deliver(ctx context.Context, shape Shape, node *models.FlowNode, run *models.RunContext, recipient messaging.Recipient, text string) error {
	message := node.Message()

	switch shape {
	case ShapeLink:
		link := d.render(ctx, message.LinkURL(), run)
		if message.DMLink == "" {
			text = StripLinks(text)
		}

		text = orDefault(text, DefaultLinkText)

		return d.gateway.SendButtonMessage(ctx, run.Channel, recipient, text, []models.Button{{
			Type:  models.ButtonWebURL,
			Title: orDefault(message.ButtonText, DefaultLinkButton),
			URL:   TrackURL(d.apiBaseURL, run.Flow.ID, node.ID, run.Contact.ID, link),
		}})
	case ShapeFollow:
		return d.gateway.SendButtonMessage(ctx, run.Channel, recipient, text, []models.Button{{
			Type:    models.ButtonPostback,
			Title:   orDefault(message.ButtonText, DefaultFollowButton),
			Payload: models.Postback{Action: models.PostbackFollowConfirmed, FlowID: run.Flow.ID}.Payload(),
		}})
	case ShapeOpening:
		return d.gateway.SendButtonMessage(ctx, run.Channel, recipient, text, []models.Button{{
			Type:    models.ButtonPostback,
			Title:   orDefault(message.ButtonText, DefaultOpeningButton),
			Payload: models.Postback{Action: models.PostbackSendLinkClick, FlowID: run.Flow.ID}.Payload(),
		}})
	case ShapeButtons:
		return d.gateway.SendButtonMessage(ctx, run.Channel, recipient, text, message.Buttons)
	default:
		return d.gateway.SendTextMessage(ctx, run.Channel, recipient, text)
	}
}

// recipient addresses comment runs as a private reply to the comment until one
// has been delivered; afterwards and for DMs the contact's id is used.
func (d *Dispatcher) recipient(run *models.RunContext) (messaging.Recipient, bool) {
	commentID := run.Var(models.VarCommentID)

	if run.TriggerType() == models.FlowTriggerComment && commentID != "" && !run.Flag(models.VarPrivateReplySent) {
		return messaging.Recipient{CommentID: commentID}, true
	}

	return messaging.Recipient{ID: run.ExternalID}, false
}

func (d *Dispatcher) render(ctx context.Context, content string, run *models.RunContext) string {
	vars := models.CloneMap(run.Variables)
	if vars == nil {
		vars = make(map[string]any)
	}

	if username := run.Contact.Username(); username != "" {
		if _, ok := vars[models.VarUsername]; !ok {
			vars[models.VarUsername] = username
		}
	}

	if run.Contact.HasEmail() {
		vars[models.VarEmail] = *run.Contact.Email
	}

	rendered, err := template.Render(content, vars)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to render message, sending raw content", "flow_id", run.Flow.ID, "error", err)
	}

	return rendered
}

// completeLink closes the funnel once the link was delivered.
func (d *Dispatcher) completeLink(ctx context.Context, run *models.RunContext, logger *slog.Logger) {
	err := d.deliveryLogs.Mark(ctx, run.Log, models.MilestoneLinkMsgSent)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record link delivery", "error", err)
	}

	err = d.contacts.SaveAutomation(ctx, run.Contact, run.Contact.Automation.Completed())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to complete contact funnel", "contact_id", run.Contact.ID, "error", err)
	}
}

func (d *Dispatcher) baseEvent(eventType events.EventType, run *models.RunContext) events.BaseEvent {
	return events.NewBaseEvent(eventType, run.Flow.ID, run.Flow.WorkspaceID, run.Contact.ID)
}

// StripLinks removes raw URLs from text so links are only reachable through
// the tracked button.
func StripLinks(text string) string {
	lines := strings.Split(models.URLPattern.ReplaceAllString(text, ""), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
