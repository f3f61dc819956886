package automation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/dmflow/pkg/events"
	"github.com/dukex/dmflow/pkg/messaging"
	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/models"
)

// ErrNoExternalID is returned when the contact has no id on the flow's channel.
var ErrNoExternalID = errors.New("contact has no external id for channel")

// Default gate texts for flows that enable a gate through trigger flags only.
const (
	DefaultFollowText  = "Follow us first, then tap the button below to get your link."
	DefaultOpeningText = "Thanks for reaching out! Tap below and we'll send you the link."
	DefaultEmailText   = "Almost there! Reply with your email address to get the link."
)

// Gate names used in logs and metrics.
const (
	GateFollow  = "follow"
	GateOpening = "opening"
	GateEmail   = "email"
)

// gatePlan lists the gate messages a flow enables. A nil node means the gate is off.
type gatePlan struct {
	follow  *models.FlowNode
	opening *models.FlowNode
	email   *models.FlowNode
}

// planGates resolves gates from tagged message nodes, falling back to the
// trigger's requireFollow, openingDM and requireEmail flags.
func planGates(flow *models.Flow) gatePlan {
	var trigger models.TriggerConfig
	if node := flow.TriggerNode(); node != nil {
		trigger = node.Trigger()
	}

	plan := gatePlan{
		follow:  flow.NodeByRole(models.RoleFollowGateMessage),
		opening: flow.NodeByRole(models.RoleOpeningGateMessage),
		email:   flow.NodeByRole(models.RoleEmailGateMessage),
	}

	if plan.follow == nil && trigger.RequireFollow {
		plan.follow = gateNode(models.MarkerFollowGate, models.RoleFollowGateMessage,
			orDefault(trigger.FollowText, DefaultFollowText), trigger.FollowButtonText)
	}

	if plan.opening == nil && trigger.OpeningDM {
		plan.opening = gateNode(models.MarkerOpeningGate, models.RoleOpeningGateMessage,
			orDefault(trigger.OpeningText, DefaultOpeningText), trigger.OpeningButtonText)
	}

	if plan.email == nil && trigger.RequireEmail {
		plan.email = gateNode(models.MarkerEmailGate, models.RoleEmailGateMessage,
			orDefault(trigger.EmailText, DefaultEmailText), "")
	}

	return plan
}

func gateNode(id string, role models.NodeRole, content, buttonText string) *models.FlowNode {
	data := map[string]any{"content": content}
	if buttonText != "" {
		data["buttonText"] = buttonText
	}

	return &models.FlowNode{ID: id, Type: models.NodeTypeMessage, Role: role, Data: data}
}

// Gates runs the Follow, Opening and Email stages in that order. A stage that
// is not yet satisfied sends its message at most once per delivery log, parks
// the contact on the matching waiting state and blocks the run.
type Gates struct {
	gateway      messaging.Gateway
	dispatcher   *Dispatcher
	contacts     *Contacts
	deliveryLogs *DeliveryLogs
	recorder     *recorder
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Check reports whether every enabled gate is satisfied. New executions start a
// fresh delivery log; resumed ones continue the newest.
func (g *Gates) Check(ctx context.Context, run *models.RunContext, isNewExecution bool) (bool, error) {
	if run.ExternalID == "" {
		run.ExternalID = run.Contact.ExternalIDFor(run.Flow.ChannelType)
	}

	if run.ExternalID == "" {
		return false, ErrNoExternalID
	}

	log, err := g.deliveryLogs.GetOrCreate(ctx, run.Flow.ID, run.Contact.ID, run.Flow.WorkspaceID, isNewExecution)
	if err != nil {
		return false, err
	}

	run.Log = log
	plan := planGates(run.Flow)
	logger := g.logger.With("flow_id", run.Flow.ID, "contact_id", run.Contact.ID)

	if plan.follow != nil && !run.Contact.Automation.IsFollower && !log.FollowConfirmed {
		if g.follows(ctx, run, logger) {
			state := run.Contact.Automation
			state.IsFollower = true

			err = g.contacts.SaveAutomation(ctx, run.Contact, state)
			if err != nil {
				return false, err
			}

			logger.InfoContext(ctx, "Contact already follows, follow gate passed")
		} else {
			return g.block(ctx, run, GateFollow, plan.follow, models.MilestoneFollowMsgSent, models.StateWaitingForFollow)
		}
	}

	if plan.opening != nil && !log.OpeningClicked {
		return g.block(ctx, run, GateOpening, plan.opening, models.MilestoneOpeningMsgSent, models.StateWaitingForOpeningClick)
	}

	if plan.email != nil && !run.Contact.HasEmail() && !log.EmailProvided {
		return g.block(ctx, run, GateEmail, plan.email, models.MilestoneEmailReqSent, models.StateWaitingForEmail)
	}

	return true, nil
}

func (g *Gates) follows(ctx context.Context, run *models.RunContext, logger *slog.Logger) bool {
	follows, err := g.gateway.CheckFollows(ctx, run.Channel, run.ExternalID)
	if err != nil {
		logger.WarnContext(ctx, "Follow check failed, treating contact as not following", "error", err)

		return false
	}

	return follows
}

// block sends the gate message unless sent already, then parks the contact.
// A failed send leaves the contact unparked so the next event retries the gate.
func (g *Gates) block(
	ctx context.Context,
	run *models.RunContext,
	gate string,
	node *models.FlowNode,
	sent models.Milestone,
	state models.AutomationState,
) (bool, error) {
	logger := g.logger.With("flow_id", run.Flow.ID, "contact_id", run.Contact.ID, "gate", gate)

	if !run.Log.Has(sent) {
		if !g.dispatcher.Send(ctx, node, run) {
			logger.WarnContext(ctx, "Gate message not delivered, run stays unblocked for retry")

			return false, nil
		}

		err := g.deliveryLogs.Mark(ctx, run.Log, sent)
		if err != nil {
			return false, err
		}
	}

	current := run.Contact.Automation
	if current.State != state || current.PendingFlowID != run.Flow.ID {
		err := g.contacts.SaveAutomation(ctx, run.Contact, current.Waiting(state, run.Flow.ID, run.Variables))
		if err != nil {
			return false, err
		}
	}

	logger.InfoContext(ctx, "Run blocked by gate", "state", state)
	g.metrics.RecordGateBlock(gate)
	g.recorder.audit(ctx, run, models.AutomationBlocked, "waiting on "+gate+" gate", map[string]any{"state": string(state)})
	g.recorder.publish(ctx, run.Flow.ID, events.FlowBlocked{
		BaseEvent: events.NewBaseEvent(events.FlowBlockedEvent, run.Flow.ID, run.Flow.WorkspaceID, run.Contact.ID),
		State:     state,
	})

	return false, nil
}
