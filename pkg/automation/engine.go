// Package automation runs comment and DM automation flows: it matches inbound
// events to flows, walks the funnel gates and executes the flow graph.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dukex/dmflow/pkg/eventbus"
	"github.com/dukex/dmflow/pkg/events"
	"github.com/dukex/dmflow/pkg/locker"
	"github.com/dukex/dmflow/pkg/messaging"
	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/otelhelper"
	"github.com/dukex/dmflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrFlowUnavailable is returned when a run targets a flow that is missing or inactive.
	ErrFlowUnavailable = errors.New("flow is not available")

	// ErrWorkspaceMismatch is returned when a flow and a channel belong to different workspaces.
	ErrWorkspaceMismatch = errors.New("flow and channel belong to different workspaces")

	// ErrUntrackedLink is returned when a click targets a url the flow node does not link to.
	ErrUntrackedLink = errors.New("url is not a tracked link of the flow node")
)

// EmailPattern extracts an email address from a reply.
var EmailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

const (
	defaultMaxSteps    = 100
	defaultLockTimeout = 30 * time.Second
)

// Config tunes an Engine.
type Config struct {
	// APIBaseURL is the public base of the tracking redirect.
	APIBaseURL  string
	MaxSteps    int
	LockTimeout time.Duration
	Now         func() time.Time
}

// Dependencies are the collaborators of an Engine. Locker, Publisher, Metrics
// and Tracer are optional.
type Dependencies struct {
	Persistence persistence.Persistence
	Gateway     messaging.Gateway
	Locker      locker.Locker
	Publisher   eventbus.EventPublisher
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

// Engine handles inbound comments and messages for every workspace. Events of
// one contact are serialized through the locker.
type Engine struct {
	persistence persistence.Persistence
	locker      locker.Locker
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	lockTimeout time.Duration
	logger      *slog.Logger

	matcher      *Matcher
	contacts     *Contacts
	deliveryLogs *DeliveryLogs
	dispatcher   *Dispatcher
	gates        *Gates
	walker       *Walker
	recorder     *recorder
}

func NewEngine(deps Dependencies, config Config, logger *slog.Logger) *Engine {
	logger = logger.With("module", "automation")

	if config.MaxSteps <= 0 {
		config.MaxSteps = defaultMaxSteps
	}

	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}

	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}

	if deps.Locker == nil {
		deps.Locker = locker.NewMemory()
	}

	if deps.Tracer == nil {
		deps.Tracer = otelhelper.NoopTracer()
	}

	p := deps.Persistence
	rec := &recorder{logs: p.AutomationLogRepository(), publisher: deps.Publisher, logger: logger}
	contacts := NewContacts(p.ContactRepository())
	deliveryLogs := NewDeliveryLogs(p.DeliveryLogRepository())

	dispatcher := &Dispatcher{
		gateway:      deps.Gateway,
		contacts:     contacts,
		deliveryLogs: deliveryLogs,
		recorder:     rec,
		metrics:      deps.Metrics,
		apiBaseURL:   config.APIBaseURL,
		logger:       logger.With("component", "dispatcher"),
	}

	return &Engine{
		persistence:  p,
		locker:       deps.Locker,
		metrics:      deps.Metrics,
		tracer:       deps.Tracer,
		lockTimeout:  config.LockTimeout,
		logger:       logger,
		matcher:      NewMatcher(p.FlowRepository(), logger),
		contacts:     contacts,
		deliveryLogs: deliveryLogs,
		dispatcher:   dispatcher,
		recorder:     rec,
		gates: &Gates{
			gateway:      deps.Gateway,
			dispatcher:   dispatcher,
			contacts:     contacts,
			deliveryLogs: deliveryLogs,
			recorder:     rec,
			metrics:      deps.Metrics,
			logger:       logger.With("component", "gates"),
		},
		walker: &Walker{
			dispatcher: dispatcher,
			contacts:   contacts,
			timers:     p.TimerRepository(),
			recorder:   rec,
			maxSteps:   config.MaxSteps,
			now:        config.Now,
			logger:     logger.With("component", "walker"),
		},
	}
}

// HandleComment starts the first flow matching a comment on the channel's media.
func (e *Engine) HandleComment(ctx context.Context, channel *models.Channel, comment models.IncomingComment) error {
	e.metrics.RecordEvent("comment")

	if comment.FromID == "" || comment.FromID == channel.Config.MetaBusinessID {
		return nil
	}

	unlock, err := e.lock(ctx, channel.ID, comment.FromID)
	if err != nil {
		return err
	}
	defer unlock()

	flow, err := e.matcher.MatchComment(ctx, channel, comment)
	if err != nil || flow == nil {
		return err
	}

	contact, _, err := e.contacts.Resolve(ctx, channel, comment.FromID, comment.FromUsername)
	if err != nil {
		return err
	}

	run := &models.RunContext{
		Flow:       flow,
		Channel:    channel,
		Contact:    contact,
		ExternalID: comment.FromID,
		Variables: map[string]any{
			models.VarTriggerType: string(models.FlowTriggerComment),
			models.VarCommentID:   comment.CommentID,
			models.VarCommentText: comment.Text,
			models.VarMediaID:     comment.MediaID,
			models.VarUsername:    comment.FromUsername,
		},
	}

	return e.execute(ctx, run, true)
}

// HandleMessage resumes a parked funnel when the message answers a gate, and
// otherwise starts the first keyword flow the text matches.
func (e *Engine) HandleMessage(ctx context.Context, channel *models.Channel, message models.IncomingMessage) error {
	e.metrics.RecordEvent("message")

	if message.FromID == "" || message.FromID == channel.Config.MetaBusinessID {
		return nil
	}

	unlock, err := e.lock(ctx, channel.ID, message.FromID)
	if err != nil {
		return err
	}
	defer unlock()

	contact, _, err := e.contacts.Resolve(ctx, channel, message.FromID, "")
	if err != nil {
		return err
	}

	if postback, ok := message.Resume(); ok {
		if postback.FlowID == "" {
			postback.FlowID = contact.Automation.PendingFlowID
		}

		if postback.FlowID != "" {
			return e.resumeGate(ctx, channel, contact, message, postback)
		}
	}

	if contact.Automation.State == models.StateWaitingForEmail && contact.Automation.PendingFlowID != "" {
		return e.resumeEmail(ctx, channel, contact, message)
	}

	text := message.Text
	if text == "" {
		return nil
	}

	flow, err := e.matcher.MatchMessage(ctx, channel, text)
	if err != nil || flow == nil {
		return err
	}

	run := &models.RunContext{
		Flow:       flow,
		Channel:    channel,
		Contact:    contact,
		ExternalID: message.FromID,
		Variables: map[string]any{
			models.VarTriggerType: string(models.FlowTriggerKeyword),
			models.VarMessageText: text,
		},
	}

	return e.execute(ctx, run, true)
}

func (e *Engine) resumeGate(ctx context.Context, channel *models.Channel, contact *models.Contact, message models.IncomingMessage, postback models.Postback) error {
	flow, err := e.activeFlow(ctx, postback.FlowID, channel)
	if err != nil {
		return err
	}

	log, err := e.deliveryLogs.GetOrCreate(ctx, flow.ID, contact.ID, flow.WorkspaceID, false)
	if err != nil {
		return err
	}

	if postback.Action == models.PostbackFollowConfirmed {
		if !contact.Automation.IsFollower {
			state := contact.Automation
			state.IsFollower = true

			err = e.contacts.SaveAutomation(ctx, contact, state)
			if err != nil {
				return err
			}
		}

		err = e.deliveryLogs.Mark(ctx, log, models.MilestoneFollowConfirmed)
	} else {
		err = e.deliveryLogs.Mark(ctx, log, models.MilestoneOpeningClicked)
	}

	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Resuming run", "flow_id", flow.ID, "contact_id", contact.ID, "action", postback.Action)

	return e.execute(ctx, e.resumedRun(flow, channel, contact, message), false)
}

// resumeEmail captures the address of a contact waiting on the email gate.
// Replies without a valid address are ignored.
func (e *Engine) resumeEmail(ctx context.Context, channel *models.Channel, contact *models.Contact, message models.IncomingMessage) error {
	email := EmailPattern.FindString(message.Text)
	if email == "" {
		e.logger.DebugContext(ctx, "Ignoring reply without a valid email", "contact_id", contact.ID)

		return nil
	}

	flow, err := e.activeFlow(ctx, contact.Automation.PendingFlowID, channel)
	if err != nil {
		return err
	}

	email = strings.ToLower(email)

	err = e.contacts.Patch(ctx, contact, models.ContactPatch{Email: &email})
	if err != nil {
		return err
	}

	log, err := e.deliveryLogs.GetOrCreate(ctx, flow.ID, contact.ID, flow.WorkspaceID, false)
	if err != nil {
		return err
	}

	err = e.deliveryLogs.Mark(ctx, log, models.MilestoneEmailProvided)
	if err != nil {
		return err
	}

	run := e.resumedRun(flow, channel, contact, message)
	run.SetVar(models.VarEmail, email)

	return e.execute(ctx, run, false)
}

// resumedRun restores the snapshot taken when the contact was parked, but only
// for the flow it was parked on.
func (e *Engine) resumedRun(flow *models.Flow, channel *models.Channel, contact *models.Contact, message models.IncomingMessage) *models.RunContext {
	var variables map[string]any
	if flow.ID == contact.Automation.PendingFlowID {
		variables = models.CloneMap(contact.Automation.PendingMetadata)
	}

	if variables == nil {
		variables = make(map[string]any)
	}

	if message.Text != "" {
		variables[models.VarMessageText] = message.Text
	}

	return &models.RunContext{
		Flow:       flow,
		Channel:    channel,
		Contact:    contact,
		ExternalID: message.FromID,
		Variables:  variables,
	}
}

// RunRequest starts a flow for a contact outside of the webhook path.
type RunRequest struct {
	FlowID     string
	ChannelID  string
	ContactID  string
	ExternalID string
	Metadata   map[string]any
	// Resume continues the newest delivery log instead of starting a new one.
	Resume bool
}

// Run resolves the flow, channel and contact of req, creating the contact from
// ExternalID when ContactID is empty, and executes the flow.
func (e *Engine) Run(ctx context.Context, req RunRequest) error {
	channel, err := e.persistence.ChannelRepository().GetByID(ctx, req.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to load channel %s: %w", req.ChannelID, err)
	}

	flow, err := e.activeFlow(ctx, req.FlowID, channel)
	if err != nil {
		return err
	}

	var contact *models.Contact

	if req.ContactID != "" {
		contact, err = e.persistence.ContactRepository().GetByID(ctx, req.ContactID)
		if err != nil {
			return fmt.Errorf("failed to load contact %s: %w", req.ContactID, err)
		}
	}

	externalID := req.ExternalID
	if externalID == "" && contact != nil {
		externalID = contact.ExternalIDFor(channel.Type)
	}

	if externalID == "" {
		return ErrNoExternalID
	}

	unlock, err := e.lock(ctx, channel.ID, externalID)
	if err != nil {
		return err
	}
	defer unlock()

	if contact == nil {
		contact, _, err = e.contacts.Resolve(ctx, channel, externalID, "")
	} else {
		contact, err = e.persistence.ContactRepository().GetByID(ctx, contact.ID)
	}

	if err != nil {
		return err
	}

	variables := models.CloneMap(req.Metadata)
	if variables == nil {
		variables = make(map[string]any)
	}

	run := &models.RunContext{
		Flow:       flow,
		Channel:    channel,
		Contact:    contact,
		ExternalID: externalID,
		Variables:  variables,
	}

	return e.execute(ctx, run, !req.Resume)
}

// ResumeTimer continues a delayed run at the timer's next node. Gates are not
// evaluated again: the run passed them before it was delayed.
func (e *Engine) ResumeTimer(ctx context.Context, timer *models.DelayTimer) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.resume_timer",
		attribute.String(otelhelper.TimerIDKey, timer.ID),
		attribute.String(otelhelper.FlowIDKey, timer.FlowID),
		attribute.String(otelhelper.ContactIDKey, timer.ContactID),
	)
	defer span.End()

	err := e.resumeTimer(ctx, timer)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (e *Engine) resumeTimer(ctx context.Context, timer *models.DelayTimer) error {
	channel, err := e.persistence.ChannelRepository().GetByID(ctx, timer.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to load channel %s: %w", timer.ChannelID, err)
	}

	flow, err := e.activeFlow(ctx, timer.FlowID, channel)
	if err != nil {
		return err
	}

	contact, err := e.persistence.ContactRepository().GetByID(ctx, timer.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load contact %s: %w", timer.ContactID, err)
	}

	externalID := contact.ExternalIDFor(channel.Type)
	if externalID == "" {
		return ErrNoExternalID
	}

	unlock, err := e.lock(ctx, channel.ID, externalID)
	if err != nil {
		return err
	}
	defer unlock()

	// Reload under the lock so the walk sees the latest automation version.
	contact, err = e.persistence.ContactRepository().GetByID(ctx, timer.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load contact %s: %w", timer.ContactID, err)
	}

	run := &models.RunContext{
		Flow:       flow,
		Channel:    channel,
		Contact:    contact,
		ExternalID: externalID,
		Variables:  models.CloneMap(timer.Metadata),
	}

	log, err := e.deliveryLogs.Latest(ctx, flow.ID, contact.ID)
	if err != nil && !errors.Is(err, persistence.ErrDeliveryLogNotFound) {
		return err
	}

	run.Log = log

	return e.walk(ctx, run, timer.NextNodeID, time.Now())
}

// TrackClick records a click on a tracked link of a flow node. The target must
// be the link the node sends, otherwise ErrUntrackedLink is returned. Clicks
// without a contact are validated but not recorded.
func (e *Engine) TrackClick(ctx context.Context, flowID, nodeID, contactID, target string) error {
	flow, err := e.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return ErrUntrackedLink
		}

		return fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}

	node := flow.NodeByID(nodeID)
	if node == nil || node.Type != models.NodeTypeMessage || !LinkMatches(node.Message().LinkURL(), target) {
		return ErrUntrackedLink
	}

	if contactID == "" {
		return nil
	}

	e.metrics.RecordLinkClick(flowID)

	log, err := e.deliveryLogs.Latest(ctx, flowID, contactID)
	if err != nil {
		return fmt.Errorf("failed to load delivery log of contact %s: %w", contactID, err)
	}

	err = e.deliveryLogs.Mark(ctx, log, models.MilestoneLinkClicked)
	if err != nil {
		return err
	}

	run := &models.RunContext{Flow: flow, Contact: &models.Contact{ID: contactID}}
	e.recorder.audit(ctx, run, models.AutomationLinkClicked, "link clicked", map[string]any{
		"nodeId": nodeID,
		"url":    target,
	})
	e.recorder.publish(ctx, flowID, events.LinkClicked{
		BaseEvent: events.NewBaseEvent(events.LinkClickedEvent, flowID, flow.WorkspaceID, contactID),
		NodeID:    nodeID,
		URL:       target,
	})

	return nil
}

// LinkMatches reports whether target is the configured link. A templated link
// matches targets sharing its static prefix, which must extend past the host.
func LinkMatches(configured, target string) bool {
	if configured == "" {
		return false
	}

	static, _, templated := strings.Cut(configured, "{{")
	if !templated {
		return target == configured
	}

	_, rest, ok := strings.Cut(static, "://")

	return ok && strings.Contains(rest, "/") && strings.HasPrefix(target, static)
}

// execute evaluates the gates and, once they pass, walks the flow from its trigger.
func (e *Engine) execute(ctx context.Context, run *models.RunContext, isNewExecution bool) error {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.run",
		attribute.String(otelhelper.FlowIDKey, run.Flow.ID),
		attribute.String(otelhelper.FlowNameKey, run.Flow.Name),
		attribute.String(otelhelper.WorkspaceIDKey, run.Flow.WorkspaceID),
		attribute.String(otelhelper.ContactIDKey, run.Contact.ID),
		attribute.String(otelhelper.ChannelIDKey, run.Channel.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(run.TriggerType())),
		attribute.Bool("dmflow.run.new", isNewExecution),
	)
	defer span.End()

	logger := e.logger.With("flow_id", run.Flow.ID, "contact_id", run.Contact.ID)

	if run.Variables == nil {
		run.Variables = make(map[string]any)
	}

	if isNewExecution {
		e.metrics.RecordTriggered(string(run.TriggerType()))
		e.recorder.audit(ctx, run, models.AutomationTriggered, "flow triggered", nil)
	}

	e.recorder.publish(ctx, run.Flow.ID, events.FlowTriggered{
		BaseEvent:   events.NewBaseEvent(events.FlowTriggeredEvent, run.Flow.ID, run.Flow.WorkspaceID, run.Contact.ID),
		TriggerType: run.TriggerType(),
		ExternalID:  run.ExternalID,
		Resumed:     !isNewExecution,
	})

	passed, err := e.gates.Check(ctx, run, isNewExecution)
	if err != nil {
		logger.ErrorContext(ctx, "Run aborted while evaluating gates", "error", err)
		e.recorder.audit(ctx, run, models.AutomationFailed, err.Error(), nil)
		otelhelper.SetError(span, err)

		return err
	}

	if !passed {
		span.SetAttributes(attribute.Bool("dmflow.run.blocked", true))

		return nil
	}

	trigger := run.Flow.TriggerNode()
	if trigger == nil {
		err = fmt.Errorf("%w: flow %s has no trigger node", ErrFlowUnavailable, run.Flow.ID)
		otelhelper.SetError(span, err)

		return err
	}

	err = e.walk(ctx, run, trigger.ID, started)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (e *Engine) walk(ctx context.Context, run *models.RunContext, startNodeID string, started time.Time) error {
	result, err := e.walker.Walk(ctx, run, startNodeID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Walk failed", "flow_id", run.Flow.ID, "contact_id", run.Contact.ID, "error", err)

		if !errors.Is(err, ErrMaxStepsExceeded) {
			e.recorder.audit(ctx, run, models.AutomationFailed, err.Error(), nil)
		}

		return err
	}

	e.metrics.RecordDuration("walk", time.Since(started))

	if result.Finished {
		e.recorder.audit(ctx, run, models.AutomationCompleted, "flow completed", map[string]any{"steps": result.Steps})
		e.recorder.publish(ctx, run.Flow.ID, events.FlowCompleted{
			BaseEvent:     events.NewBaseEvent(events.FlowCompletedEvent, run.Flow.ID, run.Flow.WorkspaceID, run.Contact.ID),
			NodesExecuted: result.Steps,
			Duration:      time.Since(started),
		})
	}

	return nil
}

func (e *Engine) activeFlow(ctx context.Context, flowID string, channel *models.Channel) (*models.Flow, error) {
	flow, err := e.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}

	if !flow.IsActive {
		return nil, fmt.Errorf("%w: flow %s is inactive", ErrFlowUnavailable, flowID)
	}

	if flow.WorkspaceID != channel.WorkspaceID {
		return nil, fmt.Errorf("%w: flow %s", ErrWorkspaceMismatch, flowID)
	}

	return flow, nil
}

func (e *Engine) lock(ctx context.Context, channelID, externalID string) (locker.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	unlock, err := e.locker.Lock(lockCtx, locker.ContactKey(channelID, externalID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock contact %s: %w", externalID, err)
	}

	return unlock, nil
}
