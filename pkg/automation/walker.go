package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/dmflow/pkg/events"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// ErrMaxStepsExceeded stops a walk that visited more nodes than allowed, which
// happens when a flow graph contains a cycle.
var ErrMaxStepsExceeded = errors.New("flow walk exceeded the maximum number of steps")

// WalkResult summarizes a walk.
type WalkResult struct {
	Steps    int
	Timer    *models.DelayTimer
	Finished bool
}

// Walker executes flow nodes from a starting node along outgoing edges until a
// DELAY parks the run, the graph ends or the step budget runs out.
type Walker struct {
	dispatcher *Dispatcher
	contacts   *Contacts
	timers     persistence.TimerRepository
	recorder   *recorder
	maxSteps   int
	now        func() time.Time
	logger     *slog.Logger
}

func (w *Walker) Walk(ctx context.Context, run *models.RunContext, startNodeID string) (WalkResult, error) {
	var result WalkResult

	logger := w.logger.With("flow_id", run.Flow.ID, "contact_id", run.Contact.ID)
	queue := []string{startNodeID}

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		if result.Steps >= w.maxSteps {
			logger.ErrorContext(ctx, "Walk aborted", "steps", result.Steps, "node_id", nodeID)
			w.recorder.audit(ctx, run, models.AutomationFailed, ErrMaxStepsExceeded.Error(), map[string]any{"nodeId": nodeID})

			return result, ErrMaxStepsExceeded
		}

		node := run.Flow.NodeByID(nodeID)
		if node == nil {
			logger.WarnContext(ctx, "Edge points at unknown node, walk ends", "node_id", nodeID)

			break
		}

		result.Steps++

		next, timer, err := w.execute(ctx, run, node)
		if err != nil {
			return result, fmt.Errorf("node %s: %w", node.ID, err)
		}

		if timer != nil {
			result.Timer = timer

			return result, nil
		}

		if next != "" {
			queue = append(queue, next)
		}
	}

	result.Finished = true

	return result, w.finish(ctx, run, logger)
}

// execute runs one node and returns the node to continue with, or the timer
// that parks the run.
func (w *Walker) execute(ctx context.Context, run *models.RunContext, node *models.FlowNode) (string, *models.DelayTimer, error) {
	logger := w.logger.With("flow_id", run.Flow.ID, "node_id", node.ID, "role", node.EffectiveRole())
	next, _ := run.Flow.NextNodeID(node.ID)

	if node.IsGateOwned() {
		logger.DebugContext(ctx, "Skipping gate message")

		return next, nil, nil
	}

	switch node.Type {
	case models.NodeTypeMessage:
		w.dispatcher.Send(ctx, node, run)

		return next, nil, nil
	case models.NodeTypeCondition:
		matched := EvaluateCondition(node.Condition(), run)
		logger.DebugContext(ctx, "Condition evaluated", "result", matched)

		return branch(run.Flow, node.ID, matched), nil, nil
	case models.NodeTypeDelay:
		return w.delay(ctx, run, node, next)
	case models.NodeTypeAction:
		return next, nil, w.action(ctx, run, node)
	case models.NodeTypeTrigger, models.NodeTypeInput:
		return next, nil, nil
	default:
		logger.WarnContext(ctx, "Unknown node type, skipping", "type", node.Type)

		return next, nil, nil
	}
}

func (w *Walker) delay(ctx context.Context, run *models.RunContext, node *models.FlowNode, next string) (string, *models.DelayTimer, error) {
	seconds := node.Delay().Seconds
	if seconds <= 0 || next == "" {
		return next, nil, nil
	}

	timer := &models.DelayTimer{
		FlowID:      run.Flow.ID,
		ContactID:   run.Contact.ID,
		WorkspaceID: run.Flow.WorkspaceID,
		ChannelID:   run.Channel.ID,
		NextNodeID:  next,
		ResumeAt:    w.now().Add(time.Duration(seconds) * time.Second),
		Metadata:    models.CloneMap(run.Variables),
		Status:      models.TimerPending,
	}

	err := w.timers.Save(ctx, timer)
	if err != nil {
		return "", nil, fmt.Errorf("failed to save delay timer: %w", err)
	}

	w.logger.InfoContext(ctx, "Run delayed",
		"flow_id", run.Flow.ID, "contact_id", run.Contact.ID, "timer_id", timer.ID, "resume_at", timer.ResumeAt)
	w.recorder.publish(ctx, run.Flow.ID, events.FlowDelayed{
		BaseEvent:  events.NewBaseEvent(events.FlowDelayedEvent, run.Flow.ID, run.Flow.WorkspaceID, run.Contact.ID),
		TimerID:    timer.ID,
		NextNodeID: next,
		ResumeAt:   timer.ResumeAt,
	})

	return "", timer, nil
}

func (w *Walker) action(ctx context.Context, run *models.RunContext, node *models.FlowNode) error {
	config := node.Action()

	switch config.Action {
	case models.ActionSetField:
		return w.contacts.Patch(ctx, run.Contact, models.ContactPatch{
			CustomData: map[string]any{config.Field: config.Value},
		})
	case models.ActionAddTag:
		return w.contacts.Patch(ctx, run.Contact, models.ContactPatch{Tags: []string{config.Tag}})
	case models.ActionComplete:
		return w.contacts.SaveAutomation(ctx, run.Contact, run.Contact.Automation.Completed())
	default:
		w.logger.WarnContext(ctx, "Unknown action, skipping", "flow_id", run.Flow.ID, "node_id", node.ID, "action", config.Action)

		return nil
	}
}

// finish releases a contact still parked on this flow once its walk ends.
func (w *Walker) finish(ctx context.Context, run *models.RunContext, logger *slog.Logger) error {
	state := run.Contact.Automation
	if state.PendingFlowID == run.Flow.ID && state.State.IsWaiting() {
		err := w.contacts.SaveAutomation(ctx, run.Contact, state.Completed())
		if err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "Walk finished")

	return nil
}

// branch picks the edge labeled with the condition outcome, falling back to
// the first unlabeled edge.
func branch(flow *models.Flow, nodeID string, matched bool) string {
	label := "false"
	if matched {
		label = "true"
	}

	fallback := ""

	for _, edge := range flow.OutgoingEdges(nodeID) {
		switch edge.Label {
		case label:
			return edge.Target
		case "":
			if fallback == "" {
				fallback = edge.Target
			}
		}
	}

	return fallback
}

// EvaluateCondition tests a run variable or contact fact. Fields prefixed with
// "contact." read the contact: email, is_follower, tags or a custom field.
func EvaluateCondition(condition models.ConditionConfig, run *models.RunContext) bool {
	value, exists := lookupField(condition.Field, run)

	switch condition.Operator {
	case models.OperatorExists:
		return exists && value != ""
	case models.OperatorNotExists:
		return !exists || value == ""
	case models.OperatorNotEquals:
		return !strings.EqualFold(value, condition.Value)
	case models.OperatorContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(condition.Value))
	default:
		return strings.EqualFold(value, condition.Value)
	}
}

func lookupField(field string, run *models.RunContext) (string, bool) {
	name, isContact := strings.CutPrefix(field, "contact.")
	if !isContact {
		_, exists := run.Variables[field]

		return run.Var(field), exists
	}

	contact := run.Contact

	switch name {
	case "email":
		if !contact.HasEmail() {
			return "", false
		}

		return *contact.Email, true
	case "is_follower":
		return fmt.Sprint(contact.Automation.IsFollower), true
	case "tags":
		return strings.Join(contact.Tags, ","), len(contact.Tags) > 0
	default:
		value, exists := contact.CustomData[name]
		if !exists || value == nil {
			return "", false
		}

		return fmt.Sprint(value), true
	}
}
