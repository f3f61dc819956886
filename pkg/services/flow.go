package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrFlowNotFound is returned when a flow is not found.
var ErrFlowNotFound = persistence.ErrFlowNotFound

// Flows manages the flows of a workspace. Saving a flow normalizes it, decides
// every node's role and validates the typed node configurations.
type Flows struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewFlows creates a new flow service.
func NewFlows(persistence persistence.Persistence) *Flows {
	return &Flows{
		persistence: persistence,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flows) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every flow of a workspace.
func (f *Flows) List(ctx context.Context, workspaceID string) ([]*models.Flow, error) {
	if workspaceID == "" {
		return nil, ErrWorkspaceIDRequired
	}

	flows, err := f.persistence.FlowRepository().List(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return flows, nil
}

// Get returns a flow of the workspace.
func (f *Flows) Get(ctx context.Context, workspaceID, id string) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().GetByID(ctx, id)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return nil, ErrFlowNotFound
		}

		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	if flow.WorkspaceID != workspaceID {
		return nil, ErrAccessDenied
	}

	return flow, nil
}

// Create validates and stores a new flow.
func (f *Flows) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, ErrFlowNil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate flow id: %w", err)
	}

	flow.ID = id.String()

	err = f.Prepare(flow)
	if err != nil {
		return nil, err
	}

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

// Update replaces the definition of an existing flow, keeping its identity.
func (f *Flows) Update(ctx context.Context, workspaceID, id string, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, ErrFlowNil
	}

	existing, err := f.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	flow.ID = existing.ID
	flow.WorkspaceID = existing.WorkspaceID
	flow.CreatedAt = existing.CreatedAt

	err = f.Prepare(flow)
	if err != nil {
		return nil, err
	}

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

// SetActive activates or deactivates a flow.
func (f *Flows) SetActive(ctx context.Context, workspaceID, id string, active bool) (*models.Flow, error) {
	flow, err := f.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	flow.IsActive = active

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

// Delete removes a flow.
func (f *Flows) Delete(ctx context.Context, workspaceID, id string) error {
	_, err := f.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}

	err = f.persistence.FlowRepository().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}

// Stats returns the delivery funnel counts of a flow.
func (f *Flows) Stats(ctx context.Context, workspaceID, id string) (*models.DeliveryStats, error) {
	_, err := f.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	stats, err := f.persistence.DeliveryLogRepository().Stats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to compute flow stats: %w", err)
	}

	return stats, nil
}

// Prepare normalizes keywords, stores the role of every node and validates the flow.
func (f *Flows) Prepare(flow *models.Flow) error {
	if strings.TrimSpace(flow.Name) == "" {
		return ErrFlowNameRequired
	}

	if flow.WorkspaceID == "" {
		return ErrWorkspaceIDRequired
	}

	if flow.TriggerType != models.FlowTriggerComment && flow.TriggerType != models.FlowTriggerKeyword {
		return ErrUnsupportedTrigger
	}

	if flow.ChannelType == "" {
		flow.ChannelType = models.ChannelTypeInstagram
	}

	if flow.ChannelType != models.ChannelTypeInstagram {
		return ErrUnsupportedChannel
	}

	if len(flow.Nodes) == 0 {
		return ErrNodesRequired
	}

	flow.Keywords = NormalizeKeywords(flow.Keywords)

	err := f.validateGraph(flow)
	if err != nil {
		return err
	}

	for _, node := range flow.Nodes {
		if node.Type == models.NodeTypeTrigger && node.Data != nil {
			if _, ok := node.Data["keywords"]; ok {
				node.Data["keywords"] = NormalizeKeywords(node.Trigger().Keywords)
			}
		}

		node.Role = models.InferRole(node)
	}

	err = f.validator.Struct(flow)
	if err != nil {
		return NewValidationError("Prepare", "INVALID_FLOW", err.Error(), ErrInvalidRequest)
	}

	for _, node := range flow.Nodes {
		err = f.validateNode(node)
		if err != nil {
			return err
		}
	}

	return nil
}

func (f *Flows) validateGraph(flow *models.Flow) error {
	ids := make(map[string]bool, len(flow.Nodes))
	triggers := 0

	for _, node := range flow.Nodes {
		if node == nil {
			return ErrInvalidRequest
		}

		if ids[node.ID] {
			return NewValidationError("Prepare", "DUPLICATE_NODE", "duplicate node id "+node.ID, ErrDuplicateNodeID)
		}

		ids[node.ID] = true

		if node.Type == models.NodeTypeTrigger {
			triggers++
		}
	}

	if triggers != 1 {
		return ErrTriggerNodeRequired
	}

	for _, edge := range flow.Edges {
		if edge == nil || !ids[edge.Source] || !ids[edge.Target] {
			return ErrInvalidEdge
		}
	}

	return nil
}

func (f *Flows) validateNode(node *models.FlowNode) error {
	var config any

	switch node.Type {
	case models.NodeTypeTrigger:
		config = node.Trigger()
	case models.NodeTypeMessage:
		config = node.Message()
	case models.NodeTypeDelay:
		config = node.Delay()
	case models.NodeTypeCondition:
		config = node.Condition()
	case models.NodeTypeAction:
		config = node.Action()
	default:
		return nil
	}

	err := f.validator.Struct(config)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		first := validationErrors[0]

		return NewValidationError("Prepare", "INVALID_NODE_CONFIG",
			fmt.Sprintf("node %s: field %s failed on '%s'", node.ID, first.Field(), first.Tag()),
			ErrInvalidNodeConfig)
	}

	return NewValidationError("Prepare", "INVALID_NODE_CONFIG", fmt.Sprintf("node %s: %v", node.ID, err), ErrInvalidNodeConfig)
}

// NormalizeKeywords trims keywords and drops empty and repeated entries.
func NormalizeKeywords(keywords []string) []string {
	normalized := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))

	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		key := strings.ToLower(keyword)

		if keyword == "" || seen[key] {
			continue
		}

		seen[key] = true
		normalized = append(normalized, keyword)
	}

	return normalized
}
