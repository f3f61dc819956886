package file

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	p    *Persistence
	docs collection[models.Flow]
}

// FindActive returns the workspace's active flows matching the filter, oldest first.
func (r *FlowRepository) FindActive(_ context.Context, workspaceID string, filter persistence.FlowFilter) ([]*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	flows, err := r.docs.all()
	if err != nil {
		return nil, err
	}

	active := make([]*models.Flow, 0, len(flows))

	for _, flow := range flows {
		if flow.WorkspaceID == workspaceID && flow.IsActive && filter.Matches(flow) {
			active = append(active, flow)
		}
	}

	sortFlows(active)

	return active, nil
}

// List returns every flow of a workspace, oldest first.
func (r *FlowRepository) List(_ context.Context, workspaceID string) ([]*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	flows, err := r.docs.all()
	if err != nil {
		return nil, err
	}

	flows = slices.DeleteFunc(flows, func(flow *models.Flow) bool {
		return workspaceID != "" && flow.WorkspaceID != workspaceID
	})

	sortFlows(flows)

	return flows, nil
}

// GetByID retrieves a flow by its ID from the file system.
func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	flow, err := r.docs.read(id)
	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	if flow == nil {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	return flow, nil
}

// Save saves a flow to the file system.
func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if flow.ID == "" {
		flow.ID = newID()
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	return r.docs.write(flow.ID, flow)
}

// Delete removes a flow by its ID.
func (r *FlowRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	removed, err := r.docs.remove(id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if !removed {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

func sortFlows(flows []*models.Flow) {
	slices.SortFunc(flows, func(a, b *models.Flow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})
}
