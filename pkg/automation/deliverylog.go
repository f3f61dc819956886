package automation

import (
	"context"
	"fmt"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// DeliveryLogs keeps the funnel ledger of each (flow, contact) pass.
type DeliveryLogs struct {
	repository persistence.DeliveryLogRepository
}

func NewDeliveryLogs(repository persistence.DeliveryLogRepository) *DeliveryLogs {
	return &DeliveryLogs{repository: repository}
}

// GetOrCreate returns the newest log of the pair, starting a new one when none
// exists or forceNew is set. Earlier logs are left untouched.
func (d *DeliveryLogs) GetOrCreate(ctx context.Context, flowID, contactID, workspaceID string, forceNew bool) (*models.DeliveryLog, error) {
	log, err := d.repository.GetOrCreate(ctx, flowID, contactID, workspaceID, forceNew)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery log for flow %s: %w", flowID, err)
	}

	return log, nil
}

// Latest returns the newest log of the pair.
func (d *DeliveryLogs) Latest(ctx context.Context, flowID, contactID string) (*models.DeliveryLog, error) {
	return d.repository.Latest(ctx, flowID, contactID)
}

// Mark records a milestone on log. Milestones only move forward, so an already
// reached milestone is not written again.
func (d *DeliveryLogs) Mark(ctx context.Context, log *models.DeliveryLog, milestone models.Milestone) error {
	if log == nil || log.Has(milestone) {
		return nil
	}

	updated, err := d.repository.Mark(ctx, log.ID, milestone)
	if err != nil {
		return fmt.Errorf("failed to mark %s on delivery log %s: %w", milestone, log.ID, err)
	}

	*log = *updated

	return nil
}
