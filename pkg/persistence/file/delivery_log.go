package file

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// DeliveryLogRepository handles delivery-log file operations.
type DeliveryLogRepository struct {
	p    *Persistence
	docs collection[models.DeliveryLog]
}

func (r *DeliveryLogRepository) GetOrCreate(_ context.Context, flowID, contactID, workspaceID string, forceNew bool) (*models.DeliveryLog, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if !forceNew {
		latest, err := r.latest(flowID, contactID)
		if err != nil {
			return nil, err
		}

		if latest != nil {
			return latest, nil
		}
	}

	now := time.Now().UTC()
	log := &models.DeliveryLog{
		ID:          newID(),
		FlowID:      flowID,
		ContactID:   contactID,
		WorkspaceID: workspaceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.docs.write(log.ID, log); err != nil {
		return nil, err
	}

	return log, nil
}

func (r *DeliveryLogRepository) Latest(_ context.Context, flowID, contactID string) (*models.DeliveryLog, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	latest, err := r.latest(flowID, contactID)
	if err != nil {
		return nil, err
	}

	if latest == nil {
		return nil, persistence.ErrDeliveryLogNotFound
	}

	return latest, nil
}

// latest returns the newest log of the pair; ids are time ordered and break creation-time ties.
func (r *DeliveryLogRepository) latest(flowID, contactID string) (*models.DeliveryLog, error) {
	logs, err := r.docs.all()
	if err != nil {
		return nil, err
	}

	var latest *models.DeliveryLog

	for _, log := range logs {
		if log.FlowID != flowID || log.ContactID != contactID {
			continue
		}

		if latest == nil || newer(log, latest) {
			latest = log
		}
	}

	return latest, nil
}

func newer(a, b *models.DeliveryLog) bool {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c > 0
	}

	return cmp.Compare(a.ID, b.ID) > 0
}

// Mark sets a milestone on the log. Milestones are never cleared.
func (r *DeliveryLogRepository) Mark(_ context.Context, id string, milestone models.Milestone) (*models.DeliveryLog, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	log, err := r.docs.read(id)
	if err != nil {
		return nil, err
	}

	if log == nil {
		return nil, persistence.ErrDeliveryLogNotFound
	}

	if log.Has(milestone) {
		return log, nil
	}

	if !log.Set(milestone) {
		return nil, persistence.ErrUnknownMilestone
	}

	log.UpdatedAt = time.Now().UTC()

	if err := r.docs.write(log.ID, log); err != nil {
		return nil, err
	}

	return log, nil
}

func (r *DeliveryLogRepository) Stats(_ context.Context, flowID string) (*models.DeliveryStats, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	logs, err := r.docs.all()
	if err != nil {
		return nil, err
	}

	stats := &models.DeliveryStats{FlowID: flowID, Milestones: make(map[models.Milestone]int, len(models.Milestones))}

	for _, milestone := range models.Milestones {
		stats.Milestones[milestone] = 0
	}

	logs = slices.DeleteFunc(logs, func(log *models.DeliveryLog) bool { return log.FlowID != flowID })

	for _, log := range logs {
		stats.Total++

		for _, milestone := range models.Milestones {
			if log.Has(milestone) {
				stats.Milestones[milestone]++
			}
		}
	}

	return stats, nil
}
