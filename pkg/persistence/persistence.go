// Package persistence provides the data storage abstraction for flows, contacts,
// channels and the automation ledgers.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/dmflow/pkg/models"
)

// Persistence gives access to every repository the automation engine uses.
type Persistence interface {
	FlowRepository() FlowRepository
	ContactRepository() ContactRepository
	ChannelRepository() ChannelRepository
	DeliveryLogRepository() DeliveryLogRepository
	AutomationLogRepository() AutomationLogRepository
	TimerRepository() TimerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowFilter narrows the active flows returned to the trigger matcher.
type FlowFilter struct {
	TriggerType models.FlowTriggerType
	ChannelType models.ChannelType
}

// Matches reports whether the flow satisfies the filter.
func (f FlowFilter) Matches(flow *models.Flow) bool {
	if f.TriggerType != "" && flow.TriggerType != f.TriggerType {
		return false
	}

	return f.ChannelType == "" || flow.ChannelType == f.ChannelType
}

// FlowRepository stores flows. FindActive returns flows ordered by creation time
// then id so the first match is deterministic.
type FlowRepository interface {
	FindActive(ctx context.Context, workspaceID string, filter FlowFilter) ([]*models.Flow, error)
	List(ctx context.Context, workspaceID string) ([]*models.Flow, error)
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error
}

// ContactRepository stores contacts. Update with a patch carrying ExpectedVersion
// fails with ErrContactVersionConflict when the stored automation version differs.
type ContactRepository interface {
	FindByExternalID(ctx context.Context, workspaceID string, channelType models.ChannelType, externalID string) (*models.Contact, error)
	GetByID(ctx context.Context, id string) (*models.Contact, error)
	Create(ctx context.Context, contact *models.Contact) error
	Update(ctx context.Context, id string, patch models.ContactPatch) (*models.Contact, error)
}

// ChannelRepository stores connected accounts.
type ChannelRepository interface {
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	GetByExternalAccount(ctx context.Context, metaBusinessID string) (*models.Channel, error)
	Save(ctx context.Context, channel *models.Channel) error
}

// DeliveryLogRepository keeps the per (flow, contact) funnel ledger.
type DeliveryLogRepository interface {
	// GetOrCreate returns the newest log for the pair, creating one when none
	// exists or forceNew is set.
	GetOrCreate(ctx context.Context, flowID, contactID, workspaceID string, forceNew bool) (*models.DeliveryLog, error)
	Latest(ctx context.Context, flowID, contactID string) (*models.DeliveryLog, error)
	Mark(ctx context.Context, id string, milestone models.Milestone) (*models.DeliveryLog, error)
	Stats(ctx context.Context, flowID string) (*models.DeliveryStats, error)
}

// AutomationLogRepository is the append-only audit trail.
type AutomationLogRepository interface {
	Append(ctx context.Context, entry *models.AutomationLog) error
}

// TimerRepository stores durable delay timers.
type TimerRepository interface {
	Save(ctx context.Context, timer *models.DelayTimer) error
	Due(ctx context.Context, now time.Time, limit int) ([]*models.DelayTimer, error)
	// Claim moves a pending timer to fired. It reports false when another
	// poller claimed it first.
	Claim(ctx context.Context, id string) (bool, error)
}
