package file

import (
	"context"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// ChannelRepository handles channel-related file operations.
type ChannelRepository struct {
	p    *Persistence
	docs collection[models.Channel]
}

func (r *ChannelRepository) GetByID(_ context.Context, id string) (*models.Channel, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	channel, err := r.docs.read(id)
	if err != nil {
		return nil, err
	}

	if channel == nil {
		return nil, persistence.ErrChannelNotFound
	}

	return channel, nil
}

// GetByExternalAccount finds the active channel connected to a Meta business account.
func (r *ChannelRepository) GetByExternalAccount(_ context.Context, metaBusinessID string) (*models.Channel, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	channels, err := r.docs.all()
	if err != nil {
		return nil, err
	}

	for _, channel := range channels {
		if channel.IsActive && channel.Config.MetaBusinessID == metaBusinessID {
			return channel, nil
		}
	}

	return nil, persistence.ErrChannelNotFound
}

func (r *ChannelRepository) Save(_ context.Context, channel *models.Channel) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if channel.ID == "" {
		channel.ID = newID()
	}

	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}

	return r.docs.write(channel.ID, channel)
}
