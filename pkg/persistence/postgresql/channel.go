package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// ChannelRepository handles channel-related database operations.
type ChannelRepository struct {
	repository
}

const channelColumns = `id, workspace_id, type, is_active, access_token, meta_business_id, expires_in, created_at`

func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	return r.get(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
}

// GetByExternalAccount finds the active channel connected to a Meta business account.
func (r *ChannelRepository) GetByExternalAccount(ctx context.Context, metaBusinessID string) (*models.Channel, error) {
	return r.get(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE meta_business_id = $1 AND is_active
		ORDER BY created_at ASC
		LIMIT 1
	`, metaBusinessID)
}

func (r *ChannelRepository) get(ctx context.Context, query string, arg string) (*models.Channel, error) {
	var (
		channel     models.Channel
		channelType string
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&channel.ID,
		&channel.WorkspaceID,
		&channelType,
		&channel.IsActive,
		&channel.Config.AccessToken,
		&channel.Config.MetaBusinessID,
		&channel.Config.ExpiresIn,
		&channel.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrChannelNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", arg, err)
	}

	channel.Type = models.ChannelType(channelType)

	return &channel, nil
}

func (r *ChannelRepository) Save(ctx context.Context, channel *models.Channel) error {
	if channel.ID == "" {
		channel.ID = newID()
	}

	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			access_token = EXCLUDED.access_token,
			meta_business_id = EXCLUDED.meta_business_id,
			expires_in = EXCLUDED.expires_in
	`,
		channel.ID,
		channel.WorkspaceID,
		string(channel.Type),
		channel.IsActive,
		channel.Config.AccessToken,
		channel.Config.MetaBusinessID,
		channel.Config.ExpiresIn,
		channel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save channel %s: %w", channel.ID, err)
	}

	return nil
}
