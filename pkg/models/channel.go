package models

import "time"

// ChannelConfig holds the provider credentials for a connected account.
type ChannelConfig struct {
	AccessToken    string `json:"access_token"     validate:"required"`
	MetaBusinessID string `json:"meta_business_id" validate:"required"`
	ExpiresIn      int64  `json:"expires_in,omitempty"`
}

// Channel is a workspace's connected messaging account.
type Channel struct {
	ID          string        `json:"id"           validate:"required"`
	WorkspaceID string        `json:"workspace_id" validate:"required"`
	Type        ChannelType   `json:"type"         validate:"required"`
	IsActive    bool          `json:"is_active"`
	Config      ChannelConfig `json:"config"`
	CreatedAt   time.Time     `json:"created_at"`
}
