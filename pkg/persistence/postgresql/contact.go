package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/lib/pq"
)

// ContactRepository handles contact-related database operations.
type ContactRepository struct {
	repository
}

const contactColumns = `
	c.id
  , c.workspace_id
  , c.email
  , c.custom_data
  , c.tags
  , c.pending_flow_id
  , c.automation_state
  , c.pending_metadata
  , c.is_follower
  , c.automation_version
  , c.created_at
  , c.updated_at
`

// FindByExternalID looks a contact up by its platform id on a channel type.
func (r *ContactRepository) FindByExternalID(ctx context.Context, workspaceID string, channelType models.ChannelType, externalID string) (*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts c
		JOIN contact_channels cc ON cc.contact_id = c.id
		WHERE c.workspace_id = $1 AND cc.channel_type = $2 AND cc.external_id = $3
		ORDER BY c.created_at ASC
		LIMIT 1
	`

	contact, err := r.load(ctx, r.db, query, workspaceID, string(channelType), externalID)
	if err != nil {
		return nil, persistence.NewContactError("FindByExternalID", externalID, err)
	}

	return contact, nil
}

// GetByID retrieves a contact by its ID.
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	contact, err := r.load(ctx, r.db, `SELECT `+contactColumns+` FROM contacts c WHERE c.id = $1`, id)
	if err != nil {
		return nil, persistence.NewContactError("GetByID", id, err)
	}

	return contact, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *ContactRepository) load(ctx context.Context, q queryer, query string, args ...any) (*models.Contact, error) {
	contact, err := scanContact(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrContactNotFound
	}

	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT channel_id, channel_type, external_id, username
		FROM contact_channels
		WHERE contact_id = $1
		ORDER BY channel_id
	`, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact channels: %w", err)
	}

	defer r.closeRows(ctx, rows)

	for rows.Next() {
		var (
			link        models.ContactChannel
			channelType string
		)

		err := rows.Scan(&link.ChannelID, &channelType, &link.ExternalID, &link.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact channel: %w", err)
		}

		link.ChannelType = models.ChannelType(channelType)
		contact.Channels = append(contact.Channels, link)
	}

	return contact, rows.Err()
}

// Create inserts a contact and its channel links in one transaction.
func (r *ContactRepository) Create(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = newID()
	}

	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	err = r.write(ctx, tx, contact, true)
	if err != nil {
		return persistence.NewContactError("Create", contact.ID, err)
	}

	for _, link := range contact.Channels {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contact_channels (contact_id, channel_id, channel_type, external_id, username)
			VALUES ($1, $2, $3, $4, $5)
		`, contact.ID, link.ChannelID, string(link.ChannelType), link.ExternalID, link.Username)
		if err != nil {
			return persistence.NewContactError("Create", contact.ID, err)
		}
	}

	return tx.Commit()
}

// Update applies the patch under a row lock, enforcing the expected automation version when set.
func (r *ContactRepository) Update(ctx context.Context, id string, patch models.ContactPatch) (*models.Contact, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	contact, err := r.load(ctx, tx, `SELECT `+contactColumns+` FROM contacts c WHERE c.id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, persistence.NewContactError("Update", id, err)
	}

	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != contact.Automation.Version {
		return nil, persistence.NewContactError("Update", id, persistence.ErrContactVersionConflict)
	}

	patch.Apply(contact)

	err = r.write(ctx, tx, contact, false)
	if err != nil {
		return nil, persistence.NewContactError("Update", id, err)
	}

	if patch.Username != nil {
		_, err = tx.ExecContext(ctx, `UPDATE contact_channels SET username = $2 WHERE contact_id = $1`, id, *patch.Username)
		if err != nil {
			return nil, persistence.NewContactError("Update", id, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.NewContactError("Update", id, err)
	}

	return contact, nil
}

func (r *ContactRepository) write(ctx context.Context, tx *sql.Tx, contact *models.Contact, insert bool) error {
	customData, err := marshalJSON(contact.CustomData)
	if err != nil {
		return err
	}

	pendingMetadata, err := marshalJSON(contact.Automation.PendingMetadata)
	if err != nil {
		return err
	}

	var email, pendingFlowID sql.NullString

	if contact.Email != nil {
		email = sql.NullString{String: *contact.Email, Valid: true}
	}

	if contact.Automation.PendingFlowID != "" {
		pendingFlowID = sql.NullString{String: contact.Automation.PendingFlowID, Valid: true}
	}

	tags := contact.Tags
	if tags == nil {
		tags = []string{}
	}

	if insert {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contacts (
				id, workspace_id, email, custom_data, tags, pending_flow_id, automation_state,
				pending_metadata, is_follower, automation_version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			contact.ID,
			contact.WorkspaceID,
			email,
			customData,
			pq.Array(tags),
			pendingFlowID,
			string(contact.Automation.State),
			pendingMetadata,
			contact.Automation.IsFollower,
			contact.Automation.Version,
			contact.CreatedAt,
			contact.UpdatedAt,
		)

		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE contacts SET
			email = $2,
			custom_data = $3,
			tags = $4,
			pending_flow_id = $5,
			automation_state = $6,
			pending_metadata = $7,
			is_follower = $8,
			automation_version = $9,
			updated_at = $10
		WHERE id = $1
	`,
		contact.ID,
		email,
		customData,
		pq.Array(tags),
		pendingFlowID,
		string(contact.Automation.State),
		pendingMetadata,
		contact.Automation.IsFollower,
		contact.Automation.Version,
		contact.UpdatedAt,
	)

	return err
}

func scanContact(row scanner) (*models.Contact, error) {
	var (
		contact         models.Contact
		email           sql.NullString
		pendingFlowID   sql.NullString
		state           string
		customData      []byte
		pendingMetadata []byte
	)

	err := row.Scan(
		&contact.ID,
		&contact.WorkspaceID,
		&email,
		&customData,
		pq.Array(&contact.Tags),
		&pendingFlowID,
		&state,
		&pendingMetadata,
		&contact.Automation.IsFollower,
		&contact.Automation.Version,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if email.Valid {
		contact.Email = &email.String
	}

	contact.Automation.PendingFlowID = pendingFlowID.String
	contact.Automation.State = models.AutomationState(state)

	if err := unmarshalJSON(customData, &contact.CustomData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(pendingMetadata, &contact.Automation.PendingMetadata); err != nil {
		return nil, err
	}

	return &contact, nil
}
