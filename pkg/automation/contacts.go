package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// Contacts resolves contacts from inbound events and persists their funnel state.
type Contacts struct {
	repository persistence.ContactRepository
}

func NewContacts(repository persistence.ContactRepository) *Contacts {
	return &Contacts{repository: repository}
}

// Resolve finds the contact behind externalID on channel, creating it on first contact.
func (c *Contacts) Resolve(ctx context.Context, channel *models.Channel, externalID, username string) (*models.Contact, bool, error) {
	contact, err := c.repository.FindByExternalID(ctx, channel.WorkspaceID, channel.Type, externalID)
	if err == nil {
		if username != "" && contact.Username() != username {
			contact, err = c.repository.Update(ctx, contact.ID, models.ContactPatch{Username: &username})
			if err != nil {
				return nil, false, fmt.Errorf("failed to update username of contact: %w", err)
			}
		}

		return contact, false, nil
	}

	if !persistence.IsContactNotFound(err) {
		return nil, false, fmt.Errorf("failed to find contact %s: %w", externalID, err)
	}

	contact = &models.Contact{
		WorkspaceID: channel.WorkspaceID,
		Channels: []models.ContactChannel{{
			ChannelID:   channel.ID,
			ChannelType: channel.Type,
			ExternalID:  externalID,
			Username:    username,
		}},
	}

	err = c.repository.Create(ctx, contact)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create contact %s: %w", externalID, err)
	}

	return contact, true, nil
}

// SaveAutomation writes state with a compare-and-swap on the version the
// contact was read at, refreshing contact on success.
func (c *Contacts) SaveAutomation(ctx context.Context, contact *models.Contact, state models.ContactAutomationState) error {
	version := contact.Automation.Version

	updated, err := c.repository.Update(ctx, contact.ID, models.ContactPatch{
		Automation:      &state,
		ExpectedVersion: &version,
	})
	if err != nil {
		return fmt.Errorf("failed to save automation state of contact %s: %w", contact.ID, err)
	}

	*contact = *updated

	return nil
}

// Patch applies a non-automation update and refreshes contact.
func (c *Contacts) Patch(ctx context.Context, contact *models.Contact, patch models.ContactPatch) error {
	if patch.Automation != nil {
		return errors.New("automation state must be written with SaveAutomation")
	}

	updated, err := c.repository.Update(ctx, contact.ID, patch)
	if err != nil {
		return fmt.Errorf("failed to update contact %s: %w", contact.ID, err)
	}

	*contact = *updated

	return nil
}
