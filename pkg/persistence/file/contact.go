package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// ContactRepository handles contact-related file operations.
type ContactRepository struct {
	p    *Persistence
	docs collection[models.Contact]
}

// FindByExternalID looks a contact up by its platform id on a channel type.
func (r *ContactRepository) FindByExternalID(_ context.Context, workspaceID string, channelType models.ChannelType, externalID string) (*models.Contact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	contacts, err := r.docs.all()
	if err != nil {
		return nil, err
	}

	for _, contact := range contacts {
		if contact.WorkspaceID != workspaceID {
			continue
		}

		for _, link := range contact.Channels {
			if link.ChannelType == channelType && link.ExternalID == externalID {
				return contact, nil
			}
		}
	}

	return nil, persistence.NewContactError("FindByExternalID", externalID, persistence.ErrContactNotFound)
}

// GetByID retrieves a contact by its ID.
func (r *ContactRepository) GetByID(_ context.Context, id string) (*models.Contact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.get(id)
}

func (r *ContactRepository) get(id string) (*models.Contact, error) {
	contact, err := r.docs.read(id)
	if err != nil {
		return nil, persistence.NewContactError("GetByID", id, err)
	}

	if contact == nil {
		return nil, persistence.NewContactError("GetByID", id, persistence.ErrContactNotFound)
	}

	return contact, nil
}

// Create stores a new contact, assigning its id and timestamps.
func (r *ContactRepository) Create(_ context.Context, contact *models.Contact) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if contact.ID == "" {
		contact.ID = newID()
	}

	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	if err := r.docs.write(contact.ID, contact); err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	return nil
}

// Update applies the patch, enforcing the expected automation version when set.
func (r *ContactRepository) Update(_ context.Context, id string, patch models.ContactPatch) (*models.Contact, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	contact, err := r.get(id)
	if err != nil {
		return nil, err
	}

	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != contact.Automation.Version {
		return nil, persistence.NewContactError("Update", id, persistence.ErrContactVersionConflict)
	}

	patch.Apply(contact)

	if err := r.docs.write(contact.ID, contact); err != nil {
		return nil, persistence.NewContactError("Update", id, err)
	}

	return contact, nil
}
