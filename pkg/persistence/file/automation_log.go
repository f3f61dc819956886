package file

import (
	"context"
	"time"

	"github.com/dukex/dmflow/pkg/models"
)

// AutomationLogRepository appends audit entries as individual files.
type AutomationLogRepository struct {
	p    *Persistence
	docs collection[models.AutomationLog]
}

func (r *AutomationLogRepository) Append(_ context.Context, entry *models.AutomationLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if entry.ID == "" {
		entry.ID = newID()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return r.docs.write(entry.ID, entry)
}

func (r *AutomationLogRepository) all() ([]*models.AutomationLog, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.docs.all()
}
