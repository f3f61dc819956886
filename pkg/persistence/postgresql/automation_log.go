package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/dmflow/pkg/models"
)

// AutomationLogRepository appends audit entries.
type AutomationLogRepository struct {
	repository
}

func (r *AutomationLogRepository) Append(ctx context.Context, entry *models.AutomationLog) error {
	if entry.ID == "" {
		entry.ID = newID()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalJSON(entry.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_logs (id, flow_id, workspace_id, trigger_type, status, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID,
		entry.FlowID,
		entry.WorkspaceID,
		string(entry.TriggerType),
		string(entry.Status),
		entry.Message,
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append automation log: %w", err)
	}

	return nil
}
