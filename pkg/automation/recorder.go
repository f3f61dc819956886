package automation

import (
	"context"
	"log/slog"

	"github.com/dukex/dmflow/pkg/eventbus"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// recorder writes the audit trail and publishes events. Failures are logged and
// never interrupt a run.
type recorder struct {
	logs      persistence.AutomationLogRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func (r *recorder) audit(ctx context.Context, run *models.RunContext, status models.AutomationStatus, message string, metadata map[string]any) {
	entry := &models.AutomationLog{
		FlowID:      run.Flow.ID,
		WorkspaceID: run.Flow.WorkspaceID,
		TriggerType: run.TriggerType(),
		Status:      status,
		Message:     message,
		Metadata:    metadata,
	}

	if run.Contact != nil {
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]any, 1)
		}

		entry.Metadata["contactId"] = run.Contact.ID
	}

	err := r.logs.Append(ctx, entry)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to append automation log",
			"flow_id", run.Flow.ID, "status", status, "error", err)
	}
}

func (r *recorder) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
