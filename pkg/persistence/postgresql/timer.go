package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// TimerRepository handles delay-timer database operations.
type TimerRepository struct {
	repository
}

func (r *TimerRepository) Save(ctx context.Context, timer *models.DelayTimer) error {
	if timer.ID == "" {
		timer.ID = newID()
	}

	if timer.Status == "" {
		timer.Status = models.TimerPending
	}

	if timer.CreatedAt.IsZero() {
		timer.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalJSON(timer.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO delay_timers (
			id, flow_id, contact_id, workspace_id, channel_id, next_node_id, resume_at, metadata, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			resume_at = EXCLUDED.resume_at,
			metadata = EXCLUDED.metadata,
			status = EXCLUDED.status
	`,
		timer.ID,
		timer.FlowID,
		timer.ContactID,
		timer.WorkspaceID,
		timer.ChannelID,
		timer.NextNodeID,
		timer.ResumeAt,
		metadata,
		string(timer.Status),
		timer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save delay timer: %w", err)
	}

	return nil
}

// Due returns pending timers whose resume time has passed, earliest first.
func (r *TimerRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.DelayTimer, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, flow_id, contact_id, workspace_id, channel_id, next_node_id, resume_at, metadata, status, created_at
		FROM delay_timers
		WHERE status = 'pending' AND resume_at <= $1
		ORDER BY resume_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due timers: %w", err)
	}

	defer r.closeRows(ctx, rows)

	timers := make([]*models.DelayTimer, 0)

	for rows.Next() {
		var (
			timer    models.DelayTimer
			status   string
			metadata []byte
		)

		err := rows.Scan(
			&timer.ID,
			&timer.FlowID,
			&timer.ContactID,
			&timer.WorkspaceID,
			&timer.ChannelID,
			&timer.NextNodeID,
			&timer.ResumeAt,
			&metadata,
			&status,
			&timer.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delay timer: %w", err)
		}

		timer.Status = models.TimerStatus(status)

		if err := unmarshalJSON(metadata, &timer.Metadata); err != nil {
			return nil, err
		}

		timers = append(timers, &timer)
	}

	return timers, rows.Err()
}

// Claim flips a pending timer to fired; only one caller can win.
func (r *TimerRepository) Claim(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE delay_timers SET status = 'fired' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim delay timer %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim delay timer %s: %w", id, err)
	}

	if affected == 1 {
		return true, nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM delay_timers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up delay timer %s: %w", id, err)
	}

	if !exists {
		return false, persistence.ErrTimerNotFound
	}

	return false, nil
}
