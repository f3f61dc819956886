package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// DeliveryLogRepository handles delivery-log database operations.
type DeliveryLogRepository struct {
	repository
}

const deliveryLogColumns = `
	id
  , flow_id
  , contact_id
  , workspace_id
  , follow_msg_sent
  , follow_confirmed
  , opening_msg_sent
  , opening_clicked
  , email_req_sent
  , email_provided
  , link_msg_sent
  , link_clicked
  , created_at
  , updated_at
`

func (r *DeliveryLogRepository) GetOrCreate(ctx context.Context, flowID, contactID, workspaceID string, forceNew bool) (*models.DeliveryLog, error) {
	if !forceNew {
		latest, err := r.Latest(ctx, flowID, contactID)
		if err == nil {
			return latest, nil
		}

		if !errors.Is(err, persistence.ErrDeliveryLogNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	log := &models.DeliveryLog{
		ID:          newID(),
		FlowID:      flowID,
		ContactID:   contactID,
		WorkspaceID: workspaceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_logs (id, flow_id, contact_id, workspace_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, log.ID, log.FlowID, log.ContactID, log.WorkspaceID, log.CreatedAt, log.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery log: %w", err)
	}

	return log, nil
}

func (r *DeliveryLogRepository) Latest(ctx context.Context, flowID, contactID string) (*models.DeliveryLog, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deliveryLogColumns+`
		FROM delivery_logs
		WHERE flow_id = $1 AND contact_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, flowID, contactID)

	return scanDeliveryLog(row)
}

// Mark sets a milestone column. The column name comes from the closed milestone set.
func (r *DeliveryLogRepository) Mark(ctx context.Context, id string, milestone models.Milestone) (*models.DeliveryLog, error) {
	if !slices.Contains(models.Milestones, milestone) {
		return nil, persistence.ErrUnknownMilestone
	}

	query := fmt.Sprintf(`
		UPDATE delivery_logs SET %s = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, string(milestone), deliveryLogColumns)

	return scanDeliveryLog(r.db.QueryRowContext(ctx, query, id))
}

func (r *DeliveryLogRepository) Stats(ctx context.Context, flowID string) (*models.DeliveryStats, error) {
	stats := &models.DeliveryStats{FlowID: flowID, Milestones: make(map[models.Milestone]int, len(models.Milestones))}
	counts := make([]int, len(models.Milestones))

	dest := []any{&stats.Total}
	selects := "COUNT(*)"

	for i, milestone := range models.Milestones {
		selects += fmt.Sprintf(", COUNT(*) FILTER (WHERE %s)", string(milestone))
		dest = append(dest, &counts[i])
	}

	err := r.db.QueryRowContext(ctx, `SELECT `+selects+` FROM delivery_logs WHERE flow_id = $1`, flowID).Scan(dest...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute delivery stats for flow %s: %w", flowID, err)
	}

	for i, milestone := range models.Milestones {
		stats.Milestones[milestone] = counts[i]
	}

	return stats, nil
}

func scanDeliveryLog(row scanner) (*models.DeliveryLog, error) {
	var log models.DeliveryLog

	err := row.Scan(
		&log.ID,
		&log.FlowID,
		&log.ContactID,
		&log.WorkspaceID,
		&log.FollowMsgSent,
		&log.FollowConfirmed,
		&log.OpeningMsgSent,
		&log.OpeningClicked,
		&log.EmailReqSent,
		&log.EmailProvided,
		&log.LinkMsgSent,
		&log.LinkClicked,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrDeliveryLogNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan delivery log: %w", err)
	}

	return &log, nil
}
