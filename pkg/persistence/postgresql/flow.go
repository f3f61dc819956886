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

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	repository
}

const flowColumns = `
	id
  , workspace_id
  , name
  , is_active
  , trigger_type
  , keywords
  , channel_type
  , nodes
  , edges
  , created_at
  , updated_at
`

// FindActive returns the workspace's active flows matching the filter, oldest first.
func (r *FlowRepository) FindActive(ctx context.Context, workspaceID string, filter persistence.FlowFilter) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + `
		FROM flows
		WHERE workspace_id = $1
		  AND is_active
		  AND ($2::text = '' OR trigger_type = $2::text)
		  AND ($3::text = '' OR channel_type = $3::text)
		ORDER BY created_at ASC, id ASC
	`

	return r.query(ctx, query, workspaceID, string(filter.TriggerType), string(filter.ChannelType))
}

// List returns every flow of a workspace, oldest first.
func (r *FlowRepository) List(ctx context.Context, workspaceID string) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + `
		FROM flows
		WHERE ($1::text = '' OR workspace_id = $1::text)
		ORDER BY created_at ASC, id ASC
	`

	return r.query(ctx, query, workspaceID)
}

func (r *FlowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// GetByID returns a flow by its ID.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows WHERE id = $1`, id)

	flow, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	return flow, nil
}

// Save upserts a flow.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	if flow.ID == "" {
		flow.ID = newID()
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	nodes, err := marshalJSON(flow.Nodes)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	edges, err := marshalJSON(flow.Edges)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	keywords := flow.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	query := `
		INSERT INTO flows (` + flowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			trigger_type = EXCLUDED.trigger_type,
			keywords = EXCLUDED.keywords,
			channel_type = EXCLUDED.channel_type,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.WorkspaceID,
		flow.Name,
		flow.IsActive,
		string(flow.TriggerType),
		pq.Array(keywords),
		string(flow.ChannelType),
		nodes,
		edges,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// Delete removes a flow by its ID.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow        models.Flow
		triggerType string
		channelType string
		nodes       []byte
		edges       []byte
	)

	err := row.Scan(
		&flow.ID,
		&flow.WorkspaceID,
		&flow.Name,
		&flow.IsActive,
		&triggerType,
		pq.Array(&flow.Keywords),
		&channelType,
		&nodes,
		&edges,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.TriggerType = models.FlowTriggerType(triggerType)
	flow.ChannelType = models.ChannelType(channelType)

	if err := unmarshalJSON(nodes, &flow.Nodes); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(edges, &flow.Edges); err != nil {
		return nil, err
	}

	return &flow, nil
}
