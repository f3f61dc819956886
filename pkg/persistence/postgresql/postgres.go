// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/dukex/dmflow/pkg/persistence/sqlbase"
	"github.com/google/uuid"

	// Register the postgres driver.
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	flows          *FlowRepository
	contacts       *ContactRepository
	channels       *ChannelRepository
	deliveryLogs   *DeliveryLogRepository
	automationLogs *AutomationLogRepository
	timers         *TimerRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	base := repository{db: database, logger: logger}

	return &Persistence{
		db:             database,
		logger:         logger,
		flows:          &FlowRepository{base},
		contacts:       &ContactRepository{base},
		channels:       &ChannelRepository{base},
		deliveryLogs:   &DeliveryLogRepository{base},
		automationLogs: &AutomationLogRepository{base},
		timers:         &TimerRepository{base},
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flows
}

func (p *Persistence) ContactRepository() persistence.ContactRepository {
	return p.contacts
}

func (p *Persistence) ChannelRepository() persistence.ChannelRepository {
	return p.channels
}

func (p *Persistence) DeliveryLogRepository() persistence.DeliveryLogRepository {
	return p.deliveryLogs
}

func (p *Persistence) AutomationLogRepository() persistence.AutomationLogRepository {
	return p.automationLogs
}

func (p *Persistence) TimerRepository() persistence.TimerRepository {
	return p.timers
}

// repository holds the dependencies shared by every table repository.
type repository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r repository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func marshalJSON(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}

	return data, nil
}

func unmarshalJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}

	return nil
}
