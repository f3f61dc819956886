//go:build integration

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/dukex/dmflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last.
	for _, table := range []string{
		"delay_timers", "automation_logs", "delivery_logs", "contact_channels",
		"contacts", "channels", "flows", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("dmflow_test"),
			postgres.WithUsername("dmflow"),
			postgres.WithPassword("dmflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func TestPersistence_HealthCheck(t *testing.T) {
	p, ctx := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestFlowRepository(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.FlowRepository()

	flow := &models.Flow{
		WorkspaceID: "ws",
		Name:        "Comment to DM",
		IsActive:    true,
		TriggerType: models.FlowTriggerComment,
		Keywords:    []string{"hello"},
		ChannelType: models.ChannelTypeInstagram,
		Nodes: []*models.FlowNode{
			{ID: "trigger", Type: models.NodeTypeTrigger, Role: models.RoleTrigger, Data: map[string]any{"keywords": []any{"hello"}}},
			{ID: "msg", Type: models.NodeTypeMessage, Role: models.RolePlainMessage, Data: map[string]any{"content": "Hi there!"}},
		},
		Edges: []*models.FlowEdge{{ID: "e1", Source: "trigger", Target: "msg"}},
	}
	require.NoError(t, repo.Save(ctx, flow))

	inactive := &models.Flow{WorkspaceID: "ws", Name: "off", TriggerType: models.FlowTriggerComment, ChannelType: models.ChannelTypeInstagram}
	require.NoError(t, repo.Save(ctx, inactive))

	active, err := repo.FindActive(ctx, "ws", persistence.FlowFilter{TriggerType: models.FlowTriggerComment})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, flow.ID, active[0].ID)
	assert.Equal(t, []string{"hello"}, active[0].Keywords)
	assert.Equal(t, models.RolePlainMessage, active[0].NodeByID("msg").Role)

	none, err := repo.FindActive(ctx, "ws", persistence.FlowFilter{TriggerType: models.FlowTriggerKeyword})
	require.NoError(t, err)
	assert.Empty(t, none)

	flow.IsActive = false
	require.NoError(t, repo.Save(ctx, flow))

	got, err := repo.GetByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, repo.Delete(ctx, flow.ID))

	_, err = repo.GetByID(ctx, flow.ID)
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestContactRepository(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.ContactRepository()

	contact := &models.Contact{
		WorkspaceID: "ws",
		Channels:    []models.ContactChannel{{ChannelID: "ch", ChannelType: models.ChannelTypeInstagram, ExternalID: "psid", Username: "ana"}},
	}
	require.NoError(t, repo.Create(ctx, contact))

	found, err := repo.FindByExternalID(ctx, "ws", models.ChannelTypeInstagram, "psid")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, found.ID)
	assert.Equal(t, "ana", found.Username())

	version := found.Automation.Version
	state := found.Automation.Waiting(models.StateWaitingForFollow, "flow-1", map[string]any{"commentId": "c1"})
	email := "ana@example.com"

	updated, err := repo.Update(ctx, contact.ID, models.ContactPatch{Automation: &state, ExpectedVersion: &version, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, version+1, updated.Automation.Version)

	_, err = repo.Update(ctx, contact.ID, models.ContactPatch{Automation: &state, ExpectedVersion: &version})
	assert.True(t, persistence.IsVersionConflict(err))

	stored, err := repo.GetByID(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingForFollow, stored.Automation.State)
	assert.Equal(t, "flow-1", stored.Automation.PendingFlowID)
	assert.Equal(t, "c1", stored.Automation.PendingMetadata["commentId"])
	assert.Equal(t, "ana@example.com", *stored.Email)

	_, err = repo.FindByExternalID(ctx, "ws", models.ChannelTypeInstagram, "nobody")
	assert.True(t, persistence.IsContactNotFound(err))
}

func TestDeliveryLogRepository(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.DeliveryLogRepository()

	first, err := repo.GetOrCreate(ctx, "flow", "contact", "ws", false)
	require.NoError(t, err)

	same, err := repo.GetOrCreate(ctx, "flow", "contact", "ws", false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID)

	fresh, err := repo.GetOrCreate(ctx, "flow", "contact", "ws", true)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)

	marked, err := repo.Mark(ctx, fresh.ID, models.MilestoneLinkMsgSent)
	require.NoError(t, err)
	assert.True(t, marked.LinkMsgSent)

	stats, err := repo.Stats(ctx, "flow")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Milestones[models.MilestoneLinkMsgSent])

	require.NoError(t, p.AutomationLogRepository().Append(ctx, &models.AutomationLog{
		FlowID: "flow", WorkspaceID: "ws", Status: models.AutomationSent, Metadata: map[string]any{"node_id": "msg"},
	}))
}

func TestTimerRepository(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.TimerRepository()

	timer := &models.DelayTimer{
		FlowID: "flow", ContactID: "contact", WorkspaceID: "ws", NextNodeID: "next",
		ResumeAt: time.Now().Add(-time.Second), Metadata: map[string]any{"commentId": "c1"},
	}
	require.NoError(t, repo.Save(ctx, timer))

	due, err := repo.Due(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "c1", due[0].Metadata["commentId"])

	claimed, err := repo.Claim(ctx, timer.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, timer.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = repo.Claim(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrTimerNotFound)
}

func TestChannelRepository(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.ChannelRepository()

	channel := &models.Channel{
		WorkspaceID: "ws", Type: models.ChannelTypeInstagram, IsActive: true,
		Config: models.ChannelConfig{AccessToken: "token", MetaBusinessID: "ig-1", ExpiresIn: 3600},
	}
	require.NoError(t, repo.Save(ctx, channel))

	found, err := repo.GetByExternalAccount(ctx, "ig-1")
	require.NoError(t, err)
	assert.Equal(t, "token", found.Config.AccessToken)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsChannelNotFound(err))
}
