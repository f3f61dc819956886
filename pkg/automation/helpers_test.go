package automation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/dmflow/pkg/eventbus"
	"github.com/dukex/dmflow/pkg/mocks"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/dukex/dmflow/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

type auditTrail struct {
	mu      sync.Mutex
	entries []*models.AutomationLog
}

func (a *auditTrail) Append(_ context.Context, entry *models.AutomationLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, entry)

	return nil
}

func (a *auditTrail) statuses() []models.AutomationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	statuses := make([]models.AutomationStatus, 0, len(a.entries))
	for _, entry := range a.entries {
		statuses = append(statuses, entry.Status)
	}

	return statuses
}

type testPersistence struct {
	*file.Persistence

	audit *auditTrail
}

func (p *testPersistence) AutomationLogRepository() persistence.AutomationLogRepository {
	return p.audit
}

type harness struct {
	engine  *Engine
	store   *testPersistence
	gateway *mocks.MockGateway
	channel *models.Channel
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return newHarnessWithPublisher(t, nil)
}

func newHarnessWithPublisher(t *testing.T, publisher eventbus.EventPublisher) *harness {
	t.Helper()

	store := &testPersistence{Persistence: file.NewPersistence(t.TempDir()), audit: &auditTrail{}}
	channel := &models.Channel{
		ID:          "channel-1",
		WorkspaceID: "ws-1",
		Type:        models.ChannelTypeInstagram,
		IsActive:    true,
		Config:      models.ChannelConfig{AccessToken: "token", MetaBusinessID: "ig-business"},
	}
	require.NoError(t, store.ChannelRepository().Save(t.Context(), channel))

	gateway := &mocks.MockGateway{}
	t.Cleanup(func() { gateway.AssertExpectations(t) })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	engine := NewEngine(
		Dependencies{Persistence: store, Gateway: gateway, Publisher: publisher},
		Config{
			APIBaseURL: "https://api.example.com",
			MaxSteps:   20,
			Now:        func() time.Time { return now },
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return &harness{engine: engine, store: store, gateway: gateway, channel: channel, now: now}
}

func (h *harness) save(t *testing.T, flows ...*models.Flow) {
	t.Helper()

	for _, flow := range flows {
		require.NoError(t, h.store.FlowRepository().Save(t.Context(), flow))
	}
}

func (h *harness) contact(t *testing.T, externalID string) *models.Contact {
	t.Helper()

	contact, err := h.store.ContactRepository().FindByExternalID(t.Context(), "ws-1", models.ChannelTypeInstagram, externalID)
	require.NoError(t, err)

	return contact
}

func (h *harness) latestLog(t *testing.T, flowID, contactID string) *models.DeliveryLog {
	t.Helper()

	log, err := h.store.DeliveryLogRepository().Latest(t.Context(), flowID, contactID)
	require.NoError(t, err)

	return log
}

func comment(text string) models.IncomingComment {
	return models.IncomingComment{
		MediaID:      "media-1",
		Text:         text,
		CommentID:    "comment-1",
		FromID:       "user-1",
		FromUsername: "ana",
	}
}
