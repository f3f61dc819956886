package mocks

import (
	"context"

	"github.com/dukex/dmflow/pkg/messaging"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of messaging.Gateway interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendTextMessage(ctx context.Context, channel *models.Channel, recipient messaging.Recipient, text string) error {
	args := m.Called(ctx, channel, recipient, text)

	return args.Error(0)
}

func (m *MockGateway) SendButtonMessage(
	ctx context.Context,
	channel *models.Channel,
	recipient messaging.Recipient,
	text string,
	buttons []models.Button,
) error {
	args := m.Called(ctx, channel, recipient, text, buttons)

	return args.Error(0)
}

func (m *MockGateway) CheckFollows(ctx context.Context, channel *models.Channel, externalID string) (bool, error) {
	args := m.Called(ctx, channel, externalID)

	return args.Bool(0), args.Error(1)
}
