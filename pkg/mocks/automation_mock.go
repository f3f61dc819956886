package mocks

import (
	"context"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockAutomation is a mock implementation of web.Automation interface.
type MockAutomation struct {
	mock.Mock
}

func (m *MockAutomation) HandleComment(ctx context.Context, channel *models.Channel, comment models.IncomingComment) error {
	args := m.Called(ctx, channel, comment)

	return args.Error(0)
}

func (m *MockAutomation) HandleMessage(ctx context.Context, channel *models.Channel, message models.IncomingMessage) error {
	args := m.Called(ctx, channel, message)

	return args.Error(0)
}

func (m *MockAutomation) TrackClick(ctx context.Context, flowID, nodeID, contactID, target string) error {
	args := m.Called(ctx, flowID, nodeID, contactID, target)

	return args.Error(0)
}
