package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	event := NewBaseEvent(LinkClickedEvent, "flow-1", "ws-1", "contact-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, LinkClickedEvent, event.Type)
	assert.Equal(t, "flow-1", event.FlowID)
	assert.Equal(t, "ws-1", event.WorkspaceID)
	assert.Equal(t, "contact-1", event.ContactID)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)
}

func TestEventTypes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{FlowTriggered{}, FlowTriggeredEvent},
		{FlowBlocked{}, FlowBlockedEvent},
		{FlowCompleted{}, FlowCompletedEvent},
		{FlowDelayed{}, FlowDelayedEvent},
		{MessageSent{}, MessageSentEvent},
		{MessageFailed{}, MessageFailedEvent},
		{LinkClicked{}, LinkClickedEvent},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, tc.event.GetType())
	}
}

func TestFlowBlocked_JSON(t *testing.T) {
	t.Parallel()

	event := FlowBlocked{
		BaseEvent: NewBaseEvent(FlowBlockedEvent, "flow-1", "ws-1", "contact-1"),
		State:     models.StateWaitingForFollow,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"flow.blocked"`)
	assert.Contains(t, string(data), `"state":"WAITING_FOR_FOLLOW"`)

	var decoded FlowBlocked
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.FlowID, decoded.FlowID)
	assert.Equal(t, models.StateWaitingForFollow, decoded.State)
}
