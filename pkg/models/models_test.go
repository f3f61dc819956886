package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePostback(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		payload string
		want    Postback
		ok      bool
	}{
		{payload: "follow_confirmed:flow-1", want: Postback{Action: PostbackFollowConfirmed, FlowID: "flow-1"}, ok: true},
		{payload: "SEND_LINK_CLICK:flow-2", want: Postback{Action: PostbackSendLinkClick, FlowID: "flow-2"}, ok: true},
		{payload: "send_link:flow-3", want: Postback{Action: PostbackSendLink, FlowID: "flow-3"}, ok: true},
		{payload: "follow_confirmed:", ok: false},
		{payload: "unknown:flow-1", ok: false},
		{payload: "followed", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.payload, func(t *testing.T) {
			t.Parallel()

			got, ok := ParsePostback(tc.payload)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIncomingMessage_Resume(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		message IncomingMessage
		want    Postback
		ok      bool
	}{
		{
			name:    "postback payload",
			message: IncomingMessage{IsPostback: true, Payload: "follow_confirmed:f1", Text: "I followed"},
			want:    Postback{Action: PostbackFollowConfirmed, FlowID: "f1"},
			ok:      true,
		},
		{
			name:    "plain followed",
			message: IncomingMessage{Text: "  Followed! "},
			want:    Postback{Action: PostbackFollowConfirmed},
			ok:      true,
		},
		{
			name:    "plain send_link",
			message: IncomingMessage{Text: "send_link"},
			want:    Postback{Action: PostbackSendLink},
			ok:      true,
		},
		{
			name:    "unrelated text",
			message: IncomingMessage{Text: "how much is it?"},
			ok:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := tc.message.Resume()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPostback_Payload(t *testing.T) {
	t.Parallel()

	postback := Postback{Action: PostbackFollowConfirmed, FlowID: "f1"}
	parsed, ok := ParsePostback(postback.Payload())

	require.True(t, ok)
	assert.Equal(t, postback, parsed)
	assert.True(t, Postback{Action: PostbackSendLink}.IsOpeningClick())
}

func TestDeliveryLog_Milestones(t *testing.T) {
	t.Parallel()

	log := &DeliveryLog{}

	for _, milestone := range Milestones {
		assert.False(t, log.Has(milestone))
		assert.True(t, log.Set(milestone))
		assert.True(t, log.Has(milestone))
	}

	assert.False(t, log.Set("unknown"))
}

func TestContactPatch_Apply(t *testing.T) {
	t.Parallel()

	contact := &Contact{
		ID:         "c1",
		Tags:       []string{"lead"},
		CustomData: map[string]any{"plan": "free"},
		Channels:   []ContactChannel{{ChannelID: "ch1", ChannelType: ChannelTypeInstagram, ExternalID: "psid"}},
	}

	email := "ana@example.com"
	username := "ana"
	state := contact.Automation.Waiting(StateWaitingForFollow, "f1", map[string]any{"commentId": "c"})

	ContactPatch{
		Email:      &email,
		CustomData: map[string]any{"city": "Lisbon"},
		Tags:       []string{"lead", "vip"},
		Username:   &username,
		Automation: &state,
	}.Apply(contact)

	assert.Equal(t, "ana@example.com", *contact.Email)
	assert.True(t, contact.HasEmail())
	assert.Equal(t, map[string]any{"plan": "free", "city": "Lisbon"}, contact.CustomData)
	assert.Equal(t, []string{"lead", "vip"}, contact.Tags)
	assert.Equal(t, "ana", contact.Username())
	assert.Equal(t, "psid", contact.ExternalIDFor(ChannelTypeInstagram))
	assert.Equal(t, StateWaitingForFollow, contact.Automation.State)
	assert.Equal(t, int64(1), contact.Automation.Version)
	assert.False(t, contact.UpdatedAt.IsZero())
}

func TestContactAutomationState_Completed(t *testing.T) {
	t.Parallel()

	state := ContactAutomationState{IsFollower: true}.Waiting(StateWaitingForEmail, "f1", map[string]any{"a": 1})
	assert.True(t, state.State.IsWaiting())

	done := state.Completed()
	assert.Equal(t, StateCompleted, done.State)
	assert.Empty(t, done.PendingFlowID)
	assert.Nil(t, done.PendingMetadata)
	assert.True(t, done.IsFollower)
	assert.False(t, done.State.IsWaiting())
}

func TestDelayTimer_Due(t *testing.T) {
	t.Parallel()

	now := time.Now()
	timer := &DelayTimer{Status: TimerPending, ResumeAt: now.Add(-time.Second)}

	assert.True(t, timer.Due(now))

	timer.Status = TimerFired
	assert.False(t, timer.Due(now))
	assert.False(t, (&DelayTimer{Status: TimerPending, ResumeAt: now.Add(time.Minute)}).Due(now))
}
