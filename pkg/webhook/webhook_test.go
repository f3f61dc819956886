package webhook

import (
	"testing"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delivery = `{
  "object": "instagram",
  "entry": [{
    "id": "ig-1",
    "time": 1700000000,
    "changes": [
      {"field": "comments", "value": {"id": "c-1", "text": "send guide", "from": {"id": "u-1", "username": "ana"}, "media": {"id": "m-1"}}},
      {"field": "mentions", "value": {"media_id": "m-2"}}
    ],
    "messaging": [
      {"sender": {"id": "u-2"}, "recipient": {"id": "ig-1"}, "message": {"mid": "mid-1", "text": " hello "}},
      {"sender": {"id": "ig-1"}, "recipient": {"id": "u-2"}, "message": {"mid": "mid-2", "text": "Hi!", "is_echo": true}},
      {"sender": {"id": "u-3"}, "recipient": {"id": "ig-1"}, "postback": {"mid": "mid-3", "title": "I'm following", "payload": "follow_confirmed:flow-1"}},
      {"sender": {"id": "u-4"}, "recipient": {"id": "ig-1"}, "message": {"mid": "mid-4", "text": "Yes", "quick_reply": {"payload": "send_link:flow-1"}}}
    ]
  }]
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	payload, err := Decode([]byte(delivery))
	require.NoError(t, err)
	require.Len(t, payload.Entry, 1)

	entry := payload.Entry[0]
	assert.Equal(t, "ig-1", entry.ID)

	assert.Equal(t, []models.IncomingComment{
		{MediaID: "m-1", Text: "send guide", CommentID: "c-1", FromID: "u-1", FromUsername: "ana"},
	}, entry.Comments())

	assert.Equal(t, []models.IncomingMessage{
		{Text: "hello", MessageID: "mid-1", FromID: "u-2"},
		{Text: "I'm following", MessageID: "mid-3", FromID: "u-3", IsPostback: true, Payload: "follow_confirmed:flow-1"},
		{Text: "Yes", MessageID: "mid-4", FromID: "u-4", IsPostback: true, Payload: "send_link:flow-1"},
	}, entry.Messages())
}

func TestDecode_InvalidPayloads(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "missing entry", body: `{"object": "instagram"}`},
		{name: "unknown object", body: `{"object": "whatsapp", "entry": []}`},
		{name: "entry without id", body: `{"object": "instagram", "entry": [{"time": 1}]}`},
		{name: "messaging without sender", body: `{"object": "instagram", "entry": [{"id": "ig-1", "messaging": [{"message": {}}]}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode([]byte(tc.body))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(delivery)
	signature := Sign("secret", body)

	testCases := []struct {
		name    string
		secret  string
		header  string
		wantErr error
	}{
		{name: "valid", secret: "secret", header: signature},
		{name: "disabled without secret", secret: "", header: ""},
		{name: "missing header", secret: "secret", header: "", wantErr: ErrMissingSignature},
		{name: "wrong secret", secret: "other", header: signature, wantErr: ErrInvalidSignature},
		{name: "no prefix", secret: "secret", header: signature[len("sha256="):], wantErr: ErrInvalidSignature},
		{name: "not hex", secret: "secret", header: "sha256=zz", wantErr: ErrInvalidSignature},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := VerifySignature(tc.secret, body, tc.header)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestVerifySubscription(t *testing.T) {
	t.Parallel()

	challenge, err := VerifySubscription("subscribe", "token", "12345", "token")
	require.NoError(t, err)
	assert.Equal(t, "12345", challenge)

	_, err = VerifySubscription("subscribe", "wrong", "12345", "token")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = VerifySubscription("unsubscribe", "token", "12345", "token")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = VerifySubscription("subscribe", "", "12345", "")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}
