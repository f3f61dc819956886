package messaging

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannel() *models.Channel {
	return &models.Channel{
		ID:     "ch",
		Type:   models.ChannelTypeInstagram,
		Config: models.ChannelConfig{AccessToken: "secret-token", MetaBusinessID: "ig-1"},
	}
}

func newTestClient(url string, attempts int) *InstagramClient {
	return NewInstagramClient(Config{
		BaseURL:    url,
		APIVersion: "v21.0",
		Timeout:    time.Second,
		Retry:      RetryConfig{Attempts: attempts, Delay: time.Millisecond},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInstagramClient_SendTextMessage(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v21.0/me/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"recipient_id":"psid","message_id":"m1"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)

	err := client.SendTextMessage(t.Context(), testChannel(), Recipient{ID: "psid"}, "Hi there!")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"id": "psid"}, received["recipient"])
	assert.Equal(t, map[string]any{"text": "Hi there!"}, received["message"])
}

func TestInstagramClient_PrivateReplyUsesCommentID(t *testing.T) {
	t.Parallel()

	var received sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestClient(server.URL, 1).SendTextMessage(t.Context(), testChannel(), Recipient{ID: "psid", CommentID: "c-1"}, "psst")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"comment_id": "c-1"}, received.Recipient)
}

func TestInstagramClient_SendButtonMessage(t *testing.T) {
	t.Parallel()

	var received sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	buttons := []models.Button{
		{Type: models.ButtonPostback, Title: "I followed", Payload: "follow_confirmed:flow-1"},
		{Type: models.ButtonWebURL, Title: "Open", URL: "https://example.com"},
	}

	err := newTestClient(server.URL, 1).SendButtonMessage(t.Context(), testChannel(), Recipient{ID: "psid"}, "Follow us first", buttons)
	require.NoError(t, err)

	require.NotNil(t, received.Message.Attachment)
	assert.Equal(t, "template", received.Message.Attachment.Type)
	assert.Equal(t, "button", received.Message.Attachment.Payload.TemplateType)
	assert.Equal(t, "Follow us first", received.Message.Attachment.Payload.Text)
	assert.Equal(t, "follow_confirmed:flow-1", received.Message.Attachment.Payload.Buttons[0].Payload)
	assert.Equal(t, "https://example.com", received.Message.Attachment.Payload.Buttons[1].URL)
}

func TestInstagramClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestClient(server.URL, 3).SendTextMessage(t.Context(), testChannel(), Recipient{ID: "psid"}, "hi")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInstagramClient_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := newTestClient(server.URL, 2).SendTextMessage(t.Context(), testChannel(), Recipient{ID: "psid"}, "hi")
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, int32(2), calls.Load())

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestInstagramClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL, 3).SendTextMessage(t.Context(), testChannel(), Recipient{ID: "psid"}, "hi")
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, int32(1), calls.Load())

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, "Invalid OAuth access token", apiErr.Message)
}

func TestInstagramClient_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewInstagramClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := client.SendTextMessage(t.Context(), testChannel(), Recipient{ID: "psid"}, "hi")
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestInstagramClient_MissingRecipient(t *testing.T) {
	t.Parallel()

	err := newTestClient("http://127.0.0.1:0", 1).SendTextMessage(t.Context(), testChannel(), Recipient{}, "hi")

	assert.ErrorIs(t, err, ErrMissingRecipient)
}

func TestInstagramClient_CheckFollows(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/psid-1", r.URL.Path)
		assert.Equal(t, "is_user_follow_business", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"id":"psid-1","is_user_follow_business":true}`))
	}))
	defer server.Close()

	follows, err := newTestClient(server.URL, 1).CheckFollows(t.Context(), testChannel(), "psid-1")
	require.NoError(t, err)
	assert.True(t, follows)
}
