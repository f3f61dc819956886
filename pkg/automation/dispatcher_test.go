package automation

import (
	"net/url"
	"testing"

	"github.com/dukex/dmflow/pkg/messaging"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		node *models.FlowNode
		want Shape
	}{
		{
			name: "dm_link wins over follow marker",
			node: &models.FlowNode{ID: "request_follow_dm", Type: models.NodeTypeMessage, Data: map[string]any{
				"content": "follow", "dm_link": "https://example.com",
			}},
			want: ShapeLink,
		},
		{
			name: "url in content",
			node: testutil.MessageNode("m", "grab it at https://example.com/x"),
			want: ShapeLink,
		},
		{
			name: "follow gate",
			node: &models.FlowNode{ID: "n1", Type: models.NodeTypeMessage, Data: map[string]any{
				"content": "follow us", "messageType": "request_follow_dm",
			}},
			want: ShapeFollow,
		},
		{
			name: "opening gate",
			node: &models.FlowNode{ID: "opening_dm", Type: models.NodeTypeMessage, Data: map[string]any{"content": "hey"}},
			want: ShapeOpening,
		},
		{
			name: "custom buttons",
			node: &models.FlowNode{ID: "n2", Type: models.NodeTypeMessage, Data: map[string]any{
				"content": "pick one",
				"buttons": []any{map[string]any{"title": "Yes", "payload": "yes"}},
			}},
			want: ShapeButtons,
		},
		{
			name: "plain text",
			node: testutil.MessageNode("m", "Hi there!"),
			want: ShapeText,
		},
		{
			name: "email request is plain text",
			node: &models.FlowNode{ID: "email_request_dm", Type: models.NodeTypeMessage, Data: map[string]any{"content": "email?"}},
			want: ShapeText,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, Classify(tc.node))
		})
	}
}

func TestTrackURL(t *testing.T) {
	t.Parallel()

	tracked := TrackURL("https://api.example.com/", "flow-1", "node-1", "contact-1", "https://example.com/a?b=c")

	parsed, err := url.Parse(tracked)
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", parsed.Host)
	assert.Equal(t, "/automation/track/flow-1/node-1", parsed.Path)
	assert.Equal(t, "contact-1", parsed.Query().Get("contactId"))
	assert.Equal(t, "https://example.com/a?b=c", parsed.Query().Get("url"))
}

func TestStripLinks(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		text string
		want string
	}{
		{name: "trailing url", text: "grab it at https://example.com/x", want: "grab it at"},
		{name: "url in the middle", text: "see https://example.com/x for more", want: "see for more"},
		{name: "keeps line breaks", text: "Hi!\nLink: http://example.com\nEnjoy", want: "Hi!\nLink:\nEnjoy"},
		{name: "only a url", text: "https://example.com/x", want: ""},
		{name: "no url", text: "plain text", want: "plain text"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, StripLinks(tc.text))
		})
	}
}

func TestDispatcher_Recipient(t *testing.T) {
	t.Parallel()

	d := &Dispatcher{}
	flow := &models.Flow{ID: "f", TriggerType: models.FlowTriggerComment}

	run := &models.RunContext{Flow: flow, ExternalID: "user-1", Variables: map[string]any{models.VarCommentID: "c-1"}}
	recipient, private := d.recipient(run)
	assert.True(t, private)
	assert.Equal(t, messaging.Recipient{CommentID: "c-1"}, recipient)

	run.SetVar(models.VarPrivateReplySent, true)
	recipient, private = d.recipient(run)
	assert.False(t, private)
	assert.Equal(t, messaging.Recipient{ID: "user-1"}, recipient)

	dm := &models.RunContext{
		Flow:       &models.Flow{ID: "f", TriggerType: models.FlowTriggerKeyword},
		ExternalID: "user-2",
		Variables:  map[string]any{models.VarCommentID: "c-1"},
	}
	recipient, _ = d.recipient(dm)
	assert.Equal(t, messaging.Recipient{ID: "user-2"}, recipient)
}
