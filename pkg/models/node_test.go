package models

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestInferRole(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		node *FlowNode
		want NodeRole
	}{
		{
			name: "trigger",
			node: &FlowNode{ID: "t1", Type: NodeTypeTrigger},
			want: RoleTrigger,
		},
		{
			name: "follow marker in id",
			node: &FlowNode{ID: "request_follow_dm-1", Type: NodeTypeMessage, Data: map[string]any{"content": "Follow us"}},
			want: RoleFollowGateMessage,
		},
		{
			name: "opening marker in message type",
			node: &FlowNode{ID: "m2", Type: NodeTypeMessage, Data: map[string]any{"messageType": "opening_dm"}},
			want: RoleOpeningGateMessage,
		},
		{
			name: "email marker wins over url",
			node: &FlowNode{ID: "email_request_dm", Type: NodeTypeMessage, Data: map[string]any{"content": "see https://x.io"}},
			want: RoleEmailGateMessage,
		},
		{
			name: "dm link",
			node: &FlowNode{ID: "m3", Type: NodeTypeMessage, Data: map[string]any{"dm_link": "https://shop.example.com"}},
			want: RoleLinkMessage,
		},
		{
			name: "url in content",
			node: &FlowNode{ID: "m4", Type: NodeTypeMessage, Data: map[string]any{"content": "Grab it here https://shop.example.com/p"}},
			want: RoleLinkMessage,
		},
		{
			name: "plain",
			node: &FlowNode{ID: "m5", Type: NodeTypeMessage, Data: map[string]any{"content": "Hi there!"}},
			want: RolePlainMessage,
		},
		{
			name: "delay",
			node: &FlowNode{ID: "d1", Type: NodeTypeDelay},
			want: RoleDelay,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, InferRole(tc.node))
		})
	}
}

func TestFlowNode_EffectiveRolePrefersStoredRole(t *testing.T) {
	t.Parallel()

	node := &FlowNode{ID: "request_follow_dm", Type: NodeTypeMessage, Role: RolePlainMessage}

	assert.Equal(t, RolePlainMessage, node.EffectiveRole())
	assert.False(t, node.IsGateOwned())
}

func TestFlowNode_Trigger(t *testing.T) {
	t.Parallel()

	node := &FlowNode{
		ID:   "trigger",
		Type: NodeTypeTrigger,
		Data: map[string]any{
			"triggerType":   "specific",
			"postId":        "media-1",
			"keywords":      []any{" Hello ", "", "price"},
			"requireFollow": true,
			"openingDM":     "Tap below to get the link",
		},
	}

	config := node.Trigger()

	assert.Equal(t, PostScopeSpecific, config.PostScope)
	assert.Equal(t, "media-1", config.PostID)
	assert.Equal(t, []string{"Hello", "price"}, config.Keywords)
	assert.True(t, config.RequireFollow)
	assert.False(t, config.RequireEmail)
	assert.True(t, config.OpeningDM)
	assert.Equal(t, "Tap below to get the link", config.OpeningText)
	assert.NoError(t, validator.New().Struct(config))
}

func TestFlowNode_TriggerDefaults(t *testing.T) {
	t.Parallel()

	config := (&FlowNode{Type: NodeTypeTrigger, Data: map[string]any{"keywords": "a, b"}}).Trigger()

	assert.Equal(t, PostScopeAny, config.PostScope)
	assert.Equal(t, []string{"a", "b"}, config.Keywords)
}

func TestFlowNode_Message(t *testing.T) {
	t.Parallel()

	node := &FlowNode{
		Type: NodeTypeMessage,
		Data: map[string]any{
			"text": "Choose one",
			"buttons": []any{
				map[string]any{"title": "Shop", "url": "https://shop.example.com"},
				map[string]any{"title": "Later"},
			},
		},
	}

	config := node.Message()

	assert.Equal(t, "Choose one", config.Content)
	assert.Len(t, config.Buttons, 2)
	assert.Equal(t, ButtonWebURL, config.Buttons[0].Type)
	assert.Equal(t, ButtonPostback, config.Buttons[1].Type)
	assert.Empty(t, config.LinkURL())
}

func TestFlowNode_MessageValidation(t *testing.T) {
	t.Parallel()

	config := MessageConfig{
		Content: "x",
		Buttons: []Button{{Type: ButtonWebURL, Title: "a title that is way too long"}},
	}

	assert.Error(t, validator.New().Struct(config))
}

func TestFlowNode_Delay(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		data map[string]any
		want int64
	}{
		{name: "seconds", data: map[string]any{"seconds": float64(30)}, want: 30},
		{name: "minutes", data: map[string]any{"duration": float64(2), "unit": "minutes"}, want: 120},
		{name: "hours", data: map[string]any{"duration": "1", "unit": "hours"}, want: 3600},
		{name: "days", data: map[string]any{"duration": 1, "unit": "day"}, want: 86400},
		{name: "empty", data: nil, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, (&FlowNode{Type: NodeTypeDelay, Data: tc.data}).Delay().Seconds)
		})
	}
}

func TestFlowNode_ConditionDefaultsToEquals(t *testing.T) {
	t.Parallel()

	config := (&FlowNode{Type: NodeTypeCondition, Data: map[string]any{"field": "email"}}).Condition()

	assert.Equal(t, OperatorEquals, config.Operator)
	assert.Equal(t, "email", config.Field)
}

func TestFlow_Navigation(t *testing.T) {
	t.Parallel()

	flow := &Flow{
		Nodes: []*FlowNode{
			{ID: "t", Type: NodeTypeTrigger},
			{ID: "m", Type: NodeTypeMessage, Data: map[string]any{"content": "hi"}},
		},
		Edges: []*FlowEdge{
			{ID: "e1", Source: "t", Target: "m"},
			{ID: "e2", Source: "t", Target: "x"},
		},
	}

	assert.Equal(t, "t", flow.TriggerNode().ID)
	assert.Equal(t, "m", flow.NodeByRole(RolePlainMessage).ID)
	assert.Nil(t, flow.NodeByID("missing"))

	next, ok := flow.NextNodeID("t")
	assert.True(t, ok)
	assert.Equal(t, "m", next)
	assert.Len(t, flow.OutgoingEdges("t"), 2)

	_, ok = flow.NextNodeID("m")
	assert.False(t, ok)
}
