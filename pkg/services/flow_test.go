package services

import (
	"testing"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFlow() *models.Flow {
	return &models.Flow{
		WorkspaceID: "ws-1",
		Name:        "Guide funnel",
		TriggerType: models.FlowTriggerComment,
		Keywords:    []string{" guide ", "", "Guide", "ebook"},
		Nodes: []*models.FlowNode{
			{ID: "trigger", Type: models.NodeTypeTrigger, Data: map[string]any{
				"keywords": []any{" link ", ""}, "requireFollow": true,
			}},
			{ID: "request_follow_dm", Type: models.NodeTypeMessage, Data: map[string]any{"content": "Follow us first"}},
			{ID: "link", Type: models.NodeTypeMessage, Data: map[string]any{"content": "Here you go", "dm_link": "https://example.com/guide"}},
			{ID: "wait", Type: models.NodeTypeDelay, Data: map[string]any{"seconds": 30}},
			{ID: "thanks", Type: models.NodeTypeMessage, Data: map[string]any{"content": "Enjoy!"}},
		},
		Edges: []*models.FlowEdge{
			{ID: "e1", Source: "trigger", Target: "request_follow_dm"},
			{ID: "e2", Source: "request_follow_dm", Target: "link"},
			{ID: "e3", Source: "link", Target: "wait"},
			{ID: "e4", Source: "wait", Target: "thanks"},
		},
	}
}

func TestFlows_CreateInfersRolesAndNormalizes(t *testing.T) {
	t.Parallel()

	service := NewFlows(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), validFlow())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"guide", "ebook"}, created.Keywords)
	assert.Equal(t, models.ChannelTypeInstagram, created.ChannelType)

	stored, err := service.Get(t.Context(), "ws-1", created.ID)
	require.NoError(t, err)

	roles := map[string]models.NodeRole{}
	for _, node := range stored.Nodes {
		roles[node.ID] = node.Role
	}

	assert.Equal(t, map[string]models.NodeRole{
		"trigger":           models.RoleTrigger,
		"request_follow_dm": models.RoleFollowGateMessage,
		"link":              models.RoleLinkMessage,
		"wait":              models.RoleDelay,
		"thanks":            models.RolePlainMessage,
	}, roles)
	assert.Equal(t, []string{"link"}, stored.TriggerNode().Trigger().Keywords)
}

func TestFlows_PrepareRejectsInvalidFlows(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(flow *models.Flow)
		wantErr error
	}{
		{
			name:    "missing name",
			mutate:  func(flow *models.Flow) { flow.Name = " " },
			wantErr: ErrFlowNameRequired,
		},
		{
			name:    "missing workspace",
			mutate:  func(flow *models.Flow) { flow.WorkspaceID = "" },
			wantErr: ErrWorkspaceIDRequired,
		},
		{
			name:    "unknown trigger type",
			mutate:  func(flow *models.Flow) { flow.TriggerType = "STORY" },
			wantErr: ErrUnsupportedTrigger,
		},
		{
			name:    "no nodes",
			mutate:  func(flow *models.Flow) { flow.Nodes = nil; flow.Edges = nil },
			wantErr: ErrNodesRequired,
		},
		{
			name: "two triggers",
			mutate: func(flow *models.Flow) {
				flow.Nodes = append(flow.Nodes, &models.FlowNode{ID: "trigger-2", Type: models.NodeTypeTrigger})
			},
			wantErr: ErrTriggerNodeRequired,
		},
		{
			name: "no trigger",
			mutate: func(flow *models.Flow) {
				flow.Nodes = flow.Nodes[1:]
				flow.Edges = flow.Edges[1:]
			},
			wantErr: ErrTriggerNodeRequired,
		},
		{
			name:    "duplicate node id",
			mutate:  func(flow *models.Flow) { flow.Nodes[4].ID = "wait" },
			wantErr: ErrDuplicateNodeID,
		},
		{
			name: "dangling edge",
			mutate: func(flow *models.Flow) {
				flow.Edges = append(flow.Edges, &models.FlowEdge{ID: "e9", Source: "thanks", Target: "nowhere"})
			},
			wantErr: ErrInvalidEdge,
		},
		{
			name:    "message without content",
			mutate:  func(flow *models.Flow) { flow.Nodes[4].Data = map[string]any{} },
			wantErr: ErrInvalidNodeConfig,
		},
		{
			name: "specific post without id",
			mutate: func(flow *models.Flow) {
				flow.Nodes[0].Data["triggerType"] = "specific"
			},
			wantErr: ErrInvalidNodeConfig,
		},
		{
			name: "unknown action",
			mutate: func(flow *models.Flow) {
				flow.Nodes[4] = &models.FlowNode{ID: "thanks", Type: models.NodeTypeAction, Data: map[string]any{"action": "explode"}}
			},
			wantErr: ErrInvalidNodeConfig,
		},
		{
			name: "condition edge label",
			mutate: func(flow *models.Flow) {
				flow.Edges[3].Label = "maybe"
			},
			wantErr: ErrInvalidRequest,
		},
	}

	service := NewFlows(file.NewPersistence(t.TempDir()))

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			flow := validFlow()
			tc.mutate(flow)

			err := service.Prepare(flow)
			require.ErrorIs(t, err, tc.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestFlows_WorkspaceAccess(t *testing.T) {
	t.Parallel()

	service := NewFlows(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), validFlow())
	require.NoError(t, err)

	_, err = service.Get(t.Context(), "ws-other", created.ID)
	assert.True(t, IsAccessDenied(err))

	err = service.Delete(t.Context(), "ws-other", created.ID)
	assert.True(t, IsAccessDenied(err))

	_, err = service.Get(t.Context(), "ws-1", "missing")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestFlows_UpdateActivateDelete(t *testing.T) {
	t.Parallel()

	service := NewFlows(file.NewPersistence(t.TempDir()))
	ctx := t.Context()

	created, err := service.Create(ctx, validFlow())
	require.NoError(t, err)
	assert.False(t, created.IsActive)

	update := validFlow()
	update.Name = "Renamed"
	update.WorkspaceID = "ignored"

	updated, err := service.Update(ctx, "ws-1", created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "ws-1", updated.WorkspaceID)
	assert.Equal(t, "Renamed", updated.Name)

	activated, err := service.SetActive(ctx, "ws-1", created.ID, true)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	flows, err := service.List(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.True(t, flows[0].IsActive)

	stats, err := service.Stats(ctx, "ws-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	require.NoError(t, service.Delete(ctx, "ws-1", created.ID))

	_, err = service.Get(ctx, "ws-1", created.ID)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestNormalizeKeywords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Hello", "world"}, NormalizeKeywords([]string{" Hello", "hello ", "", "world"}))
	assert.Empty(t, NormalizeKeywords(nil))
}

func TestFlows_HealthCheck(t *testing.T) {
	t.Parallel()

	message, ok := NewFlows(file.NewPersistence(t.TempDir())).HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}
