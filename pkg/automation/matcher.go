package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// Matcher selects the flow an inbound event starts. At most one flow runs per
// event: the first match in creation order wins.
type Matcher struct {
	flows  persistence.FlowRepository
	logger *slog.Logger
}

func NewMatcher(flows persistence.FlowRepository, logger *slog.Logger) *Matcher {
	return &Matcher{
		flows:  flows,
		logger: logger.With("module", "trigger_matcher"),
	}
}

// MatchComment returns the first active flow of the workspace whose trigger
// accepts the comment, or nil. Keyword flows are candidates too.
func (m *Matcher) MatchComment(ctx context.Context, channel *models.Channel, comment models.IncomingComment) (*models.Flow, error) {
	flows, err := m.flows.FindActive(ctx, channel.WorkspaceID, persistence.FlowFilter{
		ChannelType: channel.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active flows: %w", err)
	}

	for _, flow := range flows {
		if MatchesComment(flow, comment) {
			m.logger.DebugContext(ctx, "Comment matched flow", "flow_id", flow.ID, "media_id", comment.MediaID)

			return flow, nil
		}
	}

	m.logger.DebugContext(ctx, "No flow matched comment", "candidates", len(flows), "media_id", comment.MediaID)

	return nil, nil
}

// MatchMessage returns the first active keyword flow whose keywords the text contains, or nil.
func (m *Matcher) MatchMessage(ctx context.Context, channel *models.Channel, text string) (*models.Flow, error) {
	flows, err := m.flows.FindActive(ctx, channel.WorkspaceID, persistence.FlowFilter{
		TriggerType: models.FlowTriggerKeyword,
		ChannelType: channel.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active keyword flows: %w", err)
	}

	for _, flow := range flows {
		if MatchesKeywords(flowKeywords(flow), text) {
			m.logger.DebugContext(ctx, "Message matched flow", "flow_id", flow.ID)

			return flow, nil
		}
	}

	return nil, nil
}

// MatchesComment applies the trigger's post scope and keyword rules to a comment.
func MatchesComment(flow *models.Flow, comment models.IncomingComment) bool {
	if trigger := flow.TriggerNode(); trigger != nil {
		config := trigger.Trigger()
		if config.PostScope == models.PostScopeSpecific && config.PostID != comment.MediaID {
			return false
		}
	}

	return MatchesKeywords(flowKeywords(flow), comment.Text)
}

// MatchesKeywords reports whether text contains any keyword, ignoring case.
// An empty keyword list matches everything.
func MatchesKeywords(keywords []string, text string) bool {
	if len(keywords) == 0 {
		return true
	}

	text = strings.ToLower(text)

	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(text, keyword) {
			return true
		}
	}

	return false
}

// flowKeywords prefers the trigger node's keywords over the flow level list.
func flowKeywords(flow *models.Flow) []string {
	if trigger := flow.TriggerNode(); trigger != nil {
		if keywords := trigger.Trigger().Keywords; len(keywords) > 0 {
			return keywords
		}
	}

	return flow.Keywords
}
