package main

import (
	"context"
	"log/slog"

	"github.com/dukex/dmflow/pkg/eventbus"
	"github.com/dukex/dmflow/pkg/events"
)

// subscribeEventLog logs every automation event the bus delivers.
func subscribeEventLog(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	logger = logger.With("component", "event_log")

	for _, eventType := range []events.EventType{
		events.FlowTriggeredEvent,
		events.FlowBlockedEvent,
		events.FlowCompletedEvent,
		events.FlowDelayedEvent,
		events.MessageSentEvent,
		events.MessageFailedEvent,
		events.LinkClickedEvent,
	} {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			logger.DebugContext(ctx, "Automation event", "event_type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
