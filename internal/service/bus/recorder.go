package bus

import (
	"context"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// EventStore keeps events for later listing.
type EventStore interface {
	RecordEvent(ctx context.Context, sessionID string, ev chat.EventPayload)
}

// Record copies every published event into store until ctx ends.
func (b *Bus) Record(ctx context.Context, store EventStore) error {
	deliveries, err := b.Subscribe(ctx, "")
	if err != nil {
		return err
	}
	b.logger.Info().Msg("event recorder started")
	for d := range deliveries {
		store.RecordEvent(ctx, d.SessionID, d.Event)
	}
	b.logger.Info().Msg("event recorder stopped")
	return nil
}
