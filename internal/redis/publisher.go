package redis

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/events"
)

// DefaultEventChannel is the pub/sub channel dispatch events are fanned out on.
const DefaultEventChannel = "courier:events"

// EventPublisher forwards dispatch events to a Redis pub/sub channel so that
// UIs and log followers can subscribe without polling the API. Publish
// failures are logged and swallowed; the event feed is best-effort and must
// never stall the dispatch loop.
type EventPublisher struct {
	client  *Client
	logger  *zap.Logger
	channel string
}

// NewEventPublisher creates a publisher for the given channel. An empty
// channel name falls back to DefaultEventChannel.
func NewEventPublisher(client *Client, logger *zap.Logger, channel string) *EventPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &EventPublisher{
		client:  client,
		logger:  logger,
		channel: channel,
	}
}

// Publish implements events.Sink.
func (p *EventPublisher) Publish(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("marshal dispatch event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.client.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("publish dispatch event",
			zap.String("channel", p.channel),
			zap.Error(err),
		)
	}
}
