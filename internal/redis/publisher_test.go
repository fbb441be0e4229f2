package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/events"
)

func TestEventPublisher_PublishesJSON(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	sub := rdb.Subscribe(context.Background(), "courier:events")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	pub := NewEventPublisher(client, zap.NewNop(), "")
	pub.Publish(context.Background(), events.Event{
		Kind:    events.KindStatus,
		Status:  events.StatusRunning,
		Message: "dispatch started",
	})

	select {
	case msg := <-sub.Channel():
		var ev events.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.Kind != events.KindStatus {
			t.Errorf("expected kind %q, got %q", events.KindStatus, ev.Kind)
		}
		if ev.Status != events.StatusRunning {
			t.Errorf("expected status %q, got %q", events.StatusRunning, ev.Status)
		}
		if ev.At.IsZero() {
			t.Error("expected publish to stamp the event time")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestEventPublisher_DefaultChannel(t *testing.T) {
	pub := NewEventPublisher(nil, zap.NewNop(), "")
	if pub.channel != DefaultEventChannel {
		t.Errorf("expected default channel %q, got %q", DefaultEventChannel, pub.channel)
	}
}
