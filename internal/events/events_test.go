package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapSink_FieldsPerKind(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))
	campaignID := uuid.New()

	sink.Publish(context.Background(), Event{
		Kind:       KindOutcome,
		Outcome:    "SENT",
		Contact:    "911234567890",
		CampaignID: &campaignID,
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["kind"] != "outcome" {
		t.Errorf("expected kind outcome, got %v", fields["kind"])
	}
	if fields["contact"] != "911234567890" {
		t.Errorf("expected contact field, got %v", fields["contact"])
	}
	if fields["campaign_id"] != campaignID.String() {
		t.Errorf("expected campaign_id field, got %v", fields["campaign_id"])
	}
}

type countingSink struct {
	n int
}

func (c *countingSink) Publish(ctx context.Context, ev Event) { c.n++ }

func TestMultiSink_FansOut(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{}
	multi := NewMultiSink(a, b)

	multi.Publish(context.Background(), Event{Kind: KindSystem, Message: "hello"})
	multi.Publish(context.Background(), Event{Kind: KindQueue, QueueDepth: 3})

	if a.n != 2 || b.n != 2 {
		t.Errorf("expected both sinks to see 2 events, got %d and %d", a.n, b.n)
	}
}
