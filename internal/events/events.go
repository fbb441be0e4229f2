// Package events is the notification channel between the scheduler and its
// observers (UI, log followers). The scheduler publishes typed events;
// sinks decide the transport.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindStatus  Kind = "status"  // scheduler status transition
	KindOutcome Kind = "outcome" // per-recipient send outcome
	KindSystem  Kind = "system"  // human-readable pacing/system message
	KindQueue   Kind = "queue"   // queue depth update
)

// Status values published with KindStatus events.
type Status string

const (
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusStopped      Status = "stopped"
	StatusCompleted    Status = "completed"
	StatusLimitReached Status = "limit-reached"
	StatusDisconnected Status = "disconnected"
	StatusIdle         Status = "idle"
)

// Event is one notification. Fields are populated per Kind; zero values are
// omitted on the wire.
type Event struct {
	Kind       Kind       `json:"kind"`
	Status     Status     `json:"status,omitempty"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	Contact    string     `json:"contact,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	Error      string     `json:"error,omitempty"`
	QueueDepth int        `json:"queue_depth,omitempty"`
	Message    string     `json:"message,omitempty"`
	At         time.Time  `json:"at"`
}

// Sink receives events. Implementations must not block the dispatch loop;
// slow transports should drop or buffer internally.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// ZapSink writes events to the structured log.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Publish(ctx context.Context, ev Event) {
	fields := []zap.Field{zap.String("kind", string(ev.Kind))}
	switch ev.Kind {
	case KindStatus:
		fields = append(fields, zap.String("status", string(ev.Status)))
	case KindOutcome:
		fields = append(fields, zap.String("contact", ev.Contact), zap.String("outcome", ev.Outcome))
		if ev.Error != "" {
			fields = append(fields, zap.String("error", ev.Error))
		}
	case KindQueue:
		fields = append(fields, zap.Int("queue_depth", ev.QueueDepth))
	case KindSystem:
		fields = append(fields, zap.String("message", ev.Message))
	}
	if ev.CampaignID != nil {
		fields = append(fields, zap.String("campaign_id", ev.CampaignID.String()))
	}
	s.logger.Info("dispatch event", fields...)
}

// MultiSink fans one event out to several sinks.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Publish(ctx context.Context, ev Event) {
	for _, s := range m.sinks {
		s.Publish(ctx, ev)
	}
}
