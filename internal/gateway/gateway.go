// Package gateway abstracts the channel that actually delivers one message
// to one recipient. The scheduler only sees this interface.
package gateway

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrNotReady is returned when the messaging network connection is down.
// Sends fail fast with this error instead of hanging; the scheduler surfaces
// it as a disconnected status so the operator can intervene.
var ErrNotReady = errors.New("messaging gateway not connected")

// Gateway delivers one message (text, or text plus media) to one recipient.
type Gateway interface {
	// Ready reports whether the underlying connection can accept sends.
	Ready() bool
	// Send delivers the message to the normalized recipient identifier.
	// mediaPath is empty for plain text messages.
	Send(ctx context.Context, recipient, body, mediaPath string) error
}

// NormalizeRecipient derives the wire recipient identifier from a raw
// phone-like string: all non-digit characters are stripped and leading
// zeros removed (e.g. "+00961 3 123456" -> "9613123456").
func NormalizeRecipient(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// LogGateway records sends in the log instead of delivering them.
// Used for development and as the default when no channel is configured.
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Ready() bool { return true }

func (g *LogGateway) Send(ctx context.Context, recipient, body, mediaPath string) error {
	g.logger.Info("message logged (development mode)",
		zap.String("recipient", recipient),
		zap.Int("body_len", len(body)),
		zap.String("media_path", mediaPath),
	)
	return nil
}
